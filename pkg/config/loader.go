package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "medcopilot.yaml"

// YAMLConfig represents the complete medcopilot.yaml file structure
type YAMLConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Pipeline  *PipelineConfig  `yaml:"pipeline"`
	Backend   *BackendConfig   `yaml:"backend"`
	Retention *RetentionConfig `yaml:"retention"`
	Storage   *StorageConfig   `yaml:"storage"`
	Archive   *ArchiveConfig   `yaml:"archive"`
	Slack     *SlackConfig     `yaml:"slack"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read medcopilot.yaml from configDir (absent file means defaults only)
//  2. Expand {{.VAR}} environment references
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"backend", cfg.Backend.Type,
		"default_stage_timeout", cfg.Pipeline.DefaultStageTimeout,
		"session_ttl", cfg.Retention.SessionTTL,
		"archive_enabled", cfg.Archive.Enabled,
		"slack_enabled", cfg.Slack.Enabled)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	path := filepath.Join(configDir, FileName)

	user, err := loadYAML(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("Configuration file not found, using built-in defaults", "path", path)
			cfg := Default()
			cfg.configDir = configDir
			return cfg, nil
		}
		return nil, NewLoadError(FileName, err)
	}

	cfg, err := merge(Default(), user)
	if err != nil {
		return nil, err
	}
	cfg.configDir = configDir
	return cfg, nil
}

func loadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = ExpandEnv(data)

	var out YAMLConfig
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &out, nil
}

// merge overlays non-zero user values onto the defaults section by section.
func merge(base *Config, user *YAMLConfig) (*Config, error) {
	sections := []struct {
		name string
		dst  any
		src  any
		set  bool
	}{
		{"server", base.Server, user.Server, user.Server != nil},
		{"pipeline", base.Pipeline, user.Pipeline, user.Pipeline != nil},
		{"backend", base.Backend, user.Backend, user.Backend != nil},
		{"retention", base.Retention, user.Retention, user.Retention != nil},
		{"storage", base.Storage, user.Storage, user.Storage != nil},
		{"archive", base.Archive, user.Archive, user.Archive != nil},
		{"slack", base.Slack, user.Slack, user.Slack != nil},
	}
	for _, s := range sections {
		if !s.set {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s config: %w", s.name, err)
		}
	}
	return base, nil
}
