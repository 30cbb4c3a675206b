// Package config loads medcopilot.yaml, expands environment references and
// merges user values over built-in defaults.
package config

// Config is the umbrella configuration object returned by Initialize and
// passed to every component constructor.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Server    *ServerConfig
	Pipeline  *PipelineConfig
	Backend   *BackendConfig
	Retention *RetentionConfig
	Storage   *StorageConfig
	Archive   *ArchiveConfig
	Slack     *SlackConfig
}

// Default returns a configuration made only of built-in defaults.
func Default() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Backend:   DefaultBackendConfig(),
		Retention: DefaultRetentionConfig(),
		Storage:   DefaultStorageConfig(),
		Archive:   &ArchiveConfig{},
		Slack:     DefaultSlackConfig(),
	}
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
