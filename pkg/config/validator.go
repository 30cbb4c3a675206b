package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/medcopilot/medcopilot/pkg/pipeline"
)

// ConfigValidator validates configuration with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs validation, stopping at the first error.
func (v *ConfigValidator) ValidateAll() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"server", v.validateServer},
		{"pipeline", v.validatePipeline},
		{"backend", v.validateBackend},
		{"retention", v.validateRetention},
		{"storage", v.validateStorage},
		{"slack", v.validateSlack},
	}
	for _, c := range checks {
		if err := c.fn(); err != nil {
			return fmt.Errorf("%s validation failed: %w", c.name, err)
		}
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if strings.TrimSpace(s.HTTPPort) == "" {
		return NewValidationError("server", "http_port", ErrMissingRequiredField)
	}
	if s.WSWriteTimeout <= 0 {
		return NewValidationError("server", "ws_write_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.MaxUploadBytes <= 0 {
		return NewValidationError("server", "max_upload_bytes", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validatePipeline() error {
	p := v.cfg.Pipeline
	if p.DefaultStageTimeout <= 0 {
		return NewValidationError("pipeline", "default_stage_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	for name, d := range p.StageTimeouts {
		if _, ok := pipeline.Lookup(name); !ok {
			return NewValidationError("pipeline", "stage_timeouts", fmt.Errorf("%w: %s", ErrUnknownStage, name))
		}
		if d <= 0 {
			return NewValidationError("pipeline", "stage_timeouts", fmt.Errorf("%w: %s must be positive", ErrInvalidValue, name))
		}
	}
	return nil
}

func (v *ConfigValidator) validateBackend() error {
	b := v.cfg.Backend
	if !b.Type.IsValid() {
		return NewValidationError("backend", "type", fmt.Errorf("%w: %q", ErrInvalidValue, b.Type))
	}
	if b.Type == BackendGRPC && strings.TrimSpace(b.GRPCAddr) == "" {
		return NewValidationError("backend", "grpc_addr", ErrMissingRequiredField)
	}
	if b.SimulatedLatency < 0 {
		return NewValidationError("backend", "simulated_latency", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	c := b.SimulatedConfidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return NewValidationError("backend", "simulated_confidence", fmt.Errorf("%w: must be within [0,1]", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r.SessionTTL < 0 {
		return NewValidationError("retention", "session_ttl", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if r.SessionTTL > 0 && r.CleanupInterval <= 0 {
		return NewValidationError("retention", "cleanup_interval", fmt.Errorf("%w: must be positive when session_ttl is set", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateStorage() error {
	if strings.TrimSpace(v.cfg.Storage.UploadDir) == "" {
		return NewValidationError("storage", "upload_dir", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateSlack() error {
	s := v.cfg.Slack
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Channel) == "" {
		return NewValidationError("slack", "channel", ErrMissingRequiredField)
	}
	if strings.TrimSpace(s.TokenEnv) == "" {
		return NewValidationError("slack", "token_env", ErrMissingRequiredField)
	}
	return nil
}
