package config

import "time"

// PipelineConfig controls per-stage deadlines.
type PipelineConfig struct {
	// DefaultStageTimeout bounds every stage call that has no override.
	DefaultStageTimeout time.Duration `yaml:"default_stage_timeout"`

	// StageTimeouts overrides the deadline for individual stages by name.
	StageTimeouts map[string]time.Duration `yaml:"stage_timeouts"`
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		DefaultStageTimeout: 2 * time.Minute,
		StageTimeouts: map[string]time.Duration{
			"visual_diagnostics_agent": 5 * time.Minute,
			"medical_literature_agent": 3 * time.Minute,
		},
	}
}

// StageTimeout returns the deadline for the named stage.
func (c *PipelineConfig) StageTimeout(stage string) time.Duration {
	if d, ok := c.StageTimeouts[stage]; ok && d > 0 {
		return d
	}
	return c.DefaultStageTimeout
}

// MaxStageTimeout returns the longest deadline any stage can run under.
func (c *PipelineConfig) MaxStageTimeout() time.Duration {
	longest := c.DefaultStageTimeout
	for _, d := range c.StageTimeouts {
		if d > longest {
			longest = d
		}
	}
	return longest
}
