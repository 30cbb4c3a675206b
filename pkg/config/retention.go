package config

import "time"

// RetentionConfig controls eviction of finished sessions from memory.
type RetentionConfig struct {
	// SessionTTL is how long a terminal session stays queryable after it
	// finished. Zero disables TTL eviction (explicit deletion still works).
	SessionTTL time.Duration `yaml:"session_ttl"`

	// CleanupInterval is how often the eviction loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionTTL:      1 * time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}
