package config

import "time"

// ServerConfig holds HTTP and WebSocket settings.
type ServerConfig struct {
	HTTPPort         string        `yaml:"http_port"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPPort:       "8001",
		WSWriteTimeout: 10 * time.Second,
		MaxUploadBytes: 32 << 20,
	}
}

// BackendType selects the stage backend implementation.
type BackendType string

const (
	BackendSimulated BackendType = "simulated"
	BackendGRPC      BackendType = "grpc"
)

// IsValid reports whether t names a known backend.
func (t BackendType) IsValid() bool {
	return t == BackendSimulated || t == BackendGRPC
}

// BackendConfig selects and tunes the stage backend.
type BackendConfig struct {
	Type BackendType `yaml:"type"`

	// GRPCAddr is the stage service address when Type is grpc.
	GRPCAddr string `yaml:"grpc_addr"`

	// SimulatedLatency is how long each simulated stage takes.
	SimulatedLatency time.Duration `yaml:"simulated_latency"`

	// SimulatedConfidence is reported by every simulated stage.
	SimulatedConfidence float64 `yaml:"simulated_confidence"`
}

// DefaultBackendConfig returns the built-in backend defaults.
func DefaultBackendConfig() *BackendConfig {
	return &BackendConfig{
		Type:                BackendSimulated,
		SimulatedLatency:    500 * time.Millisecond,
		SimulatedConfidence: 0.9,
	}
}

// StorageConfig configures where uploaded images are written.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

// DefaultStorageConfig returns the built-in storage defaults.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{UploadDir: "uploads"}
}

// ArchiveConfig toggles the PostgreSQL audit archive. Connection settings
// come from DB_* environment variables.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TokenEnv     string `yaml:"token_env"` // Env var name for Slack bot token (default: "SLACK_BOT_TOKEN")
	Channel      string `yaml:"channel"`   // Slack channel ID (e.g., "C12345678")
	DashboardURL string `yaml:"dashboard_url"`
}

// DefaultSlackConfig returns the built-in Slack defaults.
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		TokenEnv:     "SLACK_BOT_TOKEN",
		DashboardURL: "http://localhost:3000",
	}
}
