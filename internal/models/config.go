package models

import "time"

// Config holds the application configuration
type Config struct {
	Gateway       GatewayConfig  `json:"gateway"`
	Database      DatabaseConfig `json:"database"`
	Media         MediaConfig    `json:"media"`
	Relay         RelayConfig    `json:"relay"`
	Retry         RetryConfig    `json:"retry"`
	Server        ServerConfig   `json:"server"`
	Tracing       TracingConfig  `json:"tracing"`
	LifecycleTags []string       `json:"lifecycleTags"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retentionDays"`
}

// GatewayConfig holds Evolution API related configuration.
type GatewayConfig struct {
	APIBaseURL    string        `json:"api_base_url"`
	Timeout       time.Duration `json:"timeout_ms"`
	RetryCount    int           `json:"retry_count"`
	WebhookSecret string        `json:"webhook_secret"`
	// UsePushName controls whether gateway-supplied push names are used as
	// display names for newly created contacts.
	UsePushName bool `json:"usePushName"`
	// AvatarTimeoutSec bounds the profile-picture lookup and download.
	AvatarTimeoutSec int `json:"avatarTimeoutSec"`
}

// DatabaseConfig holds database related configuration.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MediaConfig holds media storage configuration.
type MediaConfig struct {
	CacheDir string `json:"cache_dir"`
	// PublicBaseURL is prepended to stored filenames to build attachment URLs
	// served to the chat UI.
	PublicBaseURL string          `json:"public_base_url"`
	MaxSizeMB     MediaSizeLimits `json:"maxSizeMB"`
}

// MediaSizeLimits defines size limits for different media classes in MB.
type MediaSizeLimits struct {
	Image    int `json:"image"`
	Video    int `json:"video"`
	Audio    int `json:"audio"`
	Document int `json:"document"`
}

// RelayConfig holds the websocket notification relay configuration.
type RelayConfig struct {
	Enabled        bool `json:"enabled"`
	WriteTimeoutMs int  `json:"writeTimeoutMs"`
}

// RetryConfig holds retry related configuration.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port                 int `json:"port"`
	CleanupIntervalHours int `json:"cleanupIntervalHours"`
}

// TracingConfig mirrors the OpenTelemetry settings section.
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
