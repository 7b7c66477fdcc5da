package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"evocrm/internal/constants"
	"evocrm/internal/models"
)

var (
	ErrMissingGatewayURL = models.ConfigError{Message: "missing gateway API base URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir   = models.ConfigError{Message: "missing media cache directory"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - path comes from the operator, not request input
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Gateway.APIBaseURL == "" {
		return ErrMissingGatewayURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.CacheDir == "" {
		return ErrMissingMediaDir
	}

	seen := make(map[string]bool)
	for i, tag := range c.LifecycleTags {
		if strings.TrimSpace(tag) == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty lifecycle tag at index %d", i)}
		}
		if seen[tag] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate lifecycle tag: %s", tag)}
		}
		seen[tag] = true
	}

	if c.RetentionDays < 0 {
		return models.ConfigError{Message: "retentionDays must not be negative"}
	}

	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.CleanupIntervalHours == 0 {
		c.Server.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = time.Duration(constants.DefaultGatewayTimeoutSec) * time.Second
	}
	if c.Gateway.RetryCount == 0 {
		c.Gateway.RetryCount = constants.DefaultMaxAttempts
	}
	if c.Gateway.AvatarTimeoutSec == 0 {
		c.Gateway.AvatarTimeoutSec = constants.DefaultAvatarTimeoutSec
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.Relay.WriteTimeoutMs == 0 {
		c.Relay.WriteTimeoutMs = constants.DefaultRelayWriteTimeoutMs
	}
	if c.Media.MaxSizeMB.Image == 0 {
		c.Media.MaxSizeMB.Image = constants.DefaultMaxImageSizeMB
	}
	if c.Media.MaxSizeMB.Video == 0 {
		c.Media.MaxSizeMB.Video = constants.DefaultMaxVideoSizeMB
	}
	if c.Media.MaxSizeMB.Audio == 0 {
		c.Media.MaxSizeMB.Audio = constants.DefaultMaxAudioSizeMB
	}
	if c.Media.MaxSizeMB.Document == 0 {
		c.Media.MaxSizeMB.Document = constants.DefaultMaxDocumentSizeMB
	}
	if len(c.LifecycleTags) == 0 {
		c.LifecycleTags = []string{constants.DefaultLifecycleTag, "contactado", "cliente", "descartado"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("EVOCRM_GATEWAY_URL"); url != "" {
		c.Gateway.APIBaseURL = url
	}
	if secret := os.Getenv("EVOCRM_WEBHOOK_SECRET"); secret != "" {
		c.Gateway.WebhookSecret = secret
	}
	if path := os.Getenv("EVOCRM_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("EVOCRM_MEDIA_DIR"); dir != "" {
		c.Media.CacheDir = dir
	}
	if port := os.Getenv("EVOCRM_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 && p <= 65535 {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("EVOCRM_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("EVOCRM_ENV") == "production"

	if isProduction && c.Gateway.WebhookSecret == "" {
		return models.ConfigError{Message: "webhook secret is required in production"}
	}
	if isProduction && !strings.HasPrefix(c.Gateway.APIBaseURL, "https://") {
		return models.ConfigError{Message: "gateway API base URL must use HTTPS in production"}
	}

	return nil
}
