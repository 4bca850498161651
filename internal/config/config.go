package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	CoreDatabaseURL string
	RedisURL        string
	TemporalAddress string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string
	ServiceName     string

	// DashboardBaseURL is prepended to incident paths in outbound
	// notifications so responders can deep-link back into the UI.
	DashboardBaseURL string

	// ProvidersConfigPath points at the YAML file describing channel
	// provider pools (SMS primary/secondary ordering, endpoints).
	ProvidersConfigPath string

	// Delivery-log archival target. Archival cron is skipped when the
	// bucket is empty.
	ArchiveS3Endpoint  string
	ArchiveS3Bucket    string
	ArchiveS3AccessKey string
	ArchiveS3SecretKey string

	// Retention in days for webhook deliveries and notification logs
	// before they are archived and pruned.
	DeliveryLogRetentionDays int

	// AlertAutoResolveHours is how long an OPEN alert may age before
	// the auto-resolve cron closes it.
	AlertAutoResolveHours int

	// Inbound reply verification. Twilio signs callbacks with the
	// account auth token; Slack signs interactions with the app signing
	// secret. PublicBaseURL reconstructs the full callback URL Twilio
	// signed when the service sits behind a proxy.
	TwilioAuthToken    string
	SlackSigningSecret string
	PublicBaseURL      string

	// FlowSecretKey is the hex-encoded 32-byte key encrypting workflow
	// secrets at rest.
	FlowSecretKey string
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:          getEnv("CORE_DATABASE_URL", ""),
		RedisURL:                 getEnv("REDIS_URL", "redis://localhost:6379/0"),
		TemporalAddress:          getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:           getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:              getEnv("METRICS_ADDR", ""),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		ServiceName:              getEnv("SERVICE_NAME", ""),
		DashboardBaseURL:         getEnv("DASHBOARD_BASE_URL", "http://localhost:3000"),
		ProvidersConfigPath:      getEnv("PROVIDERS_CONFIG_PATH", ""),
		ArchiveS3Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveS3Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3AccessKey:       getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		ArchiveS3SecretKey:       getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		DeliveryLogRetentionDays: getEnvInt("DELIVERY_LOG_RETENTION_DAYS", 90),
		AlertAutoResolveHours:    getEnvInt("ALERT_AUTO_RESOLVE_HOURS", 24),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		SlackSigningSecret:       getEnv("SLACK_SIGNING_SECRET", ""),
		PublicBaseURL:            getEnv("PUBLIC_BASE_URL", ""),
		FlowSecretKey:            getEnv("FLOW_SECRET_KEY", ""),
	}

	return cfg, nil
}

// Validate checks that the config is complete for the given role
// ("core-api" or "worker").
func (c *Config) Validate(role string) error {
	if c.CoreDatabaseURL == "" {
		return fmt.Errorf("CORE_DATABASE_URL is required")
	}
	if c.TemporalAddress == "" {
		return fmt.Errorf("TEMPORAL_ADDRESS is required")
	}
	if c.FlowSecretKey == "" {
		return fmt.Errorf("FLOW_SECRET_KEY is required")
	}
	switch role {
	case "core-api":
		if c.HTTPListenAddr == "" {
			return fmt.Errorf("HTTP_LISTEN_ADDR is required")
		}
	case "worker":
		if c.ProvidersConfigPath == "" {
			return fmt.Errorf("PROVIDERS_CONFIG_PATH is required")
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

// SecretKey decodes FlowSecretKey into the fixed-size key secretbox
// expects.
func (c *Config) SecretKey() (*[32]byte, error) {
	raw, err := hex.DecodeString(c.FlowSecretKey)
	if err != nil {
		return nil, fmt.Errorf("FLOW_SECRET_KEY is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("FLOW_SECRET_KEY must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
