package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:""`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	AutoMigrate        bool   `envconfig:"AUTO_MIGRATE" default:"false"`
	JWTSecret          string `envconfig:"JWT_SECRET" default:""`

	// Quota settings
	QuotaBackend   string `envconfig:"QUOTA_BACKEND" default:"postgres"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	FreeDailyLimit int    `envconfig:"FREE_DAILY_LIMIT" default:"5"`
	PaidDailyLimit int    `envconfig:"PAID_DAILY_LIMIT" default:"50"`
	QuotaTimezone  string `envconfig:"QUOTA_TIMEZONE" default:""`

	// Object storage settings
	S3URL           string `envconfig:"S3_URL" default:""`
	S3Bucket        string `envconfig:"S3_BUCKET" default:""`
	S3Region        string `envconfig:"S3_REGION" default:""`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY" default:""`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL" default:""`
	MaxUploadBytes  int64  `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	// Image provider settings
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiAPIKeySecret string `envconfig:"GEMINI_API_KEY_SECRET" default:""`
	GeminiBaseURL      string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiImageModel   string `envconfig:"GEMINI_IMAGE_MODEL" default:"gemini-2.0-flash-preview-image-generation"`
	ProviderTimeoutSec int    `envconfig:"PROVIDER_TIMEOUT_SEC" default:"60"`
	FinishTimeoutSec   int    `envconfig:"FINISH_TIMEOUT_SEC" default:"30"`
	PresetCatalogPath  string `envconfig:"PRESET_CATALOG_PATH" default:""`

	// Pub/Sub settings
	GCPProjectID          string `envconfig:"GCP_PROJECT_ID" default:""`
	PubSubGenerationTopic string `envconfig:"PUBSUB_GENERATION_TOPIC" default:""`
	PubSubEmulatorHost    string `envconfig:"PUBSUB_EMULATOR_HOST" default:""`

	// Maintenance settings
	StaleGenerationMinutes int `envconfig:"STALE_GENERATION_MINUTES" default:"15"`
	MaintenanceIntervalSec int `envconfig:"MAINTENANCE_INTERVAL_SEC" default:"0"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.FreeDailyLimit < 0 || cfg.PaidDailyLimit < 0 {
		return nil, fmt.Errorf("daily limits must be non-negative: free=%d paid=%d", cfg.FreeDailyLimit, cfg.PaidDailyLimit)
	}
	switch cfg.QuotaBackend {
	case "postgres", "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when QUOTA_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported QUOTA_BACKEND %q", cfg.QuotaBackend)
	}
	if budget := cfg.ProviderTimeout() + cfg.FinishTimeout(); cfg.StaleGenerationAge() <= budget {
		return nil, fmt.Errorf("STALE_GENERATION_MINUTES (%s) must exceed provider plus finish timeout (%s)",
			cfg.StaleGenerationAge(), budget)
	}
	return &cfg, nil
}

// ValidateAPI checks the settings only the API server needs.
func (c *Config) ValidateAPI() error {
	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"JWT_SECRET", c.JWTSecret},
		{"S3_URL", c.S3URL},
		{"S3_BUCKET", c.S3Bucket},
		{"S3_REGION", c.S3Region},
		{"S3_ACCESS_KEY", c.S3AccessKey},
		{"S3_SECRET_KEY", c.S3SecretKey},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required key(s) missing value: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Location returns the time zone that quota days are computed in.
func (c *Config) Location() (*time.Location, error) {
	if c.QuotaTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading quota timezone %q: %w", c.QuotaTimezone, err)
	}
	return loc, nil
}

func (c *Config) ProviderTimeout() time.Duration {
	if c.ProviderTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

// FinishTimeout bounds the storage and bookkeeping work after a provider call.
func (c *Config) FinishTimeout() time.Duration {
	if c.FinishTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.FinishTimeoutSec) * time.Second
}

func (c *Config) StaleGenerationAge() time.Duration {
	return time.Duration(c.StaleGenerationMinutes) * time.Minute
}
