package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost:5432/imgforge")
}

func setAPI(t *testing.T) {
	t.Helper()
	setRequired(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("S3_URL", "http://localhost:9000")
	t.Setenv("S3_BUCKET", "images")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setAPI(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.FreeDailyLimit)
	assert.Equal(t, 50, cfg.PaidDailyLimit)
	assert.Equal(t, "postgres", cfg.QuotaBackend)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout())
	assert.Equal(t, 30*time.Second, cfg.FinishTimeout())
	assert.Equal(t, 15*time.Minute, cfg.StaleGenerationAge())
	assert.NoError(t, cfg.ValidateAPI())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	setRequired(t)
	t.Setenv("QUOTA_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("QUOTA_BACKEND", "mongo")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadWithoutAPISettings(t *testing.T) {
	setRequired(t)
	for _, key := range []string{"JWT_SECRET", "S3_URL", "S3_BUCKET", "S3_REGION", "S3_ACCESS_KEY", "S3_SECRET_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ValidateAPI()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "S3_BUCKET")
}

func TestLoadRejectsStaleAgeWithinProviderBudget(t *testing.T) {
	setRequired(t)
	t.Setenv("PROVIDER_TIMEOUT_SEC", "600")
	t.Setenv("STALE_GENERATION_MINUTES", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STALE_GENERATION_MINUTES")

	t.Setenv("STALE_GENERATION_MINUTES", "11")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 11*time.Minute, cfg.StaleGenerationAge())
}

func TestLocationFromTimezone(t *testing.T) {
	cfg := &Config{QuotaTimezone: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.QuotaTimezone = "Not/AZone"
	_, err = cfg.Location()
	assert.Error(t, err)
}
