package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func setProvider(t *testing.T) {
	t.Helper()
	setEnvs(t, map[string]string{
		"PROVIDER_SANDBOX_BASE_URL":      "https://api-sandbox.example.com/v5",
		"PROVIDER_SANDBOX_CLIENT_ID":     "client",
		"PROVIDER_SANDBOX_CLIENT_SECRET": "secret",
	})
}

func TestLoad_Defaults(t *testing.T) {
	setProvider(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8020, cfg.HTTPPort)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, domain.ModeSandbox, cfg.Provider.Mode)
	assert.Equal(t, 3, cfg.Provider.Attempts())
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout())
	assert.Zero(t, cfg.SyncInterval())
	assert.Equal(t, 15*time.Minute, cfg.SyncRunTimeout())
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL())
	assert.Equal(t, []domain.EntityType{domain.EntityBranches}, cfg.ScheduledEntityTypes())
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	setProvider(t)
	setEnvs(t, map[string]string{
		"PROVIDER_MODE":               "live",
		"PROVIDER_LIVE_BASE_URL":      "https://api.example.com/v5",
		"PROVIDER_LIVE_CLIENT_ID":     "live-client",
		"PROVIDER_LIVE_CLIENT_SECRET": "live-secret",
		"PROVIDER_RETRY_MAX_ATTEMPTS": "5",
		"REDIS_HOST":                  "redis",
		"KAFKA_BROKERS":               "kafka-1:9092,kafka-2:9092",
		"SYNC_INTERVAL_MINUTES":       "30",
		"OTEL_ENABLED":                "true",
		"OTEL_SAMPLE_RATE":            "0.1",
		"POSTGRES_DB":                 "possync_test",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, cfg.Provider.Mode)
	assert.Equal(t, "https://api.example.com/v5", cfg.Provider.Active().BaseURL)
	assert.Equal(t, 5, cfg.Provider.Attempts())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval())
	assert.True(t, cfg.Tracing.Enabled)
	assert.InDelta(t, 0.1, cfg.Tracing.SampleRate, 1e-9)
	assert.Equal(t, "possync_test", cfg.Postgres.DBName)
}

func TestLoad_MissingProviderCredentials(t *testing.T) {
	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_SANDBOX_BASE_URL")
}

func TestLoad_LiveModeNeedsLiveSettings(t *testing.T) {
	setProvider(t)
	t.Setenv("PROVIDER_MODE", "live")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_LIVE_BASE_URL")
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	setProvider(t)
	t.Setenv("INTEGRATION_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidSampleRate(t *testing.T) {
	setProvider(t)
	t.Setenv("OTEL_SAMPLE_RATE", "1.5")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE")
}

func TestLoad_NegativeSyncInterval(t *testing.T) {
	setProvider(t)
	t.Setenv("SYNC_INTERVAL_MINUTES", "-5")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_INTERVAL_MINUTES")
}

func TestLoad_UnparseableValue(t *testing.T) {
	setProvider(t)
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "soon")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestLoad_AccessSettings(t *testing.T) {
	setProvider(t)
	setEnvs(t, map[string]string{
		"INTEGRATION_API_TOKEN": "admin-token",
		"PPROF_ALLOWED_CIDRS":   "10.0.0.0/8,127.0.0.1/32",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "admin-token", cfg.APIToken)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1/32"}, cfg.PprofAllowedCIDRs)
}

func TestLoad_ProductionRequiresAPIToken(t *testing.T) {
	setProvider(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "INTEGRATION_API_TOKEN")
}
