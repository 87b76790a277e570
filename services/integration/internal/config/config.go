package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/raqmix/kippis-possync/pkg/config"
	"github.com/raqmix/kippis-possync/pkg/database"
	"github.com/raqmix/kippis-possync/pkg/tracing"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
	"github.com/raqmix/kippis-possync/services/integration/internal/provider"
)

// Config holds all configuration for the integration service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"INTEGRATION_HTTP_PORT" envDefault:"8020"`

	// Bearer token required on /api/v1; empty leaves the API open.
	APIToken string `env:"INTEGRATION_API_TOKEN"`
	// Comma-separated CIDRs allowed to reach /debug/pprof.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	Postgres database.PostgresConfig `envPrefix:"POSTGRES_"`

	// Redis caches credentials and Kafka idempotency keys. Leave REDIS_HOST
	// empty to run without it.
	Redis database.RedisConfig `envPrefix:"REDIS_"`

	// Kafka is optional; with no brokers sync runs are not published and
	// sync requests are only accepted over HTTP.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	Provider provider.Config `envPrefix:"PROVIDER_"`

	Tracing tracing.Config `envPrefix:"OTEL_"`

	// Scheduled sync; 0 disables the scheduler.
	SyncIntervalMinutes   int      `env:"SYNC_INTERVAL_MINUTES" envDefault:"0"`
	SyncEntityTypes       []string `env:"SYNC_ENTITY_TYPES" envDefault:"branches" envSeparator:","`
	SyncRunTimeoutMinutes int      `env:"SYNC_RUN_TIMEOUT_MINUTES" envDefault:"15"`

	// Kafka-triggered syncs are deduplicated by event id for this long.
	IdempotencyTTLHours int `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load integration config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.Environment == "production" && c.APIToken == "" {
		return fmt.Errorf("INTEGRATION_API_TOKEN is required in production")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.Postgres.User == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	if c.SyncIntervalMinutes < 0 {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES must not be negative")
	}
	if c.SyncRunTimeoutMinutes < 1 {
		return fmt.Errorf("SYNC_RUN_TIMEOUT_MINUTES must be at least 1")
	}
	for _, et := range c.SyncEntityTypes {
		if et == "" {
			return fmt.Errorf("SYNC_ENTITY_TYPES contains an empty entry")
		}
	}
	return nil
}

// SyncInterval is the scheduler period; zero means disabled.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// SyncRunTimeout bounds one run started by the scheduler, Kafka or HTTP.
func (c *Config) SyncRunTimeout() time.Duration {
	return time.Duration(c.SyncRunTimeoutMinutes) * time.Minute
}

// IdempotencyTTL is how long processed sync request events are remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

// KafkaEnabled reports whether brokers are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ScheduledEntityTypes returns the entity types the scheduler syncs.
func (c *Config) ScheduledEntityTypes() []domain.EntityType {
	out := make([]domain.EntityType, 0, len(c.SyncEntityTypes))
	for _, et := range c.SyncEntityTypes {
		out = append(out, domain.EntityType(et))
	}
	return out
}
