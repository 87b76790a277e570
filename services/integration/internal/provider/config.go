package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

// ModeConfig is the base URL and OAuth client of one provider environment.
type ModeConfig struct {
	BaseURL      string `env:"BASE_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Config is everything the client needs to talk to the provider. It is read
// from PROVIDER_* environment variables and passed in explicitly.
type Config struct {
	Mode              domain.Mode `env:"MODE" envDefault:"sandbox"`
	Sandbox           ModeConfig  `envPrefix:"SANDBOX_"`
	Live              ModeConfig  `envPrefix:"LIVE_"`
	GrantType         string      `env:"GRANT_TYPE" envDefault:"client_credentials"`
	TokenPath         string      `env:"TOKEN_PATH" envDefault:"/oauth/token"`
	TimeoutSeconds    float64     `env:"TIMEOUT_SECONDS" envDefault:"30"`
	RetryMaxAttempts  int         `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelaySeconds float64     `env:"RETRY_DELAY_SECONDS" envDefault:"1"`
	// Outbound request budget shared by every run in the process; 0 is unlimited.
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"0"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"1"`
}

// Active returns the settings of the configured mode. Sandbox and live
// settings are never mixed.
func (c Config) Active() ModeConfig {
	if c.Mode == domain.ModeLive {
		return c.Live
	}
	return c.Sandbox
}

// Timeout bounds a single HTTP attempt.
func (c Config) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// RetryDelay is the base wait between attempts.
func (c Config) RetryDelay() time.Duration {
	return seconds(c.RetryDelaySeconds)
}

// Attempts is the total number of attempts per request, at least one.
func (c Config) Attempts() int {
	if c.RetryMaxAttempts < 1 {
		return 1
	}
	return c.RetryMaxAttempts
}

// Validate checks that the active mode is fully configured.
func (c Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("PROVIDER_MODE must be sandbox or live, got %q", c.Mode)
	}
	prefix := "PROVIDER_" + strings.ToUpper(string(c.Mode)) + "_"
	active := c.Active()
	if active.BaseURL == "" {
		return fmt.Errorf("%sBASE_URL is required", prefix)
	}
	u, err := url.Parse(active.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%sBASE_URL %q is not an absolute URL", prefix, active.BaseURL)
	}
	if active.ClientID == "" || active.ClientSecret == "" {
		return fmt.Errorf("%sCLIENT_ID and %sCLIENT_SECRET are required", prefix, prefix)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("PROVIDER_RATE_LIMIT_PER_SECOND must not be negative")
	}
	if c.RetryDelaySeconds < 0 {
		return fmt.Errorf("PROVIDER_RETRY_DELAY_SECONDS must not be negative")
	}
	return nil
}

// Limiter returns the outbound request limiter, or nil when unlimited.
func (c Config) Limiter() *rate.Limiter {
	if c.RateLimitPerSecond <= 0 {
		return nil
	}
	burst := c.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RateLimitPerSecond), burst)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
