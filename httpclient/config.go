package httpclient

import (
	"fmt"
	"time"

	"github.com/kbukum/crossmatch/resilience"
	"github.com/kbukum/crossmatch/security"
)

const defaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// Name labels logs and errors. Defaults to the base URL host.
	Name    string        `yaml:"name" mapstructure:"name"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Auth is applied to every request unless the request overrides it.
	Auth    *AuthConfig       `yaml:"-" mapstructure:"-"`
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// RatePerSecond paces outgoing calls. Zero disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	// Burst is the limiter burst. Defaults to 1.
	Burst int `yaml:"burst" mapstructure:"burst"`

	// TLS overrides the default transport's TLS settings.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	// Retry and CircuitBreaker are disabled when nil.
	Retry          *resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RatePerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Retry != nil && c.Retry.RetryIf == nil {
		c.Retry.RetryIf = IsRetryable
	}
	if c.CircuitBreaker != nil && c.CircuitBreaker.IsFailure == nil {
		c.CircuitBreaker.IsFailure = IsRetryable
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("httpclient: rate_per_second must not be negative (got: %v)", c.RatePerSecond)
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("httpclient: %w", err)
		}
	}
	return nil
}

// DefaultRetryConfig returns a retry config that only retries transport
// failures, 429 and 5xx responses.
func DefaultRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryIf = IsRetryable
	return &cfg
}

// DefaultCircuitBreakerConfig returns a breaker config that trips on the
// same failures DefaultRetryConfig retries.
func DefaultCircuitBreakerConfig(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.IsFailure = IsRetryable
	return &cfg
}
