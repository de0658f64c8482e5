package amazon

import (
	"fmt"
	"time"

	"github.com/kbukum/crossmatch/resilience"
	"github.com/kbukum/crossmatch/security"
)

// Config configures the Amazon client.
type Config struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	MarketplaceID string        `yaml:"marketplace_id" mapstructure:"marketplace_id"`
	AccessToken   string        `yaml:"access_token" mapstructure:"access_token"`
	Currency      string        `yaml:"currency" mapstructure:"currency"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// FulfilledByAmazon prices fee estimates as FBA listings.
	FulfilledByAmazon bool `yaml:"fulfilled_by_amazon" mapstructure:"fulfilled_by_amazon"`

	// TLS is for egress proxies that terminate TLS with a private CA.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	Retry          *resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://sellingpartnerapi-na.amazon.com"
	}
	if c.MarketplaceID == "" {
		c.MarketplaceID = "ATVPDKIKX0DER"
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("amazon: base_url is required")
	}
	if c.MarketplaceID == "" {
		return fmt.Errorf("amazon: marketplace_id is required")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("amazon: currency must be an ISO 4217 code (got: %q)", c.Currency)
	}
	return nil
}
