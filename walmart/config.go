package walmart

import (
	"fmt"
	"time"

	"github.com/kbukum/crossmatch/resilience"
)

// Config configures the Walmart search client and the wm stage.
type Config struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RatePerSecond paces page requests on the client side.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	// DailyLimit is the number of calls allowed in any 24 hours.
	DailyLimit int `yaml:"daily_limit" mapstructure:"daily_limit"`
	PageSize   int `yaml:"page_size" mapstructure:"page_size"`
	// MaxResults caps how deep a subcategory is paged.
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
	// DedupEvery runs the duplicate UPC sweep every n batches. A negative
	// value only sweeps when the stage finishes.
	DedupEvery int `yaml:"dedup_every" mapstructure:"dedup_every"`

	Retry *resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.walmartlabs.com/v1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 5
	}
	if c.DailyLimit == 0 {
		c.DailyLimit = 4750
	}
	if c.PageSize == 0 {
		c.PageSize = 25
	}
	if c.MaxResults == 0 {
		c.MaxResults = 1000
	}
	if c.DedupEvery == 0 {
		c.DedupEvery = 50
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DailyLimit < 1 {
		return fmt.Errorf("walmart: daily_limit must be positive (got: %d)", c.DailyLimit)
	}
	if c.PageSize < 1 || c.PageSize > 25 {
		return fmt.Errorf("walmart: page_size must be between 1 and 25 (got: %d)", c.PageSize)
	}
	if c.MaxResults < c.PageSize {
		return fmt.Errorf("walmart: max_results must be at least page_size (got: %d)", c.MaxResults)
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("walmart: rate_per_second must not be negative")
	}
	return nil
}
