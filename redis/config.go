package redis

import (
	"fmt"
	"time"

	"github.com/kbukum/crossmatch/security"
)

// Config holds Redis connection and run lock configuration.
type Config struct {
	// Enabled controls whether runs take the lock. A disabled component
	// hands out no-op locks.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr" mapstructure:"addr"`

	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`

	// PoolSize is the maximum number of socket connections.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size"`

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	DialTimeout  string `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  string `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout"`

	// KeyPrefix namespaces lock keys, e.g. "crossmatch:lock".
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`

	// TLS enables TLS to the server when set.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	// LockTTL bounds how long a lock outlives a crashed holder (e.g. "30m").
	// Holders extend it every third of the TTL.
	LockTTL string `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "crossmatch:lock"
	}
	if c.LockTTL == "" {
		c.LockTTL = "30m"
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be > 0")
	}
	for name, v := range map[string]string{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	ttl, err := time.ParseDuration(c.LockTTL)
	if err != nil {
		return fmt.Errorf("invalid lock_ttl %q: %w", c.LockTTL, err)
	}
	if ttl < 3*time.Second {
		return fmt.Errorf("lock_ttl must be at least 3s, got %s", ttl)
	}
	if c.TLS != nil {
		return c.TLS.Validate()
	}
	return nil
}

func (c *Config) lockTTL() time.Duration {
	d, _ := time.ParseDuration(c.LockTTL)
	return d
}
