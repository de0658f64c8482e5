package report

import "fmt"

// Compression types.
const (
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
	CompressionNone = "none"
)

// Config controls where and how run reports are written.
type Config struct {
	// Prefix is the object path prefix, e.g. "reports".
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// Compression is gzip, zstd or none.
	Compression string `yaml:"compression" mapstructure:"compression"`

	// Level is the gzip level, 1 to 9. Zero uses the default.
	Level int `yaml:"level" mapstructure:"level"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "reports"
	}
	if c.Compression == "" {
		c.Compression = CompressionGzip
	}
}

// Validate checks the compression settings.
func (c *Config) Validate() error {
	switch c.Compression {
	case CompressionGzip, CompressionZstd, CompressionNone:
	default:
		return fmt.Errorf("report: invalid compression %q", c.Compression)
	}
	if c.Level < 0 || c.Level > 9 {
		return fmt.Errorf("report: level must be between 0 and 9, got %d", c.Level)
	}
	return nil
}

func (c *Config) extension() string {
	switch c.Compression {
	case CompressionGzip:
		return ".json.gz"
	case CompressionZstd:
		return ".json.zst"
	default:
		return ".json"
	}
}
