package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/crossmatch/amazon"
	"github.com/kbukum/crossmatch/config"
	"github.com/kbukum/crossmatch/database"
	"github.com/kbukum/crossmatch/events"
	"github.com/kbukum/crossmatch/observability"
	"github.com/kbukum/crossmatch/redis"
	"github.com/kbukum/crossmatch/report"
	"github.com/kbukum/crossmatch/scheduler"
	"github.com/kbukum/crossmatch/storage"
	"github.com/kbukum/crossmatch/throttle"
	"github.com/kbukum/crossmatch/validation"
	"github.com/kbukum/crossmatch/version"
	"github.com/kbukum/crossmatch/walmart"
)

const serviceName = "crossmatch"

// Config is the crossmatch process configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Database      database.Config          `yaml:"database" mapstructure:"database"`
	Redis         redis.Config             `yaml:"redis" mapstructure:"redis"`
	Kafka         events.Config            `yaml:"kafka" mapstructure:"kafka"`
	Storage       storage.Config           `yaml:"storage" mapstructure:"storage"`
	Walmart       walmart.Config           `yaml:"walmart" mapstructure:"walmart"`
	Amazon        amazon.Config            `yaml:"amazon" mapstructure:"amazon"`
	Scheduler     SchedulerConfig          `yaml:"scheduler" mapstructure:"scheduler"`
	Observability observability.Config     `yaml:"observability" mapstructure:"observability"`
	Metrics       observability.PushConfig `yaml:"metrics" mapstructure:"metrics"`
	Report        report.Config            `yaml:"report" mapstructure:"report"`

	// Pipelines are directories searched for routine YAML files.
	Pipelines []string `yaml:"pipelines" mapstructure:"pipelines"`
}

// SchedulerConfig tunes the stage loop and overrides throttle limits per
// operation.
type SchedulerConfig struct {
	scheduler.Timing `yaml:",inline" mapstructure:",squash"`

	Throttle throttle.Table `yaml:"throttle" mapstructure:"throttle" validate:"dive"`
}

// Limits is the default throttle table with the overrides applied. Config
// keys arrive lower-cased, so overrides of known operations are matched
// without regard to case.
func (c SchedulerConfig) Limits() throttle.Table {
	defaults := throttle.DefaultTable()
	overrides := make(throttle.Table, len(c.Throttle))
	for op, l := range c.Throttle {
		if i := slices.IndexFunc(defaults.Ops(), func(known string) bool { return strings.EqualFold(known, op) }); i >= 0 {
			op = defaults.Ops()[i]
		}
		overrides[op] = l
	}
	return defaults.Merge(overrides)
}

func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Version == "" {
		c.Version = version.Get().Version
	}
	c.Database.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Walmart.ApplyDefaults()
	c.Amazon.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	if c.Observability.ServiceVersion == "" {
		c.Observability.ServiceVersion = c.Version
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = c.Environment
	}
	c.Observability.ApplyDefaults()
	c.Metrics.ApplyDefaults()
	c.Report.ApplyDefaults()
}

func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	sections := []struct {
		name     string
		validate func() error
	}{
		{"database", c.Database.Validate},
		{"redis", c.Redis.Validate},
		{"kafka", c.Kafka.Validate},
		{"storage", c.Storage.Validate},
		{"walmart", c.Walmart.Validate},
		{"amazon", c.Amazon.Validate},
		{"scheduler", c.Scheduler.Timing.Validate},
		{"scheduler.throttle", c.Scheduler.Limits().Validate},
		{"observability", c.Observability.Validate},
		{"metrics", c.Metrics.Validate},
		{"report", c.Report.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func loadConfig(flags *globalFlags) (*Config, error) {
	var opts []config.LoaderOption
	if flags.configFile != "" {
		opts = append(opts, config.WithConfigFile(flags.configFile))
	}
	if flags.envFile != "" {
		opts = append(opts, config.WithEnvFile(flags.envFile))
	}
	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}
