package storage

import (
	"context"
	"fmt"

	"github.com/kbukum/crossmatch/component"
	"github.com/kbukum/crossmatch/logger"
)

// New creates the Storage selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Storage, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderS3:
		return NewS3(ctx, cfg)
	default:
		return NewLocal(cfg.BasePath)
	}
}

// Component wraps Storage and implements component.Component.
type Component struct {
	storage Storage
	cfg     Config
	log     *logger.Logger
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a storage component for use with the component registry.
func NewComponent(cfg Config) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: logger.Get("storage")}
}

// Storage returns the underlying Storage, or nil if disabled or not started.
func (c *Component) Storage() Storage { return c.storage }

func (c *Component) Name() string { return "storage" }

func (c *Component) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("Storage component disabled, run reports are not written")
		return nil
	}
	s, err := New(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("storage start: %w", err)
	}
	c.storage = s
	return nil
}

func (c *Component) Stop(context.Context) error {
	c.storage = nil
	return nil
}

func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	switch {
	case !c.cfg.Enabled:
		h.Message = "disabled"
	case c.storage == nil:
		h.Status, h.Message = component.StatusUnhealthy, "storage not initialized"
	default:
		if _, err := c.storage.Exists(ctx, ".health"); err != nil {
			h.Status, h.Message = component.StatusDegraded, fmt.Sprintf("health check failed: %v", err)
		}
	}
	return h
}

func (c *Component) Describe() string {
	switch {
	case !c.cfg.Enabled:
		return "storage disabled"
	case c.cfg.Provider == ProviderS3:
		return fmt.Sprintf("s3 bucket=%s region=%s", c.cfg.Bucket, c.cfg.Region)
	default:
		return fmt.Sprintf("local %s", c.cfg.BasePath)
	}
}
