package redis

import (
	"context"
	"fmt"

	"github.com/kbukum/crossmatch/component"
	"github.com/kbukum/crossmatch/logger"
)

// Component wraps Client and implements component.Component.
type Component struct {
	client *Client
	cfg    Config
	log    *logger.Logger
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a Redis component for use with the component registry.
func NewComponent(cfg Config) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg: cfg,
		log: logger.Get("redis"),
	}
}

// Client returns the underlying *Client, or nil if not started or disabled.
func (c *Component) Client() *Client {
	return c.client
}

func (c *Component) Name() string { return "redis" }

// Start creates the client and verifies connectivity. It is a no-op when
// the component is disabled.
func (c *Component) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("Redis component disabled, runs are not locked")
		return nil
	}
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start ping: %w", err)
	}
	c.client = client
	return nil
}

// Stop closes the Redis connection.
func (c *Component) Stop(context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	switch {
	case !c.cfg.Enabled:
		h.Message = "disabled"
	case c.client == nil:
		h.Status, h.Message = component.StatusUnhealthy, "redis not initialized"
	default:
		if err := c.client.Ping(ctx); err != nil {
			h.Status, h.Message = component.StatusUnhealthy, fmt.Sprintf("ping failed: %v", err)
		}
	}
	return h
}

func (c *Component) Describe() string {
	if !c.cfg.Enabled {
		return "redis disabled"
	}
	return fmt.Sprintf("%s db=%d lock_ttl=%s", c.cfg.Addr, c.cfg.DB, c.cfg.LockTTL)
}

// Acquire takes the run lock for routine. With the component disabled it
// returns a no-op lock.
func (c *Component) Acquire(ctx context.Context, routine, holder string) (*Lock, error) {
	if !c.cfg.Enabled {
		return &Lock{}, nil
	}
	if c.client == nil {
		return nil, fmt.Errorf("redis component not started")
	}
	return c.client.Acquire(ctx, routine, holder)
}
