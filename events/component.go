package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbukum/crossmatch/component"
	"github.com/kbukum/crossmatch/logger"
)

// Component owns the publisher and implements component.Component. Before
// Start and with Kafka disabled it publishes to the log.
type Component struct {
	cfg       Config
	log       *logger.Logger
	publisher Publisher
}

var _ component.Component = (*Component)(nil)

// NewComponent creates an events component for use with the component registry.
func NewComponent(cfg Config) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg:       cfg,
		log:       logger.Get("events"),
		publisher: NewLogPublisher(),
	}
}

// Publisher returns the active publisher.
func (c *Component) Publisher() Publisher { return c.publisher }

func (c *Component) Name() string { return "events" }

func (c *Component) Start(context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("Kafka disabled, pipeline events go to the log")
		return nil
	}
	p, err := NewKafkaPublisher(c.cfg)
	if err != nil {
		return fmt.Errorf("events start: %w", err)
	}
	c.publisher = p
	return nil
}

func (c *Component) Stop(context.Context) error {
	return c.publisher.Close()
}

func (c *Component) Health(context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	if !c.cfg.Enabled {
		h.Message = "logging events"
	}
	return h
}

func (c *Component) Describe() string {
	if !c.cfg.Enabled {
		return "events to log"
	}
	return fmt.Sprintf("kafka %s topic=%s", strings.Join(c.cfg.Brokers, ","), c.cfg.Topic)
}
