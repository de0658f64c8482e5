package events

import (
	"context"

	"github.com/kbukum/crossmatch/logger"
)

// Publisher sends lifecycle events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the log. It is used when Kafka is disabled.
type LogPublisher struct {
	log *logger.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a LogPublisher on the "events" logger.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.Get("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	fields := logger.Fields(
		"event", e.Type,
		logger.FieldRoutine, e.Routine,
		logger.FieldRunID, e.RunID,
	)
	if e.Stage != "" {
		fields[logger.FieldStage] = e.Stage
	}
	for k, v := range e.Data {
		fields[k] = v
	}
	p.log.WithContext(ctx).Info("Pipeline event", fields)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
