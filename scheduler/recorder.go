package scheduler

import (
	"context"
	"time"
)

// Recorder receives stage measurements. *observability.PipelineMetrics
// implements it.
type Recorder interface {
	BatchDone(ctx context.Context, op string, items int, d time.Duration, err error)
	ThrottleWait(ctx context.Context, op string)
	SourceError(ctx context.Context, op string)
	StageActive(ctx context.Context, op string, delta int64)
}

type nopRecorder struct{}

func (nopRecorder) BatchDone(context.Context, string, int, time.Duration, error) {}
func (nopRecorder) ThrottleWait(context.Context, string)                         {}
func (nopRecorder) SourceError(context.Context, string)                          {}
func (nopRecorder) StageActive(context.Context, string, int64)                   {}
