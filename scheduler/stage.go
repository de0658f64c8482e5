package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/observability"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/throttle"
)

// ErrSourceExhausted ends a stage early when returned, possibly wrapped, by
// a work function. The rest of the queue is dropped and downstream stages
// are released as usual.
var ErrSourceExhausted = apperrors.ErrSourceExhausted

// WorkFunc performs the external call for one batch and persists the
// result. The batch is never empty.
type WorkFunc func(ctx context.Context, batch []queue.Item) error

// FinishFunc runs once when a stage has drained, before downstream stages
// are released.
type FinishFunc func(ctx context.Context) error

// Operation is what a stage does with its batches.
type Operation struct {
	Work   WorkFunc
	Finish FinishFunc
}

// Stage is one node of a running pipeline. Everything except the bucket and
// the latches is owned by the stage goroutine.
type Stage struct {
	op        string
	queue     *queue.Queue
	source    queue.Source
	bucket    *throttle.Bucket
	minBatch  int
	maxBatch  int
	operation Operation

	inbound  []*Latch
	outbound []*Latch
	finished map[string]bool

	timing   Timing
	recorder Recorder
	log      *logger.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	state     State
	exhausted bool
	report    StageReport
}

type stageConfig struct {
	op        string
	source    queue.Source
	bucket    *throttle.Bucket
	minBatch  int
	maxBatch  int
	operation Operation
	timing    Timing
	recorder  Recorder
}

func newStage(cfg stageConfig) *Stage {
	if cfg.bucket != nil {
		l := cfg.bucket.Limits()
		cfg.minBatch, cfg.maxBatch = l.MinBatch, l.MaxBatch
	}
	if cfg.recorder == nil {
		cfg.recorder = nopRecorder{}
	}
	return &Stage{
		op:        cfg.op,
		queue:     queue.New(),
		source:    cfg.source,
		bucket:    cfg.bucket,
		minBatch:  cfg.minBatch,
		maxBatch:  cfg.maxBatch,
		operation: cfg.operation,
		finished:  make(map[string]bool),
		timing:    cfg.timing,
		recorder:  cfg.recorder,
		log:       logger.Get("scheduler").WithStage(cfg.op),
		now:       time.Now,
		sleep:     sleepCtx,
		report:    StageReport{Op: cfg.op},
	}
}

// Op returns the operation name.
func (s *Stage) Op() string { return s.op }

// State returns the current phase. Only safe from the stage goroutine or
// after Run has returned.
func (s *Stage) State() State { return s.state }

func (s *Stage) addInbound(l *Latch) {
	s.inbound = append(s.inbound, l)
}

func (s *Stage) addOutbound(l *Latch) {
	s.outbound = append(s.outbound, l)
}

// Run loops until the stage is done or ctx is cancelled. A cancelled stage
// returns ctx.Err() and leaves its outbound latches unfired.
func (s *Stage) Run(ctx context.Context) (StageReport, error) {
	log := s.log.WithContext(ctx)
	s.report.StartedAt = s.now()
	s.recorder.StageActive(ctx, s.op, 1)
	defer s.recorder.StageActive(context.WithoutCancel(ctx), s.op, -1)

	log.Debug("Stage started", logger.Fields(
		"min_batch", s.minBatch,
		"max_batch", s.maxBatch,
		"fixed", s.source.Fixed(),
		logger.FieldUpstream, len(s.inbound),
	))
	for {
		if err := ctx.Err(); err != nil {
			return s.cancelled(log, err)
		}
		done, err := s.step(ctx)
		if err != nil {
			return s.cancelled(log, err)
		}
		if done {
			break
		}
	}

	s.finish(ctx, log)
	return s.report, nil
}

func (s *Stage) cancelled(log *logger.Logger, err error) (StageReport, error) {
	s.report.FinishedAt = s.now()
	s.report.Reason = ReasonCancelled
	log.Warn("Stage cancelled", logger.Fields(
		logger.FieldState, s.state.String(),
		logger.FieldQueueLen, s.queue.Len(),
	))
	return s.report, err
}

func (s *Stage) finish(ctx context.Context, log *logger.Logger) {
	s.state = StateDone
	s.report.FinishedAt = s.now()
	if s.report.Reason == "" {
		s.report.Reason = ReasonDrained
	}
	if s.operation.Finish != nil {
		if err := s.runFinish(ctx); err != nil {
			log.Error("Finish hook failed", logger.ErrorFields("finish", err))
		}
	}
	for _, l := range s.outbound {
		l.Signal()
	}
	log.Info("Stage done", logger.Fields(
		"reason", string(s.report.Reason),
		"batches", s.report.Batches,
		"items", s.report.Items,
		"failures", s.report.Failures,
		logger.FieldDuration, s.report.Duration().Milliseconds(),
	))
}

// step runs one iteration of the stage loop. It returns done once the stage
// has nothing left to do, and an error only when ctx is cancelled.
func (s *Stage) step(ctx context.Context) (done bool, err error) {
	start := s.now()
	upstreamDone := len(s.finished) == len(s.inbound)

	if s.queue.Len() < s.maxBatch {
		s.state = StateFilling
		exhausted, err := s.queue.RefillIfLow(ctx, s.source, s.maxBatch)
		if err != nil {
			s.report.SourceErrors++
			s.recorder.SourceError(ctx, s.op)
			s.log.WithContext(ctx).Warn("Backing source failed",
				logger.MergeWithError(logger.Fields(logger.FieldQueueLen, s.queue.Len()), err))
		}
		s.exhausted = exhausted
		if s.exhausted && upstreamDone && s.queue.Len() == 0 {
			return true, nil
		}
	}

	n := s.queue.Len()
	finalDrain := s.exhausted && upstreamDone && n > 0
	if n > 0 && (n >= s.minBatch || finalDrain) {
		n = min(n, s.maxBatch)
		s.state = StateWaitingQuota
		if s.bucket != nil && !s.bucket.TryConsume(n) {
			s.report.ThrottledWaits++
			s.recorder.ThrottleWait(ctx, s.op)
			return false, s.sleepUntil(ctx, start.Add(s.timing.ThrottleBackoff))
		}

		s.state = StateCalling
		batch := s.queue.Take(n)
		final := finalDrain && n < s.minBatch
		if err := s.call(ctx, batch, final); errors.Is(err, ErrSourceExhausted) {
			dropped := s.queue.Drop()
			s.report.Dropped += len(dropped)
			s.report.Reason = ReasonSourceExhausted
			s.log.WithContext(ctx).Warn("Source exhausted, dropping queue",
				logger.MergeWithError(logger.Fields("dropped", len(dropped)), err))
			return true, nil
		}
		return false, nil
	}

	s.state = StateIdle
	for _, l := range s.inbound {
		if s.finished[l.From()] {
			continue
		}
		if l.Wait(s.timing.LatchPoll) {
			s.finished[l.From()] = true
			s.log.WithContext(ctx).Debug("Upstream finished", logger.Fields(logger.FieldUpstream, l.From()))
		}
	}
	return false, s.sleepUntil(ctx, start.Add(s.timing.IdlePoll))
}

func (s *Stage) call(ctx context.Context, batch []queue.Item, final bool) error {
	s.report.Batches++
	s.report.Items += len(batch)
	if final {
		s.report.FinalDrains++
	}

	spanCtx, span := observability.StartSpan(ctx, "stage."+s.op, trace.WithAttributes(
		attribute.String(observability.AttrStage, s.op),
		attribute.Int(observability.AttrBatchSize, len(batch)),
		attribute.Bool(observability.AttrFinal, final),
	))
	began := s.now()
	err := s.runWork(spanCtx, batch)
	elapsed := s.now().Sub(began)
	observability.EndSpan(span, err)
	s.recorder.BatchDone(ctx, s.op, len(batch), elapsed, err)

	fields := logger.Fields(
		logger.FieldBatchSize, len(batch),
		logger.FieldQueueLen, s.queue.Len(),
		logger.FieldDuration, elapsed.Milliseconds(),
	)
	if s.bucket != nil {
		fields[logger.FieldTokens] = s.bucket.Level().String()
	}
	log := s.log.WithContext(ctx)
	switch {
	case err == nil:
		log.Debug("Batch done", fields)
	case errors.Is(err, ErrSourceExhausted):
	default:
		s.report.Failures++
		log.Error("Batch failed", logger.MergeWithError(fields, err))
	}
	return err
}

func (s *Stage) runWork(ctx context.Context, batch []queue.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work function for %s panicked: %v", s.op, r)
		}
	}()
	return s.operation.Work(ctx, batch)
}

func (s *Stage) runFinish(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("finish hook for %s panicked: %v", s.op, r)
		}
	}()
	return s.operation.Finish(ctx)
}

func (s *Stage) sleepUntil(ctx context.Context, deadline time.Time) error {
	d := deadline.Sub(s.now())
	if d <= 0 {
		return ctx.Err()
	}
	return s.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
