package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/crossmatch/dag"
	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/throttle"
)

// StageHook is called from the stage goroutine after a stage has finished
// and released its downstream stages.
type StageHook func(ctx context.Context, report StageReport)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTiming overrides the stage loop timings. Zero fields keep defaults.
func WithTiming(t Timing) Option {
	return func(o *Orchestrator) {
		t.ApplyDefaults()
		o.timing = t
	}
}

// WithRecorder sets where stage measurements go.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithStageHook registers a hook run for every finished stage.
func WithStageHook(h StageHook) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, h) }
}

type binding struct {
	operation Operation
	source    queue.Source
}

// Orchestrator wires a graph into stages, buckets and latches and runs it.
// Create one per run.
type Orchestrator struct {
	limits   throttle.Table
	timing   Timing
	recorder Recorder
	hooks    []StageHook
	bindings map[string]binding
	log      *logger.Logger
}

// NewOrchestrator creates an orchestrator. Operations present in limits are
// throttled. All others run unthrottled.
func NewOrchestrator(limits throttle.Table, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		limits:   limits,
		timing:   DefaultTiming(),
		recorder: nopRecorder{},
		bindings: make(map[string]binding),
		log:      logger.Get("scheduler"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bind attaches the operation and backing source a stage of op runs with.
func (o *Orchestrator) Bind(op string, operation Operation, src queue.Source) {
	o.bindings[op] = binding{operation: operation, source: src}
}

// Validate checks that g can be run: it is acyclic, every node is bound and
// every batch limit is usable. Failures are GRAPH_INVALID errors.
func (o *Orchestrator) Validate(g *dag.Graph) error {
	if g == nil || len(g.Nodes) == 0 {
		return apperrors.GraphInvalid(graphName(g), "graph has no stages")
	}
	if _, err := dag.BuildLevels(g); err != nil {
		return apperrors.GraphInvalid(g.Name, err.Error()).WithCause(err)
	}
	for _, op := range g.Ops() {
		b, ok := o.bindings[op]
		if !ok || b.operation.Work == nil {
			return apperrors.GraphInvalid(g.Name, fmt.Sprintf("no work function bound for %s", op))
		}
		if b.source == nil {
			return apperrors.GraphInvalid(g.Name, fmt.Sprintf("no backing source bound for %s", op))
		}
		if l, throttled := o.limits.Lookup(op); throttled {
			if err := l.Validate(); err != nil {
				return apperrors.GraphInvalid(g.Name, fmt.Sprintf("limits for %s: %v", op, err)).WithCause(err)
			}
			continue
		}
		minBatch, maxBatch := unthrottledBatch(g.Nodes[op])
		if minBatch < 0 || maxBatch < 1 || minBatch > maxBatch {
			return apperrors.GraphInvalid(g.Name, fmt.Sprintf(
				"batch limits for %s must satisfy 0 <= min <= max and max >= 1 (got %d, %d)", op, minBatch, maxBatch))
		}
	}
	return nil
}

// Run validates g, then runs every stage to completion. It returns once all
// stages have stopped. On cancellation the partial report is returned with
// ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, g *dag.Graph) (*RunReport, error) {
	if err := o.Validate(g); err != nil {
		return nil, err
	}

	runID := logger.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.ContextWithRun(ctx, g.Name, runID)
	}
	log := o.log.WithContext(ctx)

	stages, refiller := o.build(g)
	report := &RunReport{RunID: runID, Pipeline: g.Name, StartedAt: time.Now()}
	log.Info("Pipeline starting", logger.Fields(
		"stages", len(stages),
		"edges", len(g.Edges),
		"throttled", throttledCount(stages),
	))

	refillCtx, stopRefill := context.WithCancel(ctx)
	var refillWG sync.WaitGroup
	refillWG.Go(func() { refiller.Run(refillCtx) })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]StageReport, len(stages))
		runErr  error
	)
	for _, s := range stages {
		wg.Go(func() {
			r, err := s.Run(ctx)
			mu.Lock()
			results[s.Op()] = r
			if err != nil && runErr == nil {
				runErr = err
			}
			mu.Unlock()
			if err == nil {
				for _, h := range o.hooks {
					h(ctx, r)
				}
			}
		})
	}
	wg.Wait()
	stopRefill()
	refillWG.Wait()

	for _, op := range g.Ops() {
		report.Stages = append(report.Stages, results[op])
	}
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	batches, items, failures := report.Totals()
	fields := logger.Fields(
		"batches", batches,
		"items", items,
		"failures", failures,
		"refills", refiller.Ticks(),
		logger.FieldDuration, report.Duration.Milliseconds(),
	)
	if runErr != nil {
		log.Warn("Pipeline interrupted", logger.MergeWithError(fields, runErr))
		return report, runErr
	}
	log.Info("Pipeline finished", fields)
	return report, nil
}

// build creates the stages with their latches and buckets. g must be valid.
func (o *Orchestrator) build(g *dag.Graph) ([]*Stage, *throttle.Refiller) {
	refiller := throttle.NewRefiller(o.timing.RefillPeriod)
	byOp := make(map[string]*Stage, len(g.Nodes))
	var stages []*Stage
	for _, op := range g.Ops() {
		b := o.bindings[op]
		cfg := stageConfig{
			op:        op,
			source:    b.source,
			operation: b.operation,
			timing:    o.timing,
			recorder:  o.recorder,
		}
		if l, ok := o.limits.Lookup(op); ok {
			cfg.bucket = throttle.NewBucket(op, l)
			refiller.Register(cfg.bucket)
		} else {
			cfg.minBatch, cfg.maxBatch = unthrottledBatch(g.Nodes[op])
		}
		s := newStage(cfg)
		byOp[op] = s
		stages = append(stages, s)
	}

	seen := make(map[dag.Edge]bool, len(g.Edges))
	for _, e := range g.Edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		l := NewLatch(e.From, e.To)
		byOp[e.From].addOutbound(l)
		byOp[e.To].addInbound(l)
	}
	return stages, refiller
}

func unthrottledBatch(spec dag.StageSpec) (minBatch, maxBatch int) {
	if spec.MinBatch == 0 && spec.MaxBatch == 0 {
		return 1, 1
	}
	return spec.MinBatch, spec.MaxBatch
}

func throttledCount(stages []*Stage) int {
	n := 0
	for _, s := range stages {
		if s.bucket != nil {
			n++
		}
	}
	return n
}

func graphName(g *dag.Graph) string {
	if g == nil {
		return ""
	}
	return g.Name
}
