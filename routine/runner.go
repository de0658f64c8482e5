package routine

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/crossmatch/dag"
	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/events"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/observability"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/report"
	"github.com/kbukum/crossmatch/scheduler"
	"github.com/kbukum/crossmatch/store"
	"github.com/kbukum/crossmatch/throttle"
)

// Operations returns fresh stage operations keyed by operation name. It is
// called once per run, since some operations keep per-run state.
type Operations func() map[string]scheduler.Operation

// SourceFactory builds named backing queries. *store.Queries implements it.
type SourceFactory interface {
	Source(name string, args store.QueryArgs) (queue.Source, error)
}

// Lock is a held run lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker keeps two runs of the same routine from overlapping.
type Locker interface {
	Acquire(ctx context.Context, routine, holder string) (Lock, error)
}

// LockerFunc adapts a function to Locker.
type LockerFunc func(ctx context.Context, routine, holder string) (Lock, error)

func (f LockerFunc) Acquire(ctx context.Context, routine, holder string) (Lock, error) {
	return f(ctx, routine, holder)
}

// ReportWriter stores run reports. *report.Writer implements it.
type ReportWriter interface {
	Write(ctx context.Context, doc report.Document) (string, error)
}

// GaugePusher exports end-of-run gauges. *observability.RunGauges
// implements it.
type GaugePusher interface {
	Push(ctx context.Context, s observability.RunSummary) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLimits replaces the throttle table.
func WithLimits(t throttle.Table) Option {
	return func(r *Runner) { r.limits = t }
}

// WithTiming overrides the stage loop timings.
func WithTiming(t scheduler.Timing) Option {
	return func(r *Runner) { r.orchOpts = append(r.orchOpts, scheduler.WithTiming(t)) }
}

// WithRecorder sets where stage measurements go.
func WithRecorder(rec scheduler.Recorder) Option {
	return func(r *Runner) { r.orchOpts = append(r.orchOpts, scheduler.WithRecorder(rec)) }
}

// WithLocker sets the run lock. Without one runs are not serialized.
func WithLocker(l Locker) Option {
	return func(r *Runner) { r.locker = l }
}

// WithPublisher sets where lifecycle events go. The default logs them.
func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithReports stores a report of every run.
func WithReports(w ReportWriter) Option {
	return func(r *Runner) { r.reports = w }
}

// WithGauges pushes end-of-run gauges.
func WithGauges(g GaugePusher) Option {
	return func(r *Runner) { r.gauges = g }
}

// WithHolder names this process in the run lock.
func WithHolder(holder string) Option {
	return func(r *Runner) { r.holder = holder }
}

// Runner runs routines from a catalog.
type Runner struct {
	catalog   *Catalog
	ops       Operations
	sources   SourceFactory
	limits    throttle.Table
	orchOpts  []scheduler.Option
	locker    Locker
	publisher events.Publisher
	reports   ReportWriter
	gauges    GaugePusher
	holder    string
	now       func() time.Time
	log       *logger.Logger
}

// NewRunner creates a runner. Stages take their operations from ops and
// their query sources from sources.
func NewRunner(catalog *Catalog, ops Operations, sources SourceFactory, opts ...Option) *Runner {
	r := &Runner{
		catalog:   catalog,
		ops:       ops,
		sources:   sources,
		limits:    throttle.DefaultTable(),
		publisher: events.NewLogPublisher(),
		holder:    defaultHolder(),
		now:       time.Now,
		log:       logger.Get("routine"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultHolder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// Run runs the named routine to completion under the run lock. The report
// is nil when the run never started: the lock was held, the routine is
// unknown or it could not be bound. On cancellation the partial report is
// returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, name string, args Args) (*scheduler.RunReport, error) {
	if r.locker != nil {
		lock, err := r.locker.Acquire(ctx, name, r.holder)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.log.WithContext(ctx).Warn("Run lock release failed", logger.MergeWithError(
					logger.Fields(logger.FieldRoutine, name), err))
			}
		}()
	}

	g, err := r.catalog.Graph(name)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logger.ContextWithRun(ctx, name, runID)
	log := r.log.WithContext(ctx)
	qargs := store.QueryArgs{Since: r.now(), WmIDs: args.WmIDs}

	orch := scheduler.NewOrchestrator(r.limits, slices.Concat(r.orchOpts, []scheduler.Option{
		scheduler.WithStageHook(func(ctx context.Context, s scheduler.StageReport) {
			r.publish(ctx, events.New(events.TypeStageDone, name, runID, map[string]any{
				"batches":     s.Batches,
				"items":       s.Items,
				"failures":    s.Failures,
				"reason":      string(s.Reason),
				"duration_ms": s.Duration().Milliseconds(),
			}).ForStage(s.Op))
		}),
	})...)
	if err := r.bind(orch, g, qargs, args); err != nil {
		return nil, err
	}
	if err := orch.Validate(g); err != nil {
		return nil, err
	}

	r.publish(ctx, events.New(events.TypeRunStarted, name, runID, map[string]any{
		"stages": len(g.Nodes),
		"args":   args.Counts(),
	}))
	rep, runErr := orch.Run(ctx, g)
	if rep == nil {
		return nil, runErr
	}

	done := context.WithoutCancel(ctx)
	finished := map[string]any{"succeeded": runErr == nil && rep.Succeeded(), "duration_ms": rep.Duration.Milliseconds()}
	if runErr != nil {
		finished["error"] = runErr.Error()
	}
	r.publish(done, events.New(events.TypeRunFinished, name, runID, finished))
	r.export(done, name, args, rep, runErr)

	batches, items, failures := rep.Totals()
	fields := logger.Fields(
		logger.FieldDuration, rep.Duration.Milliseconds(),
		"batches", batches,
		"items", items,
		"failures", failures,
	)
	if runErr != nil {
		log.Warn("Routine stopped early", logger.MergeWithError(fields, runErr))
	} else {
		log.Info("Routine finished", fields)
	}
	return rep, runErr
}

// bind attaches an operation and a backing source to every stage of g.
// Stages without an operation are left unbound for Validate to report.
func (r *Runner) bind(orch *scheduler.Orchestrator, g *dag.Graph, qargs store.QueryArgs, args Args) error {
	ops := r.ops()
	for _, op := range g.Ops() {
		operation, ok := ops[op]
		if !ok {
			continue
		}
		src, err := r.source(g.Name, g.Nodes[op].Source, qargs, args)
		if err != nil {
			return err
		}
		orch.Bind(op, operation, src)
	}
	return nil
}

func (r *Runner) source(routine string, spec dag.SourceSpec, qargs store.QueryArgs, args Args) (queue.Source, error) {
	switch {
	case spec.Query != "":
		src, err := r.sources.Source(spec.Query, qargs)
		if err != nil {
			return nil, apperrors.GraphInvalid(routine, err.Error()).WithCause(err)
		}
		return src, nil
	case spec.ItemsArg != "":
		items, err := args.Items(spec.ItemsArg)
		if err != nil {
			return nil, err
		}
		return queue.NewFixedSource(items), nil
	default:
		return queue.NewFixedSource(queue.Items(spec.Items...)), nil
	}
}

func (r *Runner) publish(ctx context.Context, e events.Event) {
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.log.WithContext(ctx).Warn("Event not published", logger.MergeWithError(
			logger.Fields("event", e.Type, logger.FieldStage, e.Stage), err))
	}
}

// export stores the run report and pushes the run gauges. Failures are
// logged: the run itself is already over.
func (r *Runner) export(ctx context.Context, name string, args Args, rep *scheduler.RunReport, runErr error) {
	log := r.log.WithContext(ctx)
	doc := report.FromRun(name, args.Counts(), rep, runErr)
	if r.reports != nil {
		path, err := r.reports.Write(ctx, doc)
		if err != nil {
			log.Error("Run report not stored", logger.ErrorFields("report.write", err))
		} else {
			log.Info("Run report stored", logger.Fields("path", path))
		}
	}
	if r.gauges == nil {
		return
	}
	summary := observability.RunSummary{
		Routine:   name,
		RunID:     rep.RunID,
		Succeeded: doc.Succeeded,
		Finished:  rep.FinishedAt,
		Duration:  rep.Duration,
	}
	for _, s := range rep.Stages {
		summary.Stages = append(summary.Stages, observability.StageSummary{
			Op: s.Op, Batches: s.Batches, Items: s.Items, Failures: s.Failures,
		})
	}
	if err := r.gauges.Push(ctx, summary); err != nil {
		log.Warn("Run gauges not pushed", logger.ErrorFields("gauges.push", err))
	}
}
