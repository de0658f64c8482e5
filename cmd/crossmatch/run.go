package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/crossmatch/amazon"
	"github.com/kbukum/crossmatch/bootstrap"
	"github.com/kbukum/crossmatch/database"
	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/events"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/observability"
	"github.com/kbukum/crossmatch/redis"
	"github.com/kbukum/crossmatch/report"
	"github.com/kbukum/crossmatch/routine"
	"github.com/kbukum/crossmatch/scheduler"
	"github.com/kbukum/crossmatch/storage"
	"github.com/kbukum/crossmatch/store"
	"github.com/kbukum/crossmatch/validation"
	"github.com/kbukum/crossmatch/walmart"
)

type runFlags struct {
	asins     []string
	skus      []string
	wmIDs     []string
	pipelines []string
	every     time.Duration
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run <routine>",
		Short: "Run a routine to completion",
		Long: `Run a routine to completion.

Built-in routines: ogaster, display1, inventory (needs --asins and --skus)
and manual (needs --wm-ids). Routines defined in YAML files under the
configured pipeline directories, or --pipelines, can be run the same way.

With --every the routine runs again at the start of every interval, so
--every 1h repeats it at the top of each hour until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutine(cmd.Context(), cmd.OutOrStdout(), flags, rf, args[0])
		},
	}
	cmd.Flags().StringSliceVar(&rf.asins, "asins", nil, "ASINs for routines taking an ASIN list")
	cmd.Flags().StringSliceVar(&rf.skus, "skus", nil, "seller SKUs for routines taking a SKU list")
	cmd.Flags().StringSliceVar(&rf.wmIDs, "wm-ids", nil, "Walmart item ids for routines taking an id list")
	cmd.Flags().StringSliceVar(&rf.pipelines, "pipelines", nil, "directories holding routine YAML files")
	cmd.Flags().DurationVar(&rf.every, "every", 0, "repeat the routine at the start of every interval")
	return cmd
}

func (rf runFlags) args() (routine.Args, error) {
	if rf.every < 0 {
		return routine.Args{}, apperrors.InvalidInput("every", "must not be negative")
	}
	err := validation.New().
		ASINs("asins", rf.asins).
		SKUs("skus", rf.skus).
		WmIDs("wm_ids", rf.wmIDs).
		Validate()
	if err != nil {
		return routine.Args{}, err
	}
	ids, err := routine.ParseWmIDs(rf.wmIDs)
	if err != nil {
		return routine.Args{}, err
	}
	return routine.Args{ASINs: rf.asins, SKUs: rf.skus, WmIDs: ids}, nil
}

func runRoutine(ctx context.Context, out io.Writer, flags *globalFlags, rf runFlags, name string) error {
	args, err := rf.args()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if len(rf.pipelines) > 0 {
		cfg.Pipelines = rf.pipelines
	}
	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}

	dbc := database.NewComponent(cfg.Database).WithAutoMigrate(store.Models()...)
	rc := redis.NewComponent(cfg.Redis)
	ec := events.NewComponent(cfg.Kafka)
	sc := storage.NewComponent(cfg.Storage)
	oc := observability.NewComponent(cfg.Observability)
	if err := registerAll(app, oc, dbc, rc, ec, sc); err != nil {
		return err
	}

	return app.RunTask(ctx, func(ctx context.Context) error {
		runner, err := newRunner(cfg, dbc, rc, ec, sc)
		if err != nil {
			return err
		}
		if rf.every == 0 {
			rep, err := runner.Run(ctx, name, args)
			if rep != nil {
				printRun(out, rep)
			}
			return err
		}
		return repeat(ctx, out, runner, name, args, rf.every)
	})
}

// repeat runs the routine at the start of every interval until ctx is
// done. A failed run waits for the next slot; a run that cannot start for
// reasons a later slot will not fix ends the loop.
func repeat(ctx context.Context, out io.Writer, runner *routine.Runner, name string, args routine.Args, every time.Duration) error {
	log := logger.Get(serviceName).WithContext(ctx)
	for {
		rep, err := runner.Run(ctx, name, args)
		if rep != nil {
			printRun(out, rep)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if permanent(err) {
				return err
			}
			log.Warn("Routine run failed", logger.MergeWithError(logger.Fields(logger.FieldRoutine, name), err))
		}
		now := time.Now()
		wait := untilNext(now, every)
		fmt.Fprintf(out, "next %s run at %s\n", name, now.Add(wait).Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func permanent(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeGraphInvalid) ||
		apperrors.HasCode(err, apperrors.ErrCodeNotFound) ||
		apperrors.HasCode(err, apperrors.ErrCodeInvalidInput)
}

// untilNext returns how long from now until the next multiple of every.
func untilNext(now time.Time, every time.Duration) time.Duration {
	return now.Truncate(every).Add(every).Sub(now)
}

func newRunner(cfg *Config, dbc *database.Component, rc *redis.Component, ec *events.Component, sc *storage.Component) (*routine.Runner, error) {
	db := dbc.DB()
	if db == nil {
		return nil, fmt.Errorf("routines need the database: set database.enabled")
	}
	repo := store.NewRepository(db.GormDB)
	queries := store.NewQueries(db.GormDB, db.PoolSize())

	wm, err := walmart.NewClient(cfg.Walmart)
	if err != nil {
		return nil, err
	}
	az, err := amazon.NewClient(cfg.Amazon)
	if err != nil {
		return nil, err
	}
	azWorker := amazon.NewWorker(az, repo)
	ops := func() map[string]scheduler.Operation {
		ops := azWorker.Operations()
		maps.Copy(ops, walmart.NewWorker(wm, repo, cfg.Walmart).Operations())
		return ops
	}

	metrics, err := observability.NewPipelineMetrics(observability.Meter(serviceName))
	if err != nil {
		return nil, err
	}
	opts := []routine.Option{
		routine.WithLimits(cfg.Scheduler.Limits()),
		routine.WithTiming(cfg.Scheduler.Timing),
		routine.WithRecorder(metrics),
		routine.WithPublisher(ec.Publisher()),
		routine.WithLocker(routine.LockerFunc(func(ctx context.Context, name, holder string) (routine.Lock, error) {
			lock, err := rc.Acquire(ctx, name, holder)
			if err != nil {
				return nil, err
			}
			return lock, nil
		})),
	}
	if s := sc.Storage(); s != nil {
		w, err := report.NewWriter(s, cfg.Report)
		if err != nil {
			return nil, err
		}
		opts = append(opts, routine.WithReports(w))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, routine.WithGauges(observability.NewRunGauges(cfg.Metrics)))
	}
	return routine.NewRunner(routine.NewCatalog(cfg.Pipelines...), ops, queries, opts...), nil
}

func printRun(out io.Writer, rep *scheduler.RunReport) {
	status := "ok"
	if !rep.Succeeded() {
		status = "incomplete"
	}
	fmt.Fprintf(out, "%s run %s %s in %s\n", rep.Pipeline, rep.RunID, status, rep.Duration.Round(time.Millisecond))
	for _, s := range rep.Stages {
		line := []string{
			fmt.Sprintf("  %-10s", s.Op),
			fmt.Sprintf("batches=%d", s.Batches),
			fmt.Sprintf("items=%d", s.Items),
			fmt.Sprintf("failures=%d", s.Failures),
			fmt.Sprintf("reason=%s", s.Reason),
		}
		if s.Dropped > 0 {
			line = append(line, fmt.Sprintf("dropped=%d", s.Dropped))
		}
		fmt.Fprintln(out, strings.Join(line, " "))
	}
}
