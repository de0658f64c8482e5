package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// RunSummary is what RunGauges reports about a finished run.
type RunSummary struct {
	Routine   string
	RunID     string
	Succeeded bool
	Finished  time.Time
	Duration  time.Duration
	Stages    []StageSummary
}

// StageSummary carries the per-stage totals of a run.
type StageSummary struct {
	Op       string
	Batches  int
	Items    int
	Failures int
}

// RunGauges pushes end-of-run gauges to a Pushgateway, grouped by routine.
type RunGauges struct {
	cfg PushConfig

	registry      *prometheus.Registry
	lastSuccess   prometheus.Gauge
	lastDuration  prometheus.Gauge
	stageBatches  *prometheus.GaugeVec
	stageItems    *prometheus.GaugeVec
	stageFailures *prometheus.GaugeVec
}

// NewRunGauges registers the gauges on a private registry.
func NewRunGauges(cfg PushConfig) *RunGauges {
	g := &RunGauges{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossmatch", Name: "run_last_success_timestamp_seconds",
			Help: "Unix time the routine last finished without being cancelled.",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossmatch", Name: "run_duration_seconds",
			Help: "Duration of the last run.",
		}),
		stageBatches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crossmatch", Name: "stage_batches",
			Help: "Batches a stage dispatched in the last run.",
		}, []string{"stage"}),
		stageItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crossmatch", Name: "stage_items",
			Help: "Items a stage dispatched in the last run.",
		}, []string{"stage"}),
		stageFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crossmatch", Name: "stage_failures",
			Help: "Failed work function calls in the last run.",
		}, []string{"stage"}),
	}
	g.registry.MustRegister(g.lastDuration, g.stageBatches, g.stageItems, g.stageFailures)
	return g
}

// Registry exposes the registry the gauges live on.
func (g *RunGauges) Registry() *prometheus.Registry { return g.registry }

// Push sets the gauges from s and pushes them. The success timestamp is only
// pushed for successful runs, so a failed run leaves the previous value on
// the gateway and staleness alerts keep working.
func (g *RunGauges) Push(ctx context.Context, s RunSummary) error {
	g.lastDuration.Set(s.Duration.Seconds())
	g.stageBatches.Reset()
	g.stageItems.Reset()
	g.stageFailures.Reset()
	for _, st := range s.Stages {
		g.stageBatches.WithLabelValues(st.Op).Set(float64(st.Batches))
		g.stageItems.WithLabelValues(st.Op).Set(float64(st.Items))
		g.stageFailures.WithLabelValues(st.Op).Set(float64(st.Failures))
	}

	if !g.cfg.Enabled {
		return nil
	}
	pusher := push.New(g.cfg.URL, g.cfg.Job).
		Grouping("routine", s.Routine).
		Collector(g.lastDuration).
		Collector(g.stageBatches).
		Collector(g.stageItems).
		Collector(g.stageFailures)
	if s.Succeeded {
		g.lastSuccess.Set(float64(s.Finished.Unix()))
		pusher = pusher.Collector(g.lastSuccess)
	}
	// Add keeps metrics of other pushes in the same group, such as the
	// success timestamp of an earlier run.
	if err := pusher.AddContext(ctx); err != nil {
		return fmt.Errorf("push run gauges for %s: %w", s.Routine, err)
	}
	return nil
}
