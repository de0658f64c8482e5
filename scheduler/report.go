package scheduler

import (
	"time"
)

// StageReport holds the counters of one stage for one run.
type StageReport struct {
	Op             string    `json:"op"`
	Batches        int       `json:"batches"`
	Items          int       `json:"items"`
	Failures       int       `json:"failures"`
	ThrottledWaits int       `json:"throttled_waits"`
	FinalDrains    int       `json:"final_drains"`
	SourceErrors   int       `json:"source_errors"`
	Dropped        int       `json:"dropped"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Reason         Reason    `json:"reason"`
}

// Duration is how long the stage ran.
func (r StageReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunReport is the outcome of Orchestrator.Run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Pipeline   string        `json:"pipeline"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
	Stages     []StageReport `json:"stages"`
}

// Stage returns the report for op.
func (r *RunReport) Stage(op string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Op == op {
			return s, true
		}
	}
	return StageReport{}, false
}

// Succeeded reports whether every stage ran to completion.
func (r *RunReport) Succeeded() bool {
	for _, s := range r.Stages {
		if s.Reason == ReasonCancelled || s.Reason == "" {
			return false
		}
	}
	return true
}

// Totals sums batches, items and failures over all stages.
func (r *RunReport) Totals() (batches, items, failures int) {
	for _, s := range r.Stages {
		batches += s.Batches
		items += s.Items
		failures += s.Failures
	}
	return batches, items, failures
}
