package report

import (
	"time"

	"github.com/kbukum/crossmatch/scheduler"
)

// Document is the stored form of one run.
type Document struct {
	RunID      string                  `json:"run_id"`
	Routine    string                  `json:"routine"`
	Args       map[string]int          `json:"args,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	DurationMS int64                   `json:"duration_ms"`
	Succeeded  bool                    `json:"succeeded"`
	Error      string                  `json:"error,omitempty"`
	Totals     Totals                  `json:"totals"`
	Stages     []scheduler.StageReport `json:"stages"`
}

// Totals sums the stage counters.
type Totals struct {
	Batches  int `json:"batches"`
	Items    int `json:"items"`
	Failures int `json:"failures"`
}

// FromRun builds a document from a run report. args maps each item
// argument to how many items it carried. runErr is the error the run ended
// with, if any.
func FromRun(routine string, args map[string]int, r *scheduler.RunReport, runErr error) Document {
	doc := Document{
		RunID:      r.RunID,
		Routine:    routine,
		Args:       args,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		DurationMS: r.Duration.Milliseconds(),
		Succeeded:  runErr == nil && r.Succeeded(),
		Stages:     r.Stages,
	}
	doc.Totals.Batches, doc.Totals.Items, doc.Totals.Failures = r.Totals()
	if runErr != nil {
		doc.Error = runErr.Error()
	}
	return doc
}
