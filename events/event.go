package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeRunStarted  = "run.started"
	TypeStageDone   = "stage.done"
	TypeRunFinished = "run.finished"
)

// Event is one pipeline lifecycle event.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	RunID     string         `json:"run_id"`
	Routine   string         `json:"routine"`
	Stage     string         `json:"stage,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New creates an event with a fresh ID stamped with the current time.
func New(eventType, routine, runID string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "crossmatch",
		RunID:     runID,
		Routine:   routine,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ForStage sets the stage the event is about.
func (e Event) ForStage(op string) Event {
	e.Stage = op
	return e
}

// Key is the partition key: the run ID, or the event ID without one.
func (e Event) Key() string {
	if e.RunID != "" {
		return e.RunID
	}
	return e.ID
}

// ToJSON marshals the event to JSON.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
