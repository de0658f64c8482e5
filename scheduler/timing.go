package scheduler

import (
	"fmt"
	"time"

	"github.com/kbukum/crossmatch/throttle"
)

// Default timings.
const (
	DefaultThrottleBackoff = 1100 * time.Millisecond
	DefaultIdlePoll        = 8 * time.Second
	DefaultLatchPoll       = 100 * time.Millisecond
)

// Timing holds the sleeps of the stage loop and the refill period.
type Timing struct {
	// ThrottleBackoff is how long after the start of an iteration a stage
	// retries when its bucket is short of tokens.
	ThrottleBackoff time.Duration `yaml:"throttle_backoff" mapstructure:"throttle_backoff"`
	// IdlePoll is how long after the start of an iteration an idle stage
	// looks at its queue again.
	IdlePoll time.Duration `yaml:"idle_poll" mapstructure:"idle_poll"`
	// LatchPoll bounds the wait on each unfired upstream latch while idle.
	LatchPoll    time.Duration `yaml:"latch_poll" mapstructure:"latch_poll"`
	RefillPeriod time.Duration `yaml:"refill_period" mapstructure:"refill_period"`
}

// DefaultTiming returns the production timings.
func DefaultTiming() Timing {
	return Timing{
		ThrottleBackoff: DefaultThrottleBackoff,
		IdlePoll:        DefaultIdlePoll,
		LatchPoll:       DefaultLatchPoll,
		RefillPeriod:    throttle.DefaultRefillPeriod,
	}
}

// ApplyDefaults fills zero fields with the defaults.
func (t *Timing) ApplyDefaults() {
	d := DefaultTiming()
	if t.ThrottleBackoff == 0 {
		t.ThrottleBackoff = d.ThrottleBackoff
	}
	if t.IdlePoll == 0 {
		t.IdlePoll = d.IdlePoll
	}
	if t.LatchPoll == 0 {
		t.LatchPoll = d.LatchPoll
	}
	if t.RefillPeriod == 0 {
		t.RefillPeriod = d.RefillPeriod
	}
}

// Validate rejects negative durations.
func (t Timing) Validate() error {
	for name, d := range map[string]time.Duration{
		"throttle_backoff": t.ThrottleBackoff,
		"idle_poll":        t.IdlePoll,
		"latch_poll":       t.LatchPoll,
		"refill_period":    t.RefillPeriod,
	} {
		if d < 0 {
			return fmt.Errorf("scheduler.%s must not be negative (got: %s)", name, d)
		}
	}
	return nil
}
