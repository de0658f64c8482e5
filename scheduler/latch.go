package scheduler

import (
	"sync"
	"time"
)

// Latch is a one-shot completion signal from an upstream stage to one
// downstream stage. Signal may be called any number of times.
type Latch struct {
	from, to string
	ch       chan struct{}
	once     sync.Once
}

// NewLatch returns an unfired latch for the edge from -> to.
func NewLatch(from, to string) *Latch {
	return &Latch{from: from, to: to, ch: make(chan struct{})}
}

// From returns the upstream operation.
func (l *Latch) From() string { return l.from }

// To returns the downstream operation.
func (l *Latch) To() string { return l.to }

// Signal fires the latch.
func (l *Latch) Signal() {
	l.once.Do(func() { close(l.ch) })
}

// Done returns a channel that is closed once the latch fires.
func (l *Latch) Done() <-chan struct{} { return l.ch }

// Fired reports whether the latch has fired without blocking.
func (l *Latch) Fired() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Wait blocks for at most timeout and reports whether the latch fired.
func (l *Latch) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return l.Fired()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.ch:
		return true
	case <-timer.C:
		return false
	}
}
