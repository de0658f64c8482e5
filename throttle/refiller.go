package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/crossmatch/logger"
)

// DefaultRefillPeriod is slightly longer than a second so a provider that
// restores quota once per second is never over-credited.
const DefaultRefillPeriod = 1050 * time.Millisecond

// Refiller refills a set of buckets on a fixed period.
type Refiller struct {
	period time.Duration
	log    *logger.Logger

	mu      sync.Mutex
	buckets []*Bucket
	ticks   int
}

// NewRefiller creates a refiller. A non-positive period uses DefaultRefillPeriod.
func NewRefiller(period time.Duration) *Refiller {
	if period <= 0 {
		period = DefaultRefillPeriod
	}
	return &Refiller{period: period, log: logger.Get("throttle")}
}

// Register adds buckets to the refill set.
func (r *Refiller) Register(buckets ...*Bucket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = append(r.buckets, buckets...)
}

// Period returns the refill period.
func (r *Refiller) Period() time.Duration { return r.period }

// Ticks returns how many refill rounds have run.
func (r *Refiller) Ticks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Tick refills every registered bucket once.
func (r *Refiller) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.buckets {
		b.Refill()
	}
	r.ticks++
}

// Run ticks until ctx is cancelled. A ticker keeps the schedule fixed, so a
// slow round does not push later ones back.
func (r *Refiller) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.mu.Lock()
	n := len(r.buckets)
	r.mu.Unlock()
	r.log.Debug("Refiller started", logger.Fields("period", r.period.String(), "buckets", n))
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Refiller stopped", logger.Fields("ticks", r.Ticks()))
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}
