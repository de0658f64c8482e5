package throttle

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Bucket is a token bucket for one operation.
type Bucket struct {
	op       string
	capacity decimal.Decimal
	rate     decimal.Decimal
	limits   Limits

	mu    sync.Mutex
	level decimal.Decimal
}

// NewBucket returns a full bucket for op.
func NewBucket(op string, l Limits) *Bucket {
	capacity := decimal.NewFromInt(int64(l.Capacity))
	return &Bucket{
		op:       op,
		capacity: capacity,
		rate:     decimal.NewFromFloat(l.RefillRate),
		limits:   l,
		level:    capacity,
	}
}

// Op returns the operation the bucket throttles.
func (b *Bucket) Op() string { return b.op }

// Limits returns the limits the bucket was built from.
func (b *Bucket) Limits() Limits { return b.limits }

// TryConsume takes n tokens if at least n are available. Otherwise the level
// is left untouched and it returns false.
func (b *Bucket) TryConsume(n int) bool {
	if n <= 0 {
		return true
	}
	want := decimal.NewFromInt(int64(n))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.level.LessThan(want) {
		return false
	}
	b.level = b.level.Sub(want)
	return true
}

// Refill adds one tick's worth of tokens, clamped to capacity.
func (b *Bucket) Refill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = decimal.Min(b.level.Add(b.rate), b.capacity)
}

// Level returns the current token level.
func (b *Bucket) Level() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}
