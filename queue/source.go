package queue

import (
	"context"
	"sync"
)

// Item is an opaque work key such as an ASIN, a SKU or a Walmart id.
type Item string

// Items converts strings to items.
func Items(values ...string) []Item {
	out := make([]Item, len(values))
	for i, v := range values {
		out[i] = Item(v)
	}
	return out
}

// Strings converts items back to strings.
func Strings(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it)
	}
	return out
}

// Source supplies items to a queue.
type Source interface {
	// Fetch returns the items currently available.
	Fetch(ctx context.Context) ([]Item, error)
	// Fixed reports whether the source is a one-shot list.
	Fixed() bool
}

// QueryFunc reads the items a stage still has to process.
type QueryFunc func(ctx context.Context) ([]Item, error)

// QuerySource re-runs a query on every fetch.
type QuerySource struct {
	name  string
	query QueryFunc
}

// NewQuerySource wraps query.
func NewQuerySource(name string, query QueryFunc) *QuerySource {
	return &QuerySource{name: name, query: query}
}

// Name returns the query name.
func (s *QuerySource) Name() string { return s.name }

func (s *QuerySource) Fetch(ctx context.Context) ([]Item, error) {
	return s.query(ctx)
}

func (s *QuerySource) Fixed() bool { return false }

// FixedSource hands out a static list on its first fetch and nothing after.
type FixedSource struct {
	mu    sync.Mutex
	items []Item
	taken bool
}

// NewFixedSource copies items.
func NewFixedSource(items []Item) *FixedSource {
	return &FixedSource{items: append([]Item(nil), items...)}
}

func (s *FixedSource) Fetch(context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken {
		return nil, nil
	}
	s.taken = true
	return s.items, nil
}

func (s *FixedSource) Fixed() bool { return true }

// Len returns the size of the original list.
func (s *FixedSource) Len() int { return len(s.items) }
