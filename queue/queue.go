package queue

import (
	"context"
)

// Queue is a stage's backlog.
type Queue struct {
	items      []Item
	fixedDrawn bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Items returns a copy of the queued items.
func (q *Queue) Items() []Item {
	return append([]Item(nil), q.items...)
}

// Take removes and returns up to n items from the tail of the queue, the
// most recently merged first.
func (q *Queue) Take(n int) []Item {
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	n = min(n, len(q.items))
	batch := make([]Item, 0, n)
	for range n {
		last := len(q.items) - 1
		batch = append(batch, q.items[last])
		q.items = q.items[:last]
	}
	return batch
}

// Drop empties the queue and returns what it held.
func (q *Queue) Drop() []Item {
	dropped := q.items
	q.items = nil
	return dropped
}

// RefillIfLow merges a fresh fetch from src when fewer than threshold items
// are queued. It reports whether src has nothing more to give: a fixed
// source once its list has been merged, a query source when the merge added
// nothing. On a fetch error the queue is unchanged and exhausted is false.
func (q *Queue) RefillIfLow(ctx context.Context, src Source, threshold int) (exhausted bool, err error) {
	if src.Fixed() && q.fixedDrawn {
		return true, nil
	}
	if q.Len() >= threshold {
		return false, nil
	}

	incoming, err := src.Fetch(ctx)
	if err != nil {
		return false, err
	}
	before := q.Len()
	q.items = MergeNoDuplicates(q.items, incoming)

	if src.Fixed() {
		q.fixedDrawn = true
		return true, nil
	}
	return q.Len() == before, nil
}

// MergeNoDuplicates keeps existing as is and appends the incoming items it
// does not already hold, in incoming order. Duplicates within incoming
// collapse to their first occurrence.
func MergeNoDuplicates(existing, incoming []Item) []Item {
	seen := make(map[Item]struct{}, len(existing)+len(incoming))
	for _, it := range existing {
		seen[it] = struct{}{}
	}
	for _, it := range incoming {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		existing = append(existing, it)
	}
	return existing
}
