package queue

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestMergeNoDuplicates(t *testing.T) {
	tests := []struct {
		name     string
		existing []Item
		incoming []Item
		want     []Item
	}{
		{"dedups both sides", Items("a", "b"), Items("b", "c", "c", "a", "d"), Items("a", "b", "c", "d")},
		{"empty queue", nil, Items("x", "x"), Items("x")},
		{"nothing new", Items("a"), nil, Items("a")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MergeNoDuplicates(tc.existing, tc.incoming); !slices.Equal(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTakeIsTailFirst(t *testing.T) {
	q := New()
	if _, err := q.RefillIfLow(context.Background(), NewFixedSource(Items("1", "2", "3", "4", "5")), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := q.Take(2); !slices.Equal(got, Items("5", "4")) {
		t.Fatalf("expected [5 4], got %v", got)
	}
	if got := q.Take(10); !slices.Equal(got, Items("3", "2", "1")) {
		t.Fatalf("expected [3 2 1], got %v", got)
	}
	if got := q.Take(1); got != nil {
		t.Errorf("expected nil from an empty queue, got %v", got)
	}
	if got := q.Take(0); got != nil {
		t.Errorf("expected nil for n=0, got %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestFixedSourceExhaustedAfterFirstMerge(t *testing.T) {
	ctx := context.Background()
	src := NewFixedSource(Items("a", "b", "c"))
	q := New()

	exhausted, err := q.RefillIfLow(ctx, src, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exhausted || q.Len() != 3 {
		t.Fatalf("expected exhausted with 3 items, got %v with %d", exhausted, q.Len())
	}

	q.Take(3)
	exhausted, err = q.RefillIfLow(ctx, src, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exhausted {
		t.Error("expected exhausted")
	}
	if q.Len() != 0 {
		t.Errorf("a fixed list is handed out once, queue has %d", q.Len())
	}
	if src.Len() != 3 {
		t.Errorf("expected source length 3, got %d", src.Len())
	}
}

func TestQuerySourceExhaustedWhenNothingNew(t *testing.T) {
	ctx := context.Background()
	results := [][]Item{Items("a", "b"), Items("b", "c"), Items("c"), nil}
	calls := 0
	src := NewQuerySource("pending", func(context.Context) ([]Item, error) {
		out := results[calls]
		calls++
		return out, nil
	})
	if src.Name() != "pending" || src.Fixed() {
		t.Fatalf("unexpected source %q fixed=%v", src.Name(), src.Fixed())
	}

	q := New()
	exhausted, err := q.RefillIfLow(ctx, src, 5)
	if err != nil || exhausted {
		t.Fatalf("first refill: exhausted=%v err=%v", exhausted, err)
	}

	if exhausted, _ = q.RefillIfLow(ctx, src, 5); exhausted {
		t.Fatal("c is new")
	}
	if got := q.Items(); !slices.Equal(got, Items("a", "b", "c")) {
		t.Fatalf("expected [a b c], got %v", got)
	}

	if exhausted, _ = q.RefillIfLow(ctx, src, 5); !exhausted {
		t.Fatal("c was already queued")
	}

	q.Take(3)
	if exhausted, _ = q.RefillIfLow(ctx, src, 5); !exhausted {
		t.Fatal("an empty result exhausts the source")
	}
	if calls != 4 {
		t.Errorf("expected 4 fetches, got %d", calls)
	}
}

func TestRefillSkippedWhenQueueFull(t *testing.T) {
	calls := 0
	src := NewQuerySource("q", func(context.Context) ([]Item, error) {
		calls++
		return Items("a", "b", "c"), nil
	})
	q := New()
	_, _ = q.RefillIfLow(context.Background(), src, 2)
	exhausted, err := q.RefillIfLow(context.Background(), src, 2)
	if err != nil || exhausted {
		t.Fatalf("exhausted=%v err=%v", exhausted, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
}

func TestRefillErrorLeavesQueue(t *testing.T) {
	boom := errors.New("db down")
	src := NewQuerySource("q", func(context.Context) ([]Item, error) { return nil, boom })
	q := New()
	exhausted, err := q.RefillIfLow(context.Background(), src, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if exhausted || q.Len() != 0 {
		t.Errorf("expected untouched queue, exhausted=%v len=%d", exhausted, q.Len())
	}
}

func TestDrop(t *testing.T) {
	q := New()
	_, _ = q.RefillIfLow(context.Background(), NewFixedSource(Items("a", "b")), 1)
	if got := q.Drop(); !slices.Equal(got, Items("a", "b")) {
		t.Errorf("expected [a b], got %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestStringsRoundTrip(t *testing.T) {
	if got := Strings(Items("B00X", "B00Y")); !slices.Equal(got, []string{"B00X", "B00Y"}) {
		t.Errorf("unexpected strings %v", got)
	}
}
