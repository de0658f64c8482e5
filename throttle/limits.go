package throttle

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kbukum/crossmatch/validation"
)

// Limits is the quota and batch shape of one throttled operation.
type Limits struct {
	Capacity   int     `yaml:"capacity" mapstructure:"capacity" json:"capacity" validate:"gtefield=MaxBatch"`
	RefillRate float64 `yaml:"refill_rate" mapstructure:"refill_rate" json:"refill_rate" validate:"gt=0"`
	MaxBatch   int     `yaml:"max_batch" mapstructure:"max_batch" json:"max_batch" validate:"gte=1"`
	MinBatch   int     `yaml:"min_batch" mapstructure:"min_batch" json:"min_batch" validate:"gte=0,ltefield=MaxBatch"`
}

// Validate checks 0 <= MinBatch <= MaxBatch <= Capacity and RefillRate > 0.
func (l Limits) Validate() error {
	return validation.ValidateStruct(l)
}

// Table maps an operation name to its limits. Operations missing from the
// table run unthrottled.
type Table map[string]Limits

// DefaultTable returns the marketplace quotas crossmatch ships with.
func DefaultTable() Table {
	return Table{
		"lmp":       {Capacity: 20, RefillRate: 0.2, MaxBatch: 1, MinBatch: 1},
		"gpcfAsin":  {Capacity: 20, RefillRate: 0.2, MaxBatch: 1, MinBatch: 1},
		"gmp":       {Capacity: 20, RefillRate: 2, MaxBatch: 10, MinBatch: 8},
		"gmpfId":    {Capacity: 20, RefillRate: 5, MaxBatch: 5, MinBatch: 4},
		"gcpfAsin":  {Capacity: 20, RefillRate: 10, MaxBatch: 20, MinBatch: 16},
		"glolfAsin": {Capacity: 20, RefillRate: 10, MaxBatch: 20, MinBatch: 16},
		"glpofAsin": {Capacity: 10, RefillRate: 5, MaxBatch: 1, MinBatch: 1},
		"gmfe":      {Capacity: 20, RefillRate: 10, MaxBatch: 4, MinBatch: 4},
		"gmpfAsin":  {Capacity: 20, RefillRate: 10, MaxBatch: 20, MinBatch: 16},
		"lis":       {Capacity: 30, RefillRate: 2, MaxBatch: 10, MinBatch: 0},
	}
}

// Lookup returns the limits for op.
func (t Table) Lookup(op string) (Limits, bool) {
	l, ok := t[op]
	return l, ok
}

// Merge returns a copy of t with overrides applied on top.
func (t Table) Merge(overrides Table) Table {
	out := maps.Clone(t)
	if out == nil {
		out = Table{}
	}
	maps.Copy(out, overrides)
	return out
}

// Ops returns the operation names in sorted order.
func (t Table) Ops() []string {
	return slices.Sorted(maps.Keys(t))
}

// Validate checks every entry.
func (t Table) Validate() error {
	for _, op := range t.Ops() {
		if err := t[op].Validate(); err != nil {
			return fmt.Errorf("throttle %s: %w", op, err)
		}
	}
	return nil
}
