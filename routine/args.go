package routine

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/kbukum/crossmatch/dag"
	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/queue"
)

// Args are the item lists a run was started with.
type Args struct {
	ASINs []string
	SKUs  []string
	WmIDs []int64
}

// Items returns the list bound to a stage by an items_arg source. An empty
// list is an error: the stage would have nothing to do.
func (a Args) Items(arg string) ([]queue.Item, error) {
	var values []string
	switch arg {
	case dag.ArgASINs:
		values = a.ASINs
	case dag.ArgSKUs:
		values = a.SKUs
	case dag.ArgWmIDs:
		for _, id := range a.WmIDs {
			values = append(values, strconv.FormatInt(id, 10))
		}
	default:
		return nil, apperrors.InvalidInput("items_arg", fmt.Sprintf("unknown argument %q", arg))
	}
	if len(values) == 0 {
		return nil, apperrors.InvalidInput(arg, "the routine needs at least one item")
	}
	return queue.Items(values...), nil
}

// Counts maps each non-empty argument to its length.
func (a Args) Counts() map[string]int {
	counts := make(map[string]int)
	for arg, n := range map[string]int{dag.ArgASINs: len(a.ASINs), dag.ArgSKUs: len(a.SKUs), dag.ArgWmIDs: len(a.WmIDs)} {
		if n > 0 {
			counts[arg] = n
		}
	}
	return counts
}

// ParseWmIDs parses Walmart ids given on the command line.
func ParseWmIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, apperrors.InvalidInput(dag.ArgWmIDs, fmt.Sprintf("%q is not a Walmart id", v))
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
