package routine

import (
	"github.com/kbukum/crossmatch/amazon"
	"github.com/kbukum/crossmatch/dag"
	"github.com/kbukum/crossmatch/store"
	"github.com/kbukum/crossmatch/walmart"
)

// Built-in routine names.
const (
	Ogaster   = "ogaster"
	Display1  = "display1"
	Inventory = "inventory"
	Manual    = "manual"
)

// walmartLookupBatch is the most ids the Walmart lookup takes per call.
const walmartLookupBatch = 20

// pricing adds the competitive pricing and lowest offers stages, both fed
// by from when set, and the fee stage that waits for both.
func pricing(from string, cp, lo, fees dag.SourceSpec) []dag.StageDef {
	var deps []string
	if from != "" {
		deps = []string{from}
	}
	return []dag.StageDef{
		{Op: amazon.OpCompetitivePricing, DependsOn: deps, Source: cp},
		{Op: amazon.OpLowestOffers, DependsOn: deps, Source: lo},
		{Op: amazon.OpFees, DependsOn: []string{amazon.OpCompetitivePricing, amazon.OpLowestOffers}, Source: fees},
	}
}

// Builtin returns a registry holding the built-in routines.
func Builtin() *dag.Registry {
	r := dag.NewRegistry()

	r.Register(&dag.Pipeline{
		Name:        Ogaster,
		Description: "search Walmart subcategories, match new items and price every fresh match",
		Stages: append([]dag.StageDef{
			{Op: walmart.Op, Source: dag.QuerySource(store.QuerySearchableSubcategories), MinBatch: 1, MaxBatch: 1},
			{Op: amazon.OpMatch, DependsOn: []string{walmart.Op}, Source: dag.QuerySource(store.QueryUnmatchedWalmartItems)},
		}, pricing(amazon.OpMatch,
			dag.QuerySource(store.QueryStaleCompetitivePricing),
			dag.QuerySource(store.QueryStaleLowestOffers),
			dag.QuerySource(store.QueryPendingFees),
		)...),
	})

	r.Register(&dag.Pipeline{
		Name:        Display1,
		Description: "reprice the ASINs on the display sheet",
		Stages: pricing("",
			dag.QuerySource(store.QueryDisplayCompetitivePricing),
			dag.QuerySource(store.QueryDisplayLowestOffers),
			dag.QuerySource(store.QueryDisplayPendingFees),
		),
	})

	r.Register(&dag.Pipeline{
		Name:        Inventory,
		Description: "reprice our listed ASINs and refresh fulfillment stock of our SKUs",
		Stages: append(pricing("",
			dag.ArgSource(dag.ArgASINs),
			dag.ArgSource(dag.ArgASINs),
			dag.QuerySource(store.QuerySKUPendingFees),
		), dag.StageDef{Op: amazon.OpInventorySupply, Source: dag.ArgSource(dag.ArgSKUs)}),
	})

	r.Register(&dag.Pipeline{
		Name:        Manual,
		Description: "look up, match and price the given Walmart ids",
		Stages: append([]dag.StageDef{
			{Op: walmart.OpLookup, Source: dag.ArgSource(dag.ArgWmIDs), MinBatch: 1, MaxBatch: walmartLookupBatch},
			{Op: amazon.OpMatch, DependsOn: []string{walmart.OpLookup}, Source: dag.QuerySource(store.QueryManualUnmatchedItems)},
		}, pricing(amazon.OpMatch,
			dag.QuerySource(store.QueryManualCompetitivePricing),
			dag.QuerySource(store.QueryManualLowestOffers),
			dag.QuerySource(store.QueryManualPendingFees),
		)...),
	})
	return r
}
