package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/kbukum/crossmatch/database"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/resilience"
)

// Named backing queries.
const (
	QuerySearchableSubcategories   = "searchable_subcategories"
	QueryUnmatchedWalmartItems     = "unmatched_walmart_items"
	QueryStaleCompetitivePricing   = "stale_competitive_pricing"
	QueryStaleLowestOffers         = "stale_lowest_offers"
	QueryPendingFees               = "pending_fees"
	QueryDisplayCompetitivePricing = "display_competitive_pricing"
	QueryDisplayLowestOffers       = "display_lowest_offers"
	QueryDisplayPendingFees        = "display_pending_fees"
	QuerySKUPendingFees            = "sku_pending_fees"
	QueryManualUnmatchedItems      = "manual_unmatched_items"
	QueryManualCompetitivePricing  = "manual_competitive_pricing"
	QueryManualLowestOffers        = "manual_lowest_offers"
	QueryManualPendingFees         = "manual_pending_fees"
)

// Freshness windows for the query-backed routines.
const (
	RematchAfter         = 30 * 24 * time.Hour
	ResearchAfter        = 30 * 24 * time.Hour
	WalmartDataFreshFor  = 4 * 24 * time.Hour
	AmazonPricingStaleAt = 42 * time.Hour
)

// queryWait bounds how long a refill waits for a free connection. A read
// turned away counts as a source error and is retried on the next pass.
const queryWait = 30 * time.Second

// Search outcomes that keep a subcategory out of the search until it is
// due again.
var deadSearchOutcomes = []string{"4003", "totalResults_value_is_0"}

// QueryArgs binds a query to a run.
type QueryArgs struct {
	// Since is the run start. Queries use it to skip what the run already
	// handled.
	Since time.Time
	// WmIDs restricts the manual queries.
	WmIDs []int64
}

// Queries builds the named backing queries. Every read goes through the
// bulkhead so stages cannot queue more reads than the pool serves.
type Queries struct {
	db       *gorm.DB
	bulkhead *resilience.Bulkhead
	now      func() time.Time
}

// NewQueries wraps db. maxConcurrent is usually the database pool size.
func NewQueries(db *gorm.DB, maxConcurrent int) *Queries {
	return &Queries{
		db: db,
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "store-queries",
			MaxConcurrent: max(1, maxConcurrent),
			MaxWait:       queryWait,
		}),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Names lists every named query.
func (q *Queries) Names() []string {
	names := make([]string, 0, len(q.builders()))
	for name := range q.builders() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Source returns the named query as a backing source bound to args.
func (q *Queries) Source(name string, args QueryArgs) (queue.Source, error) {
	build, ok := q.builders()[name]
	if !ok {
		return nil, fmt.Errorf("store: unknown query %q", name)
	}
	if args.Since.IsZero() {
		args.Since = q.now()
	}
	args.Since = args.Since.UTC()
	return queue.NewQuerySource(name, func(ctx context.Context) ([]queue.Item, error) {
		return q.run(ctx, name, func(db *gorm.DB) *gorm.DB { return build(db, args) })
	}), nil
}

type builder func(db *gorm.DB, args QueryArgs) *gorm.DB

func (q *Queries) builders() map[string]builder {
	return map[string]builder{
		QuerySearchableSubcategories:   q.searchableSubcategories,
		QueryUnmatchedWalmartItems:     q.unmatchedWalmartItems,
		QueryStaleCompetitivePricing:   q.stale(ColAzCompPrice),
		QueryStaleLowestOffers:         q.stale(ColAzLowestOffer),
		QueryPendingFees:               q.pendingFees,
		QueryDisplayCompetitivePricing: q.recheck("display1", ColAzCompPrice),
		QueryDisplayLowestOffers:       q.recheck("display1", ColAzLowestOffer),
		QueryDisplayPendingFees:        q.feesSince("display1", false),
		QuerySKUPendingFees:            q.feesSince("skus", false),
		QueryManualUnmatchedItems:      q.manualUnmatched,
		QueryManualCompetitivePricing:  q.manual(ColAzCompPrice),
		QueryManualLowestOffers:        q.manual(ColAzLowestOffer),
		QueryManualPendingFees:         q.feesSince("products_wmaz", true),
	}
}

func (q *Queries) run(ctx context.Context, name string, build func(*gorm.DB) *gorm.DB) ([]queue.Item, error) {
	return resilience.ExecuteWithResult(ctx, q.bulkhead, func() ([]queue.Item, error) {
		var keys []string
		if err := build(q.db.WithContext(ctx)).Scan(&keys).Error; err != nil {
			return nil, database.FromDatabase(err, name)
		}
		return queue.Items(keys...), nil
	})
}

// searchableSubcategories are the active, included subcategories not yet
// searched this run, skipping those whose last search found nothing until
// they are due again.
func (q *Queries) searchableSubcategories(db *gorm.DB, args QueryArgs) *gorm.DB {
	dueBefore := args.Since.Add(-ResearchAfter)
	return db.Model(&Subcategory{}).
		Select("full_id").
		Where("active = ?", true).
		Where("include IS NULL OR include = ?", true).
		Where("success IS NULL OR success NOT IN ? OR last_searched IS NULL OR last_searched < ?", deadSearchOutcomes, dueBefore).
		Where("last_searched IS NULL OR last_searched < ?", args.Since).
		Order("full_id")
}

// unmatchedWalmartItems are items with a unique UPC that were never matched
// or not for a month.
func (q *Queries) unmatchedWalmartItems(db *gorm.DB, args QueryArgs) *gorm.DB {
	return db.Model(&WalmartItem{}).
		Select("CAST(wm_id AS TEXT)").
		Where("upc IS NOT NULL AND dup = ?", false).
		Where("last_matched IS NULL OR last_matched < ?", args.Since.Add(-RematchAfter)).
		Order("wm_id")
}

// manualUnmatched selects the run's Walmart items that are stored with a
// unique UPC and were not matched since the run started.
func (q *Queries) manualUnmatched(db *gorm.DB, args QueryArgs) *gorm.DB {
	return db.Model(&WalmartItem{}).
		Select("CAST(wm_id AS TEXT)").
		Where("wm_id IN ?", wmIDsOrNone(args.WmIDs)).
		Where("upc IS NOT NULL AND dup = ?", false).
		Where("last_matched IS NULL OR last_matched < ?", args.Since).
		Order("wm_id")
}

// stale selects in-stock, free-shipping matches backed by fresh Walmart data
// whose Amazon column has not been refreshed within AmazonPricingStaleAt.
func (q *Queries) stale(col TimestampColumn) builder {
	return func(db *gorm.DB, args QueryArgs) *gorm.DB {
		c := "b." + string(col)
		return db.Table("products_wmaz AS a").
			Select("a.asin").
			Joins("JOIN timestamps_wmaz AS b ON a.asin = b.asin").
			Joins("JOIN prod_wm AS c ON a.wm_id = c.wm_id").
			Where("a.free_ship = ? AND a.wm_instock = ?", true, true).
			Where("c.fetched > ?", args.Since.Add(-WalmartDataFreshFor)).
			Where(c+" IS NULL OR "+c+" < ?", args.Since.Add(-AmazonPricingStaleAt)).
			Order("a.asin")
	}
}

// pendingFees selects priced matches whose pricing and lowest offers are
// both newer than their fee estimate.
func (q *Queries) pendingFees(db *gorm.DB, _ QueryArgs) *gorm.DB {
	return db.Table("products_wmaz AS a").
		Select("a.asin").
		Joins("JOIN timestamps_wmaz AS b ON a.asin = b.asin").
		Where("COALESCE(a.comp_price, a.lowest_fba, a.lowest_merch) IS NOT NULL").
		Where("b.az_comp_price IS NOT NULL AND b.az_lowest_offer IS NOT NULL").
		Where("b.az_fees IS NULL OR (b.az_fees < b.az_comp_price AND b.az_fees < b.az_lowest_offer)").
		Order("a.asin")
}

// recheck selects ASINs listed in table whose col predates the run.
func (q *Queries) recheck(table string, col TimestampColumn) builder {
	return func(db *gorm.DB, args QueryArgs) *gorm.DB {
		return db.Table(table+" AS a").
			Select("a.asin").
			Joins("JOIN timestamps_wmaz AS b ON a.asin = b.asin").
			Joins("JOIN products_wmaz AS c ON a.asin = c.asin").
			Where("b."+string(col)+" < ?", args.Since).
			Order("a.asin")
	}
}

// feesSince selects ASINs listed in table whose pricing and lowest offers
// were refreshed this run but whose fees were not. byWmID restricts the
// selection to the run's Walmart ids.
func (q *Queries) feesSince(table string, byWmID bool) builder {
	return func(db *gorm.DB, args QueryArgs) *gorm.DB {
		tx := db.Table(table+" AS a").
			Select("a.asin").
			Joins("JOIN timestamps_wmaz AS b ON a.asin = b.asin").
			Where("b.az_comp_price > ? AND b.az_lowest_offer > ?", args.Since, args.Since).
			Where("b.az_fees IS NULL OR b.az_fees < ?", args.Since)
		if byWmID {
			tx = tx.Where("a.wm_id IN ?", wmIDsOrNone(args.WmIDs))
		}
		return tx.Order("a.asin")
	}
}

// manual selects the run's matches, made this run, whose col was not
// refreshed since.
func (q *Queries) manual(col TimestampColumn) builder {
	return func(db *gorm.DB, args QueryArgs) *gorm.DB {
		c := "b." + string(col)
		return db.Table("products_wmaz AS a").
			Select("a.asin").
			Joins("JOIN timestamps_wmaz AS b ON a.asin = b.asin").
			Where("a.wm_id IN ?", wmIDsOrNone(args.WmIDs)).
			Where("b.match_to_az >= ?", args.Since).
			Where(c+" IS NULL OR "+c+" < ?", args.Since).
			Order("a.asin")
	}
}

// wmIDsOrNone keeps IN clauses valid for an empty list.
func wmIDsOrNone(ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{-1}
	}
	return ids
}

// ParseWmIDs converts item keys to Walmart ids.
func ParseWmIDs(items []queue.Item) ([]int64, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		id, err := strconv.ParseInt(string(it), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: invalid walmart id %q: %w", it, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
