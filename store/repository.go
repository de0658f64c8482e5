package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/crossmatch/database"
)

// QueryLogSlot is the granularity of the Walmart query log.
const QueryLogSlot = 5 * time.Minute

// TimestampColumn names a per-ASIN call timestamp.
type TimestampColumn string

const (
	ColMatchToAz     TimestampColumn = "match_to_az"
	ColAzCompPrice   TimestampColumn = "az_comp_price"
	ColAzLowestOffer TimestampColumn = "az_lowest_offer"
	ColAzFees        TimestampColumn = "az_fees"
)

func (c TimestampColumn) valid() bool {
	switch c {
	case ColMatchToAz, ColAzCompPrice, ColAzLowestOffer, ColAzFees:
		return true
	}
	return false
}

// CompetitivePrice is the competitive pricing result for one ASIN.
type CompetitivePrice struct {
	ASIN      string
	Price     decimal.NullDecimal
	SalesRank *int
}

// LowestOffer is the lowest new offer per fulfillment channel.
type LowestOffer struct {
	ASIN     string
	FBA      decimal.NullDecimal
	Merchant decimal.NullDecimal
}

// FeeEstimate is the fee estimate at the price we would list at.
type FeeEstimate struct {
	ASIN     string
	MyPrice  decimal.NullDecimal
	FeeTotal decimal.NullDecimal
}

// Repository writes vendor results to the store.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) wrap(err error, resource string) error {
	if err == nil {
		return nil
	}
	return database.FromDatabase(err, resource)
}

// UpsertWalmartItems inserts items or refreshes their search fields. The
// dedup flag and match time are left alone.
func (r *Repository) UpsertWalmartItems(ctx context.Context, items []WalmartItem) error {
	if len(items) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wm_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"upc", "name", "price", "path", "in_stock", "free_ship", "fetched"}),
	}).Create(&items).Error
	return r.wrap(err, "walmart item")
}

// WalmartItems loads the items with the given ids.
func (r *Repository) WalmartItems(ctx context.Context, wmIDs []int64) ([]WalmartItem, error) {
	var items []WalmartItem
	if len(wmIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("wm_id IN ?", wmIDs).Order("wm_id").Find(&items).Error
	return items, r.wrap(err, "walmart item")
}

// MarkMatched sets last_matched on the given items.
func (r *Repository) MarkMatched(ctx context.Context, wmIDs []int64, at time.Time) error {
	if len(wmIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&WalmartItem{}).
		Where("wm_id IN ?", wmIDs).
		Update("last_matched", at).Error
	return r.wrap(err, "walmart item")
}

// MarkDuplicateUPCs flags every item whose UPC is shared with another item
// and clears the flag everywhere else. It returns the number flagged.
func (r *Repository) MarkDuplicateUPCs(ctx context.Context) (int64, error) {
	var flagged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&WalmartItem{}).Where("dup = ?", true).Update("dup", false).Error; err != nil {
			return err
		}
		shared := tx.Model(&WalmartItem{}).
			Select("upc").
			Where("upc IS NOT NULL").
			Group("upc").
			Having("COUNT(*) > 1")
		res := tx.Model(&WalmartItem{}).Where("upc IN (?)", shared).Update("dup", true)
		flagged = res.RowsAffected
		return res.Error
	})
	return flagged, r.wrap(err, "walmart item")
}

// UpsertMatches inserts matches or refreshes their Walmart-side fields.
func (r *Repository) UpsertMatches(ctx context.Context, matches []Match) error {
	if len(matches) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asin"}},
		DoUpdates: clause.AssignmentColumns([]string{"wm_id", "upc", "az_name", "az_brand", "wm_price", "free_ship", "wm_instock", "sales_rank"}),
	}).Create(&matches).Error
	return r.wrap(err, "match")
}

// Matches loads the matches for the given ASINs.
func (r *Repository) Matches(ctx context.Context, asins []string) ([]Match, error) {
	var matches []Match
	if len(asins) == 0 {
		return matches, nil
	}
	err := r.db.WithContext(ctx).Where("asin IN ?", asins).Order("asin").Find(&matches).Error
	return matches, r.wrap(err, "match")
}

// UpdateCompetitivePricing stores competitive prices and sales ranks.
func (r *Repository) UpdateCompetitivePricing(ctx context.Context, prices []CompetitivePrice) error {
	return r.updateEach(ctx, len(prices), func(tx *gorm.DB, i int) error {
		p := prices[i]
		return tx.Model(&Match{}).Where("asin = ?", p.ASIN).Updates(map[string]any{
			"comp_price": p.Price,
			"sales_rank": p.SalesRank,
		}).Error
	})
}

// UpdateLowestOffers stores the lowest FBA and merchant-fulfilled offers.
func (r *Repository) UpdateLowestOffers(ctx context.Context, offers []LowestOffer) error {
	return r.updateEach(ctx, len(offers), func(tx *gorm.DB, i int) error {
		o := offers[i]
		return tx.Model(&Match{}).Where("asin = ?", o.ASIN).Updates(map[string]any{
			"lowest_fba":   o.FBA,
			"lowest_merch": o.Merchant,
		}).Error
	})
}

// UpdateFees stores fee estimates.
func (r *Repository) UpdateFees(ctx context.Context, fees []FeeEstimate) error {
	return r.updateEach(ctx, len(fees), func(tx *gorm.DB, i int) error {
		f := fees[i]
		return tx.Model(&Match{}).Where("asin = ?", f.ASIN).Updates(map[string]any{
			"my_price":  f.MyPrice,
			"fee_total": f.FeeTotal,
		}).Error
	})
}

func (r *Repository) updateEach(ctx context.Context, n int, fn func(tx *gorm.DB, i int) error) error {
	if n == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range n {
			if err := fn(tx, i); err != nil {
				return err
			}
		}
		return nil
	})
	return r.wrap(err, "match")
}

// RecordTimestamps sets column to at for every ASIN, creating rows as
// needed.
func (r *Repository) RecordTimestamps(ctx context.Context, asins []string, column TimestampColumn, at time.Time) error {
	if len(asins) == 0 {
		return nil
	}
	if !column.valid() {
		return fmt.Errorf("store: unknown timestamp column %q", column)
	}
	rows := make([]map[string]any, len(asins))
	for i, asin := range asins {
		rows[i] = map[string]any{"asin": asin, string(column): at}
	}
	err := r.db.WithContext(ctx).Model(&Timestamps{}).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asin"}},
		DoUpdates: clause.AssignmentColumns([]string{string(column)}),
	}).Create(rows).Error
	return r.wrap(err, "timestamps")
}

// UpsertInventorySupply stores fulfillment stock levels.
func (r *Repository) UpsertInventorySupply(ctx context.Context, supply []InventorySupply) error {
	if len(supply) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"asin", "fnsku", "in_stock_qty", "total_qty", "updated_at"}),
	}).Create(&supply).Error
	return r.wrap(err, "inventory supply")
}

// RecordQueries adds n Walmart API calls to the slot containing at.
func (r *Repository) RecordQueries(ctx context.Context, at time.Time, n int) error {
	if n <= 0 {
		return nil
	}
	row := QueryLog{Timestamp: at.UTC().Truncate(QueryLogSlot), NumQueries: n}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "timestamp"}},
		DoUpdates: clause.Assignments(map[string]any{
			"num_queries": gorm.Expr("wm_query_log.num_queries + ?", n),
		}),
	}).Create(&row).Error
	return r.wrap(err, "query log")
}

// QueriesSince sums the Walmart API calls logged from the slot containing
// since onwards.
func (r *Repository) QueriesSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Model(&QueryLog{}).
		Select("COALESCE(SUM(num_queries), 0)").
		Where(clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: since.UTC().Truncate(QueryLogSlot)}).
		Scan(&total).Error
	return total, r.wrap(err, "query log")
}

// TouchSubcategory records the outcome of searching a subcategory.
func (r *Repository) TouchSubcategory(ctx context.Context, fullID, success string, numItems int, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&Subcategory{}).
		Where("full_id = ?", fullID).
		Updates(map[string]any{
			"success":       success,
			"num_items":     numItems,
			"last_searched": at,
		}).Error
	return r.wrap(err, "subcategory")
}

// ListingPrices returns the price we would list each ASIN at: the lowest of
// its competitive price and lowest offers. ASINs without any price are
// omitted.
func (r *Repository) ListingPrices(ctx context.Context, asins []string) (map[string]decimal.Decimal, error) {
	matches, err := r.Matches(ctx, asins)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal, len(matches))
	for _, m := range matches {
		var best decimal.NullDecimal
		for _, p := range []decimal.NullDecimal{m.CompPrice, m.LowestFBA, m.LowestMerch} {
			if p.Valid && (!best.Valid || p.Decimal.LessThan(best.Decimal)) {
				best = p
			}
		}
		if best.Valid {
			prices[m.ASIN] = best.Decimal
		}
	}
	return prices, nil
}
