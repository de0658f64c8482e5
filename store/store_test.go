package store

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kbukum/crossmatch/database"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/queue"
)

func TestMain(m *testing.M) {
	logger.SetGlobalLogger(logger.NewNop())
	os.Exit(m.Run())
}

var runStart = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Enabled:    true,
		Driver:     database.DriverSQLite,
		DSN:        fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
		MaxRetries: 1,
		LogLevel:   "silent",
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.GormDB
}

func ptr[T any](v T) *T { return &v }

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// must fails the test on a setup error.
func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func fetch(t *testing.T, q *Queries, name string, args QueryArgs) []string {
	t.Helper()
	src, err := q.Source(name, args)
	must(t, err)
	items, err := src.Fetch(context.Background())
	must(t, err)
	return queue.Strings(items)
}

// expectKeys fetches the named query and compares the keys in order.
func expectKeys(t *testing.T, q *Queries, name string, args QueryArgs, want ...string) {
	t.Helper()
	if got := fetch(t, q, name, args); !slices.Equal(got, want) {
		t.Errorf("%s: expected %v, got %v", name, want, got)
	}
}

func TestUpsertWalmartItemsKeepsDedupState(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()

	must(t, repo.UpsertWalmartItems(ctx, []WalmartItem{
		{WmID: 1, UPC: ptr("000000000001"), Name: "brick", Price: price("9.99"), InStock: true, Fetched: ptr(runStart)},
	}))
	must(t, db.Model(&WalmartItem{}).Where("wm_id = 1").Update("dup", true).Error)

	must(t, repo.UpsertWalmartItems(ctx, []WalmartItem{
		{WmID: 1, UPC: ptr("000000000001"), Name: "brick set", Price: price("8.49"), InStock: false, Fetched: ptr(runStart)},
	}))

	items, err := repo.WalmartItems(ctx, []int64{1})
	must(t, err)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Name != "brick set" || !it.Price.Decimal.Equal(decimal.RequireFromString("8.49")) || it.InStock {
		t.Errorf("upsert did not overwrite the item: %+v", it)
	}
	if !it.Dup {
		t.Error("the dedup sweep owns the dup flag")
	}
}

func TestMarkDuplicateUPCs(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()

	must(t, repo.UpsertWalmartItems(ctx, []WalmartItem{
		{WmID: 1, UPC: ptr("111")},
		{WmID: 2, UPC: ptr("111")},
		{WmID: 3, UPC: ptr("222")},
		{WmID: 4},
	}))
	must(t, db.Model(&WalmartItem{}).Where("wm_id = 3").Update("dup", true).Error)

	flagged, err := repo.MarkDuplicateUPCs(ctx)
	must(t, err)
	if flagged != 2 {
		t.Errorf("expected 2 flagged, got %d", flagged)
	}

	items, err := repo.WalmartItems(ctx, []int64{1, 2, 3, 4})
	must(t, err)
	dups := map[int64]bool{}
	for _, it := range items {
		dups[it.WmID] = it.Dup
	}
	if want := map[int64]bool{1: true, 2: true, 3: false, 4: false}; !maps.Equal(dups, want) {
		t.Errorf("expected %v, got %v", want, dups)
	}
}

func TestQueryLog(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()

	must(t, repo.RecordQueries(ctx, runStart.Add(-25*time.Hour), 100))
	must(t, repo.RecordQueries(ctx, runStart.Add(-time.Hour), 30))
	must(t, repo.RecordQueries(ctx, runStart.Add(-time.Hour+time.Minute), 12))
	must(t, repo.RecordQueries(ctx, runStart, 0))

	var slots int64
	must(t, db.Model(&QueryLog{}).Count(&slots).Error)
	if slots != 2 {
		t.Errorf("calls in the same slot share a row, got %d rows", slots)
	}

	total, err := repo.QueriesSince(ctx, runStart.Add(-24*time.Hour))
	must(t, err)
	if total != 42 {
		t.Errorf("expected 42 queries in the window, got %d", total)
	}
}

func TestRecordTimestamps(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()

	must(t, repo.RecordTimestamps(ctx, []string{"B01", "B02"}, ColAzCompPrice, runStart))
	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzFees, runStart.Add(time.Minute)))

	var ts Timestamps
	must(t, db.First(&ts, "asin = ?", "B01").Error)
	if ts.AzCompPrice == nil || ts.AzFees == nil {
		t.Fatalf("expected both columns set, got %+v", ts)
	}
	if !ts.AzCompPrice.Equal(runStart) {
		t.Errorf("a second column leaves the first alone, got %v", ts.AzCompPrice)
	}
	if ts.AzLowestOffer != nil {
		t.Errorf("unexpected lowest offer timestamp %v", ts.AzLowestOffer)
	}

	if err := repo.RecordTimestamps(ctx, []string{"B01"}, TimestampColumn("wm_id"), runStart); err == nil {
		t.Error("expected an unknown column to be rejected")
	}
}

func TestUpdatesAndListingPrices(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()

	must(t, repo.UpsertMatches(ctx, []Match{
		{ASIN: "B01", WmID: 1, FreeShip: true, WmInStock: true},
		{ASIN: "B02", WmID: 2},
	}))
	must(t, repo.UpdateCompetitivePricing(ctx, []CompetitivePrice{
		{ASIN: "B01", Price: price("20.00"), SalesRank: ptr(1500)},
	}))
	must(t, repo.UpdateLowestOffers(ctx, []LowestOffer{
		{ASIN: "B01", FBA: price("18.50"), Merchant: price("19.00")},
		{ASIN: "B02"},
	}))
	must(t, repo.UpdateFees(ctx, []FeeEstimate{
		{ASIN: "B01", MyPrice: price("18.50"), FeeTotal: price("4.12")},
	}))

	matches, err := repo.Matches(ctx, []string{"B01"})
	must(t, err)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if m := matches[0]; m.SalesRank == nil || *m.SalesRank != 1500 || !m.FeeTotal.Decimal.Equal(decimal.RequireFromString("4.12")) {
		t.Errorf("updates not stored: %+v", m)
	}

	prices, err := repo.ListingPrices(ctx, []string{"B01", "B02"})
	must(t, err)
	b01, ok := prices["B01"]
	if !ok || !b01.Equal(decimal.RequireFromString("18.5")) {
		t.Errorf("expected B01 listed at 18.5, got %v (ok=%v)", b01, ok)
	}
	if _, ok := prices["B02"]; ok {
		t.Error("unpriced ASINs have no listing price")
	}
}

func TestUpsertInventorySupply(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()

	must(t, repo.UpsertInventorySupply(ctx, []InventorySupply{{SKU: "SKU-1", ASIN: "B01", InStockQty: 3, TotalQty: 5, UpdatedAt: runStart}}))
	must(t, repo.UpsertInventorySupply(ctx, []InventorySupply{{SKU: "SKU-1", ASIN: "B01", InStockQty: 1, TotalQty: 5, UpdatedAt: runStart}}))

	var got InventorySupply
	must(t, db.First(&got, "sku = ?", "SKU-1").Error)
	if got.InStockQty != 1 {
		t.Errorf("expected the second upsert to win, got %d", got.InStockQty)
	}
}

func TestSearchableSubcategories(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()
	old := runStart.Add(-40 * 24 * time.Hour)
	recent := runStart.Add(-24 * time.Hour)

	must(t, db.Create(&[]Subcategory{
		{FullID: "1_1_1", Active: true},
		{FullID: "1_1_2", Active: true, Include: ptr(false)},
		{FullID: "1_1_3", Active: false},
		{FullID: "1_1_4", Active: true, Success: "4003", LastSearched: &recent},
		{FullID: "1_1_5", Active: true, Success: "4003", LastSearched: &old},
		{FullID: "1_1_6", Active: true, Success: "success", LastSearched: &recent},
	}).Error)

	q := NewQueries(db, 1)
	args := QueryArgs{Since: runStart}
	expectKeys(t, q, QuerySearchableSubcategories, args, "1_1_1", "1_1_5", "1_1_6")

	// A subcategory searched this run drops out.
	must(t, repo.TouchSubcategory(ctx, "1_1_1", "success", 25, runStart.Add(time.Minute)))
	expectKeys(t, q, QuerySearchableSubcategories, args, "1_1_5", "1_1_6")
}

func TestUnmatchedWalmartItems(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()
	old := runStart.Add(-31 * 24 * time.Hour)

	must(t, repo.UpsertWalmartItems(ctx, []WalmartItem{
		{WmID: 10, UPC: ptr("10")},
		{WmID: 11},
		{WmID: 12, UPC: ptr("12"), LastMatched: &old},
		{WmID: 13, UPC: ptr("13"), LastMatched: ptr(runStart.Add(-time.Hour))},
		{WmID: 14, UPC: ptr("14")},
	}))
	must(t, db.Model(&WalmartItem{}).Where("wm_id = 14").Update("dup", true).Error)
	must(t, db.Model(&WalmartItem{}).Where("wm_id = 12").Update("last_matched", old).Error)
	must(t, db.Model(&WalmartItem{}).Where("wm_id = 13").Update("last_matched", runStart.Add(-time.Hour)).Error)

	q := NewQueries(db, 1)
	args := QueryArgs{Since: runStart}
	expectKeys(t, q, QueryUnmatchedWalmartItems, args, "10", "12")

	must(t, repo.MarkMatched(ctx, []int64{10}, runStart.Add(time.Minute)))
	expectKeys(t, q, QueryUnmatchedWalmartItems, args, "12")
}

func TestManualUnmatchedItems(t *testing.T) {
	db := openStore(t)
	repo := NewRepository(db)
	ctx := context.Background()

	must(t, repo.UpsertWalmartItems(ctx, []WalmartItem{
		{WmID: 20, UPC: ptr("20")},
		{WmID: 21},
		{WmID: 22, UPC: ptr("22")},
		{WmID: 23, UPC: ptr("23")},
		{WmID: 24, UPC: ptr("24")},
	}))
	must(t, db.Model(&WalmartItem{}).Where("wm_id = 22").Update("dup", true).Error)
	must(t, repo.MarkMatched(ctx, []int64{23}, runStart.Add(-time.Hour)))

	q := NewQueries(db, 1)
	// 24 is unmatched but not part of the run, 25 was never stored.
	args := QueryArgs{Since: runStart, WmIDs: []int64{20, 21, 22, 23, 25}}
	expectKeys(t, q, QueryManualUnmatchedItems, args, "20", "23")
	expectKeys(t, q, QueryManualUnmatchedItems, QueryArgs{Since: runStart})

	must(t, repo.MarkMatched(ctx, []int64{20, 23}, runStart.Add(time.Minute)))
	expectKeys(t, q, QueryManualUnmatchedItems, args)
}

// seedMatches creates matches for wm ids 1..3 with fresh Walmart data.
func seedMatches(t *testing.T, db *gorm.DB) *Repository {
	t.Helper()
	repo := NewRepository(db)
	ctx := context.Background()
	fresh := runStart.Add(-time.Hour)
	must(t, repo.UpsertWalmartItems(ctx, []WalmartItem{
		{WmID: 1, UPC: ptr("1"), Fetched: &fresh},
		{WmID: 2, UPC: ptr("2"), Fetched: &fresh},
		{WmID: 3, UPC: ptr("3"), Fetched: ptr(runStart.Add(-5 * 24 * time.Hour))},
	}))
	must(t, repo.UpsertMatches(ctx, []Match{
		{ASIN: "B01", WmID: 1, FreeShip: true, WmInStock: true},
		{ASIN: "B02", WmID: 2, FreeShip: true, WmInStock: false},
		{ASIN: "B03", WmID: 3, FreeShip: true, WmInStock: true},
	}))
	must(t, repo.RecordTimestamps(ctx, []string{"B01", "B02", "B03"}, ColMatchToAz, runStart.Add(time.Minute)))
	return repo
}

func TestStalePricingQueries(t *testing.T) {
	db := openStore(t)
	repo := seedMatches(t, db)
	ctx := context.Background()
	q := NewQueries(db, 2)
	args := QueryArgs{Since: runStart}

	// Out of stock and stale Walmart data are skipped.
	expectKeys(t, q, QueryStaleCompetitivePricing, args, "B01")
	expectKeys(t, q, QueryStaleLowestOffers, args, "B01")

	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzCompPrice, runStart.Add(2*time.Minute)))
	expectKeys(t, q, QueryStaleCompetitivePricing, args)
	expectKeys(t, q, QueryStaleLowestOffers, args, "B01")
}

func TestPendingFees(t *testing.T) {
	db := openStore(t)
	repo := seedMatches(t, db)
	ctx := context.Background()
	q := NewQueries(db, 1)

	// No prices yet.
	expectKeys(t, q, QueryPendingFees, QueryArgs{})

	must(t, repo.UpdateCompetitivePricing(ctx, []CompetitivePrice{{ASIN: "B01", Price: price("10")}}))
	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzCompPrice, runStart.Add(time.Minute)))
	// Lowest offers still missing.
	expectKeys(t, q, QueryPendingFees, QueryArgs{})

	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzLowestOffer, runStart.Add(2*time.Minute)))
	expectKeys(t, q, QueryPendingFees, QueryArgs{}, "B01")

	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzFees, runStart.Add(3*time.Minute)))
	expectKeys(t, q, QueryPendingFees, QueryArgs{})
}

func TestDisplayQueries(t *testing.T) {
	db := openStore(t)
	repo := seedMatches(t, db)
	ctx := context.Background()
	must(t, db.Create(&[]DisplayItem{{ASIN: "B01"}, {ASIN: "B02"}}).Error)
	must(t, repo.RecordTimestamps(ctx, []string{"B01", "B02"}, ColAzCompPrice, runStart.Add(-time.Hour)))
	must(t, repo.RecordTimestamps(ctx, []string{"B01", "B02"}, ColAzLowestOffer, runStart.Add(-time.Hour)))

	q := NewQueries(db, 1)
	args := QueryArgs{Since: runStart}
	expectKeys(t, q, QueryDisplayCompetitivePricing, args, "B01", "B02")
	expectKeys(t, q, QueryDisplayPendingFees, args)

	later := runStart.Add(time.Minute)
	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzCompPrice, later))
	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzLowestOffer, later))
	expectKeys(t, q, QueryDisplayCompetitivePricing, args, "B02")
	expectKeys(t, q, QueryDisplayLowestOffers, args, "B02")
	expectKeys(t, q, QueryDisplayPendingFees, args, "B01")
}

func TestSKUPendingFees(t *testing.T) {
	db := openStore(t)
	repo := seedMatches(t, db)
	ctx := context.Background()
	must(t, db.Create(&[]SKU{{SKU: "SKU-1", ASIN: "B01"}, {SKU: "SKU-2", ASIN: "B02"}}).Error)
	later := runStart.Add(time.Minute)
	must(t, repo.RecordTimestamps(ctx, []string{"B01", "B02"}, ColAzCompPrice, later))
	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzLowestOffer, later))
	must(t, repo.RecordTimestamps(ctx, []string{"B02"}, ColAzFees, runStart.Add(-time.Hour)))

	q := NewQueries(db, 1)
	expectKeys(t, q, QuerySKUPendingFees, QueryArgs{Since: runStart}, "B01")
}

func TestManualQueries(t *testing.T) {
	db := openStore(t)
	repo := seedMatches(t, db)
	ctx := context.Background()
	q := NewQueries(db, 1)
	args := QueryArgs{Since: runStart, WmIDs: []int64{1, 2}}

	expectKeys(t, q, QueryManualCompetitivePricing, args, "B01", "B02")
	// No ids selects nothing.
	expectKeys(t, q, QueryManualCompetitivePricing, QueryArgs{Since: runStart})

	later := runStart.Add(2 * time.Minute)
	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzCompPrice, later))
	must(t, repo.RecordTimestamps(ctx, []string{"B01"}, ColAzLowestOffer, later))
	expectKeys(t, q, QueryManualCompetitivePricing, args, "B02")
	expectKeys(t, q, QueryManualLowestOffers, args, "B02")
	expectKeys(t, q, QueryManualPendingFees, args, "B01")

	// Matches made before the run are not part of it.
	expectKeys(t, q, QueryManualCompetitivePricing, QueryArgs{Since: runStart.Add(time.Hour), WmIDs: []int64{1, 2}})
}

func TestQueriesUnknownName(t *testing.T) {
	q := NewQueries(openStore(t), 1)
	if _, err := q.Source("nope", QueryArgs{}); err == nil {
		t.Error("expected an unknown query to be rejected")
	}
	names := q.Names()
	if !slices.Contains(names, QueryPendingFees) || !slices.Contains(names, QueryManualUnmatchedItems) {
		t.Errorf("missing queries in %v", names)
	}
	if len(names) != 13 {
		t.Errorf("expected 13 queries, got %d", len(names))
	}
}

func TestParseWmIDs(t *testing.T) {
	ids, err := ParseWmIDs(queue.Items("12", "7"))
	must(t, err)
	if !slices.Equal(ids, []int64{12, 7}) {
		t.Errorf("expected [12 7], got %v", ids)
	}

	if _, err := ParseWmIDs(queue.Items("x")); err == nil {
		t.Error("expected a non-numeric id to be rejected")
	}
}
