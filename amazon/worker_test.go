package amazon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/httpclient"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/resilience"
	"github.com/kbukum/crossmatch/store"
	"github.com/kbukum/crossmatch/testutil"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeVendor struct {
	err     error
	upcs    []string
	feeReqs []FeeRequest
}

func (f *fakeVendor) MatchByID(_ context.Context, _ string, ids []string) ([]IDMatch, error) {
	f.upcs = append(f.upcs, ids...)
	if f.err != nil {
		return nil, f.err
	}
	var out []IDMatch
	for _, id := range ids {
		if strings.HasSuffix(id, "9") {
			out = append(out, IDMatch{ID: id, Status: "ClientError"})
			continue
		}
		out = append(out, IDMatch{ID: id, Status: statusSuccess, Products: []Product{
			{ASIN: "B" + id[len(id)-3:], Title: "Blocks", Brand: "Acme"},
		}})
	}
	return out, nil
}

func (f *fakeVendor) CompetitivePricing(_ context.Context, asins []string) ([]Pricing, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Pricing
	for _, a := range asins {
		rank := 10
		out = append(out, Pricing{ASIN: a, Status: statusSuccess, Price: dec("20.00"), SalesRank: &rank})
	}
	return out, nil
}

func (f *fakeVendor) LowestOffers(_ context.Context, asins []string) ([]Offers, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Offers
	for _, a := range asins {
		out = append(out, Offers{ASIN: a, Status: statusSuccess, FBA: dec("18.50"), Merchant: dec("17.00")})
	}
	return out, nil
}

func (f *fakeVendor) FeesEstimate(_ context.Context, reqs []FeeRequest) ([]Fees, error) {
	f.feeReqs = append(f.feeReqs, reqs...)
	if f.err != nil {
		return nil, f.err
	}
	var out []Fees
	for _, r := range reqs {
		out = append(out, Fees{ASIN: r.ASIN, Price: r.Price, Status: statusSuccess, Total: dec("4.25")})
	}
	return out, nil
}

func (f *fakeVendor) InventorySupply(_ context.Context, skus []string) ([]Supply, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Supply
	for i, s := range skus {
		out = append(out, Supply{SKU: s, ASIN: fmt.Sprintf("B%03d", i), InStock: i, Total: i + 1})
	}
	return out, nil
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func openStore(t *testing.T) (*store.Repository, *gorm.DB) {
	t.Helper()
	db := testutil.OpenStore(t)
	return store.NewRepository(db), db
}

func newTestWorker(v Vendor, repo Repository) *Worker {
	w := NewWorker(v, repo)
	w.now = func() time.Time { return now }
	return w
}

func upc(s string) *string { return &s }

func timestamps(t *testing.T, db *gorm.DB, asin string) store.Timestamps {
	t.Helper()
	var ts store.Timestamps
	if err := db.First(&ts, "asin = ?", asin).Error; err != nil {
		t.Fatalf("load timestamps of %s: %v", asin, err)
	}
	return ts
}

func seedMatches(t *testing.T, repo *store.Repository, asins ...string) {
	t.Helper()
	var matches []store.Match
	for i, a := range asins {
		matches = append(matches, store.Match{ASIN: a, WmID: int64(i + 1), UPC: fmt.Sprintf("%012d", i+1)})
	}
	must(t, repo.UpsertMatches(context.Background(), matches))
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOperationsCoverEveryAmazonStage(t *testing.T) {
	ops := NewWorker(&fakeVendor{}, nil).Operations()
	for _, op := range []string{OpMatch, OpCompetitivePricing, OpLowestOffers, OpFees, OpInventorySupply} {
		if o, ok := ops[op]; !ok || o.Work == nil {
			t.Errorf("%s: missing operation", op)
		}
	}
}

func TestMatchStoresMatchesAndMarksEveryItem(t *testing.T) {
	repo, db := openStore(t)
	ctx := context.Background()
	must(t, repo.UpsertWalmartItems(ctx, []store.WalmartItem{
		{WmID: 1, UPC: upc("000000000101"), Name: "blocks", Price: dec("9.99"), InStock: true, FreeShip: true},
		{WmID: 2, UPC: upc("000000000109"), Name: "unknown to amazon"},
		{WmID: 3, Name: "no upc"},
	}))
	v := &fakeVendor{}
	w := newTestWorker(v, repo)

	must(t, w.Match(ctx, queue.Items("1", "2", "3")))
	if want := []string{"000000000101", "000000000109"}; !slices.Equal(v.upcs, want) {
		t.Errorf("expected UPCs %v, got %v", want, v.upcs)
	}

	matches, err := repo.Matches(ctx, []string{"B101"})
	must(t, err)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.WmID != 1 || m.Title != "Blocks" || !m.FreeShip || !m.WmInStock || m.WmPrice.Decimal.String() != "9.99" {
		t.Errorf("unexpected match %+v", m)
	}

	if ts := timestamps(t, db, "B101"); ts.MatchToAz == nil || !ts.MatchToAz.Equal(now) {
		t.Errorf("expected matched at %v, got %v", now, ts.MatchToAz)
	}

	items, err := repo.WalmartItems(ctx, []int64{1, 2, 3})
	must(t, err)
	for _, it := range items {
		if it.LastMatched == nil || !it.LastMatched.Equal(now) {
			t.Errorf("item %d: expected last matched %v, got %v", it.WmID, now, it.LastMatched)
		}
	}
}

func TestMatchRejectsBadItemKeys(t *testing.T) {
	repo, _ := openStore(t)
	if err := newTestWorker(&fakeVendor{}, repo).Match(context.Background(), queue.Items("not-a-number")); err == nil {
		t.Error("expected a non-numeric id to be rejected")
	}
}

func TestPricingAndOffersUpdateMatches(t *testing.T) {
	repo, db := openStore(t)
	ctx := context.Background()
	seedMatches(t, repo, "B001", "B002")
	w := newTestWorker(&fakeVendor{}, repo)

	must(t, w.CompetitivePricing(ctx, queue.Items("B001", "B002")))
	must(t, w.LowestOffers(ctx, queue.Items("B001")))

	matches, err := repo.Matches(ctx, []string{"B001", "B002"})
	must(t, err)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	b1 := matches[0]
	if b1.CompPrice.Decimal.String() != "20" || b1.SalesRank == nil || *b1.SalesRank != 10 {
		t.Errorf("pricing not stored on %+v", b1)
	}
	if b1.LowestFBA.Decimal.String() != "18.5" || b1.LowestMerch.Decimal.String() != "17" {
		t.Errorf("offers not stored on %+v", b1)
	}
	if matches[1].LowestFBA.Valid {
		t.Errorf("B002 was not in the offers batch, got %+v", matches[1])
	}

	ts := timestamps(t, db, "B001")
	if ts.AzCompPrice == nil || ts.AzLowestOffer == nil || ts.AzFees != nil {
		t.Errorf("unexpected timestamps %+v", ts)
	}
	if ts := timestamps(t, db, "B002"); ts.AzLowestOffer != nil {
		t.Errorf("B002 offers stamped at %v", ts.AzLowestOffer)
	}
}

func TestFeesUseTheListingPrice(t *testing.T) {
	repo, db := openStore(t)
	ctx := context.Background()
	seedMatches(t, repo, "B001", "B002")
	must(t, repo.UpdateCompetitivePricing(ctx, []store.CompetitivePrice{{ASIN: "B001", Price: dec("20.00")}}))
	must(t, repo.UpdateLowestOffers(ctx, []store.LowestOffer{{ASIN: "B001", Merchant: dec("17.00")}}))
	v := &fakeVendor{}
	w := newTestWorker(v, repo)

	must(t, w.Fees(ctx, queue.Items("B001", "B002")))
	if len(v.feeReqs) != 1 {
		t.Fatalf("B002 has no price to estimate at, got %d requests", len(v.feeReqs))
	}
	if r := v.feeReqs[0]; r.ASIN != "B001" || r.Price.String() != "17" {
		t.Errorf("expected B001 at 17, got %s at %s", r.ASIN, r.Price)
	}

	matches, err := repo.Matches(ctx, []string{"B001"})
	must(t, err)
	if m := matches[0]; m.FeeTotal.Decimal.String() != "4.25" || m.MyPrice.Decimal.String() != "17" {
		t.Errorf("fees not stored on %+v", m)
	}

	if timestamps(t, db, "B001").AzFees == nil {
		t.Error("expected B001 fees stamped")
	}
	if timestamps(t, db, "B002").AzFees == nil {
		t.Error("unpriced ASINs drop out too")
	}
}

func TestInventorySupplyUpserts(t *testing.T) {
	repo, db := openStore(t)
	w := newTestWorker(&fakeVendor{}, repo)
	must(t, w.InventorySupply(context.Background(), queue.Items("sku-1", "sku-2")))

	var rows []store.InventorySupply
	must(t, db.Order("sku").Find(&rows).Error)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if r := rows[1]; r.SKU != "sku-2" || r.InStockQty != 1 || r.TotalQty != 2 || !r.UpdatedAt.Equal(now) {
		t.Errorf("unexpected row %+v", r)
	}
}

func TestFailedCalls(t *testing.T) {
	permanent := httpclient.ClassifyStatusCode(http.StatusBadRequest, []byte(`{"errors":[]}`))
	transient := httpclient.ClassifyStatusCode(http.StatusServiceUnavailable, nil)

	t.Run("permanent rejection stamps the batch", func(t *testing.T) {
		repo, db := openStore(t)
		seedMatches(t, repo, "B001")
		w := newTestWorker(&fakeVendor{err: permanent}, repo)

		err := w.CompetitivePricing(context.Background(), queue.Items("B001"))
		if !apperrors.HasCode(err, apperrors.ErrCodeExternalService) {
			t.Fatalf("expected an external service error, got %v", err)
		}
		if timestamps(t, db, "B001").AzCompPrice == nil {
			t.Error("expected the rejected batch stamped")
		}
	})

	t.Run("transient failure leaves the batch pending", func(t *testing.T) {
		repo, db := openStore(t)
		seedMatches(t, repo, "B001")
		w := newTestWorker(&fakeVendor{err: transient}, repo)

		err := w.LowestOffers(context.Background(), queue.Items("B001"))
		if err == nil || errors.Is(err, apperrors.ErrSourceExhausted) {
			t.Fatalf("expected a retryable failure, got %v", err)
		}
		var ts store.Timestamps
		if err := db.First(&ts, "asin = ?", "B001").Error; !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected no timestamps, got %v (%+v)", err, ts)
		}
	})

	t.Run("open circuit ends the stage", func(t *testing.T) {
		repo, _ := openStore(t)
		open := apperrors.New(apperrors.ErrCodeServiceUnavailable, "amazon circuit is open").WithCause(resilience.ErrCircuitOpen)
		w := newTestWorker(&fakeVendor{err: open}, repo)

		err := w.InventorySupply(context.Background(), queue.Items("sku-1"))
		if !errors.Is(err, apperrors.ErrSourceExhausted) || !errors.Is(err, resilience.ErrCircuitOpen) {
			t.Errorf("expected source exhausted by the open circuit, got %v", err)
		}
	})
}

func TestWorkerWithClientTripsIntoSourceExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	repo, _ := openStore(t)
	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.CircuitBreaker = &resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute}
	})
	w := newTestWorker(c, repo)
	ctx := context.Background()

	for range 2 {
		err := w.CompetitivePricing(ctx, queue.Items("B001"))
		if err == nil || errors.Is(err, apperrors.ErrSourceExhausted) {
			t.Fatalf("expected a plain failure, got %v", err)
		}
	}
	if err := w.CompetitivePricing(ctx, queue.Items("B001")); !errors.Is(err, apperrors.ErrSourceExhausted) {
		t.Errorf("expected source exhausted once the circuit opens, got %v", err)
	}
}
