package walmart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/resilience"
	"github.com/kbukum/crossmatch/store"
	"github.com/kbukum/crossmatch/testutil"
)

func TestMain(m *testing.M) {
	logger.SetGlobalLogger(logger.NewNop())
	os.Exit(m.Run())
}

// catalog fakes the search and lookup endpoints. Subcategory "1_2" holds
// total items with ids 1..total; "9_9" is unknown; "0_0" is empty; "5_5"
// always fails. Lookups know every id up to total; a chunk holding id 503
// fails and one holding 400 is rejected with an API error.
type catalog struct {
	total    int
	requests atomic.Int32
	apiKeys  atomic.Int32
	lookups  atomic.Int32
}

func (c *catalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.requests.Add(1)
	q := r.URL.Query()
	if q.Get("apiKey") == "secret" {
		c.apiKeys.Add(1)
	}
	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/items") {
		c.lookup(w, strings.Split(q.Get("ids"), ","))
		return
	}
	switch q.Get("categoryId") {
	case "9_9":
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":4003,"message":"Invalid categoryId"}]}`))
		return
	case "0_0":
		_, _ = w.Write([]byte(`{"query":"*","totalResults":0,"start":1,"numItems":0,"items":[]}`))
		return
	case "5_5":
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	start, _ := strconv.Atoi(q.Get("start"))
	size, _ := strconv.Atoi(q.Get("numItems"))
	var items []map[string]any
	for id := start; id < start+size && id <= c.total; id++ {
		items = append(items, apiItemJSON(id))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"query":        "*",
		"totalResults": c.total,
		"start":        start,
		"numItems":     len(items),
		"items":        items,
	})
}

func (c *catalog) lookup(w http.ResponseWriter, ids []string) {
	c.lookups.Add(1)
	if slices.Contains(ids, "503") {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if slices.Contains(ids, "400") {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":4002,"message":"Invalid itemId"}]}`))
		return
	}
	items := []map[string]any{}
	for _, raw := range ids {
		if id, err := strconv.Atoi(raw); err == nil && id >= 1 && id <= c.total {
			items = append(items, apiItemJSON(id))
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
}

// apiItemJSON renders item id. Item 3 has no usable UPC and item 4 shares
// the UPC of item 1.
func apiItemJSON(id int) map[string]any {
	upc := strconv.Itoa(500000 + id)
	switch id {
	case 3:
		upc = "ABC123"
	case 4:
		upc = strconv.Itoa(500000 + 1)
	}
	return map[string]any{
		"itemId":                    id,
		"name":                      fmt.Sprintf("item %d", id),
		"salePrice":                 9.5,
		"upc":                       upc,
		"categoryPath":              "Toys/Blocks",
		"stock":                     "Available",
		"availableOnline":           true,
		"freeShippingOver35Dollars": id%2 == 0,
	}
}

func newClient(t *testing.T, srv *httptest.Server, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:       srv.URL,
		APIKey:        "secret",
		RatePerSecond: 1000,
		Retry:         &resilience.RetryConfig{MaxAttempts: 1},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func openStore(t *testing.T) (*store.Repository, *gorm.DB) {
	t.Helper()
	db := testutil.OpenStore(t)
	for _, id := range []string{"1_2", "9_9", "0_0", "5_5"} {
		if err := db.Create(&store.Subcategory{FullID: id, Active: true}).Error; err != nil {
			t.Fatalf("seed subcategory %s: %v", id, err)
		}
	}
	return store.NewRepository(db), db
}

func subcategory(t *testing.T, db *gorm.DB, fullID string) store.Subcategory {
	t.Helper()
	var sc store.Subcategory
	if err := db.First(&sc, "full_id = ?", fullID).Error; err != nil {
		t.Fatalf("load subcategory %s: %v", fullID, err)
	}
	return sc
}

func TestNormalizeUPC(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"012345678905", "012345678905", true},
		{"12345", "000000012345", true},
		{" 42 ", "000000000042", true},
		{"", "", false},
		{"1234567890123", "", false},
		{"12-345", "", false},
	}
	for _, tc := range tests {
		got, ok := NormalizeUPC(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeUPC(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.DailyLimit != 4750 || cfg.PageSize != 25 || cfg.MaxResults != 1000 {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	cfg.PageSize = 40
	if cfg.Validate() == nil {
		t.Error("expected a page size above 25 to be rejected")
	}
	cfg.PageSize, cfg.MaxResults = 25, 10
	if cfg.Validate() == nil {
		t.Error("expected max results below the page size to be rejected")
	}
}

func TestSearchPagesUntilTotal(t *testing.T) {
	cat := &catalog{total: 30}
	srv := httptest.NewServer(cat)
	defer srv.Close()

	res, err := newClient(t, srv).SearchSubcategory(context.Background(), "1_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.TotalResults != 30 || res.Queries != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Skipped != 1 || len(res.Items) != 29 {
		t.Errorf("item 3 has no usable UPC: skipped %d, items %d", res.Skipped, len(res.Items))
	}
	if n := cat.apiKeys.Load(); n != 2 {
		t.Errorf("expected the api key on both pages, got %d", n)
	}

	first := res.Items[0]
	if first.WmID != 1 || *first.UPC != "000000500001" || first.Path != "Toys/Blocks" {
		t.Errorf("unexpected first item %+v", first)
	}
	if !first.InStock || first.FreeShip || first.Price.Decimal.String() != "9.5" {
		t.Errorf("unexpected stock, shipping or price on %+v", first)
	}
}

func TestSearchStopsAtMaxResults(t *testing.T) {
	cat := &catalog{total: 500}
	srv := httptest.NewServer(cat)
	defer srv.Close()

	c := newClient(t, srv, func(cfg *Config) { cfg.PageSize, cfg.MaxResults = 10, 30 })
	res, err := c.SearchSubcategory(context.Background(), "1_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Queries != 3 || res.TotalResults != 500 {
		t.Errorf("expected 3 pages of 500 results, got %d pages of %d", res.Queries, res.TotalResults)
	}
}

func TestSearchOutcomes(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 30})
	defer srv.Close()
	c := newClient(t, srv)

	tests := []struct {
		subcat  string
		outcome string
	}{
		{"9_9", "4003"},
		{"0_0", OutcomeNoResults},
		{"5_5", OutcomeFailed},
	}
	for _, tc := range tests {
		t.Run(tc.subcat, func(t *testing.T) {
			res, err := c.SearchSubcategory(context.Background(), tc.subcat)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Outcome != tc.outcome {
				t.Errorf("expected outcome %q, got %q", tc.outcome, res.Outcome)
			}
			if res.TotalResults != 0 || res.Queries != 1 || len(res.Items) != 0 {
				t.Errorf("unexpected result %+v", res)
			}
			if res.Failed() != (tc.outcome == OutcomeFailed) {
				t.Errorf("Failed() = %v for outcome %q", res.Failed(), res.Outcome)
			}
		})
	}
}

func TestSearchCancelled(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 30})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newClient(t, srv).SearchSubcategory(ctx, "1_2"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLookupItemsChunksIDs(t *testing.T) {
	cat := &catalog{total: 30}
	srv := httptest.NewServer(cat)
	defer srv.Close()

	ids := make([]int64, 0, 25)
	for id := range int64(25) {
		ids = append(ids, id+1)
	}
	ids = append(ids, 90)

	res, err := newClient(t, srv).LookupItems(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Queries != 2 || cat.lookups.Load() != 2 {
		t.Errorf("expected 26 ids in 2 calls, got %d (served %d)", res.Queries, cat.lookups.Load())
	}
	if res.Err != nil {
		t.Errorf("unexpected chunk error: %v", res.Err)
	}
	// 3 has no usable UPC and 90 is unknown.
	if !slices.Equal(res.Missing, []int64{3, 90}) {
		t.Errorf("expected missing [3 90], got %v", res.Missing)
	}
	if len(res.Items) != 24 {
		t.Fatalf("expected 24 items, got %d", len(res.Items))
	}
	first := res.Items[0]
	if first.WmID != 1 || *first.UPC != "000000500001" || first.Path != "Toys/Blocks" || !first.InStock {
		t.Errorf("unexpected first item %+v", first)
	}
}

func TestLookupItemsFailedChunk(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 600})
	defer srv.Close()
	c := newClient(t, srv)

	ids := []int64{1, 2}
	for id := range int64(lookupChunk) {
		ids = append(ids, 490+id)
	}

	res, err := c.LookupItems(context.Background(), ids)
	if err != nil {
		t.Fatalf("only cancellation is returned, got %v", err)
	}
	if res.Queries != 2 || res.Err == nil {
		t.Fatalf("expected the second chunk to fail, got %+v", res)
	}
	// The first chunk holds 1, 2 and 490..507, so 503 takes it down.
	if len(res.Missing) != lookupChunk || !slices.Equal(itemIDs(res.Items), []int64{508, 509}) {
		t.Errorf("expected the first chunk missing and 508, 509 stored, got %v and %d missing", itemIDs(res.Items), len(res.Missing))
	}

	res, err = c.LookupItems(context.Background(), []int64{400, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "4002") {
		t.Errorf("expected the API error code, got %v", res.Err)
	}
	if !slices.Equal(res.Missing, []int64{400, 1}) {
		t.Errorf("expected both ids missing, got %v", res.Missing)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.LookupItems(ctx, []int64{1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func itemIDs(items []store.WalmartItem) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.WmID
	}
	return ids
}

func newWorker(t *testing.T, srv *httptest.Server, repo Repository, cfg Config) *Worker {
	t.Helper()
	return fixedClock(NewWorker(newClient(t, srv), repo, cfg))
}

func fixedClock(w *Worker) *Worker {
	fixed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	return w
}

// captureLog points the worker's logger at a buffer.
func captureLog(w *Worker) *bytes.Buffer {
	var buf bytes.Buffer
	w.log = logger.NewWithWriter(&logger.Config{Level: "debug", Format: logger.FormatJSON}, "crossmatch", &buf)
	return &buf
}

func TestWorkerStoresItemsAndTouchesSubcategories(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 30})
	defer srv.Close()
	repo, db := openStore(t)
	w := newWorker(t, srv, repo, Config{DedupEvery: -1})
	ctx := context.Background()

	if err := w.Work(ctx, queue.Items("1_2", "9_9", "0_0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := repo.WalmartItems(ctx, []int64{1, 2, 3, 4, 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("item 3 was skipped, expected 4 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Fetched == nil || !it.Fetched.Equal(w.now()) {
			t.Errorf("item %d: expected fetched at %v, got %v", it.WmID, w.now(), it.Fetched)
		}
	}

	used, err := repo.QueriesSince(ctx, w.now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != 4 {
		t.Errorf("two pages plus one call per dead subcategory, got %d", used)
	}

	for id, want := range map[string]string{"1_2": OutcomeSuccess, "9_9": "4003", "0_0": OutcomeNoResults} {
		sc := subcategory(t, db, id)
		if sc.Success != want {
			t.Errorf("%s: expected outcome %q, got %q", id, want, sc.Success)
		}
		if sc.LastSearched == nil || !sc.LastSearched.Equal(w.now()) {
			t.Errorf("%s: expected searched at %v, got %v", id, w.now(), sc.LastSearched)
		}
	}
	if n := subcategory(t, db, "1_2").NumItems; n != 30 {
		t.Errorf("expected 30 items on 1_2, got %d", n)
	}
	if n := subcategory(t, db, "9_9").NumItems; n != 0 {
		t.Errorf("expected no items on 9_9, got %d", n)
	}
}

func TestWorkerFinishFlagsDuplicates(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 30})
	defer srv.Close()
	repo, _ := openStore(t)
	w := newWorker(t, srv, repo, Config{DedupEvery: -1})
	ctx := context.Background()

	if err := w.Work(ctx, queue.Items("1_2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Finish(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := repo.WalmartItems(ctx, []int64{1, 2, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	// Items 1 and 4 share a UPC.
	if !items[0].Dup || items[1].Dup || !items[2].Dup {
		t.Errorf("unexpected dup flags %v %v %v", items[0].Dup, items[1].Dup, items[2].Dup)
	}
}

func TestWorkerSweepsEveryDedupEveryBatches(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 30})
	defer srv.Close()
	repo, _ := openStore(t)
	w := newWorker(t, srv, repo, Config{DedupEvery: 1})
	ctx := context.Background()

	if err := w.Work(ctx, queue.Items("1_2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, err := repo.WalmartItems(ctx, []int64{4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || !items[0].Dup {
		t.Errorf("expected item 4 flagged after the batch, got %+v", items)
	}
}

func TestWorkerStopsAtDailyLimit(t *testing.T) {
	cat := &catalog{total: 30}
	srv := httptest.NewServer(cat)
	defer srv.Close()
	repo, _ := openStore(t)
	w := newWorker(t, srv, repo, Config{DailyLimit: 10, DedupEvery: -1})
	ctx := context.Background()
	if err := repo.RecordQueries(ctx, w.now().Add(-time.Hour), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, work := range map[string]func() error{
		"search": func() error { return w.Work(ctx, queue.Items("1_2")) },
		"lookup": func() error { return w.Lookup(ctx, queue.Items("1")) },
	} {
		err := work()
		if !errors.Is(err, apperrors.ErrSourceExhausted) || !apperrors.HasCode(err, apperrors.ErrCodeQuotaExhausted) {
			t.Errorf("%s: expected quota exhausted, got %v", name, err)
		}
	}
	if n := cat.requests.Load(); n != 0 {
		t.Errorf("expected no calls past the limit, got %d", n)
	}
}

func TestWorkerFailedSearchStillTouchesSubcategory(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 30})
	defer srv.Close()
	repo, db := openStore(t)
	w := newWorker(t, srv, repo, Config{DedupEvery: -1})
	ctx := context.Background()

	err := w.Work(ctx, queue.Items("5_5"))
	if !apperrors.HasCode(err, apperrors.ErrCodeExternalService) {
		t.Fatalf("expected an external service error, got %v", err)
	}

	used, err := repo.QueriesSince(ctx, w.now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != 1 {
		t.Errorf("expected the failed call counted, got %d", used)
	}
	sc := subcategory(t, db, "5_5")
	// Not a dead outcome, so the next run searches it again.
	if sc.Success != OutcomeFailed || sc.LastSearched == nil {
		t.Errorf("unexpected subcategory %+v", sc)
	}
}

func TestWorkerLookupStoresItems(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 30})
	defer srv.Close()
	repo, _ := openStore(t)
	w := newWorker(t, srv, repo, Config{})
	logs := captureLog(w)
	ctx := context.Background()

	if err := w.Lookup(ctx, queue.Items("2", "3", "77")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := repo.WalmartItems(ctx, []int64{2, 3, 77})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].WmID != 2 {
		t.Fatalf("expected only item 2 stored, got %+v", items)
	}
	if items[0].Fetched == nil || !items[0].Fetched.Equal(w.now()) {
		t.Errorf("expected fetched at %v, got %v", w.now(), items[0].Fetched)
	}
	if used, _ := repo.QueriesSince(ctx, w.now().Add(-time.Hour)); used != 1 {
		t.Errorf("expected one call counted, got %d", used)
	}
	if !strings.Contains(logs.String(), "Walmart items not found") {
		t.Errorf("expected the missing ids logged, got %s", logs)
	}
}

func TestWorkerLookupFailure(t *testing.T) {
	srv := httptest.NewServer(&catalog{total: 600})
	defer srv.Close()
	repo, _ := openStore(t)
	w := newWorker(t, srv, repo, Config{})
	ctx := context.Background()

	err := w.Lookup(ctx, queue.Items("503"))
	if !apperrors.HasCode(err, apperrors.ErrCodeExternalService) {
		t.Fatalf("expected an external service error, got %v", err)
	}
	if used, _ := repo.QueriesSince(ctx, w.now().Add(-time.Hour)); used != 1 {
		t.Errorf("a failed call still counts against the limit, got %d", used)
	}

	if err := w.Lookup(ctx, queue.Items("x")); !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

// cancelledVendor answers every call with calls spent and a cancellation.
type cancelledVendor struct{ queries int }

func (v cancelledVendor) SearchSubcategory(context.Context, string) (*SearchResult, error) {
	return &SearchResult{Queries: v.queries}, context.Canceled
}

func (v cancelledVendor) LookupItems(context.Context, []int64) (*LookupResult, error) {
	return &LookupResult{Queries: v.queries}, context.Canceled
}

// brokenLog fails every write to the query log.
type brokenLog struct {
	*store.Repository
	err error
}

func (r brokenLog) RecordQueries(context.Context, time.Time, int) error { return r.err }

func TestWorkerRecordsSpentCallsOnCancel(t *testing.T) {
	repo, _ := openStore(t)
	w := fixedClock(NewWorker(cancelledVendor{queries: 2}, repo, Config{}))
	ctx := context.Background()

	if err := w.Work(ctx, queue.Items("1_2")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := w.Lookup(ctx, queue.Items("1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if used, _ := repo.QueriesSince(ctx, w.now().Add(-time.Hour)); used != 4 {
		t.Errorf("expected the spent calls counted, got %d", used)
	}
}

func TestWorkerLogsUnrecordedCalls(t *testing.T) {
	repo, _ := openStore(t)
	logErr := errors.New("disk I/O error")
	w := fixedClock(NewWorker(cancelledVendor{queries: 3}, brokenLog{Repository: repo, err: logErr}, Config{}))
	logs := captureLog(w)

	err := w.Work(context.Background(), queue.Items("1_2"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("the search error is returned, got %v", err)
	}
	out := logs.String()
	if !strings.Contains(out, "Spent Walmart calls not recorded") || !strings.Contains(out, logErr.Error()) {
		t.Errorf("expected the lost calls logged with the cause, got %s", out)
	}
	if !strings.Contains(out, `"queries":3`) {
		t.Errorf("expected the call count logged, got %s", out)
	}
}
