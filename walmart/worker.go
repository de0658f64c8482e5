package walmart

import (
	"context"
	"time"

	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/httpclient"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/scheduler"
	"github.com/kbukum/crossmatch/store"
)

// Operation names of the Walmart stages.
const (
	Op       = "wm"
	OpLookup = "wmLookup"
)

// quotaWindow is the rolling window DailyLimit applies to.
const quotaWindow = 24 * time.Hour

// Vendor is the Walmart API as the stages use it.
type Vendor interface {
	SearchSubcategory(ctx context.Context, fullID string) (*SearchResult, error)
	LookupItems(ctx context.Context, ids []int64) (*LookupResult, error)
}

// Repository is the part of the store the search stage writes to.
type Repository interface {
	UpsertWalmartItems(ctx context.Context, items []store.WalmartItem) error
	RecordQueries(ctx context.Context, at time.Time, n int) error
	QueriesSince(ctx context.Context, since time.Time) (int, error)
	TouchSubcategory(ctx context.Context, fullID, success string, numItems int, at time.Time) error
	MarkDuplicateUPCs(ctx context.Context) (int64, error)
}

// Worker runs the wm and wmLookup stages. Both count against the same
// daily limit. Work and Finish are called from the stage goroutine only.
type Worker struct {
	vendor     Vendor
	repo       Repository
	limit      int
	dedupEvery int
	batches    int
	now        func() time.Time
	log        *logger.Logger
}

// NewWorker creates the search stage worker.
func NewWorker(vendor Vendor, repo Repository, cfg Config) *Worker {
	cfg.ApplyDefaults()
	return &Worker{
		vendor:     vendor,
		repo:       repo,
		limit:      cfg.DailyLimit,
		dedupEvery: cfg.DedupEvery,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Get("walmart").WithComponent("worker"),
	}
}

// Operations returns the stage operations keyed by operation name.
func (w *Worker) Operations() map[string]scheduler.Operation {
	return map[string]scheduler.Operation{
		Op:       {Work: w.Work, Finish: w.Finish},
		OpLookup: {Work: w.Lookup},
	}
}

// Work searches each subcategory in batch. It returns a QUOTA_EXHAUSTED
// error, which ends the stage, once the daily limit is spent.
func (w *Worker) Work(ctx context.Context, batch []queue.Item) error {
	for _, it := range batch {
		if err := w.searchOne(ctx, string(it)); err != nil {
			return err
		}
	}
	w.batches++
	if w.dedupEvery > 0 && w.batches%w.dedupEvery == 0 {
		w.dedup(ctx)
	}
	return nil
}

// Finish flags duplicate UPCs so the match stage skips them.
func (w *Worker) Finish(ctx context.Context) error {
	_, err := w.dedup(ctx)
	return err
}

// Lookup fetches a batch of Walmart items by id and stores them, so items
// added by hand can be matched without being found by a search first.
func (w *Worker) Lookup(ctx context.Context, batch []queue.Item) error {
	ids, err := store.ParseWmIDs(batch)
	if err != nil {
		return apperrors.InvalidInput("wm_ids", err.Error())
	}
	used, err := w.checkQuota(ctx)
	if err != nil {
		return err
	}

	res, err := w.vendor.LookupItems(ctx, ids)
	at := w.now()
	if err != nil {
		if res != nil {
			w.recordSpent(ctx, at, res.Queries)
		}
		return err
	}
	for i := range res.Items {
		res.Items[i].Fetched = &at
	}
	if err := w.repo.UpsertWalmartItems(ctx, res.Items); err != nil {
		return err
	}
	if err := w.repo.RecordQueries(ctx, at, res.Queries); err != nil {
		return err
	}

	fields := logger.Fields(
		logger.FieldStage, OpLookup,
		"items", len(res.Items),
		"missing", res.Missing,
		"queries", res.Queries,
		"quota_used", used+res.Queries,
	)
	log := w.log.WithContext(ctx)
	switch {
	case res.Err != nil && len(res.Items) == 0:
		return httpclient.AppError("walmart", res.Err)
	case res.Err != nil:
		log.Warn("Walmart items partly looked up", logger.MergeWithError(fields, res.Err))
	case len(res.Missing) > 0:
		log.Warn("Walmart items not found", fields)
	default:
		log.Debug("Walmart items looked up", fields)
	}
	return nil
}

// checkQuota returns the calls spent in the last quotaWindow, or a
// QUOTA_EXHAUSTED error once they reach the daily limit.
func (w *Worker) checkQuota(ctx context.Context) (int, error) {
	used, err := w.repo.QueriesSince(ctx, w.now().Add(-quotaWindow))
	if err != nil {
		return 0, err
	}
	if used >= w.limit {
		return used, apperrors.QuotaExhausted("walmart", used, w.limit)
	}
	return used, nil
}

// recordSpent logs calls made by a failed request against the daily limit.
func (w *Worker) recordSpent(ctx context.Context, at time.Time, n int) {
	if err := w.repo.RecordQueries(context.WithoutCancel(ctx), at, n); err != nil {
		w.log.WithContext(ctx).Warn("Spent Walmart calls not recorded", logger.MergeWithError(
			logger.Fields("queries", n), err))
	}
}

func (w *Worker) searchOne(ctx context.Context, fullID string) error {
	used, err := w.checkQuota(ctx)
	if err != nil {
		return err
	}

	res, err := w.vendor.SearchSubcategory(ctx, fullID)
	at := w.now()
	if err != nil {
		if res != nil {
			w.recordSpent(ctx, at, res.Queries)
		}
		return err
	}

	for i := range res.Items {
		res.Items[i].Fetched = &at
	}
	if err := w.repo.UpsertWalmartItems(ctx, res.Items); err != nil {
		return err
	}
	if err := w.repo.RecordQueries(ctx, at, res.Queries); err != nil {
		return err
	}
	if err := w.repo.TouchSubcategory(ctx, fullID, res.Outcome, res.TotalResults, at); err != nil {
		return err
	}

	fields := logger.Fields(
		"subcategory", fullID,
		"outcome", res.Outcome,
		"total_results", res.TotalResults,
		"items", len(res.Items),
		"skipped", res.Skipped,
		"queries", res.Queries,
		"quota_used", used+res.Queries,
	)
	log := w.log.WithContext(ctx)
	switch {
	case res.Failed():
		return httpclient.AppError("walmart", res.Err)
	case res.Err != nil:
		log.Warn("Subcategory partly searched", logger.MergeWithError(fields, res.Err))
	default:
		log.Debug("Subcategory searched", fields)
	}
	return nil
}

func (w *Worker) dedup(ctx context.Context) (int64, error) {
	n, err := w.repo.MarkDuplicateUPCs(ctx)
	log := w.log.WithContext(ctx)
	if err != nil {
		log.Error("Duplicate UPC sweep failed", logger.ErrorFields("mark_duplicates", err))
		return 0, err
	}
	log.Info("Duplicate UPCs flagged", logger.Fields("flagged", n, "batches", w.batches))
	return n, nil
}
