package amazon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/httpclient"
	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/queue"
	"github.com/kbukum/crossmatch/resilience"
	"github.com/kbukum/crossmatch/scheduler"
	"github.com/kbukum/crossmatch/store"
)

// Operation names of the Amazon stages.
const (
	OpMatch              = "gmpfId"
	OpCompetitivePricing = "gcpfAsin"
	OpLowestOffers       = "glolfAsin"
	OpFees               = "gmfe"
	OpInventorySupply    = "lis"
)

// Vendor is the Amazon API as the stages use it.
type Vendor interface {
	MatchByID(ctx context.Context, idType string, ids []string) ([]IDMatch, error)
	CompetitivePricing(ctx context.Context, asins []string) ([]Pricing, error)
	LowestOffers(ctx context.Context, asins []string) ([]Offers, error)
	FeesEstimate(ctx context.Context, reqs []FeeRequest) ([]Fees, error)
	InventorySupply(ctx context.Context, skus []string) ([]Supply, error)
}

// Repository is the part of the store the Amazon stages read and write.
type Repository interface {
	WalmartItems(ctx context.Context, wmIDs []int64) ([]store.WalmartItem, error)
	MarkMatched(ctx context.Context, wmIDs []int64, at time.Time) error
	UpsertMatches(ctx context.Context, matches []store.Match) error
	UpdateCompetitivePricing(ctx context.Context, prices []store.CompetitivePrice) error
	UpdateLowestOffers(ctx context.Context, offers []store.LowestOffer) error
	UpdateFees(ctx context.Context, fees []store.FeeEstimate) error
	RecordTimestamps(ctx context.Context, asins []string, column store.TimestampColumn, at time.Time) error
	UpsertInventorySupply(ctx context.Context, supply []store.InventorySupply) error
	ListingPrices(ctx context.Context, asins []string) (map[string]decimal.Decimal, error)
}

// Worker holds the work functions of the Amazon stages.
//
// Every item of a batch is stamped once its call has been answered, with or
// without a usable result, so the backing queries stop returning it.
type Worker struct {
	vendor Vendor
	repo   Repository
	now    func() time.Time
	log    *logger.Logger
}

// NewWorker creates the worker.
func NewWorker(vendor Vendor, repo Repository) *Worker {
	return &Worker{
		vendor: vendor,
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Get("amazon").WithComponent("worker"),
	}
}

// Operations returns the stage operations keyed by operation name.
func (w *Worker) Operations() map[string]scheduler.Operation {
	return map[string]scheduler.Operation{
		OpMatch:              {Work: w.Match},
		OpCompetitivePricing: {Work: w.CompetitivePricing},
		OpLowestOffers:       {Work: w.LowestOffers},
		OpFees:               {Work: w.Fees},
		OpInventorySupply:    {Work: w.InventorySupply},
	}
}

// Match looks up the ASINs carrying the UPCs of a batch of Walmart items.
// Every item in the batch is marked matched, found or not.
func (w *Worker) Match(ctx context.Context, batch []queue.Item) error {
	ids, err := store.ParseWmIDs(batch)
	if err != nil {
		return err
	}
	items, err := w.repo.WalmartItems(ctx, ids)
	if err != nil {
		return err
	}
	byUPC := make(map[string]store.WalmartItem, len(items))
	upcs := make([]string, 0, len(items))
	for _, it := range items {
		if it.UPC == nil {
			continue
		}
		if _, ok := byUPC[*it.UPC]; !ok {
			upcs = append(upcs, *it.UPC)
		}
		byUPC[*it.UPC] = it
	}

	at := w.now()
	markAll := func(ctx context.Context) error { return w.repo.MarkMatched(ctx, ids, at) }
	if len(upcs) == 0 {
		return markAll(ctx)
	}
	results, err := w.vendor.MatchByID(ctx, "UPC", upcs)
	if err != nil {
		return w.failed(ctx, OpMatch, err, markAll)
	}

	var matches []store.Match
	var asins []string
	for _, r := range results {
		item, ok := byUPC[r.ID]
		if !ok || r.Status != statusSuccess {
			continue
		}
		for _, p := range r.Products {
			matches = append(matches, store.Match{
				ASIN:      p.ASIN,
				WmID:      item.WmID,
				UPC:       r.ID,
				Title:     p.Title,
				Brand:     p.Brand,
				WmPrice:   item.Price,
				FreeShip:  item.FreeShip,
				WmInStock: item.InStock,
				SalesRank: p.SalesRank,
			})
			asins = append(asins, p.ASIN)
		}
	}
	if err := w.repo.UpsertMatches(ctx, matches); err != nil {
		return err
	}
	if err := w.repo.RecordTimestamps(ctx, asins, store.ColMatchToAz, at); err != nil {
		return err
	}
	w.log.WithContext(ctx).Debug("UPCs matched", logger.Fields(
		logger.FieldStage, OpMatch,
		"upcs", len(upcs),
		"matches", len(matches),
	))
	return markAll(ctx)
}

// CompetitivePricing refreshes the competitive price and sales rank of a
// batch of ASINs.
func (w *Worker) CompetitivePricing(ctx context.Context, batch []queue.Item) error {
	asins := queue.Strings(batch)
	at := w.now()
	stamp := w.stamper(asins, store.ColAzCompPrice, at)
	results, err := w.vendor.CompetitivePricing(ctx, asins)
	if err != nil {
		return w.failed(ctx, OpCompetitivePricing, err, stamp)
	}
	prices := make([]store.CompetitivePrice, 0, len(results))
	for _, r := range results {
		if r.Status != statusSuccess {
			continue
		}
		prices = append(prices, store.CompetitivePrice{ASIN: r.ASIN, Price: r.Price, SalesRank: r.SalesRank})
	}
	if err := w.repo.UpdateCompetitivePricing(ctx, prices); err != nil {
		return err
	}
	return stamp(ctx)
}

// LowestOffers refreshes the lowest FBA and merchant offers of a batch of
// ASINs.
func (w *Worker) LowestOffers(ctx context.Context, batch []queue.Item) error {
	asins := queue.Strings(batch)
	at := w.now()
	stamp := w.stamper(asins, store.ColAzLowestOffer, at)
	results, err := w.vendor.LowestOffers(ctx, asins)
	if err != nil {
		return w.failed(ctx, OpLowestOffers, err, stamp)
	}
	offers := make([]store.LowestOffer, 0, len(results))
	for _, r := range results {
		if r.Status != statusSuccess {
			continue
		}
		offers = append(offers, store.LowestOffer{ASIN: r.ASIN, FBA: r.FBA, Merchant: r.Merchant})
	}
	if err := w.repo.UpdateLowestOffers(ctx, offers); err != nil {
		return err
	}
	return stamp(ctx)
}

// Fees estimates the fees of listing each ASIN at its listing price. ASINs
// without any price are stamped without a call.
func (w *Worker) Fees(ctx context.Context, batch []queue.Item) error {
	asins := queue.Strings(batch)
	at := w.now()
	stamp := w.stamper(asins, store.ColAzFees, at)
	prices, err := w.repo.ListingPrices(ctx, asins)
	if err != nil {
		return err
	}
	reqs := make([]FeeRequest, 0, len(prices))
	for _, asin := range asins {
		if p, ok := prices[asin]; ok {
			reqs = append(reqs, FeeRequest{ASIN: asin, Price: p})
		}
	}
	if len(reqs) > 0 {
		results, err := w.vendor.FeesEstimate(ctx, reqs)
		if err != nil {
			return w.failed(ctx, OpFees, err, stamp)
		}
		fees := make([]store.FeeEstimate, 0, len(results))
		for _, r := range results {
			if !r.Total.Valid {
				continue
			}
			fees = append(fees, store.FeeEstimate{
				ASIN:     r.ASIN,
				MyPrice:  decimal.NewNullDecimal(r.Price),
				FeeTotal: r.Total,
			})
		}
		if err := w.repo.UpdateFees(ctx, fees); err != nil {
			return err
		}
	}
	return stamp(ctx)
}

// InventorySupply stores the fulfillment-center stock of a batch of SKUs.
func (w *Worker) InventorySupply(ctx context.Context, batch []queue.Item) error {
	skus := queue.Strings(batch)
	results, err := w.vendor.InventorySupply(ctx, skus)
	if err != nil {
		return w.failed(ctx, OpInventorySupply, err, nil)
	}
	at := w.now()
	supply := make([]store.InventorySupply, 0, len(results))
	for _, r := range results {
		supply = append(supply, store.InventorySupply{
			SKU:        r.SKU,
			ASIN:       r.ASIN,
			FNSKU:      r.FNSKU,
			InStockQty: r.InStock,
			TotalQty:   r.Total,
			UpdatedAt:  at,
		})
	}
	return w.repo.UpsertInventorySupply(ctx, supply)
}

func (w *Worker) stamper(asins []string, col store.TimestampColumn, at time.Time) func(context.Context) error {
	return func(ctx context.Context) error {
		return w.repo.RecordTimestamps(ctx, asins, col, at)
	}
}

// failed settles a batch whose call failed. An open circuit ends the stage.
// A rejection that retrying cannot fix still stamps the batch, so the
// backing query does not hand it out again this run.
func (w *Worker) failed(ctx context.Context, op string, err error, stamp func(context.Context) error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrSourceExhausted, err)
	}
	appErr := httpclient.AppError("amazon", err)
	if appErr.Retryable || stamp == nil || ctx.Err() != nil {
		return appErr
	}
	if serr := stamp(ctx); serr != nil {
		w.log.WithContext(ctx).Error("Stamping rejected batch failed", logger.MergeWithError(
			logger.Fields(logger.FieldStage, op), serr))
	}
	return appErr
}
