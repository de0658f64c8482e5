package walmart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kbukum/crossmatch/httpclient"
	"github.com/kbukum/crossmatch/store"
)

// Search outcomes recorded on a subcategory. Error codes returned by the API
// are recorded as they are, joined with commas.
const (
	OutcomeSuccess   = "success"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomeNone      = "none"
	OutcomeNoResults = "totalResults_value_is_0"
	outcomeNoTotal   = "totalResults_tag_not_found"
)

// SearchResult is what searching one subcategory produced.
type SearchResult struct {
	Subcategory string
	Items       []store.WalmartItem
	// TotalResults is what the API reported, or zero when the subcategory
	// is unknown or empty.
	TotalResults int
	// Queries counts the page requests made, failed ones included.
	Queries int
	Outcome string
	// Err is the last transport failure, if any.
	Err error
	// Skipped counts items dropped for an unusable UPC.
	Skipped int
}

// Failed reports whether no page could be fetched at all.
func (r *SearchResult) Failed() bool { return r.Outcome == OutcomeFailed }

type apiItem struct {
	ItemID          int64               `json:"itemId"`
	Name            string              `json:"name"`
	SalePrice       decimal.NullDecimal `json:"salePrice"`
	UPC             string              `json:"upc"`
	CategoryPath    string              `json:"categoryPath"`
	Stock           string              `json:"stock"`
	AvailableOnline bool                `json:"availableOnline"`
	FreeShipping    bool                `json:"freeShippingOver35Dollars"`
}

type searchPage struct {
	TotalResults *int      `json:"totalResults"`
	Start        int       `json:"start"`
	NumItems     int       `json:"numItems"`
	Items        []apiItem `json:"items"`
}

type lookupPage struct {
	Items []apiItem `json:"items"`
}

// lookupChunk is the most ids the lookup endpoint takes per call.
const lookupChunk = 20

// LookupResult is what looking up a list of Walmart ids produced.
type LookupResult struct {
	Items []store.WalmartItem
	// Missing lists the ids the API returned nothing usable for.
	Missing []int64
	// Queries counts the calls made, failed ones included.
	Queries int
	// Err is the last failure of a chunk, if any.
	Err error
}

type apiErrors struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Client searches the Walmart catalog.
type Client struct {
	http *httpclient.Client
	cfg  Config
}

// NewClient creates a client from cfg. Requests are paced at
// cfg.RatePerSecond and retried on transient failures.
func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	retry := cfg.Retry
	if retry == nil {
		retry = httpclient.DefaultRetryConfig()
	}
	hc, err := httpclient.New(httpclient.Config{
		Name:          "walmart",
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		Auth:          httpclient.APIKeyAuthQuery(cfg.APIKey, "apiKey"),
		RatePerSecond: cfg.RatePerSecond,
		Retry:         retry,
	})
	if err != nil {
		return nil, fmt.Errorf("walmart client: %w", err)
	}
	return &Client{http: hc, cfg: cfg}, nil
}

// SearchSubcategory pages through the bestsellers of a subcategory until
// the reported total or MaxResults is reached. Failures of single pages end
// the paging and show in the outcome. Only cancellation is returned as an
// error.
func (c *Client) SearchSubcategory(ctx context.Context, fullID string) (*SearchResult, error) {
	res := &SearchResult{Subcategory: fullID}
	var (
		successes, failures int
		codes               []string
	)
	total := -1
	for start := 1; ; start += c.cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Queries++
		page, code, err := c.page(ctx, fullID, start)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			failures++
			res.Err = err
		case code != "":
			if !slices.Contains(codes, code) {
				codes = append(codes, code)
			}
		case *page.TotalResults == 0:
			codes = append(codes, OutcomeNoResults)
		default:
			successes++
			if total < 0 {
				total = *page.TotalResults
			}
			for _, it := range page.Items {
				item, ok := toItem(it, fullID)
				if !ok {
					res.Skipped++
					continue
				}
				res.Items = append(res.Items, item)
			}
		}
		if err != nil || code != "" || total <= 0 {
			break
		}
		if start-1+c.cfg.PageSize >= min(total, c.cfg.MaxResults) {
			break
		}
	}

	res.TotalResults = max(total, 0)
	switch {
	case len(codes) > 0:
		res.Outcome = strings.Join(codes, ",")
	case failures > 0 && successes > 0:
		res.Outcome = OutcomePartial
	case failures > 0:
		res.Outcome = OutcomeFailed
	case successes > 0:
		res.Outcome = OutcomeSuccess
	default:
		res.Outcome = OutcomeNone
	}
	return res, nil
}

// LookupItems fetches the given items by id, lookupChunk ids per call. A
// failed chunk is recorded in Err and its ids in Missing; only cancellation
// is returned as an error.
func (c *Client) LookupItems(ctx context.Context, ids []int64) (*LookupResult, error) {
	res := &LookupResult{}
	for chunk := range slices.Chunk(ids, lookupChunk) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Queries++
		found, err := c.lookup(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Err = err
		}
		for _, id := range chunk {
			item, ok := found[id]
			if !ok {
				res.Missing = append(res.Missing, id)
				continue
			}
			res.Items = append(res.Items, item)
		}
	}
	return res, nil
}

func (c *Client) lookup(ctx context.Context, ids []int64) (map[int64]store.WalmartItem, error) {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatInt(id, 10)
	}
	resp, err := c.http.Do(ctx, httpclient.Request{
		Path: "items",
		Query: map[string]string{
			"ids":    strings.Join(strs, ","),
			"format": "json",
		},
	})
	if err != nil {
		var herr *httpclient.Error
		if errors.As(err, &herr) && herr.StatusCode > 0 {
			if code := errorCode(herr.Body); code != "" {
				return nil, fmt.Errorf("lookup: api error %s", code)
			}
		}
		return nil, err
	}
	if code := errorCode(resp.Body); code != "" {
		return nil, fmt.Errorf("lookup: api error %s", code)
	}
	var page lookupPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("decode lookup page: %w", err)
	}
	found := make(map[int64]store.WalmartItem, len(page.Items))
	for _, it := range page.Items {
		if item, ok := toItem(it, ""); ok {
			found[item.WmID] = item
		}
	}
	return found, nil
}

// page fetches one page. An error code reported by the API is returned as
// code with a nil error.
func (c *Client) page(ctx context.Context, fullID string, start int) (*searchPage, string, error) {
	resp, err := c.http.Do(ctx, httpclient.Request{
		Path: "search",
		Query: map[string]string{
			"categoryId":    fullID,
			"query":         "*",
			"numItems":      strconv.Itoa(c.cfg.PageSize),
			"start":         strconv.Itoa(start),
			"sort":          "bestseller",
			"responseGroup": "full",
			"format":        "json",
		},
	})
	if err != nil {
		var herr *httpclient.Error
		if errors.As(err, &herr) && herr.StatusCode > 0 {
			if code := errorCode(herr.Body); code != "" {
				return nil, code, nil
			}
		}
		return nil, "", err
	}
	if code := errorCode(resp.Body); code != "" {
		return nil, code, nil
	}
	var page searchPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, "", fmt.Errorf("decode search page: %w", err)
	}
	if page.TotalResults == nil {
		return nil, outcomeNoTotal, nil
	}
	return &page, "", nil
}

func errorCode(body []byte) string {
	var e apiErrors
	if len(body) == 0 || json.Unmarshal(body, &e) != nil || len(e.Errors) == 0 {
		return ""
	}
	return strconv.Itoa(e.Errors[0].Code)
}

func toItem(it apiItem, fullID string) (store.WalmartItem, bool) {
	upc, ok := NormalizeUPC(it.UPC)
	if !ok || it.ItemID == 0 {
		return store.WalmartItem{}, false
	}
	path := it.CategoryPath
	if path == "" {
		path = fullID
	}
	return store.WalmartItem{
		WmID:     it.ItemID,
		UPC:      &upc,
		Name:     it.Name,
		Price:    it.SalePrice,
		Path:     path,
		InStock:  it.AvailableOnline && !strings.EqualFold(it.Stock, "Not available"),
		FreeShip: it.FreeShipping,
	}, true
}

// NormalizeUPC left-pads a numeric UPC to 12 digits. Codes that are not
// numeric or longer than 12 digits are rejected.
func NormalizeUPC(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 12 {
		return "", false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return strings.Repeat("0", 12-len(raw)) + raw, true
}
