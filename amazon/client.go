package amazon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/httpclient"
)

const statusSuccess = "Success"

// Product is a catalog listing returned by an identifier match.
type Product struct {
	ASIN      string `json:"ASIN"`
	Title     string `json:"Title"`
	Brand     string `json:"Brand"`
	SalesRank *int   `json:"SalesRank"`
}

// IDMatch is the match result for one identifier.
type IDMatch struct {
	ID       string    `json:"Id"`
	IDType   string    `json:"IdType"`
	Status   string    `json:"status"`
	Products []Product `json:"Products"`
}

// Pricing is the competitive price and best sales rank of an ASIN. Price is
// null when the ASIN has no competitive new offer.
type Pricing struct {
	ASIN      string
	Status    string
	Price     decimal.NullDecimal
	SalesRank *int
}

// Offers are the lowest new landed prices per fulfillment channel.
type Offers struct {
	ASIN     string
	Status   string
	FBA      decimal.NullDecimal
	Merchant decimal.NullDecimal
}

// FeeRequest asks for the fees of listing ASIN at Price.
type FeeRequest struct {
	ASIN  string
	Price decimal.Decimal
}

// Fees is a fee estimate. Total is null when the estimate failed.
type Fees struct {
	ASIN   string
	Price  decimal.Decimal
	Status string
	Total  decimal.NullDecimal
}

// Supply is the fulfillment-center stock of a seller SKU.
type Supply struct {
	SKU     string
	ASIN    string
	FNSKU   string
	InStock int
	Total   int
}

type money struct {
	CurrencyCode string          `json:"CurrencyCode"`
	Amount       decimal.Decimal `json:"Amount"`
}

type pricingPayload struct {
	Payload []struct {
		ASIN    string `json:"ASIN"`
		Status  string `json:"status"`
		Product struct {
			CompetitivePricing struct {
				CompetitivePrices []struct {
					CompetitivePriceID string `json:"CompetitivePriceId"`
					Condition          string `json:"condition"`
					Price              struct {
						LandedPrice *money `json:"LandedPrice"`
					} `json:"Price"`
				} `json:"CompetitivePrices"`
			} `json:"CompetitivePricing"`
			SalesRankings []struct {
				Rank int `json:"Rank"`
			} `json:"SalesRankings"`
		} `json:"Product"`
	} `json:"payload"`
}

type offersPayload struct {
	Payload []struct {
		ASIN         string `json:"ASIN"`
		Status       string `json:"status"`
		LowestPrices []struct {
			Condition          string `json:"condition"`
			FulfillmentChannel string `json:"fulfillmentChannel"`
			LandedPrice        *money `json:"LandedPrice"`
		} `json:"LowestPrices"`
	} `json:"payload"`
}

type feesRequest struct {
	FeesEstimateRequest feesEstimateRequest `json:"FeesEstimateRequest"`
	IDType              string              `json:"IdType"`
	IDValue             string              `json:"IdValue"`
}

type feesEstimateRequest struct {
	MarketplaceID       string `json:"MarketplaceId"`
	IsAmazonFulfilled   bool   `json:"IsAmazonFulfilled"`
	Identifier          string `json:"Identifier"`
	PriceToEstimateFees struct {
		ListingPrice money `json:"ListingPrice"`
	} `json:"PriceToEstimateFees"`
}

type feesResult struct {
	Status                 string `json:"Status"`
	FeesEstimateIdentifier struct {
		IDValue string `json:"IdValue"`
	} `json:"FeesEstimateIdentifier"`
	FeesEstimate *struct {
		TotalFeesEstimate *money `json:"TotalFeesEstimate"`
	} `json:"FeesEstimate"`
}

type supplyPayload struct {
	Payload struct {
		InventorySummaries []struct {
			ASIN             string `json:"asin"`
			FNSKU            string `json:"fnSku"`
			SellerSKU        string `json:"sellerSku"`
			TotalQuantity    int    `json:"totalQuantity"`
			InventoryDetails struct {
				FulfillableQuantity int `json:"fulfillableQuantity"`
			} `json:"inventoryDetails"`
		} `json:"inventorySummaries"`
	} `json:"payload"`
}

// Client calls the selling partner API. Throttling is left to the stage
// buckets. The client only retries transient failures and trips its
// circuit breaker when the API keeps failing.
type Client struct {
	http *httpclient.Client
	cfg  Config
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	retry, breaker := cfg.Retry, cfg.CircuitBreaker
	if retry == nil {
		retry = httpclient.DefaultRetryConfig()
	}
	if breaker == nil {
		breaker = httpclient.DefaultCircuitBreakerConfig("amazon")
	}
	hc, err := httpclient.New(httpclient.Config{
		Name:           "amazon",
		BaseURL:        cfg.BaseURL,
		Timeout:        cfg.Timeout,
		Auth:           httpclient.APIKeyAuthHeader(cfg.AccessToken, "x-amz-access-token"),
		Headers:        map[string]string{"Accept": "application/json"},
		Retry:          retry,
		CircuitBreaker: breaker,
		TLS:            cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("amazon client: %w", err)
	}
	return &Client{http: hc, cfg: cfg}, nil
}

// MatchByID looks up the listings carrying each identifier, such as a UPC.
func (c *Client) MatchByID(ctx context.Context, idType string, ids []string) ([]IDMatch, error) {
	body := map[string]any{
		"MarketplaceId": c.cfg.MarketplaceID,
		"IdType":        idType,
		"Ids":           ids,
	}
	var out struct {
		Payload []IDMatch `json:"payload"`
	}
	if err := c.call(ctx, http.MethodPost, "/catalog/v0/matches", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Payload, nil
}

// CompetitivePricing returns the new buy box price and best sales rank of
// each ASIN.
func (c *Client) CompetitivePricing(ctx context.Context, asins []string) ([]Pricing, error) {
	var out pricingPayload
	query := map[string]string{
		"MarketplaceId": c.cfg.MarketplaceID,
		"ItemType":      "Asin",
		"Asins":         strings.Join(asins, ","),
	}
	if err := c.call(ctx, http.MethodGet, "/products/pricing/v0/competitivePrice", query, nil, &out); err != nil {
		return nil, err
	}
	result := make([]Pricing, 0, len(out.Payload))
	for _, p := range out.Payload {
		pr := Pricing{ASIN: p.ASIN, Status: p.Status}
		for _, cp := range p.Product.CompetitivePricing.CompetitivePrices {
			if cp.Price.LandedPrice == nil || !strings.EqualFold(cp.Condition, "new") {
				continue
			}
			pr.Price = decimal.NewNullDecimal(cp.Price.LandedPrice.Amount)
			if cp.CompetitivePriceID == "1" {
				break
			}
		}
		for _, r := range p.Product.SalesRankings {
			if pr.SalesRank == nil || r.Rank < *pr.SalesRank {
				rank := r.Rank
				pr.SalesRank = &rank
			}
		}
		result = append(result, pr)
	}
	return result, nil
}

// LowestOffers returns the lowest new landed price per fulfillment channel
// of each ASIN.
func (c *Client) LowestOffers(ctx context.Context, asins []string) ([]Offers, error) {
	var out offersPayload
	query := map[string]string{
		"MarketplaceId": c.cfg.MarketplaceID,
		"ItemCondition": "New",
		"Asins":         strings.Join(asins, ","),
	}
	if err := c.call(ctx, http.MethodGet, "/products/pricing/v0/lowestOffers", query, nil, &out); err != nil {
		return nil, err
	}
	result := make([]Offers, 0, len(out.Payload))
	for _, p := range out.Payload {
		o := Offers{ASIN: p.ASIN, Status: p.Status}
		for _, lp := range p.LowestPrices {
			if lp.LandedPrice == nil || !strings.EqualFold(lp.Condition, "new") {
				continue
			}
			target := &o.Merchant
			if strings.EqualFold(lp.FulfillmentChannel, "Amazon") {
				target = &o.FBA
			}
			if !target.Valid || lp.LandedPrice.Amount.LessThan(target.Decimal) {
				*target = decimal.NewNullDecimal(lp.LandedPrice.Amount)
			}
		}
		result = append(result, o)
	}
	return result, nil
}

// FeesEstimate estimates the total fees of listing each ASIN at its price.
func (c *Client) FeesEstimate(ctx context.Context, reqs []FeeRequest) ([]Fees, error) {
	body := make([]feesRequest, len(reqs))
	prices := make(map[string]decimal.Decimal, len(reqs))
	for i, r := range reqs {
		est := feesEstimateRequest{
			MarketplaceID:     c.cfg.MarketplaceID,
			IsAmazonFulfilled: c.cfg.FulfilledByAmazon,
			Identifier:        r.ASIN,
		}
		est.PriceToEstimateFees.ListingPrice = money{CurrencyCode: c.cfg.Currency, Amount: r.Price}
		body[i] = feesRequest{FeesEstimateRequest: est, IDType: "ASIN", IDValue: r.ASIN}
		prices[r.ASIN] = r.Price
	}
	var out []feesResult
	if err := c.call(ctx, http.MethodPost, "/products/fees/v0/feesEstimate", nil, body, &out); err != nil {
		return nil, err
	}
	result := make([]Fees, 0, len(out))
	for _, r := range out {
		asin := r.FeesEstimateIdentifier.IDValue
		f := Fees{ASIN: asin, Price: prices[asin], Status: r.Status}
		if r.Status == statusSuccess && r.FeesEstimate != nil && r.FeesEstimate.TotalFeesEstimate != nil {
			f.Total = decimal.NewNullDecimal(r.FeesEstimate.TotalFeesEstimate.Amount)
		}
		result = append(result, f)
	}
	return result, nil
}

// InventorySupply returns the fulfillment-center stock of each seller SKU.
func (c *Client) InventorySupply(ctx context.Context, skus []string) ([]Supply, error) {
	var out supplyPayload
	query := map[string]string{
		"details":         "true",
		"granularityType": "Marketplace",
		"granularityId":   c.cfg.MarketplaceID,
		"marketplaceIds":  c.cfg.MarketplaceID,
		"sellerSkus":      strings.Join(skus, ","),
	}
	if err := c.call(ctx, http.MethodGet, "/fba/inventory/v1/summaries", query, nil, &out); err != nil {
		return nil, err
	}
	result := make([]Supply, 0, len(out.Payload.InventorySummaries))
	for _, s := range out.Payload.InventorySummaries {
		result = append(result, Supply{
			SKU:     s.SellerSKU,
			ASIN:    s.ASIN,
			FNSKU:   s.FNSKU,
			InStock: s.InventoryDetails.FulfillableQuantity,
			Total:   s.TotalQuantity,
		})
	}
	return result, nil
}

// call sends one request and decodes the body into out. A body that cannot
// be decoded is a permanent failure.
func (c *Client) call(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	resp, err := c.http.Do(ctx, httpclient.Request{Method: method, Path: path, Query: query, Body: body})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		appErr := apperrors.ExternalServiceError("amazon", fmt.Errorf("decode %s: %w", path, err))
		appErr.Retryable = false
		return appErr
	}
	return nil
}
