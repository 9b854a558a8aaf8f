// Package adapter talks to the external product catalog API and classifies
// its responses into outcomes the pipeline can act on.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/resale-scanner/internal/config"
	"github.com/resale-scanner/internal/normalizer"
	"github.com/resale-scanner/internal/types"
)

// maxErrorBodyBytes caps how much of an upstream error body is kept for
// diagnostics.
const maxErrorBodyBytes = 500

// defaultRefill is assumed when neither the 429 body nor the config carries
// a refill hint.
const defaultRefill = 60 * time.Second

// BudgetRecorder is the shared token accounting for one catalog credential.
// The client records what every response reports and consults the budget
// before each request to warn when the credential is close to exhaustion.
// Implementations must tolerate recording failures silently.
type BudgetRecorder interface {
	Record(ctx context.Context, tokensLeft int, refillIn time.Duration)
	IsLow(ctx context.Context) (bool, error)
	SuggestedWait(ctx context.Context) (time.Duration, error)
}

// CatalogClient fetches product data from the catalog API. A single client
// paces all requests for one credential.
type CatalogClient struct {
	apiKey        string
	baseURL       string
	domain        int
	client        *http.Client
	limiter       *rate.Limiter
	budget        BudgetRecorder
	refillDefault time.Duration
}

// NewCatalogClient creates a catalog API client from config. budget may be
// nil when no shared token accounting is wanted.
func NewCatalogClient(cfg config.CatalogConfig, budget BudgetRecorder) *CatalogClient {
	refill := cfg.DefaultRefill
	if refill <= 0 {
		refill = defaultRefill
	}
	return &CatalogClient{
		apiKey:        cfg.APIKey,
		baseURL:       cfg.BaseURL,
		domain:        cfg.Domain,
		client:        &http.Client{Timeout: cfg.RequestTimeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerMin/60.0), 1),
		budget:        budget,
		refillDefault: refill,
	}
}

// ProductPayload is the raw product shape returned by the catalog API.
type ProductPayload struct {
	ASIN          string          `json:"asin"`
	Title         string          `json:"title"`
	Brand         string          `json:"brand"`
	Manufacturer  string          `json:"manufacturer"`
	CSV           [][]int         `json:"csv"`
	SalesRanks    map[string][]int `json:"salesRanks"`
	Stats         *StatsPayload   `json:"stats"`
	CategoryTree  []CategoryNode  `json:"categoryTree"`
	PackageWeight int             `json:"packageWeight"`
	AvailabilityAmazon *int       `json:"availabilityAmazon"`
}

// StatsPayload is the stats block returned when stats=N is requested.
type StatsPayload struct {
	Current         []int `json:"current"`
	SalesRankDrops30 int  `json:"salesRankDrops30"`
	SalesRankDrops90 int  `json:"salesRankDrops90"`
	TotalOfferCount  int  `json:"totalOfferCount"`
}

// CategoryNode is one level of the catalog's category tree.
type CategoryNode struct {
	CatID int64  `json:"catId"`
	Name  string `json:"name"`
}

// Price history slots in the csv array.
const (
	csvAmazonPrice = 0
	csvLowestNew   = 1
	csvUsedPrice   = 2
	csvOfferCount  = 3
	csvBuyBox      = 18
)

// Observation is the normalized view of one product the pipeline consumes.
type Observation struct {
	MarketplaceID  string
	Title          string
	Brand          string
	Category       string
	AmazonPrice    *int
	LowestNewPrice *int
	UsedPrice      *int
	BuyBoxPrice    *int
	OffersCount    int
	SalesRank      *int
	RankDrops30    int
	RankDrops90    int
	AmazonIsSeller bool
	PackageWeight  int
}

// FetchResult classifies one catalog call. RawPayload is the full response
// body on a found outcome, kept for the audit trail.
type FetchResult struct {
	Outcome    types.FetchOutcome
	Products   []Observation
	RefillIn   time.Duration
	StatusCode int
	ErrorBody  string
	RawPayload []byte
}

type catalogResponse struct {
	Products   []ProductPayload `json:"products"`
	TokensLeft int              `json:"tokensLeft"`
	RefillIn   int              `json:"refillIn"`
}

// LookupByCode resolves a source code (JAN/EAN) to catalog products.
func (c *CatalogClient) LookupByCode(ctx context.Context, code string) (*FetchResult, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("domain", fmt.Sprintf("%d", c.domain))
	params.Set("code", code)
	return c.fetch(ctx, params)
}

// FetchByID fetches full product detail, including 30-day stats, for a known
// marketplace id.
func (c *CatalogClient) FetchByID(ctx context.Context, marketplaceID string) (*FetchResult, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("domain", fmt.Sprintf("%d", c.domain))
	params.Set("asin", marketplaceID)
	params.Set("stats", "30")
	return c.fetch(ctx, params)
}

func (c *CatalogClient) fetch(ctx context.Context, params url.Values) (*FetchResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("catalog API key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("request pacing interrupted: %w", err)
	}

	c.warnIfBudgetLow(ctx)

	reqURL := fmt.Sprintf("%s/product?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		refill := parseRefillIn(body, c.refillDefault)
		log.Printf("[Catalog] Rate limited, refill in %v", refill)
		return &FetchResult{
			Outcome:    types.OutcomeRateLimited,
			RefillIn:   refill,
			StatusCode: resp.StatusCode,
		}, nil

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &FetchResult{
			Outcome:    types.OutcomeAPIError,
			StatusCode: resp.StatusCode,
			ErrorBody:  truncateBody(body),
		}, nil
	}

	var parsed catalogResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &FetchResult{
			Outcome:    types.OutcomeAPIError,
			StatusCode: resp.StatusCode,
			ErrorBody:  fmt.Sprintf("unparseable response: %s", truncateBody(body)),
		}, nil
	}

	if c.budget != nil {
		c.budget.Record(ctx, parsed.TokensLeft, time.Duration(parsed.RefillIn)*time.Millisecond)
	}

	// An empty product list on a 2xx means the code genuinely has no
	// catalog listing, not a transport failure.
	if len(parsed.Products) == 0 {
		return &FetchResult{
			Outcome:    types.OutcomeNotFound,
			StatusCode: resp.StatusCode,
		}, nil
	}

	observations := make([]Observation, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		observations = append(observations, convertProduct(p))
	}

	return &FetchResult{
		Outcome:    types.OutcomeFound,
		Products:   observations,
		StatusCode: resp.StatusCode,
		RawPayload: body,
	}, nil
}

// warnIfBudgetLow checks the shared budget before a request goes out. Purely
// advisory: a failed check never blocks the fetch.
func (c *CatalogClient) warnIfBudgetLow(ctx context.Context) {
	if c.budget == nil {
		return
	}
	low, err := c.budget.IsLow(ctx)
	if err != nil || !low {
		return
	}
	wait, err := c.budget.SuggestedWait(ctx)
	if err != nil || wait <= 0 {
		log.Printf("[Catalog] Token budget running low")
		return
	}
	log.Printf("[Catalog] Token budget exhausted, upstream refills in %v", wait)
}

// parseRefillIn extracts the refill hint from a 429 body, in milliseconds.
// fallback applies when the body carries no usable hint.
func parseRefillIn(body []byte, fallback time.Duration) time.Duration {
	var payload struct {
		RefillIn int `json:"refillIn"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.RefillIn <= 0 {
		return fallback
	}
	return time.Duration(payload.RefillIn) * time.Millisecond
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}
	return string(body)
}

// convertProduct flattens one raw catalog product into an Observation.
func convertProduct(p ProductPayload) Observation {
	obs := Observation{
		MarketplaceID: p.ASIN,
		Title:         p.Title,
		Brand:         p.Brand,
		PackageWeight: p.PackageWeight,
	}
	if obs.Brand == "" {
		obs.Brand = p.Manufacturer
	}

	if len(p.CategoryTree) > 0 {
		obs.Category = p.CategoryTree[0].Name
	}

	obs.AmazonPrice = latestPrice(p.CSV, csvAmazonPrice)
	obs.LowestNewPrice = latestPrice(p.CSV, csvLowestNew)
	obs.UsedPrice = latestPrice(p.CSV, csvUsedPrice)
	obs.BuyBoxPrice = latestPrice(p.CSV, csvBuyBox)

	if v := latestPrice(p.CSV, csvOfferCount); v != nil {
		obs.OffersCount = *v
	}

	// Stats trump price history when present: they already reflect the
	// requested window.
	if p.Stats != nil {
		obs.RankDrops30 = p.Stats.SalesRankDrops30
		obs.RankDrops90 = p.Stats.SalesRankDrops90
		if obs.OffersCount == 0 {
			obs.OffersCount = p.Stats.TotalOfferCount
		}
	}

	// The lowest-keyed rank series is the product's primary category rank.
	if series := primaryRankSeries(p.SalesRanks); series != nil {
		if v, ok := normalizer.ExtractLatestPrice(series); ok {
			obs.SalesRank = &v
		}
	}

	// availabilityAmazon >= 0 means Amazon itself lists the product; -1 or
	// absent means it does not.
	obs.AmazonIsSeller = p.AvailabilityAmazon != nil && *p.AvailabilityAmazon >= 0

	return obs
}

// primaryRankSeries picks the rank series with the smallest category key so
// the choice is stable across calls.
func primaryRankSeries(ranks map[string][]int) []int {
	var bestKey string
	var best []int
	for key, series := range ranks {
		if best == nil || key < bestKey {
			bestKey = key
			best = series
		}
	}
	return best
}

func latestPrice(csv [][]int, slot int) *int {
	if slot >= len(csv) {
		return nil
	}
	if v, ok := normalizer.ExtractLatestPrice(csv[slot]); ok {
		return &v
	}
	return nil
}
