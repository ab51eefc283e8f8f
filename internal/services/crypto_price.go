package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/models"
)

var (
	// ErrAborted is returned when a computation was cancelled or superseded;
	// its partial result has been discarded.
	ErrAborted = errors.New("aborted")
	// ErrPriceFeed is returned when the price feed failed for some ids.
	ErrPriceFeed = errors.New("price feed unavailable")
)

// PriceFeed looks up live prices. It is best effort: on failure the prices it
// could resolve, possibly last-known ones, are returned along with an error
// wrapping ErrPriceFeed.
type PriceFeed interface {
	Name() string
	// IDOf returns the id the feed knows coin by.
	IDOf(coin models.Coin) string
	GetPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// CoinGeckoFeed reads /simple/price. Calls are rate limited and every price
// it receives is kept as last-known for cacheTTL.
type CoinGeckoFeed struct {
	baseURL  string
	apiKey   string
	currency string
	client   *http.Client
	limiter  *rate.Limiter
	cache    *cache.Cache
}

type CoinGeckoConfig struct {
	BaseURL       string
	APIKey        string
	Currency      string
	RatePerSecond float64
	CacheTTL      time.Duration
	HTTPClient    *http.Client
}

func NewCoinGeckoFeed(cfg CoinGeckoConfig) *CoinGeckoFeed {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &CoinGeckoFeed{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		currency: strings.ToLower(cfg.Currency),
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

func (f *CoinGeckoFeed) Name() string { return "coingecko" }

func (f *CoinGeckoFeed) IDOf(coin models.Coin) string { return coin.CoinGeckoID }

func (f *CoinGeckoFeed) GetPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	fresh, err := f.fetch(ctx, ids)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}

	prices := make(map[string]decimal.Decimal, len(ids))
	var missing []string
	for _, id := range ids {
		if p, ok := fresh[id]; ok {
			prices[id] = p
			f.cache.SetDefault(id, p)
			continue
		}
		if cached, ok := f.cache.Get(id); ok {
			prices[id] = cached.(decimal.Decimal)
		}
		missing = append(missing, id)
	}

	if err != nil {
		return prices, fmt.Errorf("%w: %v", ErrPriceFeed, err)
	}
	if len(missing) > 0 {
		return prices, fmt.Errorf("%w: no %s price for %s", ErrPriceFeed, f.currency, strings.Join(missing, ", "))
	}
	return prices, nil
}

func (f *CoinGeckoFeed) fetch(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", f.currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coingecko returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode coingecko response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(result))
	for id, quotes := range result {
		if p, ok := quotes[f.currency]; ok {
			prices[id] = p
		}
	}
	logger.FromContext(ctx).Debug("coingecko prices fetched", "requested", len(ids), "received", len(prices))
	return prices, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
