package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/models"
)

// BinanceFeed prices coins against a Binance quote asset, e.g. BTC as BTCUSDT.
type BinanceFeed struct {
	client *binance.Client
	quote  string
}

// NewBinanceFeed builds a feed on the public ticker endpoint. baseURL may be
// empty to use Binance's default.
func NewBinanceFeed(quote, baseURL string) *BinanceFeed {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceFeed{client: client, quote: strings.ToUpper(quote)}
}

func (f *BinanceFeed) Name() string { return "binance" }

func (f *BinanceFeed) IDOf(coin models.Coin) string {
	return strings.ToUpper(coin.Symbol) + f.quote
}

func (f *BinanceFeed) GetPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	res, err := f.client.NewListPricesService().Symbols(ids).Do(ctx)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}
	if err != nil {
		return map[string]decimal.Decimal{}, fmt.Errorf("%w: binance: %v", ErrPriceFeed, err)
	}

	prices := make(map[string]decimal.Decimal, len(res))
	for _, sp := range res {
		p, err := decimal.NewFromString(sp.Price)
		if err != nil {
			continue
		}
		prices[sp.Symbol] = p
	}
	if len(prices) < len(ids) {
		return prices, fmt.Errorf("%w: binance returned %d of %d symbols", ErrPriceFeed, len(prices), len(ids))
	}
	return prices, nil
}
