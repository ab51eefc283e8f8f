package models

import "github.com/shopspring/decimal"

// Performance names the best and worst held coins by unrealized P&L percentage.
type Performance struct {
	TopGainer PerformanceDetail `json:"top_gainer"`
	TopLoser  PerformanceDetail `json:"top_loser"`
}

type PerformanceDetail struct {
	Symbol        string          `json:"symbol"`
	UnrealizedPct decimal.Decimal `json:"unrealized_pnl_pct"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
}
