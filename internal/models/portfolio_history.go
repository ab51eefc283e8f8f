package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the daily record of a user's portfolio value. MaxValue
// and MinValue track the extremes seen during the day.
type PortfolioSnapshot struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Day        string          `json:"day"` // YYYY-MM-DD, UTC
	TotalValue decimal.Decimal `json:"total_value"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Pnl        decimal.Decimal `json:"pnl"`
	PnlPct     decimal.Decimal `json:"pnl_pct"`
	MaxValue   decimal.Decimal `json:"max_value"`
	MinValue   decimal.Decimal `json:"min_value"`
	CreatedAt  time.Time       `json:"created_at"`
}

type PortfolioChartData struct {
	Labels []string          `json:"labels"`
	Values []decimal.Decimal `json:"values"`
	High   decimal.Decimal   `json:"high"`
	Low    decimal.Decimal   `json:"low"`
}
