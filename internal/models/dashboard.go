package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

// Dashboard is the valuation of a user's holdings plus lifetime realized P&L.
type Dashboard struct {
	portfolio.Valuation
	Currency      string          `json:"currency"`
	TotalRealized decimal.Decimal `json:"total_realized"`
	Performance   *Performance    `json:"performance,omitempty"`
	Coins         []Coin          `json:"coins"`
	// Display holds the totals formatted in Currency.
	Display    map[string]string `json:"display"`
	ComputedAt time.Time         `json:"computed_at"`
}

// RebalanceView is a rebalancing plan for a user.
type RebalanceView struct {
	portfolio.Plan
	Currency   string    `json:"currency"`
	ComputedAt time.Time `json:"computed_at"`
}

// RealizedView lists every sell with its realized P&L.
type RealizedView struct {
	Sales    []Transaction   `json:"sales"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}
