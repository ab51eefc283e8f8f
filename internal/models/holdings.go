package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetStat is the stored aggregate of one coin. It can always be rebuilt
// from the coin's transactions.
type AssetStat struct {
	CoinID      string          `json:"coin_id"`
	UserID      string          `json:"user_id"`
	Symbol      string          `json:"symbol,omitempty"`
	TotalQty    decimal.Decimal `json:"total_qty"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
	TargetPct   decimal.Decimal `json:"target_pct"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type SetTargetRequest struct {
	TargetPct decimal.Decimal `json:"target_pct"`
}

// RebuildResult reports a stat recomputed from the log.
type RebuildResult struct {
	Before  AssetStat `json:"before"`
	After   AssetStat `json:"after"`
	Drifted bool      `json:"drifted"`
}
