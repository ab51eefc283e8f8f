package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one immutable entry of a user's log. RealizedPnl,
// AvgCostAtSale and CostAtSale are filled on sells when the transaction is
// recorded.
type Transaction struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	CoinID        string              `json:"coin_id"`
	Symbol        string              `json:"symbol,omitempty"`
	Kind          string              `json:"kind"`
	Amount        decimal.Decimal     `json:"amount"`
	PriceAtDate   decimal.Decimal     `json:"price_at_date"`
	PriceAtSale   decimal.NullDecimal `json:"price_at_sale"`
	RealizedPnl   decimal.Decimal     `json:"realized_pnl"`
	AvgCostAtSale decimal.NullDecimal `json:"avg_cost_at_sale"`
	CostAtSale    decimal.NullDecimal `json:"cost_at_sale"`
	Note          string              `json:"note,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Total is amount × the price the transaction executed at.
func (t Transaction) Total() decimal.Decimal {
	if t.Kind == "sell" && t.PriceAtSale.Valid {
		return t.Amount.Mul(t.PriceAtSale.Decimal)
	}
	return t.Amount.Mul(t.PriceAtDate)
}

type CreateTransactionRequest struct {
	CoinID      string              `json:"coin_id" binding:"required"`
	Kind        string              `json:"kind" binding:"required"`
	Amount      decimal.Decimal     `json:"amount"`
	PriceAtDate decimal.Decimal     `json:"price_at_date"`
	PriceAtSale decimal.NullDecimal `json:"price_at_sale"`
	Note        string              `json:"note"`
}
