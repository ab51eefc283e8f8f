package models

import "github.com/shopspring/decimal"

type TransactionDetails struct {
	Transaction     Transaction     `json:"transaction"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	CurrentValue    decimal.Decimal `json:"current_value"`     // Amount * CurrentPrice
	GainLoss        decimal.Decimal `json:"gain_loss"`         // CurrentValue - Total, buys only
	GainLossPercent decimal.Decimal `json:"gain_loss_percent"` // (GainLoss / Total) * 100
}
