package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coin is a coin registered by a user. CoinGeckoID doubles as the price feed id.
type Coin struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	CoinGeckoID    string          `json:"coingecko_id"`
	WalletAddress  string          `json:"wallet_address,omitempty"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PriceUpdatedAt *time.Time      `json:"price_updated_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CreateCoinRequest struct {
	Symbol        string          `json:"symbol" binding:"required"`
	Name          string          `json:"name"`
	CoinGeckoID   string          `json:"coingecko_id" binding:"required"`
	WalletAddress string          `json:"wallet_address"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
}
