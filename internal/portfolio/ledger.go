package portfolio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientQuantity is returned when a sell exceeds the quantity held.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrInvalidInput is returned for non-numeric or out of range amounts and prices.
	ErrInvalidInput = errors.New("invalid input")
)

// Epsilon is the tolerance used when comparing quantities.
var Epsilon = decimal.New(1, -6)

// Kind is the direction of a transaction.
type Kind string

const (
	KindBuy  Kind = "buy"
	KindSell Kind = "sell"
)

// ParseKind parses "buy" or "sell", case insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindBuy):
		return KindBuy, nil
	case string(KindSell):
		return KindSell, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, s)
	}
}

// Position is the running average-cost aggregate of one coin.
type Position struct {
	Symbol    string
	Quantity  decimal.Decimal
	CostBasis decimal.Decimal
	LivePrice decimal.Decimal
}

// AverageCost returns CostBasis/Quantity, or zero when nothing is held.
func (p *Position) AverageCost() decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return p.CostBasis.Div(p.Quantity)
}

// Held reports whether the position is above the display threshold.
func (p *Position) Held() bool {
	return p.Quantity.GreaterThan(Epsilon)
}

// Sale is the outcome of a sell applied to a position.
type Sale struct {
	Symbol      string
	Amount      decimal.Decimal
	Price       decimal.Decimal
	AvgCost     decimal.Decimal // average cost right before the sell
	CostSold    decimal.Decimal // cost basis removed from the position
	RealizedPnl decimal.Decimal
}

// ApplyBuy adds amount units bought at price.
func ApplyBuy(p *Position, amount, price decimal.Decimal) {
	p.Quantity = p.Quantity.Add(amount)
	p.CostBasis = p.CostBasis.Add(amount.Mul(price))
}

// ApplySell removes amount units sold at priceAtSale. Cost basis shrinks at the
// running average cost, so the average of what remains does not move. A sell
// that closes the position takes the whole basis with it.
func ApplySell(p *Position, amount, priceAtSale decimal.Decimal) (Sale, error) {
	if amount.GreaterThan(p.Quantity.Add(Epsilon)) {
		return Sale{}, fmt.Errorf("%w: selling %s %s but only %s held",
			ErrInsufficientQuantity, amount, p.Symbol, p.Quantity)
	}

	avg := p.AverageCost()
	sale := Sale{
		Symbol:      p.Symbol,
		Amount:      amount,
		Price:       priceAtSale,
		AvgCost:     avg,
		CostSold:    amount.Mul(avg),
		RealizedPnl: priceAtSale.Sub(avg).Mul(amount),
	}

	p.Quantity = p.Quantity.Sub(amount)
	if !p.Quantity.IsPositive() {
		// avg is rounded, amount*avg can miss the basis in the last digit
		sale.CostSold = p.CostBasis
	}
	p.CostBasis = p.CostBasis.Sub(sale.CostSold)
	return sale, nil
}

// ReverseBuy undoes ApplyBuy. It refuses to leave the position below zero,
// which happens when later sells depended on the bought units.
func ReverseBuy(p *Position, amount, price decimal.Decimal) error {
	if amount.GreaterThan(p.Quantity.Add(Epsilon)) {
		return fmt.Errorf("%w: removing a buy of %s %s would leave later sells uncovered (held %s)",
			ErrInsufficientQuantity, amount, p.Symbol, p.Quantity)
	}
	p.Quantity = p.Quantity.Sub(amount)
	p.CostBasis = p.CostBasis.Sub(amount.Mul(price))
	return nil
}

// ReverseSell undoes ApplySell. avgCostAtSale must be the Sale.AvgCost recorded
// when the sell was applied, not the current average. Reversing a sell that
// closed the position is only exact through ReverseSale.
func ReverseSell(p *Position, amount, avgCostAtSale decimal.Decimal) {
	ReverseSale(p, Sale{Amount: amount, CostSold: amount.Mul(avgCostAtSale)})
}

// ReverseSale undoes ApplySell from the recorded Sale, restoring the exact
// cost basis it removed.
func ReverseSale(p *Position, s Sale) {
	p.Quantity = p.Quantity.Add(s.Amount)
	p.CostBasis = p.CostBasis.Add(s.CostSold)
}

// Validate checks user supplied values before they reach the ledger.
func Validate(kind Kind, amount, price decimal.Decimal) error {
	if kind != KindBuy && kind != KindSell {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, kind)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

// ParseDecimal parses a user supplied number.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, s)
	}
	return d, nil
}
