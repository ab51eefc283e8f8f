package portfolio

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Entry is one transaction of the log as seen by the ledger.
type Entry struct {
	Symbol      string
	Kind        Kind
	Amount      decimal.Decimal
	Price       decimal.Decimal     // price at transaction
	PriceAtSale decimal.NullDecimal // sells only; Price is used when unset
	LivePrice   decimal.Decimal     // current market price of the coin
}

// SalePrice returns the price a sell entry realizes at.
func (e Entry) SalePrice() decimal.Decimal {
	if e.PriceAtSale.Valid {
		return e.PriceAtSale.Decimal
	}
	return e.Price
}

// Book is the state obtained by replaying a transaction log.
type Book struct {
	Positions map[string]*Position
	Sales     []Sale
}

// Realized returns the lifetime realized P&L of the book.
func (b Book) Realized() decimal.Decimal {
	return TotalRealized(b.Sales)
}

// List returns the positions ordered by symbol.
func (b Book) List() []Position {
	out := make([]Position, 0, len(b.Positions))
	for _, p := range b.Positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Replay rebuilds every position from a chronologically ordered log. It goes
// through the same Apply functions as incremental updates, so a stored aggregate
// can always be checked against it.
func Replay(entries []Entry) (Book, error) {
	book := Book{Positions: make(map[string]*Position)}
	for i, e := range entries {
		p, ok := book.Positions[e.Symbol]
		if !ok {
			p = &Position{Symbol: e.Symbol}
			book.Positions[e.Symbol] = p
		}
		if e.LivePrice.IsPositive() || p.LivePrice.IsZero() {
			p.LivePrice = e.LivePrice
		}

		switch e.Kind {
		case KindBuy:
			ApplyBuy(p, e.Amount, e.Price)
		case KindSell:
			sale, err := ApplySell(p, e.Amount, e.SalePrice())
			if err != nil {
				return Book{}, fmt.Errorf("entry %d: %w", i, err)
			}
			book.Sales = append(book.Sales, sale)
		default:
			return Book{}, fmt.Errorf("entry %d: %w: unknown transaction type %q", i, ErrInvalidInput, e.Kind)
		}
	}
	return book, nil
}

// TotalRealized sums the realized P&L of sales. Exited positions still count.
func TotalRealized(sales []Sale) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sales {
		total = total.Add(s.RealizedPnl)
	}
	return total
}
