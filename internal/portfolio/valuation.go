package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Row is the display line of one held coin.
type Row struct {
	Symbol           string          `json:"symbol"`
	Quantity         decimal.Decimal `json:"quantity"`
	AverageCost      decimal.Decimal `json:"average_cost"`
	LivePrice        decimal.Decimal `json:"live_price"`
	MarketValue      decimal.Decimal `json:"market_value"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnlPct decimal.Decimal `json:"unrealized_pnl_pct"`
	WeightPct        decimal.Decimal `json:"weight_pct"`
}

// Valuation is the projection of a set of positions, highest value first.
type Valuation struct {
	Rows        []Row           `json:"rows"`
	TotalValue  decimal.Decimal `json:"total_value"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	TotalPnl    decimal.Decimal `json:"total_pnl"`
	TotalPnlPct decimal.Decimal `json:"total_pnl_pct"`
}

// Project turns positions into valuation rows. Positions at or below Epsilon
// are treated as exited and left out, including from the total.
func Project(positions []Position) Valuation {
	v := Valuation{Rows: []Row{}}

	for _, p := range positions {
		if !p.Held() {
			continue
		}
		value := p.Quantity.Mul(p.LivePrice)
		pnl := value.Sub(p.CostBasis)
		v.Rows = append(v.Rows, Row{
			Symbol:           p.Symbol,
			Quantity:         p.Quantity,
			AverageCost:      p.AverageCost(),
			LivePrice:        p.LivePrice,
			MarketValue:      value,
			CostBasis:        p.CostBasis,
			UnrealizedPnl:    pnl,
			UnrealizedPnlPct: percentOf(pnl, p.CostBasis),
		})
		v.TotalValue = v.TotalValue.Add(value)
		v.TotalCost = v.TotalCost.Add(p.CostBasis)
	}

	for i := range v.Rows {
		v.Rows[i].WeightPct = percentOf(v.Rows[i].MarketValue, v.TotalValue)
	}

	sort.SliceStable(v.Rows, func(i, j int) bool {
		if !v.Rows[i].MarketValue.Equal(v.Rows[j].MarketValue) {
			return v.Rows[i].MarketValue.GreaterThan(v.Rows[j].MarketValue)
		}
		return v.Rows[i].Symbol < v.Rows[j].Symbol
	})

	v.TotalPnl = v.TotalValue.Sub(v.TotalCost)
	v.TotalPnlPct = percentOf(v.TotalPnl, v.TotalCost)
	return v
}

// percentOf returns part/whole*100, or zero when whole is not positive.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
