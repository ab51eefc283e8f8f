package portfolio

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// DeadZone is the absolute delta, in fiat, under which a coin counts as on target.
var DeadZone = decimal.NewFromInt(100)

// Action is the rebalancing move suggested for one coin.
type Action string

const (
	OnTarget Action = "on_target"
	Buy      Action = "buy"
	Sell     Action = "sell"
)

// Target is one coin's input to the recommender.
type Target struct {
	Symbol       string
	TargetPct    decimal.Decimal
	CurrentValue decimal.Decimal
	LivePrice    decimal.Decimal
}

// Recommendation is the suggested move for one coin. Delta keeps its sign;
// Amount and Units are absolute.
type Recommendation struct {
	Symbol       string          `json:"symbol"`
	TargetPct    decimal.Decimal `json:"target_pct"`
	LivePrice    decimal.Decimal `json:"live_price"`
	CurrentValue decimal.Decimal `json:"current_value"`
	CurrentPct   decimal.Decimal `json:"current_pct"`
	TargetValue  decimal.Decimal `json:"target_value"`
	Delta        decimal.Decimal `json:"delta"`
	Amount       decimal.Decimal `json:"amount"`
	Units        decimal.Decimal `json:"units"`
	Action       Action          `json:"action"`
}

// Plan is the full rebalancing proposal.
type Plan struct {
	Rows             []Recommendation `json:"rows"`
	Injection        decimal.Decimal  `json:"injection"`
	CurrentTotal     decimal.Decimal  `json:"current_total"`
	NewTotal         decimal.Decimal  `json:"new_total"`
	TargetPctSum     decimal.Decimal  `json:"target_pct_sum"`
	TargetPctWarning string           `json:"target_pct_warning,omitempty"`
}

// Recommend computes buy/sell moves that bring every coin to its target share
// of currentTotal+injection. Injection may be zero or negative. Target
// percentages are reported as given, their sum is never normalized.
func Recommend(targets []Target, injection decimal.Decimal) Plan {
	plan := Plan{Rows: make([]Recommendation, 0, len(targets)), Injection: injection}

	for _, t := range targets {
		plan.CurrentTotal = plan.CurrentTotal.Add(t.CurrentValue)
		plan.TargetPctSum = plan.TargetPctSum.Add(t.TargetPct)
	}
	plan.NewTotal = plan.CurrentTotal.Add(injection)

	for _, t := range targets {
		targetValue := t.TargetPct.Div(hundred).Mul(plan.NewTotal)
		delta := targetValue.Sub(t.CurrentValue)
		amount := delta.Abs()

		r := Recommendation{
			Symbol:       t.Symbol,
			TargetPct:    t.TargetPct,
			LivePrice:    t.LivePrice,
			CurrentValue: t.CurrentValue,
			CurrentPct:   percentOf(t.CurrentValue, plan.CurrentTotal),
			TargetValue:  targetValue,
			Delta:        delta,
			Amount:       amount,
			Action:       actionFor(delta),
		}
		if t.LivePrice.IsPositive() {
			r.Units = amount.Div(t.LivePrice)
		}
		plan.Rows = append(plan.Rows, r)
	}

	sort.SliceStable(plan.Rows, func(i, j int) bool {
		return plan.Rows[i].CurrentValue.GreaterThan(plan.Rows[j].CurrentValue)
	})

	if !plan.TargetPctSum.Equal(hundred) {
		plan.TargetPctWarning = fmt.Sprintf("target percentages add up to %s%%, not 100%%",
			plan.TargetPctSum.StringFixed(2))
	}
	return plan
}

func actionFor(delta decimal.Decimal) Action {
	switch {
	case delta.GreaterThan(DeadZone):
		return Buy
	case delta.LessThan(DeadZone.Neg()):
		return Sell
	default:
		return OnTarget
	}
}
