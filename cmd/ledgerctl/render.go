package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

func pct(d decimal.Decimal) string { return d.StringFixed(2) + "%" }

// holdingsMarkdown renders a valuation and the lifetime realized P&L.
func holdingsMarkdown(v portfolio.Valuation, realized decimal.Decimal, currency string) string {
	money := func(d decimal.Decimal) string { return portfolio.FormatMoney(d, currency) }

	var b strings.Builder
	b.WriteString("# Holdings\n\n")
	if len(v.Rows) == 0 {
		b.WriteString("No open positions.\n\n")
	} else {
		b.WriteString("| Symbol | Quantity | Avg cost | Price | Value | Cost | P&L | P&L % | Weight |\n")
		b.WriteString("|:---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
		for _, r := range v.Rows {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				r.Symbol, r.Quantity.String(), money(r.AverageCost), money(r.LivePrice),
				money(r.MarketValue), money(r.CostBasis), money(r.UnrealizedPnl),
				pct(r.UnrealizedPnlPct), pct(r.WeightPct))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Totals\n\n")
	fmt.Fprintf(&b, "- **Value:** %s\n", money(v.TotalValue))
	fmt.Fprintf(&b, "- **Cost:** %s\n", money(v.TotalCost))
	fmt.Fprintf(&b, "- **Unrealized P&L:** %s (%s)\n", money(v.TotalPnl), pct(v.TotalPnlPct))
	fmt.Fprintf(&b, "- **Realized P&L:** %s\n", money(realized))
	return b.String()
}

// rebalanceMarkdown renders a rebalancing plan.
func rebalanceMarkdown(p portfolio.Plan, currency string) string {
	money := func(d decimal.Decimal) string { return portfolio.FormatMoney(d, currency) }

	var b strings.Builder
	b.WriteString("# Rebalance\n\n")
	fmt.Fprintf(&b, "Current total %s, injection %s, new total %s.\n\n",
		money(p.CurrentTotal), money(p.Injection), money(p.NewTotal))
	if p.TargetPctWarning != "" {
		fmt.Fprintf(&b, "> **Warning:** %s\n\n", p.TargetPctWarning)
	}
	if len(p.Rows) == 0 {
		b.WriteString("No targets.\n")
		return b.String()
	}

	b.WriteString("| Symbol | Current % | Target % | Current | Target | Action | Amount | Units |\n")
	b.WriteString("|:---|---:|---:|---:|---:|:---|---:|---:|\n")
	for _, r := range p.Rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			r.Symbol, pct(r.CurrentPct), pct(r.TargetPct), money(r.CurrentValue), money(r.TargetValue),
			strings.ToUpper(string(r.Action)), money(r.Amount), r.Units.Round(8).String())
	}
	return b.String()
}

// printMarkdown writes md to out, styled by glamour unless style is "plain".
func printMarkdown(out io.Writer, md, style string) error {
	if style == "plain" {
		_, err := io.WriteString(out, md)
		return err
	}

	opt := glamour.WithStandardStyle(style)
	if style == "auto" {
		opt = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(120))
	if err != nil {
		return err
	}
	rendered, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, rendered)
	return err
}
