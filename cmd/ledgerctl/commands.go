package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

// outputFlags are shared by the commands that print a report.
type outputFlags struct {
	log      string
	prices   string
	currency string
	style    string
}

func (o *outputFlags) register(f *flag.FlagSet) {
	f.StringVar(&o.log, "log", "", "JSONL transaction log, one {symbol, kind, amount, price, price_at_sale} per line; - for stdin.")
	f.StringVar(&o.prices, "prices", "", "JSON file of live prices by symbol, e.g. {\"BTC\": \"1000000000\"}.")
	f.StringVar(&o.currency, "currency", "idr", "Currency the prices are quoted in.")
	f.StringVar(&o.style, "style", "auto", "Output style: auto, dark, light, notty or plain.")
}

func (o *outputFlags) book() (portfolio.Book, error) {
	entries, err := openLog(o.log)
	if err != nil {
		return portfolio.Book{}, err
	}
	prices, err := openDecimals(o.prices)
	if err != nil {
		return portfolio.Book{}, err
	}
	withPrices(entries, prices)
	return portfolio.Replay(entries)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

type holdingsCmd struct {
	out io.Writer
	outputFlags
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "value the open positions of a transaction log" }
func (*holdingsCmd) Usage() string {
	return `ledgerctl holdings -log <file.jsonl> [-prices <prices.json>] [-currency idr]

  Replays the log with average cost accounting and prints every open
  position valued at the given prices, plus lifetime realized P&L.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) { c.outputFlags.register(f) }

func (c *holdingsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	book, err := c.book()
	if err != nil {
		return fail(err)
	}
	md := holdingsMarkdown(portfolio.Project(book.List()), book.Realized(), c.currency)
	if err := printMarkdown(c.out, md, c.style); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type rebalanceCmd struct {
	out io.Writer
	outputFlags
	targets   string
	injection string
}

func (*rebalanceCmd) Name() string     { return "rebalance" }
func (*rebalanceCmd) Synopsis() string { return "plan trades toward target allocations" }
func (*rebalanceCmd) Usage() string {
	return `ledgerctl rebalance -log <file.jsonl> -prices <prices.json> -targets <targets.json> [-injection <amount>]

  Plans the buys and sells that bring each coin to its target percentage
  after adding the injection (negative to withdraw). Differences of 100 or
  less are left alone.
`
}

func (c *rebalanceCmd) SetFlags(f *flag.FlagSet) {
	c.outputFlags.register(f)
	f.StringVar(&c.targets, "targets", "", "JSON file of target percentages by symbol, e.g. {\"BTC\": 60}.")
	f.StringVar(&c.injection, "injection", "0", "Cash added before rebalancing; negative to withdraw.")
}

func (c *rebalanceCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	injection, err := portfolio.ParseDecimal(c.injection)
	if err != nil {
		return fail(err)
	}
	book, err := c.book()
	if err != nil {
		return fail(err)
	}
	targets, err := openDecimals(c.targets)
	if err != nil {
		return fail(err)
	}
	prices, err := openDecimals(c.prices)
	if err != nil {
		return fail(err)
	}

	md := rebalanceMarkdown(portfolio.Recommend(rebalanceTargets(book, targets, prices), injection), c.currency)
	if err := printMarkdown(c.out, md, c.style); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// rebalanceTargets includes every held coin and every coin with a target.
func rebalanceTargets(book portfolio.Book, targets, prices map[string]decimal.Decimal) []portfolio.Target {
	symbols := map[string]bool{}
	for _, p := range book.List() {
		if p.Held() {
			symbols[p.Symbol] = true
		}
	}
	for s, pct := range targets {
		if pct.IsPositive() {
			symbols[s] = true
		}
	}

	out := make([]portfolio.Target, 0, len(symbols))
	for s := range symbols {
		qty := decimal.Zero
		if p, ok := book.Positions[s]; ok && p.Held() {
			qty = p.Quantity
		}
		out = append(out, portfolio.Target{
			Symbol:       s,
			TargetPct:    targets[s],
			CurrentValue: qty.Mul(prices[s]),
			LivePrice:    prices[s],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

type verifyCmd struct {
	out io.Writer
	log string
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check that every sell of a log is covered" }
func (*verifyCmd) Usage() string {
	return `ledgerctl verify -log <file.jsonl>

  Replays the log and reports the first sell that exceeds the quantity held
  at that point. Exits non-zero when the log is inconsistent.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.log, "log", "", "JSONL transaction log; - for stdin.")
}

func (c *verifyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	entries, err := openLog(c.log)
	if err != nil {
		return fail(err)
	}
	book, err := portfolio.Replay(entries)
	if errors.Is(err, portfolio.ErrInsufficientQuantity) {
		fmt.Fprintf(c.out, "inconsistent log: %v\n", err)
		return subcommands.ExitFailure
	}
	if err != nil {
		return fail(err)
	}

	held := 0
	for _, p := range book.Positions {
		if p.Held() {
			held++
		}
	}
	fmt.Fprintf(c.out, "ok: %d transactions, %d sells, %d open positions, realized %s\n",
		len(entries), len(book.Sales), held, book.Realized().String())
	return subcommands.ExitSuccess
}
