package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

// logLine is one line of a JSONL transaction log.
type logLine struct {
	Symbol      string              `json:"symbol"`
	Kind        string              `json:"kind"`
	Amount      decimal.Decimal     `json:"amount"`
	Price       decimal.Decimal     `json:"price"`
	PriceAtSale decimal.NullDecimal `json:"price_at_sale"`
}

// readLog decodes a JSONL log into ledger entries. Blank lines and lines
// starting with # are skipped.
func readLog(r io.Reader) ([]portfolio.Entry, error) {
	var entries []portfolio.Entry
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var l logLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		kind, err := portfolio.ParseKind(l.Kind)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if err := portfolio.Validate(kind, l.Amount, l.Price); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		entries = append(entries, portfolio.Entry{
			Symbol:      strings.ToUpper(l.Symbol),
			Kind:        kind,
			Amount:      l.Amount,
			Price:       l.Price,
			PriceAtSale: l.PriceAtSale,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// readDecimals decodes a JSON object of symbol to number, as used by the
// price and target files. Keys are upper-cased.
func readDecimals(r io.Reader) (map[string]decimal.Decimal, error) {
	raw := map[string]decimal.Decimal{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}

func openLog(path string) ([]portfolio.Entry, error) {
	if path == "" {
		return nil, fmt.Errorf("-log is required")
	}
	if path == "-" {
		return readLog(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLog(f)
}

func openDecimals(path string) (map[string]decimal.Decimal, error) {
	if path == "" {
		return map[string]decimal.Decimal{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := readDecimals(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// withPrices sets the live price of every entry from prices.
func withPrices(entries []portfolio.Entry, prices map[string]decimal.Decimal) {
	for i := range entries {
		entries[i].LivePrice = prices[entries[i].Symbol]
	}
}
