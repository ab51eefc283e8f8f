package portfolio

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the given ISO currency, for instance
// "Rp1.250.000,00" for idr. Amounts are rounded to the currency's minor unit.
func FormatMoney(amount decimal.Decimal, currency string) string {
	// money.New never returns a nil currency, GetCurrency does for unknown codes
	cur := *money.New(0, strings.ToUpper(currency)).Currency()
	minor := amount.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(minor.IntPart())
}
