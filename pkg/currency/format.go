// Package currency formats cart monetary amounts for display and
// structured log output.
package currency

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format renders an amount with its ISO 4217 currency symbol, for
// example "$4.75" for 4.75 USD. An unknown or empty currency code falls
// back to "<amount> <code>".
func Format(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), code)
	}
	f, _ := amount.Float64()
	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(f)))
}
