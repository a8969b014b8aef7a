// README: Common money value object used across modules.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const CurrencyUSD = "USD"

// Money is an amount in minor units (cents).
type Money struct {
	Amount   int64
	Currency string
}

func USD(cents int64) Money {
	return Money{Amount: cents, Currency: CurrencyUSD}
}

// MoneyFromDecimal rounds a dollar amount to cents, half away from zero.
func MoneyFromDecimal(d decimal.Decimal, currency string) Money {
	if currency == "" {
		currency = CurrencyUSD
	}
	return Money{Amount: d.Round(2).Shift(2).IntPart(), Currency: currency}
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

func (m Money) Add(o Money) Money {
	cur := m.Currency
	if cur == "" {
		cur = o.Currency
	}
	return Money{Amount: m.Amount + o.Amount, Currency: cur}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	sign := ""
	amt := m.Amount
	if amt < 0 {
		sign = "-"
		amt = -amt
	}
	return fmt.Sprintf("%s$%d.%02d", sign, amt/100, amt%100)
}
