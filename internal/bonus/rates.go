package bonus

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency every rate is quoted against.
const BaseCurrency = "UAH"

// Rates maps an upper-case currency code to the amount of that currency
// worth one unit of BaseCurrency.
type Rates map[string]decimal.Decimal

func DefaultRates() Rates {
	return Rates{
		"UAH": decimal.NewFromInt(1),
		"USD": decimal.RequireFromString("0.024"),
		"PLN": decimal.RequireFromString("0.095"),
		"EUR": decimal.RequireFromString("0.022"),
		"BGN": decimal.RequireFromString("0.043"),
		"CZK": decimal.RequireFromString("0.55"),
		"RON": decimal.RequireFromString("0.11"),
	}
}

// Rate returns the rate for currency. Unknown currencies and zero rates
// report false.
func (r Rates) Rate(currency string) (decimal.Decimal, bool) {
	rate, ok := r[normalizeCurrency(currency)]
	if !ok || rate.IsZero() {
		return decimal.Zero, false
	}
	return rate, true
}

// ToBase converts amount into BaseCurrency. Amounts in a currency without a
// usable rate are returned unchanged.
func (r Rates) ToBase(amount decimal.Decimal, currency string) decimal.Decimal {
	rate, ok := r.Rate(currency)
	if !ok {
		return amount
	}
	return amount.Div(rate)
}

func (r Rates) validate() error {
	if len(r) == 0 {
		return errors.New("bonus.rates cannot be empty")
	}
	for code, rate := range r {
		if rate.IsNegative() {
			return errors.New("bonus.rates." + code + " cannot be negative")
		}
	}
	return nil
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
