package bonus

import (
	"github.com/shopspring/decimal"
)

// RateSource yields the exchange rates in effect right now.
type RateSource interface {
	Current() Rates
}

type staticRates Rates

func (s staticRates) Current() Rates { return Rates(s) }

// Static wraps a fixed table as a RateSource.
func Static(rates Rates) RateSource { return staticRates(rates) }

// DefaultAccrualRate is the share of the converted order total credited as points.
var DefaultAccrualRate = decimal.RequireFromString("0.10")

type Calculator struct {
	rates   RateSource
	accrual decimal.Decimal
}

func NewCalculator(rates RateSource, accrual decimal.Decimal) *Calculator {
	if rates == nil {
		rates = Static(DefaultRates())
	}
	if accrual.IsNegative() || accrual.IsZero() {
		accrual = DefaultAccrualRate
	}
	return &Calculator{rates: rates, accrual: accrual}
}

// Points returns floor(total / rate[currency] * accrual), never negative.
func (c *Calculator) Points(total decimal.Decimal, currency string) int64 {
	base := c.rates.Current().ToBase(total, currency)
	points := base.Mul(c.accrual).Floor()
	if points.IsNegative() {
		return 0
	}
	return points.IntPart()
}
