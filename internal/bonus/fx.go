package bonus

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("bonus",
	fx.Provide(NewRatesHolder),
	fx.Provide(func(h *RatesHolder) RateSource { return h }),
	fx.Provide(newCalculator),
)

func newCalculator(cfg config.Config, rates RateSource, log *zap.Logger) *Calculator {
	accrual, err := decimal.NewFromString(cfg.Fulfillment.BonusAccrual)
	if err != nil {
		log.Warn("invalid bonus accrual rate, using default",
			zap.String("value", cfg.Fulfillment.BonusAccrual), zap.Error(err))
		accrual = DefaultAccrualRate
	}
	return NewCalculator(rates, accrual)
}
