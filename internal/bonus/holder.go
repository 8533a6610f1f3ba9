package bonus

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RatesHolder serves the exchange rate table loaded from rates.yml and
// swaps it atomically whenever the file changes.
type RatesHolder struct {
	current atomic.Value // holds Rates
}

func NewRatesHolder(cfg config.Config, log *zap.Logger) (*RatesHolder, error) {
	log = log.Named("bonus.rates")
	v := viper.New()

	if path := cfg.Fulfillment.RatesConfigPath; path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rates")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/storefront")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &RatesHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Info("rates file not found, using defaults")
		holder.current.Store(DefaultRates())
		return holder, nil
	}

	rates, err := decodeRates(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(rates)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRates(v)
		if err != nil {
			log.Warn("rates reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("rates reloaded", zap.String("file", e.Name), zap.Int("currencies", len(updated)))
	})

	return holder, nil
}

func (h *RatesHolder) Current() Rates {
	return h.current.Load().(Rates)
}

// decodeRates reads the bonus.rates map. Currencies missing from the file
// keep their default rate.
func decodeRates(v *viper.Viper) (Rates, error) {
	raw := v.GetStringMap("bonus.rates")
	rates := DefaultRates()
	for code, value := range raw {
		rate, err := toDecimal(value)
		if err != nil {
			return nil, fmt.Errorf("bonus.rates.%s: %w", code, err)
		}
		rates[normalizeCurrency(code)] = rate
	}
	if err := rates.validate(); err != nil {
		return nil, err
	}
	return rates, nil
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	default:
		return decimal.NewFromString(fmt.Sprint(v))
	}
}
