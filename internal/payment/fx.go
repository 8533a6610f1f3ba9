package payment

import (
	"github.com/smallbiznis/storefront/internal/payment/adapters"
	"github.com/smallbiznis/storefront/internal/payment/adapters/adyen"
	"github.com/smallbiznis/storefront/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/payment/fulfillment"
	"github.com/smallbiznis/storefront/internal/payment/repository"
	"github.com/smallbiznis/storefront/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(log *zap.Logger) (*adapters.Registry, error) {
		registry, err := adapters.NewRegistry(
			stripe.NewFactory(),
			adyen.NewFactory(),
		)
		if err != nil {
			return nil, err
		}
		log.Named("payment").Info("payment providers registered", zap.Strings("providers", registry.Providers()))
		return registry, nil
	}),
	fx.Provide(
		fx.Annotate(fulfillment.NewInboxSource, fx.As(new(paymentdomain.CaptureSource))),
	),
	fx.Provide(fulfillment.New),
	fx.Provide(func(e *fulfillment.Engine) paymentdomain.Fulfiller { return e }),
	fx.Provide(webhook.NewService),
)
