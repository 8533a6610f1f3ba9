package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Payments  paymentdomain.Repository
	Fulfiller paymentdomain.Fulfiller
	Adapters  *adapters.Registry
	Cfg       config.Config
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	payments  paymentdomain.Repository
	fulfiller paymentdomain.Fulfiller
	adapters  *adapters.Registry
	metrics   *metrics.Metrics
	configs   map[string][]paymentdomain.AdapterConfig
}

func NewService(p Params) paymentdomain.WebhookService {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		genID:     p.GenID,
		clock:     c,
		payments:  p.Payments,
		fulfiller: p.Fulfiller,
		adapters:  p.Adapters,
		metrics:   p.Metrics,
		configs:   providerConfigs(p.Cfg.Payment),
	}
}

// providerConfigs expands the configured secrets into one adapter config
// per secret. A comma separated value lists several secrets so a rotated
// key keeps verifying until the provider stops using it.
func providerConfigs(cfg config.PaymentConfig) map[string][]paymentdomain.AdapterConfig {
	out := map[string][]paymentdomain.AdapterConfig{}
	for _, secret := range splitSecrets(cfg.StripeWebhookSecret) {
		out["stripe"] = append(out["stripe"], paymentdomain.AdapterConfig{
			Config: map[string]any{"webhook_secret": secret},
		})
	}
	for _, key := range splitSecrets(cfg.AdyenHMACKey) {
		out["adyen"] = append(out["adyen"], paymentdomain.AdapterConfig{
			Config: map[string]any{"hmac_key": key},
		})
	}
	return out
}

func splitSecrets(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IngestWebhook verifies a provider delivery, stores it in the capture
// inbox and fulfills succeeded captures. Redeliveries of processed
// payments report Duplicate instead of failing.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.WebhookResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || s.adapters == nil || !s.adapters.Has(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}
	configs := s.configs[provider]
	if len(configs) == 0 {
		return nil, paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}

	log := ctxlogger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	capture, err := s.matchAdapter(ctx, provider, payload, headers, configs)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.metrics.RecordWebhookEvent(ctx, provider, "ignored")
			log.Debug("payment webhook ignored")
			return &paymentdomain.WebhookResult{Provider: provider, Ignored: true}, nil
		}
		return nil, err
	}
	capture.Provider = provider
	if capture.RawPayload == nil {
		capture.RawPayload = payload
	}
	s.metrics.RecordWebhookEvent(ctx, provider, capture.EventType)

	result := &paymentdomain.WebhookResult{
		Provider:      provider,
		EventType:     capture.EventType,
		TransactionID: capture.TransactionID,
	}
	log = log.With(
		zap.String("event_type", capture.EventType),
		zap.String("transaction_id", capture.TransactionID),
	)

	inserted, err := s.payments.InsertCapture(ctx, s.db, s.captureEvent(capture))
	if err != nil {
		log.Error("failed to store payment capture", zap.Error(err))
		return nil, errors.Join(paymentdomain.ErrStoreUnavailable, err)
	}
	if !inserted {
		log.Info("payment webhook redelivered", zap.String("provider_event_id", capture.ProviderEventID))
	}

	if !capture.Succeeded {
		log.Info("payment capture not succeeded, stored only")
		return result, nil
	}
	if s.fulfiller == nil {
		return nil, errors.New("fulfillment_unavailable")
	}

	record, err := s.fulfiller.Fulfill(ctx, capture, capture.UserID)
	if err != nil {
		if paymentdomain.IsAlreadyProcessed(err) {
			result.Duplicate = true
			return result, nil
		}
		log.Warn("payment webhook fulfillment failed", zap.Error(err))
		return result, err
	}
	result.Record = record
	return result, nil
}

// matchAdapter tries every configured secret for the provider until one
// verifies the delivery.
func (s *Service) matchAdapter(
	ctx context.Context,
	provider string,
	payload []byte,
	headers http.Header,
	configs []paymentdomain.AdapterConfig,
) (*paymentdomain.CaptureResult, error) {
	var configErr error
	for _, cfg := range configs {
		adapter, err := s.adapters.NewAdapter(provider, cfg)
		if err != nil {
			configErr = err
			continue
		}

		if err := adapter.Verify(ctx, payload, headers); err != nil {
			if errors.Is(err, paymentdomain.ErrInvalidSignature) {
				continue
			}
			return nil, err
		}

		return adapter.Parse(ctx, payload)
	}

	if configErr != nil {
		return nil, configErr
	}
	return nil, paymentdomain.ErrInvalidSignature
}

func (s *Service) captureEvent(capture *paymentdomain.CaptureResult) *paymentdomain.CaptureEvent {
	status := paymentdomain.CaptureStatusFailed
	if capture.Succeeded {
		status = paymentdomain.CaptureStatusSucceeded
	}
	reference := capture.ProviderReference
	if reference == "" {
		reference = capture.TransactionID
	}
	eventID := capture.ProviderEventID
	if eventID == "" {
		eventID = capture.TransactionID
	}
	now := s.clock.Now()
	capturedAt := capture.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}
	return &paymentdomain.CaptureEvent{
		ID:                s.genID.Generate(),
		Provider:          capture.Provider,
		ProviderEventID:   eventID,
		ProviderReference: reference,
		TransactionID:     capture.TransactionID,
		EventType:         capture.EventType,
		Status:            status,
		AmountMinorUnits:  capture.AmountMinorUnits,
		Currency:          capture.Currency,
		OrderID:           capture.OrderID,
		UserID:            capture.UserID,
		CapturedAt:        capturedAt.UTC(),
		Payload:           datatypes.JSON(capture.RawPayload),
		ReceivedAt:        now,
	}
}
