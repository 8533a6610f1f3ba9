package domain

import (
	"context"
	"net/http"
)

type AdapterConfig struct {
	Config map[string]any
}

// PaymentAdapter verifies and parses one provider's webhook deliveries.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*CaptureResult, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
