package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// Fulfiller turns a capture into exactly-once business effects.
type Fulfiller interface {
	Fulfill(ctx context.Context, capture *CaptureResult, requestingUserID snowflake.ID) (*PaymentRecord, error)
	Capture(ctx context.Context, provider, reference string, requestingUserID snowflake.ID) (*PaymentRecord, error)
}

// CaptureSource resolves a provider reference into the capture the provider
// reported for it.
type CaptureSource interface {
	FindCapture(ctx context.Context, provider, reference string) (*CaptureResult, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*WebhookResult, error)
}

// WebhookResult describes how a delivery was handled.
type WebhookResult struct {
	Provider      string
	EventType     string
	TransactionID string
	Ignored       bool
	Duplicate     bool
	Record        *PaymentRecord
}
