package fulfillment

import (
	"context"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"gorm.io/gorm"
)

// InboxSource serves captures from the verified webhook inbox.
type InboxSource struct {
	db       *gorm.DB
	payments paymentdomain.Repository
}

func NewInboxSource(db *gorm.DB, payments paymentdomain.Repository) *InboxSource {
	return &InboxSource{db: db, payments: payments}
}

func (s *InboxSource) FindCapture(ctx context.Context, provider, reference string) (*paymentdomain.CaptureResult, error) {
	event, err := s.payments.FindCaptureByReference(ctx, s.db, provider, reference)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, paymentdomain.ErrCaptureNotFound
	}
	return event.ToCaptureResult(), nil
}
