package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindRecord(ctx context.Context, db *gorm.DB, provider, transactionID string) (*PaymentRecord, error)
	// InsertRecord writes the record unless one exists for the same provider
	// transaction. It reports whether a row was written.
	InsertRecord(ctx context.Context, db *gorm.DB, record *PaymentRecord) (bool, error)
	ListRecordsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]PaymentRecord, error)

	InsertCapture(ctx context.Context, db *gorm.DB, event *CaptureEvent) (bool, error)
	// FindCaptureByReference prefers a succeeded capture over a failed one,
	// then the most recent.
	FindCaptureByReference(ctx context.Context, db *gorm.DB, provider, reference string) (*CaptureEvent, error)
	// FindSucceededCapture returns the latest succeeded capture for a
	// provider transaction, or nil.
	FindSucceededCapture(ctx context.Context, db *gorm.DB, provider, transactionID string) (*CaptureEvent, error)
}
