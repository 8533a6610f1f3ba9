package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CaptureResult is a provider's confirmation that money moved, normalized
// across providers.
type CaptureResult struct {
	Provider          string
	ProviderEventID   string
	ProviderReference string
	// TransactionID is the idempotency key: every notification about the
	// same payment carries the same value.
	TransactionID    string
	EventType        string
	Succeeded        bool
	AmountMinorUnits int64
	Currency         string
	CapturedAt       time.Time
	OrderID          snowflake.ID
	UserID           snowflake.ID
	RawPayload       []byte
}

// PaymentRecord is written last, once every fulfillment step is done.
// Its presence is what marks a transaction as processed.
type PaymentRecord struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	Provider              string       `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_records_provider_txn"`
	ProviderTransactionID string       `json:"provider_transaction_id" gorm:"type:text;not null;uniqueIndex:ux_payment_records_provider_txn"`
	Success               bool         `json:"success" gorm:"not null"`
	AmountMinorUnits      int64        `json:"amount_minor_units" gorm:"not null"`
	Currency              string       `json:"currency" gorm:"type:text;not null"`
	UserID                snowflake.ID `json:"user_id" gorm:"not null;index"`
	OrderID               snowflake.ID `json:"order_id" gorm:"not null;index"`
	CreatedAt             time.Time    `json:"created_at" gorm:"not null"`
	DeliveredAt           time.Time    `json:"delivered_at" gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

type CaptureStatus string

const (
	CaptureStatusSucceeded CaptureStatus = "succeeded"
	CaptureStatusFailed    CaptureStatus = "failed"
)

// CaptureEvent is one verified provider notification kept in the inbox.
// Status is stored explicitly so a capture can be replayed without
// re-parsing the payload.
type CaptureEvent struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider          string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_captures_provider_event;index:idx_payment_captures_provider_txn,priority:1"`
	ProviderEventID   string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_captures_provider_event"`
	ProviderReference string         `json:"provider_reference" gorm:"type:text;not null;index"`
	TransactionID     string         `json:"transaction_id" gorm:"type:text;not null;index:idx_payment_captures_provider_txn,priority:2"`
	EventType         string         `json:"event_type" gorm:"type:text;not null"`
	Status            CaptureStatus  `json:"status" gorm:"type:text;not null"`
	AmountMinorUnits  int64          `json:"amount_minor_units" gorm:"not null"`
	Currency          string         `json:"currency" gorm:"type:text;not null"`
	OrderID           snowflake.ID   `json:"order_id" gorm:"not null;index"`
	UserID            snowflake.ID   `json:"user_id" gorm:"not null"`
	CapturedAt        time.Time      `json:"captured_at" gorm:"not null"`
	Payload           datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
}

func (CaptureEvent) TableName() string { return "payment_captures" }

func (e *CaptureEvent) ToCaptureResult() *CaptureResult {
	if e == nil {
		return nil
	}
	return &CaptureResult{
		Provider:          e.Provider,
		ProviderEventID:   e.ProviderEventID,
		ProviderReference: e.ProviderReference,
		TransactionID:     e.TransactionID,
		EventType:         e.EventType,
		Succeeded:         e.Status == CaptureStatusSucceeded,
		AmountMinorUnits:  e.AmountMinorUnits,
		Currency:          e.Currency,
		CapturedAt:        e.CapturedAt,
		OrderID:           e.OrderID,
		UserID:            e.UserID,
		RawPayload:        []byte(e.Payload),
	}
}
