package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
)

// Settled reports whether fulfillment side effects have already been applied.
func (s OrderStatus) Settled() bool {
	return s == OrderStatusPaid || s == OrderStatusCompleted
}

// Order is the bill a user pays for. Lines are created together with it and
// never change afterwards.
type Order struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID    `json:"user_id" gorm:"not null;index"`
	Total             decimal.Decimal `json:"total" gorm:"type:numeric(20,4);not null"`
	Currency          string          `json:"currency" gorm:"type:text;not null"`
	Status            OrderStatus     `json:"status" gorm:"type:text;not null;index"`
	BonusPointsUsed   int64           `json:"bonus_points_used" gorm:"not null;default:0"`
	PaidProvider      *string         `json:"paid_provider,omitempty" gorm:"type:text"`
	PaidTransactionID *string         `json:"paid_transaction_id,omitempty" gorm:"type:text"`
	BonusCreditedAt   *time.Time      `json:"bonus_credited_at,omitempty"`
	Version           int64           `json:"-" gorm:"not null;default:1"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
	Lines             []OrderLine     `json:"lines" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

// PaidBy reports whether the order was moved to paid by the given provider transaction.
func (o *Order) PaidBy(provider, transactionID string) bool {
	return o != nil &&
		o.PaidProvider != nil && *o.PaidProvider == provider &&
		o.PaidTransactionID != nil && *o.PaidTransactionID == transactionID
}

type OrderLine struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID   snowflake.ID    `json:"order_id" gorm:"not null;index"`
	ProductID snowflake.ID    `json:"product_id" gorm:"not null;index"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,4);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"not null"`
}

func (OrderLine) TableName() string { return "order_lines" }

// Subtotal is the line amount at purchase price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
