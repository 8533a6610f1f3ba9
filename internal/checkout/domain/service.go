package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
)

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, id string, userID snowflake.ID) (*OrderResponse, error)
	ListOrders(ctx context.Context, userID snowflake.ID, req ListOrdersRequest) (*ListOrdersResponse, error)
}

type CreateOrderRequest struct {
	UserID          snowflake.ID  `json:"-"`
	Currency        string        `json:"currency"`
	BonusPointsUsed int64         `json:"bonus_points_used"`
	Lines           []LineRequest `json:"lines"`
}

type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ListOrdersRequest struct {
	pagination.Pagination
}

type OrderResponse struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Status            string         `json:"status"`
	Currency          string         `json:"currency"`
	Total             string         `json:"total"`
	BonusPointsUsed   int64          `json:"bonus_points_used"`
	PaidProvider      *string        `json:"paid_provider,omitempty"`
	PaidTransactionID *string        `json:"paid_transaction_id,omitempty"`
	BonusCreditedAt   *time.Time     `json:"bonus_credited_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Lines             []LineResponse `json:"lines"`
}

type LineResponse struct {
	ID          string   `json:"id"`
	ProductID   string   `json:"product_id"`
	Quantity    int      `json:"quantity"`
	UnitPrice   string   `json:"unit_price"`
	Subtotal    string   `json:"subtotal"`
	LicenseKeys []string `json:"license_keys"`
}

type ListOrdersResponse struct {
	Orders   []OrderResponse     `json:"orders"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrEmptyOrder         = errors.New("empty_order")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidProduct     = errors.New("invalid_product")
	ErrInvalidBonusPoints = errors.New("invalid_bonus_points")
	ErrInvalidOrderID     = errors.New("invalid_order_id")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
)
