package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
)

type Service interface {
	Add(ctx context.Context, userID snowflake.ID, productID string) (*Response, error)
	Remove(ctx context.Context, userID snowflake.ID, productID string) error
	List(ctx context.Context, userID snowflake.ID) ([]Response, error)
	IsFavorite(ctx context.Context, userID snowflake.ID, productID string) (bool, error)
}

type Response struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Product   productdomain.Response `json:"product"`
	CreatedAt time.Time              `json:"created_at"`
}

var (
	ErrInvalidProductID = errors.New("invalid_product_id")
	ErrAlreadyFavorite  = errors.New("already_favorite")
	ErrNotFound         = errors.New("favorite_not_found")
)
