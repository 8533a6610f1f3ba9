package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository is the generic per-entity store. It offers no multi-entity
// atomicity on its own; callers that need it pass a transaction via WithTrx.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Add(ctx context.Context, resource *T) error
	BatchAdd(ctx context.Context, resources []*T) error
	GetByID(ctx context.Context, id any) (*T, error)
	GetAll(ctx context.Context) ([]*T, error)
	Find(ctx context.Context, query *T) ([]*T, error)
	FindOne(ctx context.Context, query *T) (*T, error)
	Update(ctx context.Context, resource *T) error
	ExistsBy(ctx context.Context, field string, value any) (bool, error)
	Count(ctx context.Context, query *T) (int64, error)
}
