package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindAll(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Product, error)
	// AddSales sets sales_count to product.SalesCount+delta if the stored
	// version still matches product.Version. False means a concurrent writer won.
	AddSales(ctx context.Context, db *gorm.DB, product *Product, delta int64, at time.Time) (bool, error)
}
