package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	CountByOrderLine(ctx context.Context, db *gorm.DB, orderLineID snowflake.ID) (int64, error)
	BatchCreate(ctx context.Context, db *gorm.DB, licenses []*License) error
	ListByOrderLines(ctx context.Context, db *gorm.DB, orderLineIDs []snowflake.ID) ([]License, error)
}
