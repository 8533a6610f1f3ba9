package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/license/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CountByOrderLine(ctx context.Context, db *gorm.DB, orderLineID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.License{}).
		Where("order_line_id = ?", orderLineID).
		Count(&count).Error
	return count, err
}

func (r *repo) BatchCreate(ctx context.Context, db *gorm.DB, licenses []*domain.License) error {
	if len(licenses) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(licenses, 100).Error
}

func (r *repo) ListByOrderLines(ctx context.Context, db *gorm.DB, orderLineIDs []snowflake.ID) ([]domain.License, error) {
	if len(orderLineIDs) == 0 {
		return nil, nil
	}
	var items []domain.License
	err := db.WithContext(ctx).
		Where("order_line_id IN ?", orderLineIDs).
		Order("order_line_id ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
