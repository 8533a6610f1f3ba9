package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/user/domain"
	"github.com/smallbiznis/storefront/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, user *domain.User) error {
	if user == nil {
		return gorm.ErrInvalidData
	}
	return repository.ProvideStore[domain.User](db).Add(ctx, user)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return repository.ProvideStore[domain.User](db).GetByID(ctx, id)
}

func (r *repo) SetBonusPoints(ctx context.Context, db *gorm.DB, user *domain.User, balance int64, at time.Time) (bool, error) {
	if user == nil {
		return false, gorm.ErrInvalidData
	}
	if balance < 0 {
		return false, domain.ErrInsufficientBonusPoints
	}
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]any{
			"bonus_points": balance,
			"version":      user.Version + 1,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	user.BonusPoints = balance
	user.Version++
	user.UpdatedAt = at
	return true, nil
}
