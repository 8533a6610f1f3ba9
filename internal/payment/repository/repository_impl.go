package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRecord(ctx context.Context, db *gorm.DB, provider, transactionID string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_transaction_id = ?", provider, transactionID).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) (bool, error) {
	if record == nil {
		return false, gorm.ErrInvalidData
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_transaction_id"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListRecordsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.PaymentRecord, error) {
	var items []domain.PaymentRecord
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertCapture(ctx context.Context, db *gorm.DB, event *domain.CaptureEvent) (bool, error) {
	if event == nil {
		return false, gorm.ErrInvalidData
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindCaptureByReference(ctx context.Context, db *gorm.DB, provider, reference string) (*domain.CaptureEvent, error) {
	var item domain.CaptureEvent
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_reference = ?", provider, reference).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN status = ? THEN 0 ELSE 1 END, received_at DESC, id DESC",
			Vars:               []any{domain.CaptureStatusSucceeded},
			WithoutParentheses: true,
		}}).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindSucceededCapture(ctx context.Context, db *gorm.DB, provider, transactionID string) (*domain.CaptureEvent, error) {
	var item domain.CaptureEvent
	err := db.WithContext(ctx).
		Where("provider = ? AND transaction_id = ? AND status = ?", provider, transactionID, domain.CaptureStatusSucceeded).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "received_at"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}}).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
