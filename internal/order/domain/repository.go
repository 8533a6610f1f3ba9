package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderLine, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, afterID snowflake.ID, limit int) ([]Order, error)
	// MarkPaid moves a pending order to paid. It reports false when the order
	// was not pending.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, provider, transactionID string, at time.Time) (bool, error)
	// MarkBonusCredited stamps bonus_credited_at once. It reports false when
	// the stamp was already present.
	MarkBonusCredited(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	// ListUnsettled returns paid orders last touched before the cutoff that
	// have no payment record yet, ordered by id.
	ListUnsettled(ctx context.Context, db *gorm.DB, before time.Time, afterID snowflake.ID, limit int) ([]Order, error)
}
