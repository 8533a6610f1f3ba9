package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	// SetBonusPoints writes balance only if the stored version still equals
	// user.Version. False means another writer got there first.
	SetBonusPoints(ctx context.Context, db *gorm.DB, user *User, balance int64, at time.Time) (bool, error)
}
