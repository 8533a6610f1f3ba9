package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type User struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Username    string       `json:"username" gorm:"type:text;not null;uniqueIndex"`
	Email       string       `json:"email" gorm:"type:text;not null"`
	BonusPoints int64        `json:"bonus_points" gorm:"not null;default:0"`
	Version     int64        `json:"-" gorm:"not null;default:1"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

var (
	ErrNotFound                = errors.New("user_not_found")
	ErrInsufficientBonusPoints = errors.New("insufficient_bonus_points")
)
