package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Favorite marks a product a user wants to keep an eye on. A user holds a
// product at most once.
type Favorite struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID `json:"user_id" gorm:"not null;uniqueIndex:ux_favorites_user_product,priority:1"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null;uniqueIndex:ux_favorites_user_product,priority:2;index"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Favorite) TableName() string { return "favorites" }
