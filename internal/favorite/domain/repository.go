package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the user already holds the product.
	Insert(ctx context.Context, db *gorm.DB, favorite *Favorite) (bool, error)
	Find(ctx context.Context, db *gorm.DB, userID, productID snowflake.ID) (*Favorite, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Favorite, error)
	// Delete reports false when there was nothing to remove.
	Delete(ctx context.Context, db *gorm.DB, userID, productID snowflake.ID) (bool, error)
}
