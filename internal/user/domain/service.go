package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Profile(ctx context.Context, userID snowflake.ID) (*ProfileResponse, error)
}

// ProfileResponse is what a user sees about their own account, including
// the bonus balance fulfillment credits.
type ProfileResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	BonusPoints int64     `json:"bonus_points"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
