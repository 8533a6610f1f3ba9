package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const StatusActive Status = "Active"

type License struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID   snowflake.ID `json:"product_id" gorm:"not null;index"`
	OrderLineID snowflake.ID `json:"order_line_id" gorm:"not null;index"`
	LicenseKey  string       `json:"license_key" gorm:"type:text;not null;uniqueIndex"`
	Status      Status       `json:"status" gorm:"type:text;not null"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (License) TableName() string { return "licenses" }
