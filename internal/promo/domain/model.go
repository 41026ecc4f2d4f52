package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PromoCode struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	Code           string          `json:"code" gorm:"type:varchar(64);not null;uniqueIndex"`
	PercentOff     decimal.Decimal `json:"percent_off" gorm:"type:numeric(5,2);not null"`
	MaxRedemptions *int            `json:"max_redemptions,omitempty"`
	Redemptions    int             `json:"redemptions" gorm:"not null;default:0"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	Active         bool            `json:"active" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (PromoCode) TableName() string { return "promo_codes" }
