package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusReleased  Status = "released"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Hold delays fund availability for a placement until its release date.
type Hold struct {
	ID                   snowflake.ID    `json:"id" gorm:"primaryKey"`
	PlacementID          string          `json:"placement_id" gorm:"type:varchar(64);not null;index"`
	PayoutID             *snowflake.ID   `json:"payout_id,omitempty" gorm:"index"`
	HoldAmount           decimal.Decimal `json:"hold_amount" gorm:"type:numeric(14,2);not null"`
	HoldReason           string          `json:"hold_reason" gorm:"type:text;not null"`
	HeldAt               time.Time       `json:"held_at" gorm:"not null"`
	ReleaseScheduledDate time.Time       `json:"release_scheduled_date" gorm:"not null;index:idx_escrow_holds_due,priority:2"`
	Status               Status          `json:"status" gorm:"type:varchar(16);not null;index:idx_escrow_holds_due,priority:1"`
	ReleasedAt           *time.Time      `json:"released_at,omitempty"`
	ReleasedBy           *string         `json:"released_by,omitempty" gorm:"type:varchar(64)"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason   *string         `json:"cancellation_reason,omitempty" gorm:"type:text"`
	ExpiredAt            *time.Time      `json:"expired_at,omitempty"`
	CreatedBy            string          `json:"created_by" gorm:"type:varchar(64);not null"`
	CreatedAt            time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time       `json:"updated_at" gorm:"not null"`
}

func (Hold) TableName() string { return "escrow_holds" }
