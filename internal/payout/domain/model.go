package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
)

// Payout batches the pending transactions of a placement released by a schedule.
type Payout struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	PlacementID      string          `json:"placement_id" gorm:"type:varchar(64);not null;index"`
	ScheduleID       snowflake.ID    `json:"schedule_id" gorm:"not null;index"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency         string          `json:"currency" gorm:"type:varchar(3);not null"`
	Status           Status          `json:"status" gorm:"type:varchar(16);not null;index"`
	TransactionCount int             `json:"transaction_count" gorm:"not null"`
	FailureReason    *string         `json:"failure_reason,omitempty" gorm:"type:text"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }

// Target identifies what a schedule wants paid.
type Target struct {
	ScheduleID  snowflake.ID
	PlacementID string
	PayoutID    *snowflake.ID
}
