package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// MaxRetries is the retry_count at which a failed schedule stops being swept.
const MaxRetries = 3

// Schedule is a deferred trigger that initiates payout processing once due.
type Schedule struct {
	ID                      snowflake.ID  `json:"id" gorm:"primaryKey"`
	PlacementID             string        `json:"placement_id" gorm:"type:varchar(64);not null;index"`
	PayoutID                *snowflake.ID `json:"payout_id,omitempty" gorm:"index"`
	ScheduledDate           time.Time     `json:"scheduled_date" gorm:"not null;index:idx_payout_schedules_due,priority:2"`
	GuaranteeCompletionDate *time.Time    `json:"guarantee_completion_date,omitempty"`
	TriggerEvent            string        `json:"trigger_event" gorm:"type:varchar(64);not null"`
	Status                  Status        `json:"status" gorm:"type:varchar(16);not null;index:idx_payout_schedules_due,priority:1"`
	RetryCount              int           `json:"retry_count" gorm:"not null;default:0"`
	FailureReason           *string       `json:"failure_reason,omitempty" gorm:"type:text"`
	CancellationReason      *string       `json:"cancellation_reason,omitempty" gorm:"type:text"`
	CancelledAt             *time.Time    `json:"cancelled_at,omitempty"`
	ProcessedAt             *time.Time    `json:"processed_at,omitempty"`
	CreatedBy               string        `json:"created_by" gorm:"type:varchar(64);not null"`
	CreatedAt               time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt               time.Time     `json:"updated_at" gorm:"not null"`
}

func (Schedule) TableName() string { return "payout_schedules" }
