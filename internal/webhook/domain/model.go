package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// EventRecord is the idempotency ledger entry of one provider event.
type EventRecord struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider         string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	ProviderEventID  string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType        string         `json:"event_type" gorm:"type:varchar(128);not null;index"`
	APIVersion       string         `json:"api_version" gorm:"type:varchar(32)"`
	Livemode         bool           `json:"livemode" gorm:"not null;default:false"`
	Payload          datatypes.JSON `json:"payload" gorm:"not null"`
	ProcessingStatus Status         `json:"processing_status" gorm:"type:varchar(16);not null;index"`
	ProcessingError  *string        `json:"processing_error,omitempty" gorm:"type:text"`
	Attempts         int            `json:"attempts" gorm:"not null;default:0"`
	ReceivedAt       time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "webhook_events" }

// Outcome is what Handle did with a delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)
