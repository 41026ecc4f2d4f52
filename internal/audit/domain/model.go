package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventCreated      EventType = "created"
	EventStatusChange EventType = "status_change"
	EventAmountChange EventType = "amount_change"
	EventAction       EventType = "action"
	EventFailed       EventType = "failed"
)

func (e EventType) Valid() bool {
	switch e {
	case EventCreated, EventStatusChange, EventAmountChange, EventAction, EventFailed:
		return true
	}
	return false
}

// PayoutAuditLog is an append-only trail entry for a payout.
type PayoutAuditLog struct {
	ID        snowflake.ID        `json:"id" gorm:"primaryKey"`
	PayoutID  snowflake.ID        `json:"payout_id" gorm:"not null;index:idx_payout_audit_logs_payout,priority:1"`
	EventType EventType           `json:"event_type" gorm:"type:varchar(32);not null"`
	OldStatus *string             `json:"old_status,omitempty" gorm:"type:varchar(32)"`
	NewStatus *string             `json:"new_status,omitempty" gorm:"type:varchar(32)"`
	OldAmount decimal.NullDecimal `json:"old_amount,omitempty" gorm:"type:numeric(14,2)"`
	NewAmount decimal.NullDecimal `json:"new_amount,omitempty" gorm:"type:numeric(14,2)"`
	Reason    *string             `json:"reason,omitempty" gorm:"type:text"`
	Metadata  datatypes.JSONMap   `json:"metadata,omitempty" gorm:"type:json"`
	ActorID   *string             `json:"actor_id,omitempty" gorm:"type:varchar(64)"`
	ActorRole *string             `json:"actor_role,omitempty" gorm:"type:varchar(32)"`
	RequestID *string             `json:"request_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt time.Time           `json:"created_at" gorm:"not null;index:idx_payout_audit_logs_payout,priority:2"`
}

func (PayoutAuditLog) TableName() string { return "payout_audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	PayoutID  snowflake.ID
	EventType string
	Cursor    *AuditCursor
	Limit     int
}
