package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypePayoutScheduleProcessed = "payout_schedule.processed"
	TypePayoutScheduleFailed    = "payout_schedule.failed"
	TypeEscrowHoldReleased      = "escrow_hold.released"
	TypeEscrowHoldCancelled     = "escrow_hold.cancelled"
	TypeEscrowHoldExpired       = "escrow_hold.expired"
	TypePlacementSplitsCreated  = "placement.splits_created"

	// TypePlacementCreated is consumed, never published by this service.
	TypePlacementCreated = "placement.created"
)

// Event is a domain event. Type doubles as the broker routing key.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

func New(eventType string, at time.Time, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// Publisher emits events without reporting failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
