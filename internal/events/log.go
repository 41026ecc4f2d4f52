package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher only logs events. It is used when the broker is disabled.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.log")}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	p.log.Info("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Any("payload", event.Payload),
	)
}
