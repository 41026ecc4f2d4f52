package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/placementpay/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQPPublisherRoutesByType(t *testing.T) {
	ch := &fakeChannel{}
	p := NewAMQPPublisher(ch, "placements", zap.NewNop(), metrics.NewNop())

	event := New(TypeEscrowHoldReleased, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), map[string]any{"hold_id": "42"})
	p.Publish(context.Background(), event)

	assert.Equal(t, "placements", ch.exchange)
	assert.Equal(t, TypeEscrowHoldReleased, ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, event.ID, ch.msg.MessageId)

	var decoded Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "42", decoded.Payload["hold_id"])
}

func TestAMQPPublisherSwallowsErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := NewAMQPPublisher(&fakeChannel{err: errors.New("channel closed")}, "placements", zap.New(core), metrics.NewNop())

	p.Publish(context.Background(), New(TypePayoutScheduleFailed, time.Now(), nil))

	require.Equal(t, 1, logs.FilterMessage("event publish failed").Len())
}

func TestRecorderOfType(t *testing.T) {
	r := NewRecorder()
	r.Publish(context.Background(), New(TypeEscrowHoldReleased, time.Now(), nil))
	r.Publish(context.Background(), New(TypeEscrowHoldCancelled, time.Now(), nil))
	r.Publish(context.Background(), New(TypeEscrowHoldReleased, time.Now(), nil))

	assert.Len(t, r.Events(), 3)
	assert.Len(t, r.OfType(TypeEscrowHoldReleased), 2)
	assert.Empty(t, r.OfType(TypePayoutScheduleFailed))
}
