package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes persistent JSON messages to a topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
	timeout  time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewAMQPPublisher(ch Channel, exchange string, log *zap.Logger, m *metrics.Metrics) *AMQPPublisher {
	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		log:      log.Named("events.amqp"),
		metrics:  m,
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		p.fail(ctx, event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	})
	p.mu.Unlock()
	if err != nil {
		p.fail(ctx, event, err)
		return
	}

	p.metrics.RecordEventPublished(ctx, event.Type, "published")
	p.log.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)
}

func (p *AMQPPublisher) fail(ctx context.Context, event Event, err error) {
	p.metrics.RecordEventPublished(ctx, event.Type, "failed")
	p.log.Warn("event publish failed",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Error(err),
	)
}

// Dial opens the broker connection and declares the topic exchange.
// It returns a nil connection when the broker is disabled.
func Dial(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*amqp.Connection, error) {
	if !cfg.Broker.Enabled {
		log.Info("message broker disabled")
		return nil, nil
	}
	conn, err := amqp.Dial(cfg.Broker.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := DeclareExchange(ch, cfg.Broker.Exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("closing broker connection")
			return conn.Close()
		},
	})
	log.Info("message broker connected", zap.String("exchange", cfg.Broker.Exchange))
	return conn, nil
}

func DeclareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
}
