package consumer

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/events"
	"go.uber.org/zap"
)

// Consumer drains the placement queue into a Handler.
type Consumer struct {
	conn    *amqp.Connection
	cfg     config.BrokerConfig
	handler *Handler
	log     *zap.Logger

	cancel context.CancelFunc
	done   sync.WaitGroup
}

func NewConsumer(conn *amqp.Connection, cfg config.Config, handler *Handler, log *zap.Logger) *Consumer {
	return &Consumer{
		conn:    conn,
		cfg:     cfg.Broker,
		handler: handler,
		log:     log.Named("placement.consumer"),
	}
}

// Setup declares the topology the consumer reads from.
func Setup(ch *amqp.Channel, cfg config.BrokerConfig) error {
	if err := events.DeclareExchange(ch, cfg.Exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.Queue, events.TypePlacementCreated, cfg.Exchange, false, nil); err != nil {
		return err
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	return ch.Qos(prefetch, 0, false)
}

func (c *Consumer) Start(context.Context) error {
	if c.conn == nil {
		c.log.Info("message broker disabled, placement consumer not started")
		return nil
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	if err := Setup(ch, c.cfg); err != nil {
		_ = ch.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "placementpay", false, false, false, false, nil)
	if err != nil {
		cancel()
		_ = ch.Close()
		return err
	}
	c.cancel = cancel

	c.done.Add(1)
	go func() {
		defer c.done.Done()
		defer ch.Close()
		c.Run(ctx, deliveries)
	}()
	c.log.Info("placement consumer started",
		zap.String("queue", c.cfg.Queue),
		zap.String("routing_key", events.TypePlacementCreated),
	)
	return nil
}

// Run handles deliveries one at a time until ctx ends or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() == nil {
					c.log.Warn("delivery channel closed")
				}
				return
			}
			c.handler.HandleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	stopped := make(chan struct{})
	go func() {
		c.done.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		c.log.Info("placement consumer stopped")
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("placement consumer did not stop in time"), ctx.Err())
	}
}
