package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(Dial),
	fx.Provide(providePublisher),
)

func providePublisher(lc fx.Lifecycle, conn *amqp.Connection, cfg config.Config, log *zap.Logger, m *metrics.Metrics) (Publisher, error) {
	if conn == nil {
		return NewLogPublisher(log), nil
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(ch.Close))
	return NewAMQPPublisher(ch, cfg.Broker.Exchange, log, m), nil
}
