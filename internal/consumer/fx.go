package consumer

import "go.uber.org/fx"

var Module = fx.Module("placement.consumer",
	fx.Provide(NewHandler),
	fx.Provide(NewConsumer),
	fx.Invoke(func(lc fx.Lifecycle, c *Consumer) {
		lc.Append(fx.Hook{OnStart: c.Start, OnStop: c.Stop})
	}),
)
