package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/attribution"
	"github.com/smallbiznis/placementpay/internal/billing"
	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/consumer"
	"github.com/smallbiznis/placementpay/internal/events"
	"github.com/smallbiznis/placementpay/internal/observability"
	"github.com/smallbiznis/placementpay/internal/split"
	"github.com/smallbiznis/placementpay/pkg/db"
	"go.uber.org/fx"
)

// The broker consumer turns placement.created messages into snapshots and splits.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		events.Module,

		attribution.Module,
		billing.Module,
		split.Module,

		consumer.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
