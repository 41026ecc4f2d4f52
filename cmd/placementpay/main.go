package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/access"
	"github.com/smallbiznis/placementpay/internal/attribution"
	"github.com/smallbiznis/placementpay/internal/audit"
	"github.com/smallbiznis/placementpay/internal/billing"
	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/consumer"
	"github.com/smallbiznis/placementpay/internal/escrow"
	"github.com/smallbiznis/placementpay/internal/events"
	"github.com/smallbiznis/placementpay/internal/migration"
	"github.com/smallbiznis/placementpay/internal/observability"
	"github.com/smallbiznis/placementpay/internal/payout"
	"github.com/smallbiznis/placementpay/internal/promo"
	"github.com/smallbiznis/placementpay/internal/provider"
	"github.com/smallbiznis/placementpay/internal/ratelimit"
	"github.com/smallbiznis/placementpay/internal/schedule"
	"github.com/smallbiznis/placementpay/internal/scheduler"
	"github.com/smallbiznis/placementpay/internal/server"
	"github.com/smallbiznis/placementpay/internal/split"
	"github.com/smallbiznis/placementpay/internal/webhook"
	"github.com/smallbiznis/placementpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		events.Module,
		provider.Module,
		access.Module,
		ratelimit.Module,

		// Functional Domains
		attribution.Module,
		split.Module,
		audit.Module,
		billing.Module,
		escrow.Module,
		payout.Module,
		schedule.Module,
		webhook.Module,
		promo.Module,

		// Runners
		server.Module,
		scheduler.Module,
		consumer.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
