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
	"github.com/smallbiznis/placementpay/internal/escrow"
	"github.com/smallbiznis/placementpay/internal/events"
	"github.com/smallbiznis/placementpay/internal/observability"
	"github.com/smallbiznis/placementpay/internal/payout"
	"github.com/smallbiznis/placementpay/internal/provider"
	"github.com/smallbiznis/placementpay/internal/schedule"
	"github.com/smallbiznis/placementpay/internal/scheduler"
	"github.com/smallbiznis/placementpay/internal/split"
	"github.com/smallbiznis/placementpay/pkg/db"
	"go.uber.org/fx"
)

// The sweeps run here without the HTTP server or the broker consumer.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		events.Module,
		provider.Module,
		access.Module,

		// Domain services required by the sweeps
		attribution.Module,
		split.Module,
		audit.Module,
		billing.Module,
		escrow.Module,
		payout.Module,
		schedule.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
