package billing

import (
	"github.com/redis/go-redis/v9"
	attributiondomain "github.com/smallbiznis/placementpay/internal/attribution/domain"
	"github.com/smallbiznis/placementpay/internal/billing/domain"
	"github.com/smallbiznis/placementpay/internal/billing/repository"
	"github.com/smallbiznis/placementpay/internal/billing/service"
	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(newTierCache, fx.Private),
	fx.Provide(service.NewService),
	fx.Provide(func(s domain.Service) attributiondomain.TierResolver { return s }),
)

func newTierCache(client redis.UniversalClient, clk clock.Clock, log *zap.Logger) cache.Cache[string, string] {
	return cache.NewStringCache[string](client, "placementpay", clk, log)
}
