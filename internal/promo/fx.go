package promo

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/promo/domain"
	"github.com/smallbiznis/placementpay/internal/promo/repository"
	"github.com/smallbiznis/placementpay/internal/promo/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("promo.service",
	fx.Provide(repository.Provide),
	fx.Provide(newPromoCache, fx.Private),
	fx.Provide(service.NewService),
)

func newPromoCache(client redis.UniversalClient, clk clock.Clock, log *zap.Logger) cache.Cache[string, domain.PromoCode] {
	return cache.NewStringCache[domain.PromoCode](client, "placementpay", clk, log)
}
