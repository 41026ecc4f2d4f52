package attribution

import (
	"github.com/smallbiznis/placementpay/internal/attribution/domain"
	"github.com/smallbiznis/placementpay/internal/attribution/repository"
	"github.com/smallbiznis/placementpay/internal/attribution/service"
	"github.com/smallbiznis/placementpay/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("attribution.service",
	fx.Provide(func(h *config.RateTableHolder) domain.RateTable { return h }),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
