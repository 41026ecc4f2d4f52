package split

import (
	"github.com/smallbiznis/placementpay/internal/split/repository"
	"github.com/smallbiznis/placementpay/internal/split/service"
	"go.uber.org/fx"
)

var Module = fx.Module("split.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
