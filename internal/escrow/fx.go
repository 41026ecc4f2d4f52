package escrow

import (
	"github.com/smallbiznis/placementpay/internal/escrow/repository"
	"github.com/smallbiznis/placementpay/internal/escrow/service"
	"go.uber.org/fx"
)

var Module = fx.Module("escrow.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
