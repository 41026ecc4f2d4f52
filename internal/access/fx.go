package access

import (
	"github.com/smallbiznis/placementpay/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("access",
	fx.Provide(func(cfg config.Config) Resolver {
		return NewJWTResolver(cfg.AuthJWTSecret)
	}),
	fx.Provide(NewAuthorizer),
)
