package payout

import (
	billingdomain "github.com/smallbiznis/placementpay/internal/billing/domain"
	escrowdomain "github.com/smallbiznis/placementpay/internal/escrow/domain"
	"github.com/smallbiznis/placementpay/internal/payout/domain"
	"github.com/smallbiznis/placementpay/internal/payout/repository"
	"github.com/smallbiznis/placementpay/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		func(s escrowdomain.Service) domain.FundsGuard { return s },
		func(s billingdomain.Service) domain.AccountDirectory { return s },
		fx.Private,
	),
	fx.Provide(service.NewService),
)
