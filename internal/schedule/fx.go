package schedule

import (
	payoutdomain "github.com/smallbiznis/placementpay/internal/payout/domain"
	"github.com/smallbiznis/placementpay/internal/schedule/domain"
	"github.com/smallbiznis/placementpay/internal/schedule/repository"
	"github.com/smallbiznis/placementpay/internal/schedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("schedule.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(s payoutdomain.Service) domain.PayoutCreator { return s }, fx.Private),
	fx.Provide(service.NewService),
)
