package webhook

import (
	payoutdomain "github.com/smallbiznis/placementpay/internal/payout/domain"
	"github.com/smallbiznis/placementpay/internal/webhook/domain"
	"github.com/smallbiznis/placementpay/internal/webhook/repository"
	"github.com/smallbiznis/placementpay/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(s payoutdomain.Service) domain.PayoutSettler { return s }, fx.Private),
	fx.Provide(service.NewService),
)
