package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/internal/promo/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Repo   domain.Repository
	Cache  cache.Cache[string, domain.PromoCode]
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
	cache cache.Cache[string, domain.PromoCode]
	ttl   time.Duration
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("promo.service"),
		clock: p.Clock,
		repo:  p.Repo,
		cache: p.Cache,
		ttl:   p.Config.CacheTTL.Promo,
	}
}

// Validate returns the promo when it can still be redeemed. Lookups are
// cached for the configured TTL; expiry is checked on every call.
func (s *Service) Validate(ctx context.Context, code string) (domain.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.PromoCode{}, domain.ErrPromoNotFound
	}

	key := cache.Key("promo", code)
	promo, ok := s.cache.Get(ctx, key)
	if !ok {
		found, err := s.repo.FindByCode(ctx, s.db, code)
		if err != nil {
			return domain.PromoCode{}, err
		}
		if found == nil {
			return domain.PromoCode{}, errs.Detail(domain.ErrPromoNotFound, "code %s", code)
		}
		promo = *found
		s.cache.Set(ctx, key, promo, s.ttl)
	}

	if !promo.Active {
		return domain.PromoCode{}, errs.Detail(domain.ErrPromoExpired, "code %s is inactive", code)
	}
	if promo.ExpiresAt != nil && !s.clock.Now().Before(*promo.ExpiresAt) {
		return domain.PromoCode{}, errs.Detail(domain.ErrPromoExpired, "code %s expired", code)
	}
	if promo.MaxRedemptions != nil && promo.Redemptions >= *promo.MaxRedemptions {
		return domain.PromoCode{}, errs.Detail(domain.ErrPromoExhausted, "code %s", code)
	}
	return promo, nil
}
