package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/promo/domain"
	"github.com/smallbiznis/placementpay/internal/promo/repository"
	"github.com/smallbiznis/placementpay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type countingRepo struct {
	domain.Repository
	calls int
}

func (r *countingRepo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.PromoCode, error) {
	r.calls++
	return r.Repository.FindByCode(ctx, db, code)
}

func newTestService(t *testing.T) (*Service, *countingRepo, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &domain.PromoCode{})
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	repo := &countingRepo{Repository: repository.Provide()}
	svc := NewService(Params{
		DB:     conn,
		Log:    zaptest.NewLogger(t),
		Clock:  clk,
		Config: config.Config{CacheTTL: config.CacheConfig{Promo: time.Minute}},
		Repo:   repo,
		Cache:  cache.NewTTLCache[string, domain.PromoCode](clk),
	}).(*Service)
	return svc, repo, clk, conn
}

func seed(t *testing.T, conn *gorm.DB, promo domain.PromoCode) {
	t.Helper()
	promo.PercentOff = decimal.NewFromInt(20)
	promo.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	promo.UpdatedAt = promo.CreatedAt
	require.NoError(t, conn.Create(&promo).Error)
}

func TestValidateReadsThroughCache(t *testing.T) {
	svc, repo, clk, conn := newTestService(t)
	seed(t, conn, domain.PromoCode{ID: 1, Code: "SUMMER25", Active: true})
	ctx := context.Background()

	promo, err := svc.Validate(ctx, " summer25 ")
	require.NoError(t, err)
	assert.True(t, promo.PercentOff.Equal(decimal.NewFromInt(20)))

	_, err = svc.Validate(ctx, "SUMMER25")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	clk.Advance(time.Minute)
	_, err = svc.Validate(ctx, "SUMMER25")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestValidateRejections(t *testing.T) {
	svc, _, clk, conn := newTestService(t)
	ctx := context.Background()
	expires := clk.Now().Add(30 * time.Second)
	limit := 5
	seed(t, conn, domain.PromoCode{ID: 1, Code: "SOON", Active: true, ExpiresAt: &expires})
	seed(t, conn, domain.PromoCode{ID: 2, Code: "USEDUP", Active: true, MaxRedemptions: &limit, Redemptions: 5})

	_, err := svc.Validate(ctx, "MISSING")
	assert.True(t, errors.Is(err, domain.ErrPromoNotFound))

	_, err = svc.Validate(ctx, "USEDUP")
	assert.True(t, errors.Is(err, domain.ErrPromoExhausted))

	_, err = svc.Validate(ctx, "SOON")
	require.NoError(t, err)
	clk.Advance(30 * time.Second)
	_, err = svc.Validate(ctx, "SOON")
	assert.True(t, errors.Is(err, domain.ErrPromoExpired))
}
