package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/billing/domain"
	"github.com/smallbiznis/placementpay/internal/billing/repository"
	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	conn := dbtest.Open(t, &domain.Subscription{}, &domain.Invoice{}, &domain.ConnectedAccount{})
	clk := clock.NewFakeClock(t0)
	cfg := config.Config{
		Rates:    config.RatesConfig{DefaultTier: "free"},
		CacheTTL: config.CacheConfig{Tier: time.Minute},
	}
	svc := NewService(Params{
		DB:        conn,
		Log:       zaptest.NewLogger(t),
		GenID:     dbtest.Node(t),
		Clock:     clk,
		Config:    cfg,
		Repo:      repository.Provide(),
		TierCache: cache.NewTTLCache[string, string](clk),
	}).(*Service)
	return svc, clk
}

func TestResolveTierDefaultsWithoutSubscription(t *testing.T) {
	svc, _ := newTestService(t)

	tier, err := svc.ResolveTier(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "free", tier)
}

func TestApplySubscriptionSetsTierAndInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tier, err := svc.ResolveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "free", tier)

	require.NoError(t, svc.ApplySubscription(ctx, domain.SubscriptionUpdate{
		ProviderSubscriptionID: "sub_1",
		ProviderCustomerID:     "cus_1",
		UserID:                 "user-1",
		Tier:                   "Pro",
		Status:                 "active",
		OccurredAt:             t0,
	}))

	tier, err = svc.ResolveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "pro", tier)
}

func TestApplySubscriptionIgnoresStaleEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ApplySubscription(ctx, domain.SubscriptionUpdate{
		ProviderSubscriptionID: "sub_1",
		ProviderCustomerID:     "cus_1",
		UserID:                 "user-1",
		Tier:                   "partner",
		Status:                 "active",
		OccurredAt:             t0.Add(time.Hour),
	}))
	require.NoError(t, svc.ApplySubscription(ctx, domain.SubscriptionUpdate{
		ProviderSubscriptionID: "sub_1",
		ProviderCustomerID:     "cus_1",
		UserID:                 "user-1",
		Tier:                   "partner",
		Status:                 "canceled",
		OccurredAt:             t0,
	}))

	var stored domain.Subscription
	require.NoError(t, svc.db.Where("provider_subscription_id = ?", "sub_1").Take(&stored).Error)
	assert.Equal(t, "active", stored.Status)

	tier, err := svc.ResolveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "partner", tier)
}

func TestCanceledSubscriptionFallsBackToDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ApplySubscription(ctx, domain.SubscriptionUpdate{
		ProviderSubscriptionID: "sub_2",
		UserID:                 "user-2",
		Tier:                   "pro",
		Status:                 "canceled",
		OccurredAt:             t0,
	}))

	tier, err := svc.ResolveTier(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "free", tier)
}

func TestApplySubscriptionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.ApplySubscription(ctx, domain.SubscriptionUpdate{UserID: "u"})
	assert.True(t, errors.Is(err, domain.ErrMissingProviderID))

	err = svc.ApplySubscription(ctx, domain.SubscriptionUpdate{ProviderSubscriptionID: "sub_3"})
	assert.True(t, errors.Is(err, domain.ErrMissingUser))
}

func TestApplyInvoiceUpserts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ApplyInvoice(ctx, domain.InvoiceUpdate{
		ProviderInvoiceID:  "in_1",
		ProviderCustomerID: "cus_1",
		Status:             "open",
		AmountDue:          decimal.RequireFromString("49.00"),
		Currency:           "USD",
		OccurredAt:         t0,
	}))
	require.NoError(t, svc.ApplyInvoice(ctx, domain.InvoiceUpdate{
		ProviderInvoiceID:  "in_1",
		ProviderCustomerID: "cus_1",
		UserID:             "user-1",
		Status:             "paid",
		AmountDue:          decimal.RequireFromString("49.00"),
		AmountPaid:         decimal.RequireFromString("49.00"),
		Currency:           "USD",
		OccurredAt:         t0.Add(time.Minute),
	}))

	var rows []domain.Invoice
	require.NoError(t, svc.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "paid", rows[0].Status)
	assert.Equal(t, "usd", rows[0].Currency)
	assert.True(t, rows[0].AmountPaid.Equal(decimal.NewFromInt(49)))
}

func TestTransferDestination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dest, err := svc.TransferDestination(ctx, "payee-1")
	require.NoError(t, err)
	assert.Empty(t, dest)

	require.NoError(t, svc.ApplyConnectedAccount(ctx, domain.AccountUpdate{
		ProviderAccountID: "acct_1",
		UserID:            "payee-1",
		OccurredAt:        t0,
	}))
	_, err = svc.TransferDestination(ctx, "payee-1")
	assert.True(t, errors.Is(err, domain.ErrPayoutsDisabled))

	require.NoError(t, svc.ApplyConnectedAccount(ctx, domain.AccountUpdate{
		ProviderAccountID: "acct_1",
		UserID:            "payee-1",
		PayoutsEnabled:    true,
		DetailsSubmitted:  true,
		OccurredAt:        t0.Add(time.Second),
	}))
	dest, err = svc.TransferDestination(ctx, "payee-1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", dest)
}
