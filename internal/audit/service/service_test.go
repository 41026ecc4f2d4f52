package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/access"
	auditdomain "github.com/smallbiznis/placementpay/internal/audit/domain"
	"github.com/smallbiznis/placementpay/internal/audit/repository"
	"github.com/smallbiznis/placementpay/internal/clock"
	obscontext "github.com/smallbiznis/placementpay/internal/observability/context"
	"github.com/smallbiznis/placementpay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    dbtest.Open(t, &auditdomain.PayoutAuditLog{}),
		Log:   zaptest.NewLogger(t),
		GenID: dbtest.Node(t),
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, clk
}

func TestRecordUsesCallerFromContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := access.WithContext(context.Background(), access.Context{UserID: "admin-1", Roles: []string{access.RoleAdmin}})
	ctx = obscontext.WithRequestID(ctx, "req-9")
	amount := decimal.RequireFromString("250.50")

	err := svc.Record(ctx, auditdomain.Entry{
		PayoutID:  42,
		EventType: auditdomain.EventAmountChange,
		NewAmount: &amount,
		Reason:    "hold adjusted",
		Metadata:  map[string]any{"destination": "acct_1234567890", "hold_id": "7"},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListRequest{PayoutID: 42})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin-1", *entry.ActorID)
	assert.Equal(t, access.RoleAdmin, *entry.ActorRole)
	assert.Equal(t, "req-9", *entry.RequestID)
	assert.True(t, entry.NewAmount.Valid)
	assert.True(t, entry.NewAmount.Decimal.Equal(amount))
	assert.False(t, entry.OldAmount.Valid)
	assert.Equal(t, "acct_****7890", entry.Metadata["destination"])
	assert.Equal(t, "7", entry.Metadata["hold_id"])
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{
		PayoutID:  1,
		EventType: auditdomain.EventFailed,
		Reason:    "transfer rejected",
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListRequest{PayoutID: 1})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "system", *resp.AuditLogs[0].ActorID)
	assert.Equal(t, access.RoleSystem, *resp.AuditLogs[0].ActorRole)
}

func TestRecordValidation(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Record(context.Background(), auditdomain.Entry{EventType: auditdomain.EventCreated})
	assert.True(t, errors.Is(err, auditdomain.ErrInvalidPayout))

	err = svc.Record(context.Background(), auditdomain.Entry{PayoutID: 1, EventType: "deleted"})
	assert.True(t, errors.Is(err, auditdomain.ErrInvalidEventType))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{
			PayoutID:  9,
			EventType: auditdomain.EventStatusChange,
			NewStatus: "processing",
		}))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.Record(ctx, auditdomain.Entry{PayoutID: 10, EventType: auditdomain.EventCreated}))

	req := auditdomain.ListRequest{PayoutID: 9}
	req.PageSize = 2
	first, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	seen := map[string]bool{}
	for _, l := range first.AuditLogs {
		seen[l.ID.String()] = true
	}

	req.PageToken = first.NextPageToken
	second, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	for _, l := range second.AuditLogs {
		assert.False(t, seen[l.ID.String()])
		seen[l.ID.String()] = true
	}

	req.PageToken = second.NextPageToken
	third, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, third.AuditLogs, 1)
	assert.False(t, third.HasMore)

	req.PageToken = "not-a-cursor"
	_, err = svc.List(ctx, req)
	assert.True(t, errors.Is(err, auditdomain.ErrInvalidPageToken))
}
