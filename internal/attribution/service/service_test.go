package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/attribution/domain"
	"github.com/smallbiznis/placementpay/internal/attribution/repository"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	conn := dbtest.Open(t, &domain.Snapshot{})
	return NewService(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: dbtest.Node(t),
		Clock: clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
		Rates: config.NewStaticRateTableHolder(config.DefaultRateTable()),
		Repo:  repository.Provide(),
	}).(*Service)
}

func allRoles(tier string) []domain.Participant {
	return []domain.Participant{
		{Role: domain.RoleCandidateRecruiter, PayeeID: "cr-1", Tier: tier},
		{Role: domain.RoleCompanyRecruiter, PayeeID: "co-1", Tier: tier},
		{Role: domain.RoleJobOwner, PayeeID: "jo-1", Tier: tier},
		{Role: domain.RoleCandidateSourcer, PayeeID: "cs-1", Tier: tier},
		{Role: domain.RoleCompanySourcer, PayeeID: "ss-1", Tier: tier},
	}
}

func TestCreateSnapshotAssignsRatesFromTier(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	snap, err := svc.CreateSnapshot(ctx, domain.PlacementFacts{
		PlacementID:  "plc-1",
		TotalFee:     decimal.NewFromInt(10000),
		Participants: allRoles("pro"),
	})
	require.NoError(t, err)

	assignments := snap.Assignments()
	require.Len(t, assignments, 5)
	expected := []int64{30, 20, 10, 10, 10}
	for i, a := range assignments {
		assert.Equal(t, domain.Roles[i], a.Role)
		assert.True(t, a.Rate.Equal(decimal.NewFromInt(expected[i])), "role %s rate %s", a.Role, a.Rate)
	}
	assert.True(t, snap.RateSum().Equal(decimal.NewFromInt(80)))

	stored, err := svc.GetSnapshot(ctx, "plc-1")
	require.NoError(t, err)
	assert.Len(t, stored.Assignments(), 5)
	assert.True(t, stored.TotalFee.Equal(decimal.NewFromInt(10000)))
}

func TestCreateSnapshotRejectsUnknownTier(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateSnapshot(context.Background(), domain.PlacementFacts{
		PlacementID: "plc-2",
		TotalFee:    decimal.NewFromInt(500),
		Participants: []domain.Participant{
			{Role: domain.RoleCandidateRecruiter, PayeeID: "cr-1", Tier: "platinum"},
		},
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidTier))

	_, err = svc.GetSnapshot(context.Background(), "plc-2")
	assert.True(t, errors.Is(err, domain.ErrSnapshotNotFound))
}

func TestCreateSnapshotValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSnapshot(ctx, domain.PlacementFacts{TotalFee: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, domain.ErrInvalidPlacement))

	_, err = svc.CreateSnapshot(ctx, domain.PlacementFacts{PlacementID: "p", TotalFee: decimal.Zero})
	assert.True(t, errors.Is(err, domain.ErrInvalidTotalFee))

	_, err = svc.CreateSnapshot(ctx, domain.PlacementFacts{
		PlacementID: "p",
		TotalFee:    decimal.NewFromInt(1),
		Participants: []domain.Participant{
			{Role: domain.RoleJobOwner, PayeeID: "a", Tier: "free"},
			{Role: domain.RoleJobOwner, PayeeID: "b", Tier: "free"},
		},
	})
	assert.True(t, errors.Is(err, domain.ErrDuplicateRole))

	_, err = svc.CreateSnapshot(ctx, domain.PlacementFacts{
		PlacementID:  "p",
		TotalFee:     decimal.NewFromInt(1),
		Participants: []domain.Participant{{Role: "referrer", PayeeID: "a", Tier: "free"}},
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidRole))
}

func TestCreateSnapshotRejectsMixedTiersAbove100(t *testing.T) {
	conn := dbtest.Open(t, &domain.Snapshot{})
	svc := NewService(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: dbtest.Node(t),
		Clock: clock.SystemClock{},
		Rates: config.NewStaticRateTableHolder(config.RateTable{Tiers: map[string]map[string]float64{
			"a": {"candidate_recruiter": 70},
			"b": {"company_recruiter": 40},
		}}),
		Repo: repository.Provide(),
	})

	_, err := svc.CreateSnapshot(context.Background(), domain.PlacementFacts{
		PlacementID: "plc-3",
		TotalFee:    decimal.NewFromInt(100),
		Participants: []domain.Participant{
			{Role: domain.RoleCandidateRecruiter, PayeeID: "x", Tier: "a"},
			{Role: domain.RoleCompanyRecruiter, PayeeID: "y", Tier: "b"},
		},
	})
	assert.True(t, errors.Is(err, domain.ErrRateSumExceeded))
}

func TestCreateSnapshotIsWriteOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	facts := domain.PlacementFacts{
		PlacementID:  "plc-4",
		TotalFee:     decimal.NewFromInt(2000),
		Participants: allRoles("free")[:1],
	}

	first, err := svc.CreateSnapshot(ctx, facts)
	require.NoError(t, err)

	facts.TotalFee = decimal.NewFromInt(9999)
	second, err := svc.CreateSnapshot(ctx, facts)
	assert.True(t, errors.Is(err, domain.ErrSnapshotExists))
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.TotalFee.Equal(decimal.NewFromInt(2000)))
}

func TestCreateSnapshotSkipsEmptyPayees(t *testing.T) {
	svc := newTestService(t)

	snap, err := svc.CreateSnapshot(context.Background(), domain.PlacementFacts{
		PlacementID: "plc-5",
		TotalFee:    decimal.NewFromInt(1000),
		Participants: []domain.Participant{
			{Role: domain.RoleCandidateRecruiter, PayeeID: "cr-1", Tier: "free"},
			{Role: domain.RoleCompanyRecruiter, PayeeID: "  ", Tier: "unknown"},
		},
	})
	require.NoError(t, err)
	require.Len(t, snap.Assignments(), 1)
	assert.Nil(t, snap.CompanyRecruiterID)
	assert.False(t, snap.CompanyRecruiterRate.Valid)
}
