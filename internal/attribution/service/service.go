package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/attribution/domain"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Rates domain.RateTable
	Repo  domain.Repository
	Tiers domain.TierResolver `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	rates domain.RateTable
	repo  domain.Repository
	tiers domain.TierResolver
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("attribution.service"),
		genID: p.GenID,
		clock: p.Clock,
		rates: p.Rates,
		repo:  p.Repo,
		tiers: p.Tiers,
	}
}

// CreateSnapshot records who participated in a placement and at which rate.
// An existing snapshot for the same placement is returned with ErrSnapshotExists.
func (s *Service) CreateSnapshot(ctx context.Context, facts domain.PlacementFacts) (*domain.Snapshot, error) {
	placementID := strings.TrimSpace(facts.PlacementID)
	if placementID == "" {
		return nil, domain.ErrInvalidPlacement
	}
	if !facts.TotalFee.IsPositive() {
		return nil, domain.ErrInvalidTotalFee
	}

	currency := strings.ToLower(strings.TrimSpace(facts.Currency))
	if currency == "" {
		currency = "usd"
	}

	snapshot := &domain.Snapshot{
		ID:          s.genID.Generate(),
		PlacementID: placementID,
		TotalFee:    facts.TotalFee.Round(2),
		Currency:    currency,
		CreatedAt:   s.clock.Now(),
	}

	seen := make(map[domain.Role]struct{}, len(domain.Roles))
	sum := decimal.Zero
	for _, participant := range facts.Participants {
		payeeID := strings.TrimSpace(participant.PayeeID)
		if payeeID == "" {
			continue
		}
		if !participant.Role.Valid() {
			return nil, errs.Detail(domain.ErrInvalidRole, "role %q", participant.Role)
		}
		if _, dup := seen[participant.Role]; dup {
			return nil, errs.Detail(domain.ErrDuplicateRole, "role %q", participant.Role)
		}
		seen[participant.Role] = struct{}{}

		tier, err := s.participantTier(ctx, participant.Tier, payeeID)
		if err != nil {
			return nil, err
		}
		rate, ok := s.rates.Rate(tier, string(participant.Role))
		if !ok {
			return nil, errs.Detail(domain.ErrInvalidTier, "tier %q has no rate for %s", tier, participant.Role)
		}
		sum = sum.Add(rate)
		snapshot.Assign(participant.Role, payeeID, tier, rate)
	}
	if sum.GreaterThan(hundred) {
		return nil, errs.Detail(domain.ErrRateSumExceeded, "rates sum to %s", sum.String())
	}

	existing, err := s.repo.FindByPlacementID(ctx, s.db, placementID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, domain.ErrSnapshotExists
	}

	if err := s.repo.Insert(ctx, s.db, snapshot); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		existing, findErr := s.repo.FindByPlacementID(ctx, s.db, placementID)
		if findErr != nil {
			return nil, findErr
		}
		return existing, domain.ErrSnapshotExists
	}

	s.log.Info("placement snapshot created",
		zap.String("placement_id", placementID),
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.Int("roles", len(seen)),
		zap.String("rate_sum", sum.String()),
	)
	return snapshot, nil
}

// participantTier falls back to the payee's subscription when the caller
// did not state a tier.
func (s *Service) participantTier(ctx context.Context, stated, payeeID string) (string, error) {
	tier := strings.ToLower(strings.TrimSpace(stated))
	if tier != "" || s.tiers == nil {
		return tier, nil
	}
	resolved, err := s.tiers.ResolveTier(ctx, payeeID)
	if err != nil {
		return "", errs.Detail(domain.ErrTierResolveFailed, "payee %s: %v", payeeID, err)
	}
	return strings.ToLower(resolved), nil
}

func (s *Service) GetSnapshot(ctx context.Context, placementID string) (*domain.Snapshot, error) {
	placementID = strings.TrimSpace(placementID)
	if placementID == "" {
		return nil, domain.ErrInvalidPlacement
	}
	snapshot, err := s.repo.FindByPlacementID(ctx, s.db, placementID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return snapshot, nil
}
