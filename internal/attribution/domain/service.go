package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/errs"
	"gorm.io/gorm"
)

var (
	ErrInvalidPlacement  = errs.New(errs.KindValidation, "invalid_placement_id")
	ErrInvalidTotalFee   = errs.New(errs.KindValidation, "invalid_total_fee")
	ErrInvalidRole       = errs.New(errs.KindValidation, "invalid_role")
	ErrDuplicateRole     = errs.New(errs.KindValidation, "duplicate_role")
	ErrInvalidTier       = errs.New(errs.KindValidation, "invalid_tier")
	ErrRateSumExceeded   = errs.New(errs.KindValidation, "rate_sum_exceeded")
	ErrSnapshotNotFound  = errs.New(errs.KindNotFound, "snapshot_not_found")
	ErrSnapshotExists    = errs.New(errs.KindSkip, "snapshot_exists")
	ErrTierResolveFailed = errs.New(errs.KindTransient, "tier_resolve_failed")
)

// RateTable yields the commission percentage for a role within a tier.
type RateTable interface {
	Rate(tier, role string) (decimal.Decimal, bool)
}

// TierResolver returns the subscription tier of a payee.
type TierResolver interface {
	ResolveTier(ctx context.Context, userID string) (string, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, snapshot *Snapshot) error
	FindByPlacementID(ctx context.Context, db *gorm.DB, placementID string) (*Snapshot, error)
}

type Service interface {
	CreateSnapshot(ctx context.Context, facts PlacementFacts) (*Snapshot, error)
	GetSnapshot(ctx context.Context, placementID string) (*Snapshot, error)
}
