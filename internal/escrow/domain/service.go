package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/access"
	"github.com/smallbiznis/placementpay/internal/batch"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidPlacement   = errs.New(errs.KindValidation, "invalid_placement_id")
	ErrInvalidAmount      = errs.New(errs.KindValidation, "invalid_hold_amount")
	ErrInvalidReason      = errs.New(errs.KindValidation, "invalid_hold_reason")
	ErrInvalidReleaseDate = errs.New(errs.KindValidation, "invalid_release_scheduled_date")
	ErrInvalidStatus      = errs.New(errs.KindValidation, "invalid_status")
	ErrNotFound           = errs.New(errs.KindNotFound, "escrow_hold_not_found")
	ErrInvalidState       = errs.New(errs.KindInvalidState, "invalid_state")
)

type CreateRequest struct {
	PlacementID          string          `json:"placement_id" validate:"required,max=64"`
	PayoutID             *snowflake.ID   `json:"payout_id,omitempty"`
	HoldAmount           decimal.Decimal `json:"hold_amount"`
	HoldReason           string          `json:"hold_reason" validate:"required"`
	ReleaseScheduledDate time.Time       `json:"release_scheduled_date" validate:"required"`
}

type UpdateRequest struct {
	HoldAmount           *decimal.Decimal `json:"hold_amount,omitempty"`
	HoldReason           *string          `json:"hold_reason,omitempty"`
	ReleaseScheduledDate *time.Time       `json:"release_scheduled_date,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	PlacementID string `form:"placement_id"`
	Status      string `form:"status"`
}

type ListResponse struct {
	pagination.PageInfo
	Holds []Hold `json:"escrow_holds"`
}

type ListFilter struct {
	PlacementID string
	Status      Status
	// PayeeID limits results to placements the payee earns a split on.
	PayeeID string
	AfterID snowflake.ID
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, hold *Hold) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Hold, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Hold, error)
	// ListDue returns due active holds, least recently attempted first.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Hold, error)
	CountActive(ctx context.Context, db *gorm.DB, placementID string) (int64, error)
	// Transition applies fields only while the hold is in one of from.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, fields map[string]any) (int64, error)
	// Touch moves an active hold to the back of the due queue.
	Touch(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type Service interface {
	Create(ctx context.Context, ac access.Context, req CreateRequest) (*Hold, error)
	Get(ctx context.Context, ac access.Context, id snowflake.ID) (*Hold, error)
	List(ctx context.Context, ac access.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, ac access.Context, id snowflake.ID, req UpdateRequest) (*Hold, error)
	Release(ctx context.Context, ac access.Context, id snowflake.ID) (*Hold, error)
	Cancel(ctx context.Context, ac access.Context, id snowflake.ID, reason string) (*Hold, error)
	Expire(ctx context.Context, ac access.Context, id snowflake.ID, reason string) (*Hold, error)
	ProcessDueReleases(ctx context.Context) (*batch.Summary, error)
	HasActiveHold(ctx context.Context, placementID string) (bool, error)
}
