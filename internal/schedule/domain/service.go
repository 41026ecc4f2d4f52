package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/access"
	"github.com/smallbiznis/placementpay/internal/batch"
	"github.com/smallbiznis/placementpay/internal/errs"
	payoutdomain "github.com/smallbiznis/placementpay/internal/payout/domain"
	"github.com/smallbiznis/placementpay/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidPlacement     = errs.New(errs.KindValidation, "invalid_placement_id")
	ErrInvalidGuaranteeDate = errs.New(errs.KindValidation, "invalid_guarantee_completion_date")
	ErrInvalidTriggerEvent  = errs.New(errs.KindValidation, "invalid_trigger_event")
	ErrInvalidReason        = errs.New(errs.KindValidation, "invalid_cancellation_reason")
	ErrInvalidStatus        = errs.New(errs.KindValidation, "invalid_status")
	ErrNotFound             = errs.New(errs.KindNotFound, "payout_schedule_not_found")
	ErrInvalidState         = errs.New(errs.KindInvalidState, "invalid_state")
	ErrStaleProcessing      = errs.New(errs.KindTransient, "stale_processing")
)

// PayoutCreator runs the payout step of schedule processing.
type PayoutCreator interface {
	CreateForSchedule(ctx context.Context, target payoutdomain.Target) (snowflake.ID, error)
}

type CreateRequest struct {
	PlacementID             string        `json:"placement_id" validate:"required,max=64"`
	PayoutID                *snowflake.ID `json:"payout_id,omitempty"`
	ScheduledDate           time.Time     `json:"scheduled_date" validate:"required"`
	GuaranteeCompletionDate *time.Time    `json:"guarantee_completion_date,omitempty"`
	TriggerEvent            string        `json:"trigger_event" validate:"required,max=64"`
}

type UpdateRequest struct {
	ScheduledDate           *time.Time `json:"scheduled_date,omitempty"`
	GuaranteeCompletionDate *time.Time `json:"guarantee_completion_date,omitempty"`
	TriggerEvent            *string    `json:"trigger_event,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	PlacementID string `form:"placement_id"`
	Status      string `form:"status"`
}

type ListResponse struct {
	pagination.PageInfo
	Schedules []Schedule `json:"payout_schedules"`
}

type ListFilter struct {
	PlacementID string
	Status      Status
	PayeeID     string
	AfterID     snowflake.ID
	Limit       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, schedule *Schedule) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Schedule, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Schedule, error)
	// ListDue returns scheduled rows and retryable failed rows whose date has
	// passed and whose placement has no active escrow hold.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, maxRetries, limit int) ([]*Schedule, error)
	ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Schedule, error)
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, fields map[string]any) (int64, error)
}

type Service interface {
	Create(ctx context.Context, ac access.Context, req CreateRequest) (*Schedule, error)
	Get(ctx context.Context, ac access.Context, id snowflake.ID) (*Schedule, error)
	List(ctx context.Context, ac access.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, ac access.Context, id snowflake.ID, req UpdateRequest) (*Schedule, error)
	Cancel(ctx context.Context, ac access.Context, id snowflake.ID, reason string) (*Schedule, error)
	TriggerProcessing(ctx context.Context, ac access.Context, id snowflake.ID) (*Schedule, error)
	ProcessDueSchedules(ctx context.Context) (*batch.Summary, error)
	RecoverStaleSchedules(ctx context.Context, olderThan time.Duration) (*batch.Summary, error)
}
