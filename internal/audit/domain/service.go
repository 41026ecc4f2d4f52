package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one audit record. Actor fields default to the caller in ctx.
type Entry struct {
	PayoutID  snowflake.ID
	EventType EventType
	OldStatus string
	NewStatus string
	OldAmount *decimal.Decimal
	NewAmount *decimal.Decimal
	Reason    string
	Metadata  map[string]any
	ActorID   string
	ActorRole string
}

type ListRequest struct {
	pagination.Pagination
	PayoutID  snowflake.ID
	EventType string
}

type ListResponse struct {
	pagination.PageInfo
	AuditLogs []PayoutAuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *PayoutAuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*PayoutAuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidPayout    = errs.New(errs.KindValidation, "invalid_payout_id")
	ErrInvalidEventType = errs.New(errs.KindValidation, "invalid_event_type")
	ErrInvalidPageToken = errs.New(errs.KindValidation, "invalid_page_token")
)
