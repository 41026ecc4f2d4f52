package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/errs"
	payoutdomain "github.com/smallbiznis/placementpay/internal/payout/domain"
	"gorm.io/gorm"
)

var (
	ErrMalformedEvent = errs.New(errs.KindValidation, "malformed_event")
	ErrMissingEventID = errs.New(errs.KindValidation, "missing_event_id")
)

// PayoutSettler recomputes a payout's status after its transactions moved.
type PayoutSettler interface {
	Settle(ctx context.Context, id snowflake.ID) (*payoutdomain.Payout, error)
}

type Repository interface {
	// InsertIfAbsent reports whether the record was newly stored.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	FindByProviderEventID(ctx context.Context, db *gorm.DB, provider, eventID string) (*EventRecord, error)
	// Claim moves a pending or failed record, or one stuck in processing
	// since before staleBefore, into processing.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, staleBefore, at time.Time) (int64, error)
	Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, processingErr *string, at time.Time) error
}

type Service interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error)
}
