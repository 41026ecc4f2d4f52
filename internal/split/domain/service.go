package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	attributiondomain "github.com/smallbiznis/placementpay/internal/attribution/domain"
	"github.com/smallbiznis/placementpay/internal/errs"
	"gorm.io/gorm"
)

var (
	ErrNoValidRoles       = errs.New(errs.KindValidation, "no_valid_roles")
	ErrInvalidPlacement   = errs.New(errs.KindValidation, "invalid_placement_id")
	ErrTransactionMissing = errs.New(errs.KindNotFound, "transaction_not_found")
	ErrInvalidTransition  = errs.New(errs.KindInvalidState, "invalid_transaction_transition")
)

type Repository interface {
	ListSplits(ctx context.Context, db *gorm.DB, placementID string) ([]*Split, error)
	ListTransactions(ctx context.Context, db *gorm.DB, placementID string) ([]*Transaction, error)
	ListPendingTransactions(ctx context.Context, db *gorm.DB, placementID string) ([]*Transaction, error)
	ListTransactionsByPayee(ctx context.Context, db *gorm.DB, payeeID string, limit int) ([]*Transaction, error)
	InsertSplits(ctx context.Context, db *gorm.DB, splits []*Split) error
	InsertTransactions(ctx context.Context, db *gorm.DB, txs []*Transaction) error
	HasPayee(ctx context.Context, db *gorm.DB, placementID, payeeID string) (bool, error)
	ListTransactionsByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]*Transaction, error)
	PayoutIDsByTransferIDs(ctx context.Context, db *gorm.DB, transferIDs []string) ([]snowflake.ID, error)
	PayoutIDsByProviderPayoutID(ctx context.Context, db *gorm.DB, providerPayoutID string) ([]snowflake.ID, error)

	MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, payoutID snowflake.ID, transferID string, at time.Time) (int64, error)
	MarkPaidByTransferIDs(ctx context.Context, db *gorm.DB, transferIDs []string, providerPayoutID string, at time.Time) (int64, error)
	MarkPaidByProviderPayoutID(ctx context.Context, db *gorm.DB, providerPayoutID string, at time.Time) (int64, error)
	MarkFailedByTransferIDs(ctx context.Context, db *gorm.DB, transferIDs []string, providerPayoutID, reason string, at time.Time) (int64, error)
	MarkFailedByProviderPayoutID(ctx context.Context, db *gorm.DB, providerPayoutID, reason string, at time.Time) (int64, error)
}

type Service interface {
	ComputeSplitsAndTransactions(ctx context.Context, placementID string) (*Result, error)
	CalculatePlatformRemainder(snapshot *attributiondomain.Snapshot) decimal.Decimal
	PlacementSummary(ctx context.Context, placementID string) (*Summary, error)
	ListPendingTransactions(ctx context.Context, placementID string) ([]*Transaction, error)
	ListTransactionsByPayee(ctx context.Context, payeeID string, limit int) ([]*Transaction, error)
	IsPayee(ctx context.Context, placementID, payeeID string) (bool, error)
	ListTransactionsByPayout(ctx context.Context, payoutID snowflake.ID) ([]*Transaction, error)
	PayoutIDsByTransferIDs(ctx context.Context, transferIDs []string) ([]snowflake.ID, error)
	PayoutIDsByProviderPayoutID(ctx context.Context, providerPayoutID string) ([]snowflake.ID, error)

	MarkProcessing(ctx context.Context, id snowflake.ID, payoutID snowflake.ID, transferID string) error
	MarkPaidByTransferIDs(ctx context.Context, transferIDs []string, providerPayoutID string) (int64, error)
	MarkPaidByProviderPayoutID(ctx context.Context, providerPayoutID string) (int64, error)
	MarkFailedByTransferIDs(ctx context.Context, transferIDs []string, providerPayoutID, reason string) (int64, error)
	MarkFailedByProviderPayoutID(ctx context.Context, providerPayoutID, reason string) (int64, error)
}
