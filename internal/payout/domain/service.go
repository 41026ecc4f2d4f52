package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/errs"
	"gorm.io/gorm"
)

var (
	ErrFundsHeld          = errs.New(errs.KindInvalidState, "funds_held_in_escrow")
	ErrNothingToPay       = errs.New(errs.KindTransient, "no_pending_transactions")
	ErrNoConnectedAccount = errs.New(errs.KindTransient, "payee_has_no_connected_account")
	ErrNotFound           = errs.New(errs.KindNotFound, "payout_not_found")
	ErrPlacementMismatch  = errs.New(errs.KindTerminal, "payout_placement_mismatch")
)

// FundsGuard reports whether money for a placement is still held back.
type FundsGuard interface {
	HasActiveHold(ctx context.Context, placementID string) (bool, error)
}

// AccountDirectory resolves the provider account a payee is paid into.
type AccountDirectory interface {
	TransferDestination(ctx context.Context, payeeID string) (string, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, fields map[string]any) (int64, error)
}

type Service interface {
	// CreateForSchedule creates or resumes the payout of a schedule and
	// initiates provider transfers for its pending transactions.
	CreateForSchedule(ctx context.Context, target Target) (snowflake.ID, error)
	Get(ctx context.Context, id snowflake.ID) (*Payout, error)
	// Settle derives the payout status from its transactions.
	Settle(ctx context.Context, id snowflake.ID) (*Payout, error)
}
