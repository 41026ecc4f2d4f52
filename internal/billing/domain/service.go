package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/errs"
	"gorm.io/gorm"
)

var (
	ErrMissingProviderID = errs.New(errs.KindValidation, "missing_provider_id")
	ErrMissingUser       = errs.New(errs.KindValidation, "missing_user_id")
	ErrPayoutsDisabled   = errs.New(errs.KindTransient, "payouts_disabled")
)

type SubscriptionUpdate struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	UserID                 string
	Tier                   string
	Status                 string
	CancelAtPeriodEnd      bool
	OccurredAt             time.Time
}

type InvoiceUpdate struct {
	ProviderInvoiceID  string
	ProviderCustomerID string
	UserID             string
	Status             string
	AmountDue          decimal.Decimal
	AmountPaid         decimal.Decimal
	Currency           string
	OccurredAt         time.Time
}

type AccountUpdate struct {
	ProviderAccountID string
	UserID            string
	PayoutsEnabled    bool
	ChargesEnabled    bool
	DetailsSubmitted  bool
	OccurredAt        time.Time
}

type Repository interface {
	UpsertSubscription(ctx context.Context, db *gorm.DB, sub *Subscription) error
	UpsertInvoice(ctx context.Context, db *gorm.DB, inv *Invoice) error
	UpsertConnectedAccount(ctx context.Context, db *gorm.DB, acct *ConnectedAccount) error
	FindActiveSubscription(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	FindConnectedAccount(ctx context.Context, db *gorm.DB, userID string) (*ConnectedAccount, error)
}

type Service interface {
	ApplySubscription(ctx context.Context, update SubscriptionUpdate) error
	ApplyInvoice(ctx context.Context, update InvoiceUpdate) error
	ApplyConnectedAccount(ctx context.Context, update AccountUpdate) error
	// ResolveTier returns the plan tier of the payee's active subscription,
	// or the default tier.
	ResolveTier(ctx context.Context, userID string) (string, error)
	TransferDestination(ctx context.Context, payeeID string) (string, error)
}
