package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/placementpay/internal/billing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// newerOnly skips conflicting rows already updated by a later event.
func newerOnly(table string) clause.Where {
	return clause.Where{Exprs: []clause.Expression{
		clause.Expr{SQL: table + ".last_event_at <= excluded.last_event_at"},
	}}
}

func (r *repo) UpsertSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_customer_id", "user_id", "tier", "status",
			"cancel_at_period_end", "last_event_at", "updated_at",
		}),
		Where: newerOnly("billing_subscriptions"),
	}).Create(sub).Error
}

func (r *repo) UpsertInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_customer_id", "user_id", "status", "amount_due",
			"amount_paid", "currency", "last_event_at", "updated_at",
		}),
		Where: newerOnly("billing_invoices"),
	}).Create(inv).Error
}

func (r *repo) UpsertConnectedAccount(ctx context.Context, db *gorm.DB, acct *domain.ConnectedAccount) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "payouts_enabled", "charges_enabled",
			"details_submitted", "last_event_at", "updated_at",
		}),
		Where: newerOnly("connected_accounts"),
	}).Create(acct).Error
}

func (r *repo) FindActiveSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{"active", "trialing", "past_due"}).
		Order("last_event_at DESC").
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindConnectedAccount(ctx context.Context, db *gorm.DB, userID string) (*domain.ConnectedAccount, error) {
	var item domain.ConnectedAccount
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("payouts_enabled DESC, last_event_at DESC").
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
