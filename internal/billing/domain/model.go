package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Subscription is the local projection of a provider subscription.
type Subscription struct {
	ID                     snowflake.ID `json:"id" gorm:"primaryKey"`
	ProviderSubscriptionID string       `json:"provider_subscription_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ProviderCustomerID     string       `json:"provider_customer_id" gorm:"type:varchar(255);not null;index"`
	UserID                 string       `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Tier                   string       `json:"tier" gorm:"type:varchar(32);not null"`
	Status                 string       `json:"status" gorm:"type:varchar(32);not null"`
	CancelAtPeriodEnd      bool         `json:"cancel_at_period_end" gorm:"not null;default:false"`
	LastEventAt            time.Time    `json:"last_event_at" gorm:"not null"`
	CreatedAt              time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time    `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "billing_subscriptions" }

// Active reports whether the subscription grants its tier.
func (s Subscription) Active() bool {
	switch s.Status {
	case "active", "trialing", "past_due":
		return true
	}
	return false
}

type Invoice struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	ProviderInvoiceID  string          `json:"provider_invoice_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ProviderCustomerID string          `json:"provider_customer_id" gorm:"type:varchar(255);not null;index"`
	UserID             *string         `json:"user_id,omitempty" gorm:"type:varchar(64);index"`
	Status             string          `json:"status" gorm:"type:varchar(32);not null"`
	AmountDue          decimal.Decimal `json:"amount_due" gorm:"type:numeric(14,2);not null"`
	AmountPaid         decimal.Decimal `json:"amount_paid" gorm:"type:numeric(14,2);not null"`
	Currency           string          `json:"currency" gorm:"type:varchar(3);not null"`
	LastEventAt        time.Time       `json:"last_event_at" gorm:"not null"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "billing_invoices" }

// ConnectedAccount is the provider account a payee receives transfers on.
type ConnectedAccount struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	ProviderAccountID string       `json:"provider_account_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	UserID            string       `json:"user_id" gorm:"type:varchar(64);not null;index"`
	PayoutsEnabled    bool         `json:"payouts_enabled" gorm:"not null;default:false"`
	ChargesEnabled    bool         `json:"charges_enabled" gorm:"not null;default:false"`
	DetailsSubmitted  bool         `json:"details_submitted" gorm:"not null;default:false"`
	LastEventAt       time.Time    `json:"last_event_at" gorm:"not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (ConnectedAccount) TableName() string { return "connected_accounts" }
