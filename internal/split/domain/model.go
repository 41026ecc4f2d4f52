package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	attributiondomain "github.com/smallbiznis/placementpay/internal/attribution/domain"
)

// Split is one role's share of a placement fee. Created once, never updated.
type Split struct {
	ID          snowflake.ID           `json:"id" gorm:"primaryKey"`
	PlacementID string                 `json:"placement_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_placement_splits_role,priority:1"`
	SnapshotID  snowflake.ID           `json:"snapshot_id" gorm:"not null;index"`
	PayeeID     string                 `json:"payee_id" gorm:"type:varchar(64);not null;index"`
	Role        attributiondomain.Role `json:"role" gorm:"type:varchar(32);not null;uniqueIndex:ux_placement_splits_role,priority:2"`
	Percentage  decimal.Decimal        `json:"percentage" gorm:"type:numeric(5,2);not null"`
	Amount      decimal.Decimal        `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency    string                 `json:"currency" gorm:"type:varchar(3);not null"`
	CreatedAt   time.Time              `json:"created_at" gorm:"not null"`
}

func (Split) TableName() string { return "placement_splits" }

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusPaid       TransactionStatus = "paid"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Transaction tracks the money movement of one split through the provider.
type Transaction struct {
	ID                  snowflake.ID      `json:"id" gorm:"primaryKey"`
	SplitID             snowflake.ID      `json:"split_id" gorm:"not null;uniqueIndex"`
	PlacementID         string            `json:"placement_id" gorm:"type:varchar(64);not null;index"`
	PayeeID             string            `json:"payee_id" gorm:"type:varchar(64);not null;index"`
	Amount              decimal.Decimal   `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency            string            `json:"currency" gorm:"type:varchar(3);not null"`
	Status              TransactionStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	PayoutID            *snowflake.ID     `json:"payout_id,omitempty" gorm:"index"`
	ProviderTransferID  *string           `json:"provider_transfer_id,omitempty" gorm:"type:varchar(255);index"`
	ProviderPayoutID    *string           `json:"provider_payout_id,omitempty" gorm:"type:varchar(255);index"`
	ProcessingStartedAt *time.Time        `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	FailedAt            *time.Time        `json:"failed_at,omitempty"`
	FailureReason       *string           `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt           time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time         `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "placement_payout_transactions" }

// Result is the split set of a placement with its transactions.
type Result struct {
	PlacementID  string         `json:"placement_id"`
	Splits       []*Split       `json:"splits"`
	Transactions []*Transaction `json:"transactions"`
	// Created is false when the splits already existed.
	Created bool `json:"-"`
}

// Summary adds platform remainder reporting to a Result.
type Summary struct {
	Result
	TotalFee          decimal.Decimal `json:"total_fee"`
	PlatformRemainder decimal.Decimal `json:"platform_remainder"`
}
