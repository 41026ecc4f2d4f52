package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/split/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListSplits(ctx context.Context, db *gorm.DB, placementID string) ([]*domain.Split, error) {
	var items []*domain.Split
	err := db.WithContext(ctx).
		Where("placement_id = ?", placementID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, placementID string) ([]*domain.Transaction, error) {
	var items []*domain.Transaction
	err := db.WithContext(ctx).
		Where("placement_id = ?", placementID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingTransactions(ctx context.Context, db *gorm.DB, placementID string) ([]*domain.Transaction, error) {
	var items []*domain.Transaction
	err := db.WithContext(ctx).
		Where("placement_id = ? AND status = ?", placementID, domain.TransactionStatusPending).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTransactionsByPayee(ctx context.Context, db *gorm.DB, payeeID string, limit int) ([]*domain.Transaction, error) {
	var items []*domain.Transaction
	err := db.WithContext(ctx).
		Where("payee_id = ?", payeeID).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertSplits(ctx context.Context, db *gorm.DB, splits []*domain.Split) error {
	if len(splits) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&splits).Error
}

func (r *repo) InsertTransactions(ctx context.Context, db *gorm.DB, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&txs).Error
}

func (r *repo) HasPayee(ctx context.Context, db *gorm.DB, placementID, payeeID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Split{}).
		Where("placement_id = ? AND payee_id = ?", placementID, payeeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListTransactionsByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]*domain.Transaction, error) {
	var items []*domain.Transaction
	err := db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) PayoutIDsByTransferIDs(ctx context.Context, db *gorm.DB, transferIDs []string) ([]snowflake.ID, error) {
	if len(transferIDs) == 0 {
		return nil, nil
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Distinct("payout_id").
		Where("provider_transfer_id IN ? AND payout_id IS NOT NULL", transferIDs).
		Pluck("payout_id", &ids).Error
	return ids, err
}

func (r *repo) PayoutIDsByProviderPayoutID(ctx context.Context, db *gorm.DB, providerPayoutID string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Distinct("payout_id").
		Where("provider_payout_id = ? AND payout_id IS NOT NULL", providerPayoutID).
		Pluck("payout_id", &ids).Error
	return ids, err
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, payoutID snowflake.ID, transferID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE placement_payout_transactions
		SET status = ?, payout_id = ?, provider_transfer_id = ?, processing_started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.TransactionStatusProcessing, payoutID, transferID, at, at,
		id, domain.TransactionStatusPending,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkPaidByTransferIDs(ctx context.Context, db *gorm.DB, transferIDs []string, providerPayoutID string, at time.Time) (int64, error) {
	if len(transferIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE placement_payout_transactions
		SET status = ?, provider_payout_id = ?, completed_at = ?, updated_at = ?
		WHERE provider_transfer_id IN ? AND status = ?`,
		domain.TransactionStatusPaid, providerPayoutID, at, at,
		transferIDs, domain.TransactionStatusProcessing,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkPaidByProviderPayoutID(ctx context.Context, db *gorm.DB, providerPayoutID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE placement_payout_transactions
		SET status = ?, completed_at = ?, updated_at = ?
		WHERE provider_payout_id = ? AND status = ?`,
		domain.TransactionStatusPaid, at, at,
		providerPayoutID, domain.TransactionStatusProcessing,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkFailedByTransferIDs(ctx context.Context, db *gorm.DB, transferIDs []string, providerPayoutID, reason string, at time.Time) (int64, error) {
	if len(transferIDs) == 0 {
		return 0, nil
	}
	var payoutRef *string
	if providerPayoutID != "" {
		payoutRef = &providerPayoutID
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE placement_payout_transactions
		SET status = ?, provider_payout_id = COALESCE(?, provider_payout_id), failure_reason = ?, failed_at = ?, updated_at = ?
		WHERE provider_transfer_id IN ? AND status = ?`,
		domain.TransactionStatusFailed, payoutRef, reason, at, at,
		transferIDs, domain.TransactionStatusProcessing,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkFailedByProviderPayoutID(ctx context.Context, db *gorm.DB, providerPayoutID, reason string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE placement_payout_transactions
		SET status = ?, failure_reason = ?, failed_at = ?, updated_at = ?
		WHERE provider_payout_id = ? AND status = ?`,
		domain.TransactionStatusFailed, reason, at, at,
		providerPayoutID, domain.TransactionStatusProcessing,
	)
	return res.RowsAffected, res.Error
}
