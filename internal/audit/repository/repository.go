package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/placementpay/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert is the only write path. Audit rows are never updated or deleted.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.PayoutAuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_audit_logs (
			id, payout_id, event_type, old_status, new_status, old_amount, new_amount,
			reason, metadata, actor_id, actor_role, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.PayoutID,
		entry.EventType,
		entry.OldStatus,
		entry.NewStatus,
		entry.OldAmount,
		entry.NewAmount,
		entry.Reason,
		entry.Metadata,
		entry.ActorID,
		entry.ActorRole,
		entry.RequestID,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.PayoutAuditLog, error) {
	var logs []*domain.PayoutAuditLog
	stmt := db.WithContext(ctx).Model(&domain.PayoutAuditLog{}).
		Where("payout_id = ?", filter.PayoutID)

	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		stmt = stmt.Where("event_type = ?", eventType)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
