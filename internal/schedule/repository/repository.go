package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/schedule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, schedule *domain.Schedule) error {
	return db.WithContext(ctx).Create(schedule).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Schedule, error) {
	var item domain.Schedule
	err := db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Schedule, error) {
	stmt := db.WithContext(ctx).Model(&domain.Schedule{})
	if filter.PlacementID != "" {
		stmt = stmt.Where("placement_id = ?", filter.PlacementID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.PayeeID != "" {
		stmt = stmt.Where("placement_id IN (?)",
			db.Table("placement_splits").Select("placement_id").Where("payee_id = ?", filter.PayeeID))
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	stmt = stmt.Order("id ASC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var items []*domain.Schedule
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, maxRetries, limit int) ([]*domain.Schedule, error) {
	var items []*domain.Schedule
	err := db.WithContext(ctx).
		Where("scheduled_date <= ?", now).
		Where("(status = ? OR (status = ? AND retry_count < ?))",
			domain.StatusScheduled, domain.StatusFailed, maxRetries).
		Where("placement_id NOT IN (?)",
			db.Table("escrow_holds").Select("placement_id").Where("status = ?", "active")).
		Order("scheduled_date ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Schedule, error) {
	var items []*domain.Schedule
	err := db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", domain.StatusProcessing, before).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, fields map[string]any) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Schedule{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	return res.RowsAffected, res.Error
}
