package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/escrow/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, hold *domain.Hold) error {
	return db.WithContext(ctx).Create(hold).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Hold, error) {
	var item domain.Hold
	err := db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Hold, error) {
	stmt := db.WithContext(ctx).Model(&domain.Hold{})
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

	var items []*domain.Hold
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.Hold, error) {
	var items []*domain.Hold
	err := db.WithContext(ctx).
		Where("status = ? AND release_scheduled_date <= ?", domain.StatusActive, now).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB, placementID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Hold{}).
		Where("placement_id = ? AND status = ?", placementID, domain.StatusActive).
		Count(&count).Error
	return count, err
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, fields map[string]any) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Hold{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Hold{}).
		Where("id = ? AND status = ?", id, domain.StatusActive).
		Update("updated_at", at).Error
}
