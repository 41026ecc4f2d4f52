package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/placementpay/internal/attribution/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snapshot *domain.Snapshot) error {
	return db.WithContext(ctx).Create(snapshot).Error
}

func (r *repo) FindByPlacementID(ctx context.Context, db *gorm.DB, placementID string) (*domain.Snapshot, error) {
	var item domain.Snapshot
	err := db.WithContext(ctx).
		Where("placement_id = ?", placementID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
