package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByProviderEventID(ctx context.Context, db *gorm.DB, provider, eventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, staleBefore, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		SET processing_status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND (processing_status IN ? OR (processing_status = ? AND updated_at < ?))`,
		domain.StatusProcessing, at,
		id, []domain.Status{domain.StatusPending, domain.StatusFailed},
		domain.StatusProcessing, staleBefore,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, processingErr *string, at time.Time) error {
	fields := map[string]any{
		"processing_status": status,
		"processing_error":  processingErr,
		"updated_at":        at,
	}
	if status == domain.StatusSucceeded || status == domain.StatusSkipped {
		fields["processed_at"] = at
	}
	return db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("id = ? AND processing_status = ?", id, domain.StatusProcessing).
		Updates(fields).Error
}
