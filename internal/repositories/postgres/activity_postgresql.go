package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type ActivityPostgreSQL struct {
	helpers *SharedHelpers
}

func NewActivityPostgreSQL(db *gorm.DB) repositories.ActivityRepository {
	return &ActivityPostgreSQL{
		helpers: NewSharedHelpers(db),
	}
}

func (a *ActivityPostgreSQL) Create(ctx context.Context, tx *gorm.DB, log *models.ActivityLog) error {
	if err := a.helpers.conn(ctx, tx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}
	return nil
}

// ListByAttempt returns the newest entries first. A limit of 0 returns everything.
func (a *ActivityPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint, limit int) ([]*models.ActivityLog, error) {
	var logs []*models.ActivityLog

	query := a.helpers.conn(ctx, tx).
		Where("attempt_id = ?", attemptID).
		Order(`"timestamp" DESC, id DESC`)
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list activities for attempt %d: %w", attemptID, err)
	}
	return logs, nil
}

func (a *ActivityPostgreSQL) Latest(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.ActivityLog, error) {
	var log models.ActivityLog
	if err := a.helpers.conn(ctx, tx).
		Where("attempt_id = ?", attemptID).
		Order(`"timestamp" DESC, id DESC`).
		First(&log).Error; err != nil {
		return nil, fmt.Errorf("failed to get latest activity for attempt %d: %w", attemptID, err)
	}
	return &log, nil
}

func (a *ActivityPostgreSQL) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	if err := a.helpers.conn(ctx, tx).
		Where("attempt_id = ?", attemptID).
		Delete(&models.ActivityLog{}).Error; err != nil {
		return fmt.Errorf("failed to delete activities: %w", err)
	}
	return nil
}
