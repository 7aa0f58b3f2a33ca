package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"gorm.io/gorm"
)

// ActivityRepository interface for attempt activity logs
type ActivityRepository interface {
	Create(ctx context.Context, tx *gorm.DB, log *models.ActivityLog) error
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint, limit int) ([]*models.ActivityLog, error)
	Latest(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.ActivityLog, error)
	DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error
}
