package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"gorm.io/gorm"
)

// AttemptRepository interface for exam attempt operations
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	GetByIDWithExam(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// LockForUpdate loads the attempt with a row lock where the dialect supports one.
	LockForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)

	// Query operations
	GetByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error)
	ListByExam(ctx context.Context, tx *gorm.DB, examID uint, filters AttemptFilters) ([]*models.ExamAttempt, error)

	// Status and scoring
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error
	SaveAggregates(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	SetResultsReady(ctx context.Context, tx *gorm.DB, id uint, ready bool) error
}
