package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"gorm.io/gorm"
)

// AnswerRepository interface for student answer operations
type AnswerRepository interface {
	// Basic operations
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) // Include question
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error)
	Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error

	// Upsert returns the single answer row for (attempt, question), creating it when missing.
	Upsert(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, bool, error)

	// Query operations
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error) // Include question
	ListByAttemptWithDetails(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error)
	ListByOption(ctx context.Context, tx *gorm.DB, optionID uint) ([]models.Answer, error)
	CountAnswered(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error)

	// Files
	ReplaceImages(ctx context.Context, tx *gorm.DB, answerID uint, images []models.AnswerImage) ([]models.AnswerImage, error)
	ReplaceAttachments(ctx context.Context, tx *gorm.DB, answerID uint, attachments []models.AnswerAttachment) ([]models.AnswerAttachment, error)
	DeleteFilesByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AnswerImage, []models.AnswerAttachment, error)
	CreateSolutionAttachment(ctx context.Context, tx *gorm.DB, attachment *models.SolutionAttachment) error
	GetSolutionAttachment(ctx context.Context, tx *gorm.DB, id uint) (*models.SolutionAttachment, error)
	DeleteSolutionAttachment(ctx context.Context, tx *gorm.DB, id uint) error

	// DeleteByAttempt removes every answer of an attempt with its file rows and returns
	// the storage keys that should be removed from object storage.
	DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]string, error)
}
