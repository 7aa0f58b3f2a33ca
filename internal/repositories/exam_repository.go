package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"gorm.io/gorm"
)

// ExamRepository interface for exam, question and option operations
type ExamRepository interface {
	// Exams
	Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) // Include questions and options
	CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error)
	SyncTotalMarks(ctx context.Context, tx *gorm.DB, examID uint) (*models.Exam, error)

	// Questions and options
	GetQuestion(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetOption(ctx context.Context, tx *gorm.DB, id uint) (*models.Option, error)
	UpdateOption(ctx context.Context, tx *gorm.DB, option *models.Option) error
	DeleteOption(ctx context.Context, tx *gorm.DB, id uint) error

	// Tags
	ReplaceQuestionTags(ctx context.Context, tx *gorm.DB, questionID uint, names []string) error
	ListTags(ctx context.Context, tx *gorm.DB) ([]string, error)

	// Retake requests
	CreateRetakeRequest(ctx context.Context, tx *gorm.DB, request *models.RetakeRequest) error
	GetPendingRetakeRequest(ctx context.Context, tx *gorm.DB, examID uint, userID string) (*models.RetakeRequest, error)
	UpdateRetakeRequest(ctx context.Context, tx *gorm.DB, request *models.RetakeRequest) error
	ListRetakeRequests(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.RetakeRequest, error)
}
