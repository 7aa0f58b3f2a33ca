package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		helpers: NewSharedHelpers(db),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	if err := a.helpers.conn(ctx, tx).Omit("Exam", "Answers").Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := a.helpers.conn(ctx, tx).First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt %d: %w", id, err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithExam(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := a.helpers.conn(ctx, tx).
		Preload("Exam").
		First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt %d: %w", id, err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) LockForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := a.helpers.forUpdate(a.helpers.conn(ctx, tx)).
		First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to lock attempt %d: %w", id, err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	if err := a.helpers.conn(ctx, tx).Omit("Exam", "Answers").Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	if err := a.helpers.conn(ctx, tx).Delete(&models.ExamAttempt{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := a.helpers.conn(ctx, tx).
		Where("user_id = ? AND exam_id = ?", userID, examID).
		First(&attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt for user %s exam %d: %w", userID, examID, err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) ListByExam(ctx context.Context, tx *gorm.DB, examID uint, filters repositories.AttemptFilters) ([]*models.ExamAttempt, error) {
	var attempts []*models.ExamAttempt

	query := a.helpers.conn(ctx, tx).Where("exam_id = ?", examID)
	if filters.ActiveOnly {
		query = query.Where("status IN ?", []models.AttemptStatus{
			models.AttemptStarted, models.AttemptInProgress,
		})
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("start_time DESC, id DESC").Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts for exam %d: %w", examID, err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error {
	return a.helpers.conn(ctx, tx).
		Model(&models.ExamAttempt{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// SaveAggregates writes only the scoring columns so concurrent status changes are kept.
func (a *AttemptPostgreSQL) SaveAggregates(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	if err := a.helpers.conn(ctx, tx).
		Model(&models.ExamAttempt{ID: attempt.ID}).
		Select("score", "percentage_score", "correct_answers", "wrong_answers",
			"unanswered_questions", "is_passed", "results_ready", "evaluated_at").
		Updates(map[string]interface{}{
			"score":                attempt.Score,
			"percentage_score":     attempt.PercentageScore,
			"correct_answers":      attempt.CorrectAnswers,
			"wrong_answers":        attempt.WrongAnswers,
			"unanswered_questions": attempt.UnansweredQuestions,
			"is_passed":            attempt.IsPassed,
			"results_ready":        attempt.ResultsReady,
			"evaluated_at":         attempt.EvaluatedAt,
		}).Error; err != nil {
		return fmt.Errorf("failed to save attempt aggregates: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) SetResultsReady(ctx context.Context, tx *gorm.DB, id uint, ready bool) error {
	return a.helpers.conn(ctx, tx).
		Model(&models.ExamAttempt{}).
		Where("id = ?", id).
		Update("results_ready", ready).Error
}
