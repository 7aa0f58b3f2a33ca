package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type ExamPostgreSQL struct {
	helpers *SharedHelpers
}

func NewExamPostgreSQL(db *gorm.DB) repositories.ExamRepository {
	return &ExamPostgreSQL{
		helpers: NewSharedHelpers(db),
	}
}

// ===== EXAMS =====

func (e *ExamPostgreSQL) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	if err := e.helpers.conn(ctx, tx).Create(exam).Error; err != nil {
		return fmt.Errorf("failed to create exam: %w", err)
	}
	return nil
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.helpers.conn(ctx, tx).First(&exam, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get exam %d: %w", id, err)
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.helpers.conn(ctx, tx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC, id ASC`)
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC, id ASC`)
		}).
		First(&exam, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get exam %d: %w", id, err)
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error) {
	var count int64
	if err := e.helpers.conn(ctx, tx).
		Model(&models.Question{}).
		Where("exam_id = ?", examID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

// SyncTotalMarks recomputes total_marks from the question marks when the exam
// has auto_calculate_total enabled and returns the current exam.
func (e *ExamPostgreSQL) SyncTotalMarks(ctx context.Context, tx *gorm.DB, examID uint) (*models.Exam, error) {
	exam, err := e.GetByID(ctx, tx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.AutoCalculateTotal {
		return exam, nil
	}

	var total float64
	if err := e.helpers.conn(ctx, tx).
		Model(&models.Question{}).
		Where("exam_id = ?", examID).
		Select("COALESCE(SUM(marks), 0)").
		Scan(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to sum question marks: %w", err)
	}

	if err := e.helpers.conn(ctx, tx).
		Model(&models.Exam{}).
		Where("id = ?", examID).
		Update("total_marks", total).Error; err != nil {
		return nil, fmt.Errorf("failed to update total marks: %w", err)
	}
	exam.TotalMarks = total
	return exam, nil
}

// ===== QUESTIONS AND OPTIONS =====

func (e *ExamPostgreSQL) GetQuestion(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	var question models.Question
	if err := e.helpers.conn(ctx, tx).
		Preload("Options").
		Preload("Tags").
		First(&question, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get question %d: %w", id, err)
	}
	return &question, nil
}

func (e *ExamPostgreSQL) GetOption(ctx context.Context, tx *gorm.DB, id uint) (*models.Option, error) {
	var option models.Option
	if err := e.helpers.conn(ctx, tx).First(&option, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get option %d: %w", id, err)
	}
	return &option, nil
}

func (e *ExamPostgreSQL) UpdateOption(ctx context.Context, tx *gorm.DB, option *models.Option) error {
	if err := e.helpers.conn(ctx, tx).
		Model(option).
		Select("option_text", "is_correct", "order").
		Updates(option).Error; err != nil {
		return fmt.Errorf("failed to update option: %w", err)
	}
	return nil
}

func (e *ExamPostgreSQL) DeleteOption(ctx context.Context, tx *gorm.DB, id uint) error {
	result := e.helpers.conn(ctx, tx).Delete(&models.Option{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete option: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete option %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// ===== TAGS =====

func (e *ExamPostgreSQL) ReplaceQuestionTags(ctx context.Context, tx *gorm.DB, questionID uint, names []string) error {
	db := e.helpers.conn(ctx, tx)
	if err := db.Where("question_id = ?", questionID).Delete(&models.QuestionTag{}).Error; err != nil {
		return fmt.Errorf("failed to clear question tags: %w", err)
	}

	seen := make(map[string]bool, len(names))
	tags := make([]models.QuestionTag, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tags = append(tags, models.QuestionTag{QuestionID: questionID, Name: name})
	}
	if len(tags) == 0 {
		return nil
	}

	if err := db.Create(&tags).Error; err != nil {
		return fmt.Errorf("failed to create question tags: %w", err)
	}
	return nil
}

func (e *ExamPostgreSQL) ListTags(ctx context.Context, tx *gorm.DB) ([]string, error) {
	var names []string
	if err := e.helpers.conn(ctx, tx).
		Model(&models.QuestionTag{}).
		Distinct("name").
		Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// ===== RETAKE REQUESTS =====

func (e *ExamPostgreSQL) CreateRetakeRequest(ctx context.Context, tx *gorm.DB, request *models.RetakeRequest) error {
	if err := e.helpers.conn(ctx, tx).Create(request).Error; err != nil {
		return fmt.Errorf("failed to create retake request: %w", err)
	}
	return nil
}

func (e *ExamPostgreSQL) GetPendingRetakeRequest(ctx context.Context, tx *gorm.DB, examID uint, userID string) (*models.RetakeRequest, error) {
	var request models.RetakeRequest
	if err := e.helpers.conn(ctx, tx).
		Where("exam_id = ? AND user_id = ? AND status = ?", examID, userID, models.RetakePending).
		Order("requested_at DESC").
		First(&request).Error; err != nil {
		return nil, fmt.Errorf("failed to get retake request: %w", err)
	}
	return &request, nil
}

func (e *ExamPostgreSQL) UpdateRetakeRequest(ctx context.Context, tx *gorm.DB, request *models.RetakeRequest) error {
	if err := e.helpers.conn(ctx, tx).Save(request).Error; err != nil {
		return fmt.Errorf("failed to update retake request: %w", err)
	}
	return nil
}

func (e *ExamPostgreSQL) ListRetakeRequests(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.RetakeRequest, error) {
	var requests []*models.RetakeRequest
	if err := e.helpers.conn(ctx, tx).
		Where("exam_id = ?", examID).
		Order("requested_at DESC").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list retake requests: %w", err)
	}
	return requests, nil
}
