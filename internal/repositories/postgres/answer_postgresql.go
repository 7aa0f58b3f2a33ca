package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerPostgreSQL struct {
	helpers *SharedHelpers
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{
		helpers: NewSharedHelpers(db),
	}
}

// ===== BASIC OPERATIONS =====

func (a *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := a.helpers.conn(ctx, tx).
		Preload("Question").
		First(&answer, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get answer %d: %w", id, err)
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := a.withDetails(a.helpers.conn(ctx, tx)).First(&answer, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get answer %d: %w", id, err)
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	var answer models.Answer
	if err := a.helpers.conn(ctx, tx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, fmt.Errorf("failed to get answer for attempt %d question %d: %w", attemptID, questionID, err)
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	if err := a.helpers.conn(ctx, tx).Omit(clause.Associations).Save(answer).Error; err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}
	return nil
}

// Upsert relies on the unique (attempt_id, question_id) index: a concurrent insert
// loses the race silently and both callers then read the same row.
func (a *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, bool, error) {
	db := a.helpers.conn(ctx, tx)

	answer := &models.Answer{AttemptID: attemptID, QuestionID: questionID}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoNothing: true,
	}).Omit(clause.Associations).Create(answer)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to insert answer: %w", result.Error)
	}
	created := result.RowsAffected > 0

	var stored models.Answer
	if err := a.helpers.forUpdate(db).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&stored).Error; err != nil {
		return nil, false, fmt.Errorf("failed to load answer: %w", err)
	}
	return &stored, created, nil
}

// ===== QUERY OPERATIONS =====

func (a *AnswerPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := a.helpers.conn(ctx, tx).
		Preload("Question").
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers for attempt %d: %w", attemptID, err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) ListByAttemptWithDetails(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := a.withDetails(a.helpers.conn(ctx, tx)).
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers for attempt %d: %w", attemptID, err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) ListByOption(ctx context.Context, tx *gorm.DB, optionID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := a.helpers.conn(ctx, tx).
		Preload("Question").
		Where("selected_option_id = ?", optionID).
		Order("attempt_id ASC, id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers for option %d: %w", optionID, err)
	}
	return answers, nil
}

// CountAnswered counts the answer rows of an attempt, one per answered question.
func (a *AnswerPostgreSQL) CountAnswered(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	var count int64
	if err := a.helpers.conn(ctx, tx).
		Model(&models.Answer{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count answers: %w", err)
	}
	return count, nil
}

// ===== FILES =====

func (a *AnswerPostgreSQL) ReplaceImages(ctx context.Context, tx *gorm.DB, answerID uint, images []models.AnswerImage) ([]models.AnswerImage, error) {
	db := a.helpers.conn(ctx, tx)

	var old []models.AnswerImage
	if err := db.Where("answer_id = ?", answerID).Find(&old).Error; err != nil {
		return nil, fmt.Errorf("failed to load answer images: %w", err)
	}
	if err := db.Where("answer_id = ?", answerID).Delete(&models.AnswerImage{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete answer images: %w", err)
	}
	for i := range images {
		images[i].AnswerID = answerID
	}
	if len(images) > 0 {
		if err := db.Create(&images).Error; err != nil {
			return nil, fmt.Errorf("failed to create answer images: %w", err)
		}
	}
	return old, nil
}

func (a *AnswerPostgreSQL) ReplaceAttachments(ctx context.Context, tx *gorm.DB, answerID uint, attachments []models.AnswerAttachment) ([]models.AnswerAttachment, error) {
	db := a.helpers.conn(ctx, tx)

	var old []models.AnswerAttachment
	if err := db.Where("answer_id = ?", answerID).Find(&old).Error; err != nil {
		return nil, fmt.Errorf("failed to load answer attachments: %w", err)
	}
	if err := db.Where("answer_id = ?", answerID).Delete(&models.AnswerAttachment{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete answer attachments: %w", err)
	}
	for i := range attachments {
		attachments[i].AnswerID = answerID
	}
	if len(attachments) > 0 {
		if err := db.Create(&attachments).Error; err != nil {
			return nil, fmt.Errorf("failed to create answer attachments: %w", err)
		}
	}
	return old, nil
}

func (a *AnswerPostgreSQL) DeleteFilesByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AnswerImage, []models.AnswerAttachment, error) {
	db := a.helpers.conn(ctx, tx)
	answerIDs := db.Model(&models.Answer{}).Select("id").Where("attempt_id = ?", attemptID)

	var images []models.AnswerImage
	if err := db.Where("answer_id IN (?)", answerIDs).Find(&images).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load answer images: %w", err)
	}
	var attachments []models.AnswerAttachment
	if err := db.Where("answer_id IN (?)", answerIDs).Find(&attachments).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load answer attachments: %w", err)
	}

	if len(images) > 0 {
		if err := db.Delete(&images).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to delete answer images: %w", err)
		}
	}
	if len(attachments) > 0 {
		if err := db.Delete(&attachments).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to delete answer attachments: %w", err)
		}
	}
	return images, attachments, nil
}

func (a *AnswerPostgreSQL) CreateSolutionAttachment(ctx context.Context, tx *gorm.DB, attachment *models.SolutionAttachment) error {
	if err := a.helpers.conn(ctx, tx).Create(attachment).Error; err != nil {
		return fmt.Errorf("failed to create solution attachment: %w", err)
	}
	return nil
}

func (a *AnswerPostgreSQL) GetSolutionAttachment(ctx context.Context, tx *gorm.DB, id uint) (*models.SolutionAttachment, error) {
	var attachment models.SolutionAttachment
	if err := a.helpers.conn(ctx, tx).First(&attachment, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get solution attachment %d: %w", id, err)
	}
	return &attachment, nil
}

func (a *AnswerPostgreSQL) DeleteSolutionAttachment(ctx context.Context, tx *gorm.DB, id uint) error {
	if err := a.helpers.conn(ctx, tx).Delete(&models.SolutionAttachment{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete solution attachment: %w", err)
	}
	return nil
}

func (a *AnswerPostgreSQL) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]string, error) {
	db := a.helpers.conn(ctx, tx)

	images, attachments, err := a.DeleteFilesByAttempt(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}

	answerIDs := db.Model(&models.Answer{}).Select("id").Where("attempt_id = ?", attemptID)
	var solutions []models.SolutionAttachment
	if err := db.Where("answer_id IN (?)", answerIDs).Find(&solutions).Error; err != nil {
		return nil, fmt.Errorf("failed to load solution attachments: %w", err)
	}
	if len(solutions) > 0 {
		if err := db.Delete(&solutions).Error; err != nil {
			return nil, fmt.Errorf("failed to delete solution attachments: %w", err)
		}
	}

	if err := db.Where("attempt_id = ?", attemptID).Delete(&models.Answer{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete answers: %w", err)
	}

	keys := make([]string, 0, len(images)+len(attachments)+len(solutions))
	for _, img := range images {
		keys = append(keys, img.StorageKey)
	}
	for _, att := range attachments {
		keys = append(keys, att.StorageKey)
	}
	for _, sol := range solutions {
		keys = append(keys, sol.StorageKey)
	}
	return keys, nil
}

func (a *AnswerPostgreSQL) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Question").
		Preload("Question.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order(`"order" ASC, id ASC`)
		}).
		Preload("SelectedOption").
		Preload("Images").
		Preload("Attachments").
		Preload("SolutionAttachments")
}
