package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type examAdminService struct {
	repo      repositories.Repository
	marking   MarkingService
	storage   storage.StorageProvider
	emitter   *eventEmitter
	logger    *slog.Logger
	validator *validator.Validator
}

func NewExamAdminService(repo repositories.Repository, marking MarkingService, storageProvider storage.StorageProvider,
	emitter *eventEmitter, logger *slog.Logger, validator *validator.Validator) ExamAdminService {
	return &examAdminService{
		repo:      repo,
		marking:   marking,
		storage:   storageProvider,
		emitter:   emitter,
		logger:    logger,
		validator: validator,
	}
}

// ===== OPTIONS =====

// UpdateOption edits an option and re-scores every answer that selected it when its
// correctness changed.
func (s *examAdminService) UpdateOption(ctx context.Context, caller Caller, optionID uint, req *UpdateOptionRequest) (*OptionChangeResponse, error) {
	if err := requireAdmin(caller, "option", optionID, "update"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	s.logger.Info("Updating option", "option_id", optionID, "admin", caller.UserID)

	var option *models.Option
	var exam *models.Exam
	var correctnessChanged bool
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		option, err = s.repo.Exam().GetOption(ctx, tx, optionID)
		if err != nil {
			return orNotFound(err, ErrOptionNotFound)
		}
		question, err := s.repo.Exam().GetQuestion(ctx, tx, option.QuestionID)
		if err != nil {
			return orNotFound(err, ErrQuestionNotFound)
		}

		if req.OptionText != nil {
			option.OptionText = *req.OptionText
		}
		if req.Order != nil {
			option.Order = *req.Order
		}
		if req.IsCorrect != nil && *req.IsCorrect != option.IsCorrect {
			option.IsCorrect = *req.IsCorrect
			correctnessChanged = true
		}
		if err := s.repo.Exam().UpdateOption(ctx, tx, option); err != nil {
			return err
		}

		exam, err = s.repo.Exam().SyncTotalMarks(ctx, tx, question.ExamID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to update option", "option_id", optionID, "error", err)
		return nil, err
	}

	propagation := &PropagationResult{Failed: []AttemptFailure{}}
	if correctnessChanged {
		propagation, err = s.marking.PropagateOptionChange(ctx, option, false)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("Option updated",
		"option_id", optionID,
		"is_correct", option.IsCorrect,
		"attempts_updated", propagation.Updated)

	return &OptionChangeResponse{
		Option:      option,
		TotalMarks:  exam.TotalMarks,
		Propagation: propagation,
	}, nil
}

// DeleteOption clears the option from every answer before removing it. The option is kept
// when any affected attempt could not be re-scored.
func (s *examAdminService) DeleteOption(ctx context.Context, caller Caller, optionID uint) (*OptionChangeResponse, error) {
	if err := requireAdmin(caller, "option", optionID, "delete"); err != nil {
		return nil, err
	}

	s.logger.Info("Deleting option", "option_id", optionID, "admin", caller.UserID)

	option, err := s.repo.Exam().GetOption(ctx, nil, optionID)
	if err != nil {
		return nil, orNotFound(err, ErrOptionNotFound)
	}
	question, err := s.repo.Exam().GetQuestion(ctx, nil, option.QuestionID)
	if err != nil {
		return nil, orNotFound(err, ErrQuestionNotFound)
	}

	propagation, err := s.marking.PropagateOptionChange(ctx, option, true)
	if err != nil {
		return nil, err
	}
	if len(propagation.Failed) > 0 {
		s.logger.Error("Option kept after failed propagation",
			"option_id", optionID,
			"failed_attempts", len(propagation.Failed))
		return nil, fmt.Errorf("option %d still referenced by %d attempts: %w", optionID, len(propagation.Failed), ErrConflict)
	}

	var exam *models.Exam
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Exam().DeleteOption(ctx, tx, optionID); err != nil {
			return orNotFound(err, ErrOptionNotFound)
		}
		exam, err = s.repo.Exam().SyncTotalMarks(ctx, tx, question.ExamID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to delete option", "option_id", optionID, "error", err)
		return nil, err
	}

	s.logger.Info("Option deleted",
		"option_id", optionID,
		"attempts_updated", propagation.Updated)

	return &OptionChangeResponse{
		TotalMarks:  exam.TotalMarks,
		Propagation: propagation,
	}, nil
}

// ===== TAGS =====

func (s *examAdminService) UpdateQuestionTags(ctx context.Context, caller Caller, questionID uint, req *UpdateTagsRequest) (*models.Question, error) {
	if err := requireAdmin(caller, "question", questionID, "update tags"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var question *models.Question
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.Exam().GetQuestion(ctx, tx, questionID); err != nil {
			return orNotFound(err, ErrQuestionNotFound)
		}
		if err := s.repo.Exam().ReplaceQuestionTags(ctx, tx, questionID, req.Tags); err != nil {
			return err
		}
		var err error
		question, err = s.repo.Exam().GetQuestion(ctx, tx, questionID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to update question tags", "question_id", questionID, "error", err)
		return nil, err
	}

	s.logger.Info("Question tags updated", "question_id", questionID, "tags", len(question.Tags))
	return question, nil
}

func (s *examAdminService) ListTags(ctx context.Context, caller Caller) ([]string, error) {
	if err := requireAdmin(caller, "tag", 0, "list"); err != nil {
		return nil, err
	}
	return s.repo.Exam().ListTags(ctx, nil)
}

// ===== RETAKES =====

// RequestRetake records that the caller wants to sit a finished exam again.
func (s *examAdminService) RequestRetake(ctx context.Context, caller Caller, examID uint) (*models.RetakeRequest, error) {
	s.logger.Info("Requesting retake", "exam_id", examID, "user_id", caller.UserID)

	attempt, err := s.repo.Attempt().GetByUserAndExam(ctx, nil, caller.UserID, examID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}
	if !attempt.Status.IsTerminal() {
		return nil, ErrRetakeNotAllowed
	}

	_, err = s.repo.Exam().GetPendingRetakeRequest(ctx, nil, examID, caller.UserID)
	if err == nil {
		return nil, ErrRetakeAlreadyRequested
	}
	if !repositories.IsNotFoundError(err) {
		return nil, err
	}

	request := &models.RetakeRequest{
		ExamID:        examID,
		UserID:        caller.UserID,
		UserName:      caller.UserName,
		PreviousScore: attempt.Score,
		Status:        models.RetakePending,
		RequestedAt:   time.Now().UTC(),
	}
	if err := s.repo.Exam().CreateRetakeRequest(ctx, nil, request); err != nil {
		s.logger.Error("Failed to create retake request", "exam_id", examID, "error", err)
		return nil, err
	}

	s.logger.Info("Retake requested", "exam_id", examID, "request_id", request.ID)
	return request, nil
}

func (s *examAdminService) ListRetakeRequests(ctx context.Context, caller Caller, examID uint) ([]*models.RetakeRequest, error) {
	if err := requireAdmin(caller, "exam", examID, "list retake requests"); err != nil {
		return nil, err
	}
	if _, err := s.repo.Exam().GetByID(ctx, nil, examID); err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}
	return s.repo.Exam().ListRetakeRequests(ctx, nil, examID)
}

// GrantRetake deletes the student's previous attempt so that the next start creates a new
// one. A pending request, if any, is marked granted.
func (s *examAdminService) GrantRetake(ctx context.Context, caller Caller, examID uint, userID string) (*GrantRetakeResponse, error) {
	if err := requireAdmin(caller, "exam", examID, "grant retake"); err != nil {
		return nil, err
	}

	s.logger.Info("Granting retake", "exam_id", examID, "user_id", userID, "admin", caller.UserID)

	var attemptID uint
	var keys []string
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		attempt, err := s.repo.Attempt().GetByUserAndExam(ctx, tx, userID, examID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}
		locked, err := s.repo.Attempt().LockForUpdate(ctx, tx, attempt.ID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}
		if !locked.Status.IsTerminal() {
			return ErrRetakeNotAllowed
		}
		attemptID = attempt.ID

		keys, err = deleteAttemptData(ctx, s.repo, tx, attempt.ID)
		if err != nil {
			return err
		}

		request, err := s.repo.Exam().GetPendingRetakeRequest(ctx, tx, examID, userID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil
			}
			return err
		}
		now := time.Now().UTC()
		request.Status = models.RetakeGranted
		request.ResolvedAt = &now
		request.ResolvedBy = &caller.UserID
		return s.repo.Exam().UpdateRetakeRequest(ctx, tx, request)
	})
	if err != nil {
		s.logger.Error("Failed to grant retake", "exam_id", examID, "user_id", userID, "error", err)
		return nil, err
	}

	removeFiles(ctx, s.storage, s.logger, keys)
	s.emitter.invalidate(examID)

	s.logger.Info("Retake granted",
		"exam_id", examID,
		"user_id", userID,
		"deleted_attempt_id", attemptID)

	return &GrantRetakeResponse{
		Message:        "Retake granted, previous attempt deleted",
		DeletedAttempt: attemptID,
	}, nil
}

// ===== EXPORT =====

var resultsExportHeaders = []interface{}{
	"Attempt ID", "User ID", "Student Name", "Status", "Started At", "Submitted At",
	"Score", "Percentage", "Correct", "Wrong", "Unanswered", "Passed", "Time Spent (minutes)",
}

// ExportResults renders the attempt aggregates of an exam as an XLSX workbook.
func (s *examAdminService) ExportResults(ctx context.Context, caller Caller, examID uint) ([]byte, error) {
	if err := requireAdmin(caller, "exam", examID, "export results"); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}
	attempts, err := s.repo.Attempt().ListByExam(ctx, nil, examID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to get exam attempts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Results"
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &resultsExportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write Excel headers: %w", err)
	}

	for i, attempt := range attempts {
		submitted := ""
		if attempt.EndTime != nil {
			submitted = attempt.EndTime.Format("2006-01-02 15:04:05")
		}
		passed := "Fail"
		if attempt.IsPassed {
			passed = "Pass"
		}
		row := []interface{}{
			attempt.ID,
			attempt.UserID,
			attempt.UserName,
			string(attempt.Status),
			attempt.StartTime.Format("2006-01-02 15:04:05"),
			submitted,
			attempt.Score,
			attempt.PercentageScore,
			attempt.CorrectAnswers,
			attempt.WrongAnswers,
			attempt.UnansweredQuestions,
			passed,
			attempt.TimeSpentSeconds / 60,
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write Excel row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Results exported", "exam_id", examID, "exam_title", exam.Title, "attempts", len(attempts))
	return buf.Bytes(), nil
}
