package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/scoring"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
	"gorm.io/gorm"
)

type answerService struct {
	repo      repositories.Repository
	storage   storage.StorageProvider
	emitter   *eventEmitter
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAnswerService(repo repositories.Repository, storageProvider storage.StorageProvider, emitter *eventEmitter, logger *slog.Logger, validator *validator.Validator) AnswerService {
	return &answerService{
		repo:      repo,
		storage:   storageProvider,
		emitter:   emitter,
		logger:    logger,
		validator: validator,
	}
}

// SubmitAnswer upserts the answer for (attempt, question), evaluates it and refreshes the
// attempt aggregates. Images and attachments are replaced only when the request carries files.
func (s *answerService) SubmitAnswer(ctx context.Context, caller Caller, attemptID uint, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	s.logger.Info("Submitting answer",
		"attempt_id", attemptID,
		"question_id", req.QuestionID,
		"user_id", caller.UserID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}
	if attempt.UserID != caller.UserID {
		return nil, NewPermissionError(caller.UserID, attemptID, "attempt", "answer", "not owned by user")
	}
	if !attempt.Status.IsAnswerable() {
		return nil, ErrAttemptNotAnswerable
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, attempt.ExamID)
	if err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}
	question, selected, err := s.resolveQuestion(ctx, attempt, req)
	if err != nil {
		return nil, err
	}

	images, err := uploadFiles(ctx, s.storage, s.logger, fmt.Sprintf("answers/%d/%d/images", attemptID, question.ID), req.Images)
	if err != nil {
		return nil, err
	}
	attachments, err := uploadFiles(ctx, s.storage, s.logger, fmt.Sprintf("answers/%d/%d/attachments", attemptID, question.ID), req.Attachments)
	if err != nil {
		removeFiles(ctx, s.storage, s.logger, storedKeys(images))
		return nil, err
	}

	var answer *models.Answer
	var activity *models.ActivityLog
	var staleKeys []string
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.Attempt().LockForUpdate(ctx, tx, attemptID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}
		if !locked.Status.IsAnswerable() {
			return ErrAttemptNotAnswerable
		}

		var created bool
		answer, created, err = s.repo.Answer().Upsert(ctx, tx, attemptID, question.ID)
		if err != nil {
			return err
		}
		wasCorrect := answer.IsCorrect

		answer.SelectedOptionID = req.SelectedOptionID
		answer.TextAnswer = req.TextAnswer
		answer.TimeSpentSeconds = req.TimeSpentSeconds
		if !answer.IsManuallyMarked {
			evaluation := scoring.EvaluateAnswer(scoring.RulesFor(exam), question, selected)
			answer.IsCorrect = evaluation.IsCorrect
			answer.MarksAwarded = evaluation.MarksAwarded
		}
		if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
			return err
		}

		// Each file set is replaced only when new files of that kind are sent.
		if len(images) > 0 {
			rows := make([]models.AnswerImage, 0, len(images))
			for _, f := range images {
				rows = append(rows, models.AnswerImage{StoredFile: f})
			}
			old, err := s.repo.Answer().ReplaceImages(ctx, tx, answer.ID, rows)
			if err != nil {
				return err
			}
			for _, img := range old {
				staleKeys = append(staleKeys, img.StorageKey)
			}
		}
		if len(attachments) > 0 {
			rows := make([]models.AnswerAttachment, 0, len(attachments))
			for _, f := range attachments {
				rows = append(rows, models.AnswerAttachment{StoredFile: f})
			}
			old, err := s.repo.Answer().ReplaceAttachments(ctx, tx, answer.ID, rows)
			if err != nil {
				return err
			}
			for _, att := range old {
				staleKeys = append(staleKeys, att.StorageKey)
			}
		}

		if locked.Status == models.AttemptStarted {
			if err := s.repo.Attempt().UpdateStatus(ctx, tx, attemptID, models.AttemptInProgress); err != nil {
				return fmt.Errorf("failed to update attempt status: %w", err)
			}
		}

		attempt, err = recomputeAttempt(ctx, s.repo, tx, attemptID, keepResultsReady)
		if err != nil {
			return err
		}

		activityType := models.ActivityAnswerSubmitted
		description := fmt.Sprintf("Answered question %d", question.Order)
		if !created && wasCorrect != answer.IsCorrect {
			activityType = models.ActivityAnswerChanged
			description = fmt.Sprintf("Changed answer for question %d", question.Order)
		}
		activity, err = logActivity(ctx, s.repo, tx, attemptID, activityType, description,
			map[string]interface{}{
				"question_id":        question.ID,
				"question_type":      question.Type,
				"is_correct":         answer.IsCorrect,
				"marks_awarded":      answer.MarksAwarded,
				"selected_option_id": answer.SelectedOptionID,
			})
		return err
	})
	if err != nil {
		removeFiles(ctx, s.storage, s.logger, append(storedKeys(images), storedKeys(attachments)...))
		s.logger.Error("Failed to submit answer",
			"attempt_id", attemptID,
			"question_id", question.ID,
			"error", err)
		return nil, err
	}

	removeFiles(ctx, s.storage, s.logger, staleKeys)
	s.emitter.activity(attempt, activity)
	s.emitter.attemptUpdate(attempt)

	return &SubmitAnswerResponse{
		Message:      "Answer submitted successfully",
		AnswerID:     answer.ID,
		IsCorrect:    answer.IsCorrect,
		MarksAwarded: answer.MarksAwarded,
		Status:       attempt.Status,
	}, nil
}

// resolveQuestion checks that the question belongs to the attempt's exam and that the
// selected option, if any, belongs to the question.
func (s *answerService) resolveQuestion(ctx context.Context, attempt *models.ExamAttempt, req *SubmitAnswerRequest) (*models.Question, *models.Option, error) {
	question, err := s.repo.Exam().GetQuestion(ctx, nil, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, fieldError("question_id", "question not found", req.QuestionID)
		}
		return nil, nil, err
	}
	if question.ExamID != attempt.ExamID {
		return nil, nil, fieldError("question_id", "question does not belong to this exam", req.QuestionID)
	}

	if req.SelectedOptionID == nil {
		return question, nil, nil
	}
	if question.Type.RequiresManualMarking() {
		return nil, nil, fieldError("selected_option_id", "question does not take options", *req.SelectedOptionID)
	}
	for i := range question.Options {
		if question.Options[i].ID == *req.SelectedOptionID {
			return question, &question.Options[i], nil
		}
	}
	return nil, nil, fieldError("selected_option_id", "option does not belong to this question", *req.SelectedOptionID)
}
