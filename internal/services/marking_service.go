package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/scoring"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
	"gorm.io/gorm"
)

type markingService struct {
	repo      repositories.Repository
	storage   storage.StorageProvider
	emitter   *eventEmitter
	logger    *slog.Logger
	validator *validator.Validator
}

func NewMarkingService(repo repositories.Repository, storageProvider storage.StorageProvider, emitter *eventEmitter, logger *slog.Logger, validator *validator.Validator) MarkingService {
	return &markingService{
		repo:      repo,
		storage:   storageProvider,
		emitter:   emitter,
		logger:    logger,
		validator: validator,
	}
}

// ===== MANUAL MARKING =====

func (s *markingService) MarkAnswer(ctx context.Context, caller Caller, answerID uint, req *MarkAnswerRequest) (*MarkAnswerResponse, error) {
	if err := requireAdmin(caller, "answer", answerID, "mark"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	s.logger.Info("Marking answer",
		"answer_id", answerID,
		"marks_awarded", *req.MarksAwarded,
		"marker", caller.UserID)

	var answer *models.Answer
	var attempt *models.ExamAttempt
	var activity *models.ActivityLog
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		answer, err = s.repo.Answer().GetByID(ctx, tx, answerID)
		if err != nil {
			return orNotFound(err, ErrAnswerNotFound)
		}
		if _, err := s.repo.Attempt().LockForUpdate(ctx, tx, answer.AttemptID); err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}

		marks := *req.MarksAwarded
		if marks < 0 || marks > answer.Question.Marks {
			return fieldError("marks_awarded", fmt.Sprintf("must be between 0 and %g", answer.Question.Marks), marks)
		}
		applyManualMark(answer, marks, req.IsCorrect, caller)
		if req.Comment != nil {
			answer.Comment = req.Comment
		}
		if req.SolutionText != nil {
			answer.SolutionText = req.SolutionText
		}
		if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
			return err
		}

		attempt, err = recomputeAttempt(ctx, s.repo, tx, answer.AttemptID, keepResultsReady)
		if err != nil {
			return err
		}

		activity, err = logActivity(ctx, s.repo, tx, answer.AttemptID, models.ActivityAnswerMarked,
			fmt.Sprintf("Admin marked question %d: %g/%g", answer.Question.Order, marks, answer.Question.Marks),
			map[string]interface{}{
				"question_id":   answer.QuestionID,
				"question_type": answer.Question.Type,
				"marks_awarded": marks,
				"is_correct":    answer.IsCorrect,
				"comment":       answer.Comment,
			})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to mark answer", "answer_id", answerID, "error", err)
		return nil, err
	}

	s.emitter.activity(attempt, activity)
	s.emitter.attemptUpdate(attempt)

	return &MarkAnswerResponse{
		Answer: MarkedAnswer{
			ID:           answer.ID,
			MarksAwarded: answer.MarksAwarded,
			IsCorrect:    answer.IsCorrect,
		},
		AttemptScore:      attempt.Score,
		AttemptPercentage: attempt.PercentageScore,
	}, nil
}

// applyManualMark records an admin mark. Manually marked types default to correct when
// any marks are awarded; an explicit isCorrect always wins.
func applyManualMark(answer *models.Answer, marks float64, isCorrect *bool, caller Caller) {
	answer.MarksAwarded = &marks
	switch {
	case isCorrect != nil:
		answer.IsCorrect = *isCorrect
	case answer.Question != nil && answer.Question.Type.RequiresManualMarking():
		answer.IsCorrect = marks > 0
	}
	answer.IsManuallyMarked = true

	now := time.Now().UTC()
	marker := caller.UserName
	answer.MarkedBy = &marker
	answer.MarkedAt = &now
}

// BulkMark marks several answers. Invalid items are reported individually; valid items are
// applied in one transaction per attempt, after which the attempt's results_ready reflects
// whether every manually marked answer has marks.
func (s *markingService) BulkMark(ctx context.Context, caller Caller, req *BulkMarkRequest) (*BulkMarkResponse, error) {
	if err := requireAdmin(caller, "answer", 0, "bulk mark"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	resp := &BulkMarkResponse{
		UpdatedAnswers: []BulkMarkedAnswer{},
		FailedUpdates:  []FailedUpdate{},
	}

	// Group valid items by attempt, keeping request order.
	groups := make(map[uint][]BulkMarkItem)
	var order []uint
	for _, item := range req.Answers {
		if item.AnswerID == 0 || item.MarksAwarded == nil {
			resp.FailedUpdates = append(resp.FailedUpdates, FailedUpdate{AnswerID: item.AnswerID, Error: "Missing required fields"})
			continue
		}
		answer, err := s.repo.Answer().GetByID(ctx, nil, item.AnswerID)
		if err != nil {
			msg := "Answer not found"
			if !repositories.IsNotFoundError(err) {
				msg = err.Error()
			}
			resp.FailedUpdates = append(resp.FailedUpdates, FailedUpdate{AnswerID: item.AnswerID, Error: msg})
			continue
		}
		if *item.MarksAwarded < 0 || *item.MarksAwarded > answer.Question.Marks {
			resp.FailedUpdates = append(resp.FailedUpdates, FailedUpdate{
				AnswerID: item.AnswerID,
				Error:    fmt.Sprintf("Marks must be between 0 and %g", answer.Question.Marks),
			})
			continue
		}
		if _, ok := groups[answer.AttemptID]; !ok {
			order = append(order, answer.AttemptID)
		}
		groups[answer.AttemptID] = append(groups[answer.AttemptID], item)
	}

	for _, attemptID := range order {
		items := groups[attemptID]
		var marked []BulkMarkedAnswer
		var attempt *models.ExamAttempt
		var activities []*models.ActivityLog

		err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
			if _, err := s.repo.Attempt().LockForUpdate(ctx, tx, attemptID); err != nil {
				return orNotFound(err, ErrAttemptNotFound)
			}
			for _, item := range items {
				answer, err := s.repo.Answer().GetByID(ctx, tx, item.AnswerID)
				if err != nil {
					return orNotFound(err, ErrAnswerNotFound)
				}
				applyManualMark(answer, *item.MarksAwarded, nil, caller)
				if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
					return err
				}
				marked = append(marked, BulkMarkedAnswer{
					AnswerID:     answer.ID,
					MarksAwarded: answer.MarksAwarded,
					IsCorrect:    answer.IsCorrect,
				})

				activity, err := logActivity(ctx, s.repo, tx, attemptID, models.ActivityAnswerMarked,
					fmt.Sprintf("Admin marked question %d: %g/%g", answer.Question.Order, *item.MarksAwarded, answer.Question.Marks),
					map[string]interface{}{
						"question_id":   answer.QuestionID,
						"question_type": answer.Question.Type,
						"marks_awarded": *item.MarksAwarded,
						"is_correct":    answer.IsCorrect,
						"bulk":          true,
					})
				if err != nil {
					return err
				}
				activities = append(activities, activity)
			}

			var err error
			attempt, err = recomputeAttempt(ctx, s.repo, tx, attemptID, deriveResultsReady)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to bulk mark attempt answers", "attempt_id", attemptID, "error", err)
			for _, item := range items {
				resp.FailedUpdates = append(resp.FailedUpdates, FailedUpdate{AnswerID: item.AnswerID, Error: err.Error()})
			}
			continue
		}

		resp.UpdatedAnswers = append(resp.UpdatedAnswers, marked...)
		for _, activity := range activities {
			s.emitter.activity(attempt, activity)
		}
		s.emitter.attemptUpdate(attempt)
	}

	resp.Message = fmt.Sprintf("Bulk update completed: %d updated, %d failed", len(resp.UpdatedAnswers), len(resp.FailedUpdates))
	s.logger.Info("Bulk marking finished",
		"updated", len(resp.UpdatedAnswers),
		"failed", len(resp.FailedUpdates))

	return resp, nil
}

// ===== RECALCULATION =====

// PropagateOptionChange re-evaluates every answer that selected option. When the option was
// deleted the selection is cleared instead. Each attempt is updated in its own transaction
// and a failing attempt never stops the others. Manually marked answers keep their marks.
func (s *markingService) PropagateOptionChange(ctx context.Context, option *models.Option, deleted bool) (*PropagationResult, error) {
	question, err := s.repo.Exam().GetQuestion(ctx, nil, option.QuestionID)
	if err != nil {
		return nil, orNotFound(err, ErrQuestionNotFound)
	}
	exam, err := s.repo.Exam().GetByID(ctx, nil, question.ExamID)
	if err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}
	rules := scoring.RulesFor(exam)

	answers, err := s.repo.Answer().ListByOption(ctx, nil, option.ID)
	if err != nil {
		return nil, err
	}

	byAttempt := make(map[uint][]uint)
	var order []uint
	for _, a := range answers {
		if _, ok := byAttempt[a.AttemptID]; !ok {
			order = append(order, a.AttemptID)
		}
		byAttempt[a.AttemptID] = append(byAttempt[a.AttemptID], a.ID)
	}

	result := &PropagationResult{Failed: []AttemptFailure{}}
	for _, attemptID := range order {
		var attempt *models.ExamAttempt
		err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
			if _, err := s.repo.Attempt().LockForUpdate(ctx, tx, attemptID); err != nil {
				return orNotFound(err, ErrAttemptNotFound)
			}
			for _, answerID := range byAttempt[attemptID] {
				answer, err := s.repo.Answer().GetByID(ctx, tx, answerID)
				if err != nil {
					return orNotFound(err, ErrAnswerNotFound)
				}
				if deleted {
					answer.SelectedOptionID = nil
					if !answer.IsManuallyMarked {
						zero := 0.0
						answer.IsCorrect = false
						answer.MarksAwarded = &zero
					}
				} else if !answer.IsManuallyMarked {
					evaluation := scoring.EvaluateAnswer(rules, question, option)
					answer.IsCorrect = evaluation.IsCorrect
					answer.MarksAwarded = evaluation.MarksAwarded
				}
				if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
					return err
				}
			}

			var err error
			attempt, err = recomputeAttempt(ctx, s.repo, tx, attemptID, keepResultsReady)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to propagate option change",
				"option_id", option.ID,
				"attempt_id", attemptID,
				"error", err)
			result.Failed = append(result.Failed, AttemptFailure{AttemptID: attemptID, Error: err.Error()})
			continue
		}
		result.Updated++
		s.emitter.attemptUpdate(attempt)
	}

	s.logger.Info("Option change propagated",
		"option_id", option.ID,
		"deleted", deleted,
		"updated", result.Updated,
		"failed", len(result.Failed))

	return result, nil
}

func (s *markingService) ReleaseResults(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error) {
	if err := requireAdmin(caller, "attempt", attemptID, "release results"); err != nil {
		return nil, err
	}

	var attempt *models.ExamAttempt
	var activity *models.ActivityLog
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		attempt, err = s.repo.Attempt().LockForUpdate(ctx, tx, attemptID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}
		// Submission resets results_ready, so a release before it would be lost.
		if !attempt.Status.IsTerminal() {
			return NewBusinessRuleError("results_before_submission",
				"results can only be released for a finished attempt",
				map[string]interface{}{"attempt_id": attemptID, "status": attempt.Status})
		}
		if err := s.repo.Attempt().SetResultsReady(ctx, tx, attemptID, true); err != nil {
			return fmt.Errorf("failed to release results: %w", err)
		}
		attempt.ResultsReady = true

		activity, err = logActivity(ctx, s.repo, tx, attemptID, models.ActivityResultsReleased,
			"Admin released results for exam attempt",
			map[string]interface{}{
				"released_by": caller.UserName,
				"released_at": time.Now().UTC().Format(time.RFC3339),
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitter.activity(attempt, activity)
	s.emitter.attemptUpdate(attempt)

	s.logger.Info("Results released", "attempt_id", attemptID, "admin", caller.UserID)
	return attempt, nil
}

// RecalculateExamScores re-evaluates automatic answers against the current options and
// re-runs the scoring engine for every attempt of the exam. Only attempts whose score
// changed count as updated.
func (s *markingService) RecalculateExamScores(ctx context.Context, caller Caller, examID uint) (*RecalculateResult, error) {
	if err := requireAdmin(caller, "exam", examID, "recalculate scores"); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}
	attempts, err := s.repo.Attempt().ListByExam(ctx, nil, examID, repositories.AttemptFilters{})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recalculating exam scores", "exam_id", examID, "attempts", len(attempts))

	result := &RecalculateResult{TotalAttempts: len(attempts), Failed: []AttemptFailure{}}
	rules := scoring.RulesFor(exam)
	for _, a := range attempts {
		oldScore := a.Score
		var attempt *models.ExamAttempt
		err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
			if _, err := s.repo.Attempt().LockForUpdate(ctx, tx, a.ID); err != nil {
				return orNotFound(err, ErrAttemptNotFound)
			}
			if err := s.reevaluateAnswers(ctx, tx, rules, a.ID); err != nil {
				return err
			}
			var err error
			attempt, err = recomputeAttempt(ctx, s.repo, tx, a.ID, keepResultsReady)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to recalculate attempt", "attempt_id", a.ID, "error", err)
			result.Failed = append(result.Failed, AttemptFailure{AttemptID: a.ID, Error: err.Error()})
			continue
		}
		if attempt.Score != oldScore {
			result.UpdatedCount++
			s.emitter.attemptUpdate(attempt)
		}
	}

	s.logger.Info("Exam scores recalculated",
		"exam_id", examID,
		"updated", result.UpdatedCount,
		"failed", len(result.Failed))

	return result, nil
}

// reevaluateAnswers refreshes automatically marked answers of an attempt.
func (s *markingService) reevaluateAnswers(ctx context.Context, tx *gorm.DB, rules scoring.ExamRules, attemptID uint) error {
	answers, err := s.repo.Answer().ListByAttemptWithDetails(ctx, tx, attemptID)
	if err != nil {
		return err
	}
	for i := range answers {
		answer := &answers[i]
		if answer.IsManuallyMarked || answer.Question == nil || answer.Question.Type.RequiresManualMarking() {
			continue
		}
		evaluation := scoring.EvaluateAnswer(rules, answer.Question, answer.SelectedOption)
		if evaluation.IsCorrect == answer.IsCorrect && sameMarks(evaluation.MarksAwarded, answer.MarksAwarded) {
			continue
		}
		answer.IsCorrect = evaluation.IsCorrect
		answer.MarksAwarded = evaluation.MarksAwarded
		if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
			return err
		}
	}
	return nil
}

func sameMarks(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ===== SOLUTIONS =====

func (s *markingService) UpdateSolutionText(ctx context.Context, caller Caller, answerID uint, req *UpdateSolutionRequest) (string, error) {
	if err := requireAdmin(caller, "answer", answerID, "edit solution"); err != nil {
		return "", err
	}

	var attempt *models.ExamAttempt
	var activity *models.ActivityLog
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		answer, err := s.repo.Answer().GetByID(ctx, tx, answerID)
		if err != nil {
			return orNotFound(err, ErrAnswerNotFound)
		}
		attempt, err = s.repo.Attempt().GetByID(ctx, tx, answer.AttemptID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}

		text := req.SolutionText
		answer.SolutionText = &text
		if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
			return err
		}

		activity, err = logActivity(ctx, s.repo, tx, answer.AttemptID, models.ActivitySolutionUpdated,
			fmt.Sprintf("Admin edited solution text for question %d", answer.Question.Order),
			map[string]interface{}{"answer_id": answer.ID, "edited_by": caller.UserName})
		return err
	})
	if err != nil {
		return "", err
	}

	s.emitter.activity(attempt, activity)
	return req.SolutionText, nil
}

func (s *markingService) AddSolutionAttachments(ctx context.Context, caller Caller, answerID uint, files []FileUpload) ([]models.SolutionAttachment, error) {
	if err := requireAdmin(caller, "answer", answerID, "add solution attachment"); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fieldError("files", "at least one file is required", nil)
	}

	answer, err := s.repo.Answer().GetByID(ctx, nil, answerID)
	if err != nil {
		return nil, orNotFound(err, ErrAnswerNotFound)
	}
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, answer.AttemptID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}

	stored, err := uploadFiles(ctx, s.storage, s.logger, fmt.Sprintf("solutions/%d", answerID), files)
	if err != nil {
		return nil, err
	}

	created := make([]models.SolutionAttachment, 0, len(stored))
	var activity *models.ActivityLog
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, f := range stored {
			attachment := models.SolutionAttachment{
				AnswerID:   answerID,
				UploadedBy: caller.UserName,
				StoredFile: f,
			}
			if err := s.repo.Answer().CreateSolutionAttachment(ctx, tx, &attachment); err != nil {
				return err
			}
			created = append(created, attachment)
		}

		var err error
		activity, err = logActivity(ctx, s.repo, tx, answer.AttemptID, models.ActivitySolutionAttachmentAdded,
			fmt.Sprintf("Admin added %d solution attachment(s) for question %d", len(created), answer.Question.Order),
			map[string]interface{}{"answer_id": answerID, "added_by": caller.UserName, "count": len(created)})
		return err
	})
	if err != nil {
		removeFiles(ctx, s.storage, s.logger, storedKeys(stored))
		return nil, err
	}

	s.emitter.activity(attempt, activity)
	return created, nil
}

func (s *markingService) DeleteSolutionAttachment(ctx context.Context, caller Caller, attachmentID uint) error {
	if err := requireAdmin(caller, "solution_attachment", attachmentID, "delete"); err != nil {
		return err
	}

	var attachment *models.SolutionAttachment
	var attempt *models.ExamAttempt
	var activity *models.ActivityLog
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		attachment, err = s.repo.Answer().GetSolutionAttachment(ctx, tx, attachmentID)
		if err != nil {
			return orNotFound(err, ErrSolutionAttachmentNotFound)
		}
		answer, err := s.repo.Answer().GetByID(ctx, tx, attachment.AnswerID)
		if err != nil {
			return orNotFound(err, ErrAnswerNotFound)
		}
		attempt, err = s.repo.Attempt().GetByID(ctx, tx, answer.AttemptID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}

		if err := s.repo.Answer().DeleteSolutionAttachment(ctx, tx, attachmentID); err != nil {
			return err
		}

		activity, err = logActivity(ctx, s.repo, tx, answer.AttemptID, models.ActivitySolutionAttachmentDeleted,
			fmt.Sprintf("Admin deleted solution attachment %d for question %d", attachmentID, answer.Question.Order),
			map[string]interface{}{"attachment_id": attachmentID, "deleted_by": caller.UserName})
		return err
	})
	if err != nil {
		return err
	}

	removeFiles(ctx, s.storage, s.logger, []string{attachment.StorageKey})
	s.emitter.activity(attempt, activity)
	return nil
}

// ClearSolutions deletes every image and attachment students uploaded for an attempt.
func (s *markingService) ClearSolutions(ctx context.Context, caller Caller, attemptID uint) (*ClearSolutionsResponse, error) {
	if err := requireAdmin(caller, "attempt", attemptID, "clear solutions"); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByIDWithExam(ctx, nil, attemptID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}

	var images []models.AnswerImage
	var attachments []models.AnswerAttachment
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		images, attachments, err = s.repo.Answer().DeleteFilesByAttempt(ctx, tx, attemptID)
		return err
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(images)+len(attachments))
	for _, img := range images {
		keys = append(keys, img.StorageKey)
	}
	for _, att := range attachments {
		keys = append(keys, att.StorageKey)
	}
	removeFiles(ctx, s.storage, s.logger, keys)

	s.logger.Info("Cleared attempt solution files",
		"attempt_id", attemptID,
		"images", len(images),
		"attachments", len(attachments))

	examTitle := ""
	if attempt.Exam != nil {
		examTitle = attempt.Exam.Title
	}
	return &ClearSolutionsResponse{
		Message: fmt.Sprintf("Successfully deleted solution files for attempt #%d", attemptID),
		DeletedCounts: DeletedCounts{
			Images:      len(images),
			Attachments: len(attachments),
		},
		Student: attempt.UserName,
		Exam:    examTitle,
	}, nil
}
