package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"gorm.io/gorm"
)

type attemptService struct {
	repo    repositories.Repository
	storage storage.StorageProvider
	emitter *eventEmitter
	logger  *slog.Logger
}

func NewAttemptService(repo repositories.Repository, storageProvider storage.StorageProvider, emitter *eventEmitter, logger *slog.Logger) AttemptService {
	return &attemptService{
		repo:    repo,
		storage: storageProvider,
		emitter: emitter,
		logger:  logger,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, caller Caller, examID uint) (*StartAttemptResponse, error) {
	s.logger.Info("Starting exam attempt",
		"exam_id", examID,
		"user_id", caller.UserID)

	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}

	// The schedule window only gates new attempts; an unfinished one is always resumable.
	existing, err := s.repo.Attempt().GetByUserAndExam(ctx, nil, caller.UserID, examID)
	if err == nil {
		if existing.Status.IsTerminal() {
			return nil, ErrAttemptCompleted
		}
		s.logger.Info("Resuming existing attempt", "attempt_id", existing.ID)
		return &StartAttemptResponse{Attempt: existing, Resumed: true}, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if !exam.IsOpenAt(time.Now()) {
		return nil, ErrExamNotOpen
	}

	totalQuestions, err := s.repo.Exam().CountQuestions(ctx, nil, examID)
	if err != nil {
		return nil, err
	}

	attempt := &models.ExamAttempt{
		UserID:              caller.UserID,
		UserName:            caller.UserName,
		ExamID:              examID,
		Status:              models.AttemptStarted,
		StartTime:           time.Now().UTC(),
		UnansweredQuestions: int(totalQuestions),
	}

	var activity *models.ActivityLog
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Attempt().Create(ctx, tx, attempt); err != nil {
			return err
		}
		activity, err = logActivity(ctx, s.repo, tx, attempt.ID, models.ActivityAttemptStarted,
			fmt.Sprintf("Started exam %s", exam.Title),
			map[string]interface{}{"exam_id": examID})
		return err
	})
	if err != nil {
		// A concurrent start for the same user and exam won the unique index.
		if winner, getErr := s.repo.Attempt().GetByUserAndExam(ctx, nil, caller.UserID, examID); getErr == nil && !winner.Status.IsTerminal() {
			return &StartAttemptResponse{Attempt: winner, Resumed: true}, nil
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.emitter.activity(attempt, activity)
	s.emitter.attemptUpdate(attempt)

	s.logger.Info("Exam attempt started successfully",
		"attempt_id", attempt.ID,
		"exam_id", examID,
		"user_id", caller.UserID)

	return &StartAttemptResponse{Attempt: attempt}, nil
}

func (s *attemptService) Pause(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error) {
	return s.transition(ctx, caller, attemptID, models.AttemptInProgress, models.AttemptPaused,
		models.ActivityAttemptPaused, "Attempt paused")
}

func (s *attemptService) Resume(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error) {
	return s.transition(ctx, caller, attemptID, models.AttemptPaused, models.AttemptInProgress,
		models.ActivityAttemptResumed, "Attempt resumed")
}

// transition moves an owned attempt from one status to the next.
func (s *attemptService) transition(ctx context.Context, caller Caller, attemptID uint, from, to models.AttemptStatus,
	activityType models.ActivityType, description string) (*models.ExamAttempt, error) {

	s.logger.Info("Changing attempt status",
		"attempt_id", attemptID,
		"to", to,
		"user_id", caller.UserID)

	var attempt *models.ExamAttempt
	var activity *models.ActivityLog
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		attempt, err = s.repo.Attempt().LockForUpdate(ctx, tx, attemptID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}
		if err := authorizeAttempt(caller, attempt, string(to)); err != nil {
			return err
		}
		if attempt.Status != from || !from.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s to %s", ErrAttemptInvalidTransition, attempt.Status, to)
		}

		if err := s.repo.Attempt().UpdateStatus(ctx, tx, attemptID, to); err != nil {
			return fmt.Errorf("failed to update attempt status: %w", err)
		}
		attempt.Status = to

		activity, err = logActivity(ctx, s.repo, tx, attemptID, activityType, description, nil)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to change attempt status", "attempt_id", attemptID, "to", to, "error", err)
		return nil, err
	}

	s.emitter.activity(attempt, activity)
	s.emitter.attemptUpdate(attempt)
	return attempt, nil
}

func (s *attemptService) Submit(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error) {
	s.logger.Info("Submitting attempt",
		"attempt_id", attemptID,
		"user_id", caller.UserID)

	var attempt *models.ExamAttempt
	var activity *models.ActivityLog
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.Attempt().LockForUpdate(ctx, tx, attemptID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}
		if err := authorizeAttempt(caller, current, "submit"); err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return ErrAttemptCompleted
		}
		if !current.Status.CanTransitionTo(models.AttemptCompleted) {
			return fmt.Errorf("%w: %s to %s", ErrAttemptInvalidTransition, current.Status, models.AttemptCompleted)
		}

		now := time.Now().UTC()
		current.Status = models.AttemptCompleted
		current.EndTime = &now
		current.EvaluatedAt = &now
		current.TimeSpentSeconds = int(now.Sub(current.StartTime).Seconds())
		if err := s.repo.Attempt().Update(ctx, tx, current); err != nil {
			return err
		}

		attempt, err = recomputeAttempt(ctx, s.repo, tx, attemptID, resetResultsReady)
		if err != nil {
			return err
		}
		if err := s.repo.Proctoring().EndSession(ctx, tx, attemptID); err != nil {
			return fmt.Errorf("failed to end proctoring session: %w", err)
		}

		activity, err = logActivity(ctx, s.repo, tx, attemptID, models.ActivityAttemptSubmitted,
			"Exam submitted",
			map[string]interface{}{
				"score":            attempt.Score,
				"percentage_score": attempt.PercentageScore,
			})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to submit attempt", "attempt_id", attemptID, "error", err)
		return nil, err
	}

	s.emitter.activity(attempt, activity)
	s.emitter.attemptUpdate(attempt)

	s.logger.Info("Attempt submitted successfully",
		"attempt_id", attemptID,
		"score", attempt.Score,
		"percentage_score", attempt.PercentageScore)

	return attempt, nil
}

// Terminate aborts a running attempt on behalf of an admin.
func (s *attemptService) Terminate(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error) {
	if err := requireAdmin(caller, "attempt", attemptID, "terminate"); err != nil {
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
		if !attempt.Status.CanTransitionTo(models.AttemptTerminated) {
			return fmt.Errorf("%w: %s to %s", ErrAttemptInvalidTransition, attempt.Status, models.AttemptTerminated)
		}

		now := time.Now().UTC()
		attempt.Status = models.AttemptTerminated
		attempt.EndTime = &now
		attempt.TimeSpentSeconds = int(now.Sub(attempt.StartTime).Seconds())
		if err := s.repo.Attempt().Update(ctx, tx, attempt); err != nil {
			return err
		}
		if err := s.repo.Proctoring().EndSession(ctx, tx, attemptID); err != nil {
			return fmt.Errorf("failed to end proctoring session: %w", err)
		}

		activity, err = logActivity(ctx, s.repo, tx, attemptID, models.ActivityAttemptTerminated,
			"Attempt terminated by admin",
			map[string]interface{}{"terminated_by": caller.UserName})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitter.activity(attempt, activity)
	s.emitter.attemptUpdate(attempt)

	s.logger.Info("Attempt terminated", "attempt_id", attemptID, "admin", caller.UserID)
	return attempt, nil
}

// Restart deletes an attempt with all of its data and opens a fresh one for the same student.
func (s *attemptService) Restart(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error) {
	if err := requireAdmin(caller, "attempt", attemptID, "restart"); err != nil {
		return nil, err
	}

	s.logger.Info("Restarting attempt", "attempt_id", attemptID, "admin", caller.UserID)

	var fresh *models.ExamAttempt
	var activity *models.ActivityLog
	var keys []string
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		old, err := s.repo.Attempt().LockForUpdate(ctx, tx, attemptID)
		if err != nil {
			return orNotFound(err, ErrAttemptNotFound)
		}
		totalQuestions, err := s.repo.Exam().CountQuestions(ctx, tx, old.ExamID)
		if err != nil {
			return err
		}

		keys, err = deleteAttemptData(ctx, s.repo, tx, attemptID)
		if err != nil {
			return err
		}

		fresh = &models.ExamAttempt{
			UserID:              old.UserID,
			UserName:            old.UserName,
			ExamID:              old.ExamID,
			Status:              models.AttemptStarted,
			StartTime:           time.Now().UTC(),
			UnansweredQuestions: int(totalQuestions),
		}
		if err := s.repo.Attempt().Create(ctx, tx, fresh); err != nil {
			return err
		}

		activity, err = logActivity(ctx, s.repo, tx, fresh.ID, models.ActivityExamRestarted,
			fmt.Sprintf("Admin restarted exam for student %s", old.UserName),
			map[string]interface{}{
				"old_attempt_id": attemptID,
				"restarted_by":   caller.UserName,
			})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to restart attempt", "attempt_id", attemptID, "error", err)
		return nil, err
	}

	removeFiles(ctx, s.storage, s.logger, keys)
	s.emitter.activity(fresh, activity)
	s.emitter.attemptUpdate(fresh)

	s.logger.Info("Attempt restarted",
		"old_attempt_id", attemptID,
		"attempt_id", fresh.ID,
		"deleted_files", len(keys))

	return fresh, nil
}

// ===== RESULTS =====

// GetResults returns every question of the exam with the attempt's answer. Solutions are
// only included once results are released or for admins.
func (s *attemptService) GetResults(ctx context.Context, caller Caller, attemptID uint) (*ResultsResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}
	if err := authorizeAttempt(caller, attempt, "view results"); err != nil {
		return nil, err
	}
	if !caller.IsAdmin && !attempt.Status.IsTerminal() {
		return nil, ErrResultsNotAvailable
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, nil, attempt.ExamID)
	if err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}
	answers, err := s.repo.Answer().ListByAttemptWithDetails(ctx, nil, attemptID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[uint]*models.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}
	showSolutions := caller.IsAdmin || attempt.ResultsReady

	results := make([]AnswerResult, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		result := AnswerResult{
			Question: QuestionResult{
				ID:           q.ID,
				QuestionText: q.QuestionText,
				Type:         q.Type,
				Marks:        q.Marks,
				Options:      q.Options,
			},
			NeedsManualMarking: q.Type.RequiresManualMarking(),
		}

		if a, ok := byQuestion[q.ID]; ok {
			id := a.ID
			result.AnswerID = &id
			result.SelectedOption = a.SelectedOption
			result.TextAnswer = a.TextAnswer
			result.Images = a.Images
			result.Attachments = a.Attachments
			result.IsCorrect = a.IsCorrect
			result.MarksAwarded = a.MarksAwarded
			result.IsManuallyMarked = a.IsManuallyMarked
			result.Comment = a.Comment
			if showSolutions {
				result.SolutionText = a.SolutionText
				result.SolutionAttachments = a.SolutionAttachments
			}
		}
		results = append(results, result)
	}

	return &ResultsResponse{
		Attempt: AttemptSummary{
			ID:                  attempt.ID,
			ExamID:              exam.ID,
			ExamTitle:           exam.Title,
			UserName:            attempt.UserName,
			Status:              attempt.Status,
			Score:               attempt.Score,
			PercentageScore:     attempt.PercentageScore,
			TotalMarks:          exam.TotalMarks,
			PassingMarks:        exam.PassingMarks,
			CorrectAnswers:      attempt.CorrectAnswers,
			WrongAnswers:        attempt.WrongAnswers,
			UnansweredQuestions: attempt.UnansweredQuestions,
			TotalQuestions:      len(exam.Questions),
			IsPassed:            attempt.IsPassed,
			ResultsReady:        attempt.ResultsReady,
			StartTime:           attempt.StartTime,
			EndTime:             attempt.EndTime,
			EvaluatedAt:         attempt.EvaluatedAt,
		},
		Answers: results,
	}, nil
}
