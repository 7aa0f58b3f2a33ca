package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/cache"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"golang.org/x/sync/errgroup"
)

const (
	liveAttemptsTTL     = 5 * time.Second
	liveSnapshotWorkers = 8
	recentActivityLimit = 50
)

type monitoringService struct {
	repo   repositories.Repository
	cache  cache.CacheService
	logger *slog.Logger
}

func NewMonitoringService(repo repositories.Repository, cacheService cache.CacheService, logger *slog.Logger) MonitoringService {
	return &monitoringService{
		repo:   repo,
		cache:  cacheService,
		logger: logger,
	}
}

// LiveAttempts returns the running attempts of an exam with their progress and proctoring
// signals. Snapshots are cached briefly and invalidated by attempt events.
func (s *monitoringService) LiveAttempts(ctx context.Context, caller Caller, examID uint) ([]LiveAttempt, error) {
	if err := requireAdmin(caller, "exam", examID, "monitor"); err != nil {
		return nil, err
	}

	var cached []LiveAttempt
	if s.cache != nil {
		err := s.cache.Get(ctx, liveAttemptsKey(examID), &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Failed to read live attempts cache", "exam_id", examID, "error", err)
		}
	}

	if _, err := s.repo.Exam().GetByID(ctx, nil, examID); err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}
	attempts, err := s.repo.Attempt().ListByExam(ctx, nil, examID, repositories.AttemptFilters{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	totalQuestions, err := s.repo.Exam().CountQuestions(ctx, nil, examID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := make([]LiveAttempt, len(attempts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(liveSnapshotWorkers)
	for i, attempt := range attempts {
		i, attempt := i, attempt
		g.Go(func() error {
			row, err := s.liveRow(gctx, attempt, int(totalQuestions), now)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to build live attempts snapshot", "exam_id", examID, "error", err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, liveAttemptsKey(examID), rows, liveAttemptsTTL); err != nil {
			s.logger.Warn("Failed to cache live attempts", "exam_id", examID, "error", err)
		}
	}
	return rows, nil
}

func (s *monitoringService) liveRow(ctx context.Context, attempt *models.ExamAttempt, totalQuestions int, now time.Time) (LiveAttempt, error) {
	row := LiveAttempt{
		ID:                 attempt.ID,
		UserName:           attempt.UserName,
		Status:             attempt.Status,
		StartTime:          attempt.StartTime,
		TimeElapsedSeconds: int64(now.Sub(attempt.StartTime).Seconds()),
		TotalQuestions:     totalQuestions,
	}

	answered, err := s.repo.Answer().CountAnswered(ctx, nil, attempt.ID)
	if err != nil {
		return row, err
	}
	row.AnsweredQuestions = int(answered)
	if totalQuestions > 0 {
		row.ProgressPercentage = math.Round(float64(answered)/float64(totalQuestions)*100*100) / 100
	}

	session, signals, err := s.sessionSignals(ctx, attempt.ID)
	if err != nil {
		return row, err
	}
	if session != nil {
		row.CameraStatus = session.CameraEnabled
		row.AudioStatus = session.MicrophoneEnabled
		row.ViolationsCount = signals.ViolationsCount
		row.FaceDetected = signals.LastFace != nil && signals.LastFace.FacesDetected > 0
	}

	latest, err := s.repo.Activity().Latest(ctx, nil, attempt.ID)
	switch {
	case err == nil:
		row.LastActivity = &LastActivity{
			Type:        latest.ActivityType,
			Timestamp:   latest.Timestamp,
			Description: latest.Description,
		}
	case !repositories.IsNotFoundError(err):
		return row, err
	}
	return row, nil
}

// sessionSignals returns nil values when the attempt has no proctoring session yet.
func (s *monitoringService) sessionSignals(ctx context.Context, attemptID uint) (*models.ProctoringSession, *repositories.SessionSignals, error) {
	session, err := s.repo.Proctoring().GetSessionByAttempt(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	signals, err := s.repo.Proctoring().GetSignals(ctx, nil, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, signals, nil
}

func (s *monitoringService) AttemptDetails(ctx context.Context, caller Caller, attemptID uint) (*AttemptDetails, error) {
	if err := requireAdmin(caller, "attempt", attemptID, "monitor"); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByIDWithExam(ctx, nil, attemptID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}

	details := &AttemptDetails{
		ID:              attempt.ID,
		UserName:        attempt.UserName,
		ExamID:          attempt.ExamID,
		Status:          attempt.Status,
		Score:           attempt.Score,
		PercentageScore: attempt.PercentageScore,
		CorrectAnswers:  attempt.CorrectAnswers,
		WrongAnswers:    attempt.WrongAnswers,
		Unanswered:      attempt.UnansweredQuestions,
		IsPassed:        attempt.IsPassed,
		ResultsReady:    attempt.ResultsReady,
		StartTime:       attempt.StartTime,
		EndTime:         attempt.EndTime,
	}
	if attempt.Exam != nil {
		details.ExamTitle = attempt.Exam.Title
		details.TotalMarks = attempt.Exam.TotalMarks
	}

	session, signals, err := s.sessionSignals(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		details.CameraEnabled = session.CameraEnabled
		details.MicrophoneEnabled = session.MicrophoneEnabled
		details.ViolationsCount = signals.ViolationsCount
		details.FaceDetected = signals.LastFace != nil && signals.LastFace.FacesDetected > 0
	}

	details.ActivityLogs, err = s.recentActivities(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (s *monitoringService) Activities(ctx context.Context, caller Caller, attemptID uint) ([]ActivityEntry, error) {
	if err := requireAdmin(caller, "attempt", attemptID, "view activities"); err != nil {
		return nil, err
	}
	if _, err := s.repo.Attempt().GetByID(ctx, nil, attemptID); err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}
	return s.recentActivities(ctx, attemptID)
}

func (s *monitoringService) AttemptExamID(ctx context.Context, caller Caller, attemptID uint) (uint, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return 0, orNotFound(err, ErrAttemptNotFound)
	}
	if err := authorizeAttempt(caller, attempt, "observe"); err != nil {
		return 0, err
	}
	return attempt.ExamID, nil
}

func (s *monitoringService) recentActivities(ctx context.Context, attemptID uint) ([]ActivityEntry, error) {
	logs, err := s.repo.Activity().ListByAttempt(ctx, nil, attemptID, recentActivityLimit)
	if err != nil {
		return nil, err
	}

	entries := make([]ActivityEntry, 0, len(logs))
	for _, log := range logs {
		var metadata interface{}
		if len(log.Metadata) > 0 {
			metadata = json.RawMessage(log.Metadata)
		}
		entries = append(entries, ActivityEntry{
			ID:           log.ID,
			ActivityType: log.ActivityType,
			Description:  log.Description,
			Metadata:     metadata,
			Timestamp:    log.Timestamp,
		})
	}
	return entries, nil
}
