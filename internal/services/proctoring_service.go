package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/metrics"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
	"gorm.io/gorm"
)

// proctoringLogLimit bounds the telemetry returned by GetLogs.
const proctoringLogLimit = 50

type proctoringService struct {
	repo      repositories.Repository
	emitter   *eventEmitter
	logger    *slog.Logger
	validator *validator.Validator
}

func NewProctoringService(repo repositories.Repository, emitter *eventEmitter, logger *slog.Logger, validator *validator.Validator) ProctoringService {
	return &proctoringService{
		repo:      repo,
		emitter:   emitter,
		logger:    logger,
		validator: validator,
	}
}

// ===== SENSOR SAMPLES =====

// RecordFaceSample logs a face detection sample and records a violation when no face or
// more than one face is visible.
func (s *proctoringService) RecordFaceSample(ctx context.Context, caller Caller, attemptID uint, req *FaceSampleRequest) (*SampleResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	result := &SampleResult{FacesDetected: req.FacesDetected, Confidence: req.Confidence}
	attempt, violation, err := s.withSession(ctx, caller, attemptID, func(tx *gorm.DB, session *models.ProctoringSession) (*models.ViolationLog, error) {
		now := time.Now().UTC()
		if err := s.repo.Proctoring().CreateFaceLog(ctx, tx, &models.FaceDetectionLog{
			SessionID:       session.ID,
			FacesDetected:   req.FacesDetected,
			ConfidenceScore: req.Confidence,
			ImagePath:       req.ImagePath,
			Timestamp:       now,
		}); err != nil {
			return nil, err
		}

		switch {
		case req.FacesDetected == 0:
			return s.createViolation(ctx, tx, session, models.ViolationFaceNotDetected, "No face detected", now)
		case req.FacesDetected > 1:
			return s.createViolation(ctx, tx, session, models.ViolationMultipleFaces,
				fmt.Sprintf("Multiple faces detected (%d)", req.FacesDetected), now)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(attempt, violation, result)
	return result, nil
}

// RecordAudioSample logs an audio level sample and records a violation above the noise threshold.
func (s *proctoringService) RecordAudioSample(ctx context.Context, caller Caller, attemptID uint, req *AudioSampleRequest) (*SampleResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	result := &SampleResult{}
	attempt, violation, err := s.withSession(ctx, caller, attemptID, func(tx *gorm.DB, session *models.ProctoringSession) (*models.ViolationLog, error) {
		now := time.Now().UTC()
		exceeded := req.Level > models.NoiseThreshold
		if err := s.repo.Proctoring().CreateAudioLog(ctx, tx, &models.AudioMonitoringLog{
			SessionID:         session.ID,
			NoiseLevel:        req.Level,
			ThresholdExceeded: exceeded,
			Timestamp:         now,
		}); err != nil {
			return nil, err
		}

		if exceeded {
			return s.createViolation(ctx, tx, session, models.ViolationNoiseDetected,
				fmt.Sprintf("Noise level %.2f exceeded threshold %.2f", req.Level, models.NoiseThreshold), now)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(attempt, violation, result)
	return result, nil
}

// ReportViolation records a violation detected by the client, such as a tab switch.
func (s *proctoringService) ReportViolation(ctx context.Context, caller Caller, req *ReportViolationRequest) (*SampleResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	violationType := models.ViolationType(req.ViolationType)
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("%s reported", violationType)
	}

	result := &SampleResult{}
	attempt, violation, err := s.withSession(ctx, caller, req.AttemptID, func(tx *gorm.DB, session *models.ProctoringSession) (*models.ViolationLog, error) {
		return s.createViolation(ctx, tx, session, violationType, description, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.announce(attempt, violation, result)
	return result, nil
}

// withSession runs fn in a transaction with the attempt's proctoring session, creating the
// session on first use. Only the owner of a running attempt may send telemetry.
func (s *proctoringService) withSession(ctx context.Context, caller Caller, attemptID uint,
	fn func(tx *gorm.DB, session *models.ProctoringSession) (*models.ViolationLog, error)) (*models.ExamAttempt, *models.ViolationLog, error) {

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, nil, orNotFound(err, ErrAttemptNotFound)
	}
	if attempt.UserID != caller.UserID {
		return nil, nil, NewPermissionError(caller.UserID, attemptID, "attempt", "send proctoring data", "not owned by user")
	}
	if attempt.Status.IsTerminal() {
		return nil, nil, ErrAttemptCompleted
	}

	var violation *models.ViolationLog
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		session, err := s.repo.Proctoring().GetOrCreateSession(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		violation, err = fn(tx, session)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to record proctoring data", "attempt_id", attemptID, "error", err)
		return nil, nil, err
	}
	return attempt, violation, nil
}

func (s *proctoringService) createViolation(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession,
	violationType models.ViolationType, description string, at time.Time) (*models.ViolationLog, error) {

	violation := &models.ViolationLog{
		SessionID:     session.ID,
		ViolationType: violationType,
		Severity:      models.SeverityFor(violationType),
		Description:   description,
		Timestamp:     at,
	}
	if err := s.repo.Proctoring().CreateViolation(ctx, tx, violation); err != nil {
		return nil, err
	}
	return violation, nil
}

// announce publishes a recorded violation and attaches it to the result.
func (s *proctoringService) announce(attempt *models.ExamAttempt, violation *models.ViolationLog, result *SampleResult) {
	if violation == nil {
		return
	}
	payload := violationPayload(violation)
	result.Violation = &payload

	metrics.ViolationsRecorded.WithLabelValues(string(violation.ViolationType), string(violation.Severity)).Inc()
	s.logger.Warn("Proctoring violation recorded",
		"attempt_id", attempt.ID,
		"violation_type", violation.ViolationType,
		"severity", violation.Severity)

	s.emitter.violation(attempt, violation)
}

// ===== QUERIES =====

func (s *proctoringService) GetSession(ctx context.Context, caller Caller, attemptID uint) (*models.ProctoringSession, error) {
	if _, err := s.authorizedAttempt(ctx, caller, attemptID, "view proctoring session"); err != nil {
		return nil, err
	}
	session, err := s.repo.Proctoring().GetSessionByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, orNotFound(err, ErrSessionNotFound)
	}
	return session, nil
}

func (s *proctoringService) ListViolations(ctx context.Context, caller Caller, attemptID uint) ([]*models.ViolationLog, error) {
	session, err := s.GetSession(ctx, caller, attemptID)
	if err != nil {
		return nil, err
	}
	return s.repo.Proctoring().ListViolations(ctx, nil, session.ID)
}

// GetLogs returns the newest face and audio samples of an attempt.
func (s *proctoringService) GetLogs(ctx context.Context, caller Caller, attemptID uint) (*ProctoringLogs, error) {
	session, err := s.GetSession(ctx, caller, attemptID)
	if err != nil {
		return nil, err
	}

	faces, err := s.repo.Proctoring().ListFaceLogs(ctx, nil, session.ID, proctoringLogLimit)
	if err != nil {
		return nil, err
	}
	audio, err := s.repo.Proctoring().ListAudioLogs(ctx, nil, session.ID, proctoringLogLimit)
	if err != nil {
		return nil, err
	}
	return &ProctoringLogs{FaceLogs: faces, AudioLogs: audio}, nil
}

// GetViolationReport summarises the violations of an attempt. An attempt that never opened
// a proctoring session has an empty report.
func (s *proctoringService) GetViolationReport(ctx context.Context, caller Caller, attemptID uint) (*ViolationReport, error) {
	attempt, err := s.authorizedAttempt(ctx, caller, attemptID, "view violation report")
	if err != nil {
		return nil, err
	}

	report := &ViolationReport{
		AttemptID:        attempt.ID,
		StudentName:      attempt.UserName,
		ViolationsByType: map[string]int{},
		Violations:       []*models.ViolationLog{},
	}
	if attempt.Exam != nil {
		report.ExamTitle = attempt.Exam.Title
	}

	session, err := s.repo.Proctoring().GetSessionByAttempt(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return report, nil
		}
		return nil, err
	}

	violations, err := s.repo.Proctoring().ListViolations(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		report.ViolationsByType[string(v.ViolationType)]++
	}
	report.Violations = violations
	report.TotalViolations = len(violations)
	return report, nil
}

func (s *proctoringService) authorizedAttempt(ctx context.Context, caller Caller, attemptID uint, action string) (*models.ExamAttempt, error) {
	attempt, err := s.repo.Attempt().GetByIDWithExam(ctx, nil, attemptID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}
	if err := authorizeAttempt(caller, attempt, action); err != nil {
		return nil, err
	}
	return attempt, nil
}
