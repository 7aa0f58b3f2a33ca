package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"gorm.io/gorm"
)

// ProctoringRepository interface for proctoring sessions and their append-only logs
type ProctoringRepository interface {
	// Sessions
	GetOrCreateSession(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.ProctoringSession, error)
	GetSessionByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.ProctoringSession, error)
	EndSession(ctx context.Context, tx *gorm.DB, attemptID uint) error

	// Logs
	CreateViolation(ctx context.Context, tx *gorm.DB, violation *models.ViolationLog) error
	CreateFaceLog(ctx context.Context, tx *gorm.DB, log *models.FaceDetectionLog) error
	CreateAudioLog(ctx context.Context, tx *gorm.DB, log *models.AudioMonitoringLog) error
	ListViolations(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ViolationLog, error)
	ListFaceLogs(ctx context.Context, tx *gorm.DB, sessionID uint, limit int) ([]*models.FaceDetectionLog, error)
	ListAudioLogs(ctx context.Context, tx *gorm.DB, sessionID uint, limit int) ([]*models.AudioMonitoringLog, error)

	// Signals for live monitoring
	GetSignals(ctx context.Context, tx *gorm.DB, sessionID uint) (*SessionSignals, error)

	DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error
}
