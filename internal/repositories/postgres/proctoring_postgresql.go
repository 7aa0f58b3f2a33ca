package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type ProctoringPostgreSQL struct {
	helpers *SharedHelpers
}

func NewProctoringPostgreSQL(db *gorm.DB) repositories.ProctoringRepository {
	return &ProctoringPostgreSQL{
		helpers: NewSharedHelpers(db),
	}
}

// ===== SESSIONS =====

// GetOrCreateSession returns the attempt's session, creating it with camera,
// microphone, face and audio monitoring enabled.
func (p *ProctoringPostgreSQL) GetOrCreateSession(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.ProctoringSession, error) {
	var session models.ProctoringSession
	if err := p.helpers.conn(ctx, tx).
		Where(models.ProctoringSession{AttemptID: attemptID}).
		Attrs(models.ProctoringSession{
			CameraEnabled:          true,
			MicrophoneEnabled:      true,
			FaceDetectionEnabled:   true,
			AudioMonitoringEnabled: true,
			StartedAt:              time.Now().UTC(),
		}).
		FirstOrCreate(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to get or create proctoring session: %w", err)
	}
	return &session, nil
}

func (p *ProctoringPostgreSQL) GetSessionByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.ProctoringSession, error) {
	var session models.ProctoringSession
	if err := p.helpers.conn(ctx, tx).
		Where("attempt_id = ?", attemptID).
		First(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to get proctoring session for attempt %d: %w", attemptID, err)
	}
	return &session, nil
}

func (p *ProctoringPostgreSQL) EndSession(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	return p.helpers.conn(ctx, tx).
		Model(&models.ProctoringSession{}).
		Where("attempt_id = ? AND ended_at IS NULL", attemptID).
		Update("ended_at", time.Now().UTC()).Error
}

// ===== LOGS =====

func (p *ProctoringPostgreSQL) CreateViolation(ctx context.Context, tx *gorm.DB, violation *models.ViolationLog) error {
	if err := p.helpers.conn(ctx, tx).Create(violation).Error; err != nil {
		return fmt.Errorf("failed to create violation log: %w", err)
	}
	return nil
}

func (p *ProctoringPostgreSQL) CreateFaceLog(ctx context.Context, tx *gorm.DB, log *models.FaceDetectionLog) error {
	if err := p.helpers.conn(ctx, tx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create face detection log: %w", err)
	}
	return nil
}

func (p *ProctoringPostgreSQL) CreateAudioLog(ctx context.Context, tx *gorm.DB, log *models.AudioMonitoringLog) error {
	if err := p.helpers.conn(ctx, tx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audio monitoring log: %w", err)
	}
	return nil
}

func (p *ProctoringPostgreSQL) ListViolations(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ViolationLog, error) {
	var violations []*models.ViolationLog
	if err := p.helpers.conn(ctx, tx).
		Where("session_id = ?", sessionID).
		Order(`"timestamp" ASC, id ASC`).
		Find(&violations).Error; err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	return violations, nil
}

func (p *ProctoringPostgreSQL) ListFaceLogs(ctx context.Context, tx *gorm.DB, sessionID uint, limit int) ([]*models.FaceDetectionLog, error) {
	var logs []*models.FaceDetectionLog
	query := p.helpers.conn(ctx, tx).
		Where("session_id = ?", sessionID).
		Order(`"timestamp" DESC, id DESC`)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list face detection logs: %w", err)
	}
	return logs, nil
}

func (p *ProctoringPostgreSQL) ListAudioLogs(ctx context.Context, tx *gorm.DB, sessionID uint, limit int) ([]*models.AudioMonitoringLog, error) {
	var logs []*models.AudioMonitoringLog
	query := p.helpers.conn(ctx, tx).
		Where("session_id = ?", sessionID).
		Order(`"timestamp" DESC, id DESC`)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list audio monitoring logs: %w", err)
	}
	return logs, nil
}

// ===== SIGNALS =====

func (p *ProctoringPostgreSQL) GetSignals(ctx context.Context, tx *gorm.DB, sessionID uint) (*repositories.SessionSignals, error) {
	db := p.helpers.conn(ctx, tx)
	signals := &repositories.SessionSignals{}

	if err := db.Model(&models.ViolationLog{}).
		Where("session_id = ?", sessionID).
		Count(&signals.ViolationsCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}

	faces, err := p.ListFaceLogs(ctx, tx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(faces) > 0 {
		signals.LastFace = faces[0]
	}

	audio, err := p.ListAudioLogs(ctx, tx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(audio) > 0 {
		signals.LastAudio = audio[0]
	}

	return signals, nil
}

func (p *ProctoringPostgreSQL) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	db := p.helpers.conn(ctx, tx)

	session, err := p.GetSessionByAttempt(ctx, tx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil
		}
		return err
	}

	for _, model := range []interface{}{&models.ViolationLog{}, &models.FaceDetectionLog{}, &models.AudioMonitoringLog{}} {
		if err := db.Where("session_id = ?", session.ID).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to delete proctoring logs: %w", err)
		}
	}
	if err := db.Delete(&models.ProctoringSession{}, session.ID).Error; err != nil {
		return fmt.Errorf("failed to delete proctoring session: %w", err)
	}
	return nil
}
