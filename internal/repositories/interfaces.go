package repositories

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"gorm.io/gorm"
)

// Repository aggregates every repository and owns transaction boundaries.
// Repository methods take an optional tx; nil runs against the base connection.
type Repository interface {
	Exam() ExamRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository
	Activity() ActivityRepository
	Proctoring() ProctoringRepository

	DB() *gorm.DB
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// IsNotFoundError reports whether err wraps gorm.ErrRecordNotFound
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	ActiveOnly bool `json:"active_only"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
}

// ===== SHARED HELPER STRUCTS =====

// SessionSignals is the latest proctoring state of one session.
type SessionSignals struct {
	ViolationsCount int64                      `json:"violations_count"`
	LastFace        *models.FaceDetectionLog   `json:"last_face"`
	LastAudio       *models.AudioMonitoringLog `json:"last_audio"`
}
