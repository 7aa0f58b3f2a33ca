package models

import (
	"time"

	"gorm.io/datatypes"
)

type ActivityType string

const (
	ActivityAnswerSubmitted           ActivityType = "ANSWER_SUBMITTED"
	ActivityAnswerChanged             ActivityType = "ANSWER_CHANGED"
	ActivityAnswerMarked              ActivityType = "ANSWER_MARKED"
	ActivitySolutionUpdated           ActivityType = "SOLUTION_UPDATED"
	ActivitySolutionAttachmentAdded   ActivityType = "SOLUTION_ATTACHMENT_ADDED"
	ActivitySolutionAttachmentDeleted ActivityType = "SOLUTION_ATTACHMENT_DELETED"
	ActivityResultsReleased           ActivityType = "RESULTS_RELEASED"
	ActivityExamRestarted             ActivityType = "EXAM_RESTARTED"
	ActivityAttemptStarted            ActivityType = "ATTEMPT_STARTED"
	ActivityAttemptSubmitted          ActivityType = "ATTEMPT_SUBMITTED"
	ActivityAttemptPaused             ActivityType = "ATTEMPT_PAUSED"
	ActivityAttemptResumed            ActivityType = "ATTEMPT_RESUMED"
	ActivityAttemptTerminated         ActivityType = "ATTEMPT_TERMINATED"
)

// ActivityLog is an append-only audit entry for an attempt, consumed by live monitoring.
type ActivityLog struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	AttemptID    uint           `json:"attempt_id" gorm:"not null;index"`
	ActivityType ActivityType   `json:"activity_type" gorm:"size:50;not null;index"`
	Description  string         `json:"description" gorm:"type:text"`
	Metadata     datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	Timestamp    time.Time      `json:"timestamp" gorm:"index"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
