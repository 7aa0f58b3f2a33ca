package models

import (
	"time"
)

type ViolationType string

const (
	ViolationFaceNotDetected    ViolationType = "FACE_NOT_DETECTED"
	ViolationMultipleFaces      ViolationType = "MULTIPLE_FACES"
	ViolationTabSwitch          ViolationType = "TAB_SWITCH"
	ViolationWindowBlur         ViolationType = "WINDOW_BLUR"
	ViolationCopyPaste          ViolationType = "COPY_PASTE"
	ViolationRightClick         ViolationType = "RIGHT_CLICK"
	ViolationNoiseDetected      ViolationType = "NOISE_DETECTED"
	ViolationScreenShareStopped ViolationType = "SCREEN_SHARE_STOPPED"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// NoiseThreshold is the audio level above which a sample counts as a violation.
const NoiseThreshold = 0.7

var violationSeverity = map[ViolationType]Severity{
	ViolationFaceNotDetected: SeverityHigh,
	ViolationMultipleFaces:   SeverityCritical,
	ViolationTabSwitch:       SeverityMedium,
	ViolationWindowBlur:      SeverityMedium,
	ViolationCopyPaste:       SeverityHigh,
	ViolationRightClick:      SeverityLow,
	ViolationNoiseDetected:   SeverityMedium,
}

// SeverityFor maps a violation type to its severity. Unknown types are MEDIUM.
func SeverityFor(t ViolationType) Severity {
	if s, ok := violationSeverity[t]; ok {
		return s
	}
	return SeverityMedium
}

type ProctoringSession struct {
	ID                     uint       `json:"id" gorm:"primaryKey"`
	AttemptID              uint       `json:"attempt_id" gorm:"not null;uniqueIndex"`
	CameraEnabled          bool       `json:"camera_enabled"`
	MicrophoneEnabled      bool       `json:"microphone_enabled"`
	ScreenSharingEnabled   bool       `json:"screen_sharing_enabled"`
	FaceDetectionEnabled   bool       `json:"face_detection_enabled"`
	AudioMonitoringEnabled bool       `json:"audio_monitoring_enabled"`
	StartedAt              time.Time  `json:"started_at"`
	EndedAt                *time.Time `json:"ended_at"`
}

func (ProctoringSession) TableName() string {
	return "proctoring_sessions"
}

type ViolationLog struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	SessionID     uint          `json:"session_id" gorm:"not null;index"`
	ViolationType ViolationType `json:"violation_type" gorm:"size:50;not null;index"`
	Severity      Severity      `json:"severity" gorm:"size:20;not null"`
	Description   string        `json:"description" gorm:"type:text"`
	Timestamp     time.Time     `json:"timestamp" gorm:"index"`
}

func (ViolationLog) TableName() string {
	return "violation_logs"
}

type FaceDetectionLog struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SessionID       uint      `json:"session_id" gorm:"not null;index"`
	FacesDetected   int       `json:"faces_detected"`
	ConfidenceScore float64   `json:"confidence_score"`
	ImagePath       *string   `json:"image_path" gorm:"size:500"`
	Timestamp       time.Time `json:"timestamp" gorm:"index"`
}

func (FaceDetectionLog) TableName() string {
	return "face_detection_logs"
}

type AudioMonitoringLog struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	SessionID         uint      `json:"session_id" gorm:"not null;index"`
	NoiseLevel        float64   `json:"noise_level"`
	ThresholdExceeded bool      `json:"threshold_exceeded"`
	Timestamp         time.Time `json:"timestamp" gorm:"index"`
}

func (AudioMonitoringLog) TableName() string {
	return "audio_monitoring_logs"
}
