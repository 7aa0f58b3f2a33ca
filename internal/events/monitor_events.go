package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kinds of monitoring events delivered to observers
type EventType string

const (
	EventActivityUpdate EventType = "activity_update"
	EventAttemptUpdate  EventType = "attempt_update"
)

const (
	eventSource  = "exam-proctoring-service"
	eventVersion = "1.0"
)

// MonitorEvent is the envelope for every event published to a monitoring topic
type MonitorEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewMonitorEvent wraps data in a new envelope
func NewMonitorEvent(eventType EventType, data interface{}) *MonitorEvent {
	return &MonitorEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

// ExamTopic is the topic observing every attempt of an exam
func ExamTopic(examID uint) string {
	return fmt.Sprintf("exam:%d", examID)
}

// AttemptTopic is the topic observing a single attempt
func AttemptTopic(attemptID uint) string {
	return fmt.Sprintf("attempt:%d", attemptID)
}

// Event payloads

type ActivityUpdateEvent struct {
	ID           uint        `json:"id"`
	ActivityType string      `json:"activity_type"`
	Description  string      `json:"description"`
	Metadata     interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	AttemptID    uint        `json:"attempt_id"`
	UserName     string      `json:"user_name"`
}

type AttemptUpdateEvent struct {
	ID              uint    `json:"id"`
	Event           string  `json:"event,omitempty"`
	Status          string  `json:"status"`
	Score           float64 `json:"score"`
	PercentageScore float64 `json:"percentage_score"`
	CorrectAnswers  int     `json:"correct_answers"`
	WrongAnswers    int     `json:"wrong_answers"`
	UserName        string  `json:"user_name"`
	ResultsReady    bool    `json:"results_ready"`
	IsPassed        bool    `json:"is_passed"`
}

// ViolationUpdateEvent is the attempt_update payload sent when a violation is recorded
type ViolationUpdateEvent struct {
	Event     string           `json:"event"`
	Violation ViolationPayload `json:"violation"`
	AttemptID uint             `json:"attempt_id"`
}

type ViolationPayload struct {
	ID            uint      `json:"id"`
	ViolationType string    `json:"violation_type"`
	Description   string    `json:"description"`
	Severity      string    `json:"severity"`
	Timestamp     time.Time `json:"timestamp"`
}
