package models

import (
	"time"
)

type AttemptStatus string

const (
	AttemptStarted    AttemptStatus = "STARTED"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptPaused     AttemptStatus = "PAUSED"
	AttemptCompleted  AttemptStatus = "COMPLETED"
	AttemptTerminated AttemptStatus = "TERMINATED"
)

// attemptTransitions lists the statuses reachable from each non-terminal status.
var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptStarted:    {AttemptInProgress, AttemptCompleted, AttemptTerminated},
	AttemptInProgress: {AttemptPaused, AttemptCompleted, AttemptTerminated},
	AttemptPaused:     {AttemptInProgress, AttemptCompleted, AttemptTerminated},
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	for _, allowed := range attemptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptCompleted || s == AttemptTerminated
}

// IsAnswerable reports whether answers may be recorded in this status.
func (s AttemptStatus) IsAnswerable() bool {
	return s == AttemptStarted || s == AttemptInProgress
}

type ExamAttempt struct {
	ID       uint          `json:"id" gorm:"primaryKey"`
	UserID   string        `json:"user_id" gorm:"size:100;not null;uniqueIndex:idx_attempt_user_exam"`
	UserName string        `json:"user_name" gorm:"size:150"`
	ExamID   uint          `json:"exam_id" gorm:"not null;uniqueIndex:idx_attempt_user_exam;index"`
	Status   AttemptStatus `json:"status" gorm:"size:20;not null;default:STARTED;index"`

	// Aggregates written by the scoring engine
	Score               float64 `json:"score" gorm:"default:0"`
	PercentageScore     float64 `json:"percentage_score" gorm:"default:0"`
	CorrectAnswers      int     `json:"correct_answers" gorm:"default:0"`
	WrongAnswers        int     `json:"wrong_answers" gorm:"default:0"`
	UnansweredQuestions int     `json:"unanswered_questions" gorm:"default:0"`
	IsPassed            bool    `json:"is_passed" gorm:"default:false"`
	ResultsReady        bool    `json:"results_ready" gorm:"default:false"`

	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	EvaluatedAt      *time.Time `json:"evaluated_at"`
	TimeSpentSeconds int        `json:"time_spent_seconds" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam    *Exam    `json:"exam,omitempty" gorm:"foreignKey:ExamID"`
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// ApplyResult copies scoring aggregates onto the attempt.
func (a *ExamAttempt) ApplyResult(score, percentage float64, correct, wrong, unanswered int, passed bool) {
	a.Score = score
	a.PercentageScore = percentage
	a.CorrectAnswers = correct
	a.WrongAnswers = wrong
	a.UnansweredQuestions = unanswered
	a.IsPassed = passed
}
