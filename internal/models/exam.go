package models

import (
	"time"

	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MCQ"
	QuestionTrueFalse      QuestionType = "TF"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionFreeText       QuestionType = "FREE_TEXT"
	QuestionImageUpload    QuestionType = "IMAGE_UPLOAD"
)

// RequiresManualMarking reports whether answers of this type are scored by an admin
// instead of by option correctness.
func (t QuestionType) RequiresManualMarking() bool {
	switch t {
	case QuestionShortAnswer, QuestionFreeText, QuestionImageUpload:
		return true
	}
	return false
}

func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionFreeText, QuestionImageUpload:
		return true
	}
	return false
}

type Subject struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null;size:100"`
	Description *string   `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

type Exam struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text"`
	SubjectID   *uint   `json:"subject_id" gorm:"index"`

	DurationMinutes int        `json:"duration_minutes" gorm:"not null;default:60" validate:"min=1"`
	TotalMarks      float64    `json:"total_marks" gorm:"not null;default:0" validate:"min=0"`
	PassingMarks    float64    `json:"passing_marks" gorm:"not null" validate:"min=0,max=100"` // percentage threshold
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`

	ShuffleQuestions bool `json:"shuffle_questions" gorm:"default:false"`
	ShuffleOptions   bool `json:"shuffle_options" gorm:"default:false"`

	// Marking settings
	EnableNegativeMarking  bool    `json:"enable_negative_marking" gorm:"default:false"`
	NegativeMarkPercentage float64 `json:"negative_mark_percentage" gorm:"default:0" validate:"min=0,max=1"` // fraction of question marks, 0.25 = 25%
	EnablePartialMarking   bool    `json:"enable_partial_marking" gorm:"default:false"`
	AutoCalculateTotal     bool    `json:"auto_calculate_total" gorm:"default:false"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Subject        *Subject        `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
	Questions      []Question      `json:"questions,omitempty" gorm:"foreignKey:ExamID"`
	RetakeRequests []RetakeRequest `json:"retake_requests,omitempty" gorm:"foreignKey:ExamID"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsOpenAt reports whether now falls inside the exam schedule window. Open ends are unbounded.
func (e *Exam) IsOpenAt(now time.Time) bool {
	if e.StartTime != nil && now.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && now.After(*e.EndTime) {
		return false
	}
	return true
}

type Question struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	ExamID       uint         `json:"exam_id" gorm:"not null;index"`
	QuestionText string       `json:"question_text" gorm:"type:text;not null"`
	Type         QuestionType `json:"question_type" gorm:"column:question_type;size:20;not null;default:MCQ" validate:"required,question_type"`
	Marks        float64      `json:"marks" gorm:"not null;default:1" validate:"gt=0"`
	Order        int          `json:"order" gorm:"default:0"`
	CreatedAt    time.Time    `json:"created_at"`

	Options []Option      `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
	Tags    []QuestionTag `json:"tags,omitempty" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	OptionText string `json:"option_text" gorm:"size:500;not null"`
	IsCorrect  bool   `json:"is_correct" gorm:"default:false"`
	Order      int    `json:"order" gorm:"default:0"`
}

func (Option) TableName() string {
	return "options"
}

// QuestionTag is one label attached to a question.
type QuestionTag struct {
	ID         uint      `json:"-" gorm:"primaryKey"`
	QuestionID uint      `json:"-" gorm:"not null;uniqueIndex:idx_question_tag"`
	Name       string    `json:"name" gorm:"size:50;not null;uniqueIndex:idx_question_tag"`
	CreatedAt  time.Time `json:"-"`
}

func (QuestionTag) TableName() string {
	return "question_tags"
}

type RetakeStatus string

const (
	RetakePending  RetakeStatus = "PENDING"
	RetakeGranted  RetakeStatus = "GRANTED"
	RetakeRejected RetakeStatus = "REJECTED"
)

// RetakeRequest records a student asking to sit an exam again.
type RetakeRequest struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	ExamID        uint         `json:"exam_id" gorm:"not null;index"`
	UserID        string       `json:"user_id" gorm:"size:100;not null;index"`
	UserName      string       `json:"username" gorm:"size:150"`
	PreviousScore float64      `json:"previous_score"`
	Status        RetakeStatus `json:"status" gorm:"size:20;default:PENDING"`
	RequestedAt   time.Time    `json:"requested_at"`
	ResolvedAt    *time.Time   `json:"resolved_at"`
	ResolvedBy    *string      `json:"resolved_by" gorm:"size:100"`
}

func (RetakeRequest) TableName() string {
	return "retake_requests"
}
