package models

import (
	"time"
)

const (
	MaxAnswerImages      = 3
	MaxAnswerImageSize   = 10 << 20
	MaxAnswerAttachments = 5
	MaxAttachmentSize    = 25 << 20
)

// Answer is one response to one question within one attempt.
// MarksAwarded is nil for manually marked question types until an admin marks them.
type Answer struct {
	ID               uint    `json:"id" gorm:"primaryKey"`
	AttemptID        uint    `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`
	QuestionID       uint    `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question;index"`
	SelectedOptionID *uint   `json:"selected_option_id" gorm:"index"`
	TextAnswer       *string `json:"text_answer" gorm:"type:text"`

	IsCorrect        bool     `json:"is_correct" gorm:"default:false"`
	MarksAwarded     *float64 `json:"marks_awarded"`
	IsManuallyMarked bool     `json:"is_manually_marked" gorm:"default:false"`
	Comment          *string  `json:"comment" gorm:"type:text"`
	SolutionText     *string  `json:"solution_text,omitempty" gorm:"type:text"`

	// Manual marking audit
	MarkedBy *string    `json:"marked_by,omitempty" gorm:"size:100"`
	MarkedAt *time.Time `json:"marked_at,omitempty"`

	TimeSpentSeconds int       `json:"time_spent_seconds" gorm:"default:0"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Relations
	Question            *Question            `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
	SelectedOption      *Option              `json:"selected_option,omitempty" gorm:"foreignKey:SelectedOptionID"`
	Images              []AnswerImage        `json:"images,omitempty" gorm:"foreignKey:AnswerID"`
	Attachments         []AnswerAttachment   `json:"attachments,omitempty" gorm:"foreignKey:AnswerID"`
	SolutionAttachments []SolutionAttachment `json:"solution_attachments,omitempty" gorm:"foreignKey:AnswerID"`
}

func (Answer) TableName() string {
	return "answers"
}

// StoredFile is the common shape of every file kept for an answer.
type StoredFile struct {
	StorageKey  string    `json:"-" gorm:"size:255;not null"`
	URL         string    `json:"url" gorm:"size:500"`
	FileName    string    `json:"file_name" gorm:"size:255"`
	ContentType string    `json:"content_type" gorm:"size:100"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

type AnswerImage struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	AnswerID uint `json:"answer_id" gorm:"not null;index"`
	StoredFile
}

func (AnswerImage) TableName() string {
	return "answer_images"
}

type AnswerAttachment struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	AnswerID uint `json:"answer_id" gorm:"not null;index"`
	StoredFile
}

func (AnswerAttachment) TableName() string {
	return "answer_attachments"
}

// SolutionAttachment is a reference file an admin attaches to an answer's solution.
type SolutionAttachment struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	AnswerID   uint   `json:"answer_id" gorm:"not null;index"`
	UploadedBy string `json:"uploaded_by" gorm:"size:100"`
	StoredFile
}

func (SolutionAttachment) TableName() string {
	return "solution_attachments"
}
