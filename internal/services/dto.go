package services

import (
	"io"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
)

// Caller identifies the authenticated user behind a request.
type Caller struct {
	UserID   string
	UserName string
	IsAdmin  bool
}

// FileUpload is one uploaded file handed to a service. Content is read once.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// ===== ATTEMPTS =====

type StartAttemptResponse struct {
	Attempt *models.ExamAttempt `json:"attempt"`
	Resumed bool                `json:"resumed"`
}

type ResultsResponse struct {
	Attempt AttemptSummary `json:"attempt"`
	Answers []AnswerResult `json:"answers"`
}

type AttemptSummary struct {
	ID                  uint                 `json:"id"`
	ExamID              uint                 `json:"exam_id"`
	ExamTitle           string               `json:"exam_title"`
	UserName            string               `json:"user_name"`
	Status              models.AttemptStatus `json:"status"`
	Score               float64              `json:"score"`
	PercentageScore     float64              `json:"percentage_score"`
	TotalMarks          float64              `json:"total_marks"`
	PassingMarks        float64              `json:"passing_marks"`
	CorrectAnswers      int                  `json:"correct_answers"`
	WrongAnswers        int                  `json:"wrong_answers"`
	UnansweredQuestions int                  `json:"unanswered_questions"`
	TotalQuestions      int                  `json:"total_questions"`
	IsPassed            bool                 `json:"is_passed"`
	ResultsReady        bool                 `json:"results_ready"`
	StartTime           time.Time            `json:"start_time"`
	EndTime             *time.Time           `json:"end_time"`
	EvaluatedAt         *time.Time           `json:"evaluated_at"`
}

// AnswerResult is one question of a results page. AnswerID is nil for unanswered questions.
type AnswerResult struct {
	AnswerID            *uint                       `json:"id"`
	Question            QuestionResult              `json:"question"`
	SelectedOption      *models.Option              `json:"selected_option"`
	TextAnswer          *string                     `json:"answer_text"`
	Images              []models.AnswerImage        `json:"answer_images"`
	Attachments         []models.AnswerAttachment   `json:"attachments"`
	IsCorrect           bool                        `json:"is_correct"`
	MarksAwarded        *float64                    `json:"marks_awarded"`
	NeedsManualMarking  bool                        `json:"needs_manual_marking"`
	IsManuallyMarked    bool                        `json:"is_manually_marked"`
	Comment             *string                     `json:"comment,omitempty"`
	SolutionText        *string                     `json:"solution_text,omitempty"`
	SolutionAttachments []models.SolutionAttachment `json:"solution_attachments,omitempty"`
}

type QuestionResult struct {
	ID           uint                `json:"id"`
	QuestionText string              `json:"question_text"`
	Type         models.QuestionType `json:"question_type"`
	Marks        float64             `json:"marks"`
	Options      []models.Option     `json:"options"`
}

// ===== ANSWERS =====

type SubmitAnswerRequest struct {
	QuestionID       uint         `json:"question_id" validate:"required"`
	SelectedOptionID *uint        `json:"selected_option_id"`
	TextAnswer       *string      `json:"answer_text"`
	TimeSpentSeconds int          `json:"time_spent_seconds" validate:"min=0"`
	Images           []FileUpload `json:"-"`
	Attachments      []FileUpload `json:"-"`
}

// BusinessRules enforces the per-answer file limits.
func (r *SubmitAnswerRequest) BusinessRules() ValidationErrors {
	var errs ValidationErrors
	if len(r.Images) > models.MaxAnswerImages {
		errs = append(errs, *NewValidationError("answer_images", "at most 3 images are allowed", len(r.Images)))
	}
	for _, img := range r.Images {
		if img.Size > models.MaxAnswerImageSize {
			errs = append(errs, *NewValidationError("answer_images", "each image must be at most 10MB", img.FileName))
		}
	}
	if len(r.Attachments) > models.MaxAnswerAttachments {
		errs = append(errs, *NewValidationError("attachments", "at most 5 attachments are allowed", len(r.Attachments)))
	}
	for _, att := range r.Attachments {
		if att.Size > models.MaxAttachmentSize {
			errs = append(errs, *NewValidationError("attachments", "each attachment must be at most 25MB", att.FileName))
		}
	}
	return errs
}

type SubmitAnswerResponse struct {
	Message      string               `json:"message"`
	AnswerID     uint                 `json:"answer_id"`
	IsCorrect    bool                 `json:"is_correct"`
	MarksAwarded *float64             `json:"marks_awarded"`
	Status       models.AttemptStatus `json:"attempt_status"`
}

// ===== MARKING =====

type MarkAnswerRequest struct {
	MarksAwarded *float64 `json:"marks_awarded" validate:"required"`
	IsCorrect    *bool    `json:"is_correct"`
	Comment      *string  `json:"comment"`
	SolutionText *string  `json:"solution_text"`
}

type MarkedAnswer struct {
	ID           uint     `json:"id"`
	MarksAwarded *float64 `json:"marks_awarded"`
	IsCorrect    bool     `json:"is_correct"`
}

type MarkAnswerResponse struct {
	Answer            MarkedAnswer `json:"answer"`
	AttemptScore      float64      `json:"attempt_score"`
	AttemptPercentage float64      `json:"attempt_percentage"`
}

type BulkMarkItem struct {
	AnswerID     uint     `json:"answer_id"`
	MarksAwarded *float64 `json:"marks_awarded"`
}

type BulkMarkRequest struct {
	Answers []BulkMarkItem `json:"answers" validate:"required,min=1"`
}

type BulkMarkedAnswer struct {
	AnswerID     uint     `json:"answer_id"`
	MarksAwarded *float64 `json:"marks_awarded"`
	IsCorrect    bool     `json:"is_correct"`
}

type FailedUpdate struct {
	AnswerID uint   `json:"answer_id"`
	Error    string `json:"error"`
}

type BulkMarkResponse struct {
	Message        string             `json:"message"`
	UpdatedAnswers []BulkMarkedAnswer `json:"updated_answers"`
	FailedUpdates  []FailedUpdate     `json:"failed_updates"`
}

type AttemptFailure struct {
	AttemptID uint   `json:"attempt_id"`
	Error     string `json:"error"`
}

// PropagationResult reports the attempts touched by an option change.
type PropagationResult struct {
	Updated int              `json:"updated"`
	Failed  []AttemptFailure `json:"failed"`
}

type RecalculateResult struct {
	TotalAttempts int              `json:"total_attempts"`
	UpdatedCount  int              `json:"updated_count"`
	Failed        []AttemptFailure `json:"failed"`
}

type DeletedCounts struct {
	Images      int `json:"images"`
	Attachments int `json:"attachments"`
}

type ClearSolutionsResponse struct {
	Message       string        `json:"message"`
	DeletedCounts DeletedCounts `json:"deleted_counts"`
	Student       string        `json:"student"`
	Exam          string        `json:"exam"`
}

type UpdateSolutionRequest struct {
	SolutionText string `json:"solution_text"`
}

// ===== PROCTORING =====

type FaceSampleRequest struct {
	FacesDetected int     `json:"faces_detected" validate:"min=0"`
	Confidence    float64 `json:"confidence" validate:"min=0,max=1"`
	ImagePath     *string `json:"image_path"`
}

type AudioSampleRequest struct {
	Level float64 `json:"level" validate:"min=0"`
}

type ReportViolationRequest struct {
	AttemptID     uint   `json:"attempt_id" validate:"required"`
	ViolationType string `json:"violation_type" validate:"required,violation_type"`
	Description   string `json:"description" validate:"max=1000"`
}

// SampleResult carries the violation recorded for a sample, if any.
type SampleResult struct {
	FacesDetected int                      `json:"faces_detected,omitempty"`
	Confidence    float64                  `json:"confidence,omitempty"`
	Violation     *events.ViolationPayload `json:"violation,omitempty"`
}

type ViolationReport struct {
	AttemptID        uint                   `json:"attempt_id"`
	StudentName      string                 `json:"student_name"`
	ExamTitle        string                 `json:"exam_title"`
	TotalViolations  int                    `json:"total_violations"`
	ViolationsByType map[string]int         `json:"violations_by_type"`
	Violations       []*models.ViolationLog `json:"violations"`
}

type ProctoringLogs struct {
	FaceLogs  []*models.FaceDetectionLog   `json:"face_logs"`
	AudioLogs []*models.AudioMonitoringLog `json:"audio_logs"`
}

// ===== MONITORING =====

type LastActivity struct {
	Type        models.ActivityType `json:"type"`
	Timestamp   time.Time           `json:"timestamp"`
	Description string              `json:"description"`
}

// LiveAttempt is one row of the live monitoring snapshot.
type LiveAttempt struct {
	ID                 uint                 `json:"id"`
	UserName           string               `json:"user_name"`
	Status             models.AttemptStatus `json:"status"`
	StartTime          time.Time            `json:"start_time"`
	TimeElapsedSeconds int64                `json:"time_elapsed_seconds"`
	AnsweredQuestions  int                  `json:"answered_questions"`
	TotalQuestions     int                  `json:"total_questions"`
	ProgressPercentage float64              `json:"progress_percentage"`
	ViolationsCount    int64                `json:"violations_count"`
	CameraStatus       bool                 `json:"camera_status"`
	FaceDetected       bool                 `json:"face_detected"`
	AudioStatus        bool                 `json:"audio_status"`
	LastActivity       *LastActivity        `json:"last_activity"`
}

type ActivityEntry struct {
	ID           uint                `json:"id"`
	ActivityType models.ActivityType `json:"activity_type"`
	Description  string              `json:"description"`
	Metadata     interface{}         `json:"metadata"`
	Timestamp    time.Time           `json:"timestamp"`
}

type AttemptDetails struct {
	ID                uint                 `json:"id"`
	UserName          string               `json:"user_name"`
	ExamID            uint                 `json:"exam_id"`
	ExamTitle         string               `json:"exam_title"`
	Status            models.AttemptStatus `json:"status"`
	Score             float64              `json:"score"`
	PercentageScore   float64              `json:"percentage_score"`
	TotalMarks        float64              `json:"total_marks"`
	CorrectAnswers    int                  `json:"correct_answers"`
	WrongAnswers      int                  `json:"wrong_answers"`
	Unanswered        int                  `json:"unanswered_questions"`
	IsPassed          bool                 `json:"is_passed"`
	ResultsReady      bool                 `json:"results_ready"`
	StartTime         time.Time            `json:"start_time"`
	EndTime           *time.Time           `json:"end_time"`
	CameraEnabled     bool                 `json:"camera_enabled"`
	MicrophoneEnabled bool                 `json:"microphone_enabled"`
	FaceDetected      bool                 `json:"face_detected"`
	ViolationsCount   int64                `json:"violations_count"`
	ActivityLogs      []ActivityEntry      `json:"activity_logs"`
}

// ===== EXAM ADMINISTRATION =====

type UpdateOptionRequest struct {
	OptionText *string `json:"option_text" validate:"omitempty,min=1,max=500"`
	IsCorrect  *bool   `json:"is_correct"`
	Order      *int    `json:"order" validate:"omitempty,min=0"`
}

type OptionChangeResponse struct {
	Option      *models.Option     `json:"option,omitempty"`
	TotalMarks  float64            `json:"total_marks"`
	Propagation *PropagationResult `json:"propagation"`
}

type UpdateTagsRequest struct {
	Tags []string `json:"tags" validate:"max=20,dive,tag_name"`
}

type GrantRetakeResponse struct {
	Message        string `json:"message"`
	DeletedAttempt uint   `json:"deleted_attempt_id"`
}
