package services

import (
	"context"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
)

// AttemptService drives the attempt state machine.
type AttemptService interface {
	Start(ctx context.Context, caller Caller, examID uint) (*StartAttemptResponse, error)
	Pause(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error)
	Resume(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error)
	Submit(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error)
	Terminate(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error)
	Restart(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error)
	GetResults(ctx context.Context, caller Caller, attemptID uint) (*ResultsResponse, error)
}

// AnswerService records student answers.
type AnswerService interface {
	SubmitAnswer(ctx context.Context, caller Caller, attemptID uint, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error)
}

// MarkingService covers manual marking, solutions and score recalculation.
type MarkingService interface {
	MarkAnswer(ctx context.Context, caller Caller, answerID uint, req *MarkAnswerRequest) (*MarkAnswerResponse, error)
	BulkMark(ctx context.Context, caller Caller, req *BulkMarkRequest) (*BulkMarkResponse, error)
	PropagateOptionChange(ctx context.Context, option *models.Option, deleted bool) (*PropagationResult, error)
	ReleaseResults(ctx context.Context, caller Caller, attemptID uint) (*models.ExamAttempt, error)
	RecalculateExamScores(ctx context.Context, caller Caller, examID uint) (*RecalculateResult, error)

	UpdateSolutionText(ctx context.Context, caller Caller, answerID uint, req *UpdateSolutionRequest) (string, error)
	AddSolutionAttachments(ctx context.Context, caller Caller, answerID uint, files []FileUpload) ([]models.SolutionAttachment, error)
	DeleteSolutionAttachment(ctx context.Context, caller Caller, attachmentID uint) error
	ClearSolutions(ctx context.Context, caller Caller, attemptID uint) (*ClearSolutionsResponse, error)
}

// ProctoringService records proctoring telemetry and violations.
type ProctoringService interface {
	RecordFaceSample(ctx context.Context, caller Caller, attemptID uint, req *FaceSampleRequest) (*SampleResult, error)
	RecordAudioSample(ctx context.Context, caller Caller, attemptID uint, req *AudioSampleRequest) (*SampleResult, error)
	ReportViolation(ctx context.Context, caller Caller, req *ReportViolationRequest) (*SampleResult, error)

	GetSession(ctx context.Context, caller Caller, attemptID uint) (*models.ProctoringSession, error)
	ListViolations(ctx context.Context, caller Caller, attemptID uint) ([]*models.ViolationLog, error)
	GetLogs(ctx context.Context, caller Caller, attemptID uint) (*ProctoringLogs, error)
	GetViolationReport(ctx context.Context, caller Caller, attemptID uint) (*ViolationReport, error)
}

// MonitoringService builds the admin live views.
type MonitoringService interface {
	LiveAttempts(ctx context.Context, caller Caller, examID uint) ([]LiveAttempt, error)
	AttemptDetails(ctx context.Context, caller Caller, attemptID uint) (*AttemptDetails, error)
	Activities(ctx context.Context, caller Caller, attemptID uint) ([]ActivityEntry, error)
	// AttemptExamID resolves the exam of an attempt the caller owns or administers.
	AttemptExamID(ctx context.Context, caller Caller, attemptID uint) (uint, error)
}

// ExamAdminService holds the admin exam maintenance operations.
type ExamAdminService interface {
	UpdateOption(ctx context.Context, caller Caller, optionID uint, req *UpdateOptionRequest) (*OptionChangeResponse, error)
	DeleteOption(ctx context.Context, caller Caller, optionID uint) (*OptionChangeResponse, error)

	UpdateQuestionTags(ctx context.Context, caller Caller, questionID uint, req *UpdateTagsRequest) (*models.Question, error)
	ListTags(ctx context.Context, caller Caller) ([]string, error)

	RequestRetake(ctx context.Context, caller Caller, examID uint) (*models.RetakeRequest, error)
	ListRetakeRequests(ctx context.Context, caller Caller, examID uint) ([]*models.RetakeRequest, error)
	GrantRetake(ctx context.Context, caller Caller, examID uint, userID string) (*GrantRetakeResponse, error)

	ExportResults(ctx context.Context, caller Caller, examID uint) ([]byte, error)
}
