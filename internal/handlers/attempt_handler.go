package handlers

import (
	"net/http"
	"strconv"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type AttemptHandler struct {
	BaseHandler
	attemptService    services.AttemptService
	answerService     services.AnswerService
	proctoringService services.ProctoringService
	examAdminService  services.ExamAdminService
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	answerService services.AnswerService,
	proctoringService services.ProctoringService,
	examAdminService services.ExamAdminService,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:       NewBaseHandler(logger),
		attemptService:    attemptService,
		answerService:     answerService,
		proctoringService: proctoringService,
		examAdminService:  examAdminService,
	}
}

// StartExam creates or resumes the caller's attempt
// @Router /exams/{id}/start [post]
func (h *AttemptHandler) StartExam(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting exam", "exam_id", examID)

	resp, err := h.attemptService.Start(c.Request.Context(), caller, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// SubmitAnswer records one answer. Accepts JSON or a multipart form carrying
// answer_images and attachments.
// @Router /attempts/{id}/submit-answer [post]
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.SubmitAnswerRequest
	if isMultipart(c) {
		closeFiles, ok := h.bindAnswerForm(c, &req)
		if !ok {
			return
		}
		defer closeFiles()
	} else if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Submitting answer", "attempt_id", attemptID, "question_id", req.QuestionID)

	resp, err := h.answerService.SubmitAnswer(c.Request.Context(), caller, attemptID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AttemptHandler) bindAnswerForm(c *gin.Context, req *services.SubmitAnswerRequest) (func(), bool) {
	questionID, err := strconv.ParseUint(c.PostForm("question_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid question_id",
			Details: err.Error(),
		})
		return nil, false
	}
	req.QuestionID = uint(questionID)

	if raw := c.PostForm("selected_option_id"); raw != "" {
		optionID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid selected_option_id",
				Details: err.Error(),
			})
			return nil, false
		}
		req.SelectedOptionID = models.UintPtr(uint(optionID))
	}
	if text, exists := c.GetPostForm("answer_text"); exists {
		req.TextAnswer = models.StringPtr(text)
	}
	if raw := c.PostForm("time_spent_seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid time_spent_seconds",
				Details: err.Error(),
			})
			return nil, false
		}
		req.TimeSpentSeconds = seconds
	}

	images, closeImages, err := formFiles(c, "answer_images")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid answer_images", Details: err.Error()})
		return nil, false
	}
	attachments, closeAttachments, err := formFiles(c, "attachments")
	if err != nil {
		closeImages()
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid attachments", Details: err.Error()})
		return nil, false
	}
	req.Images = images
	req.Attachments = attachments

	return func() {
		closeImages()
		closeAttachments()
	}, true
}

// SubmitExam finalizes the attempt and computes the score
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitExam(c *gin.Context) {
	h.transition(c, "Submitting attempt", h.attemptService.Submit)
}

// PauseExam pauses an in-progress attempt
// @Router /attempts/{id}/pause [post]
func (h *AttemptHandler) PauseExam(c *gin.Context) {
	h.transition(c, "Pausing attempt", h.attemptService.Pause)
}

// ResumeExam resumes a paused attempt
// @Router /attempts/{id}/resume [post]
func (h *AttemptHandler) ResumeExam(c *gin.Context) {
	h.transition(c, "Resuming attempt", h.attemptService.Resume)
}

// GetResults returns the attempt summary with per-question results
// @Router /attempts/{id}/results [get]
func (h *AttemptHandler) GetResults(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	results, err := h.attemptService.GetResults(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// RequestRetake files a retake request for a finished exam
// @Router /exams/{id}/retake-request [post]
func (h *AttemptHandler) RequestRetake(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Requesting retake", "exam_id", examID)

	request, err := h.examAdminService.RequestRetake(c.Request.Context(), caller, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Retake request submitted",
		Data:    request,
	})
}

// ===== PROCTORING =====

// ReportViolation records a client-detected violation
// @Router /proctoring/violations [post]
func (h *AttemptHandler) ReportViolation(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.ReportViolationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Reporting violation", "attempt_id", req.AttemptID, "violation_type", req.ViolationType)

	result, err := h.proctoringService.ReportViolation(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetSession returns the proctoring session of an attempt
// @Router /attempts/{id}/proctoring/session [get]
func (h *AttemptHandler) GetSession(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	session, err := h.proctoringService.GetSession(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListViolations returns the violations recorded for an attempt
// @Router /attempts/{id}/violations [get]
func (h *AttemptHandler) ListViolations(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	violations, err := h.proctoringService.ListViolations(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"violations": violations})
}

// GetViolationReport summarises the violations of an attempt
// @Router /attempts/{id}/violations/report [get]
func (h *AttemptHandler) GetViolationReport(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	report, err := h.proctoringService.GetViolationReport(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetProctoringLogs returns the latest face and audio telemetry of an attempt
// @Router /attempts/{id}/proctoring/logs [get]
func (h *AttemptHandler) GetProctoringLogs(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	logs, err := h.proctoringService.GetLogs(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, logs)
}
