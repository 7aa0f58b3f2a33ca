package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// GradingHandler serves the admin marking routes
type GradingHandler struct {
	BaseHandler
	markingService services.MarkingService
	attemptService services.AttemptService
}

func NewGradingHandler(
	markingService services.MarkingService,
	attemptService services.AttemptService,
	logger utils.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		markingService: markingService,
		attemptService: attemptService,
	}
}

// MarkAnswer manually marks a specific answer
// @Summary Mark answer
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Answer ID"
// @Param mark body services.MarkAnswerRequest true "Marking data"
// @Success 200 {object} services.MarkAnswerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/answers/{id}/mark [post]
func (h *GradingHandler) MarkAnswer(c *gin.Context) {
	answerID := h.parseIDParam(c, "id")
	if answerID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.MarkAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Marking answer", "answer_id", answerID)

	result, err := h.markingService.MarkAnswer(c.Request.Context(), caller, answerID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BulkMark marks several answers, reporting per-answer failures
// @Summary Bulk mark answers
// @Tags grading
// @Accept json
// @Produce json
// @Param marks body services.BulkMarkRequest true "Answers to mark"
// @Success 200 {object} services.BulkMarkResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/answers/bulk-mark [post]
func (h *GradingHandler) BulkMark(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.BulkMarkRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Bulk marking answers", "count", len(req.Answers))

	result, err := h.markingService.BulkMark(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ReleaseResults makes an attempt's results visible to the student
// @Router /admin/attempts/{id}/release-results [post]
func (h *GradingHandler) ReleaseResults(c *gin.Context) {
	h.transition(c, "Releasing results", h.markingService.ReleaseResults)
}

// RestartAttempt deletes an attempt and opens a fresh one for the same student
// @Router /admin/attempts/{id}/restart [post]
func (h *GradingHandler) RestartAttempt(c *gin.Context) {
	h.transition(c, "Restarting attempt", h.attemptService.Restart)
}

// TerminateAttempt ends a live attempt
// @Router /admin/attempts/{id}/terminate [post]
func (h *GradingHandler) TerminateAttempt(c *gin.Context) {
	h.transition(c, "Terminating attempt", h.attemptService.Terminate)
}

// RecalculateScores recomputes every attempt of an exam
// @Router /admin/exams/{id}/recalculate-scores [post]
func (h *GradingHandler) RecalculateScores(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Recalculating exam scores", "exam_id", examID)

	result, err := h.markingService.RecalculateExamScores(c.Request.Context(), caller, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ===== SOLUTIONS =====

// UpdateSolution replaces the solution text of an answer
// @Router /admin/answers/{id}/solution [put]
func (h *GradingHandler) UpdateSolution(c *gin.Context) {
	answerID := h.parseIDParam(c, "id")
	if answerID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.UpdateSolutionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	solution, err := h.markingService.UpdateSolutionText(c.Request.Context(), caller, answerID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"answer_id": answerID, "solution_text": solution})
}

// AddSolutionAttachments uploads files under the attachments form field
// @Router /admin/answers/{id}/solution/attachments [post]
func (h *GradingHandler) AddSolutionAttachments(c *gin.Context) {
	answerID := h.parseIDParam(c, "id")
	if answerID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	files, closeFiles, err := formFiles(c, "attachments")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid multipart form",
			Details: err.Error(),
		})
		return
	}
	defer closeFiles()

	h.LogRequest(c, "Adding solution attachments", "answer_id", answerID, "count", len(files))

	attachments, err := h.markingService.AddSolutionAttachments(c.Request.Context(), caller, answerID, files)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"attachments": attachments})
}

// DeleteSolutionAttachment removes one solution attachment
// @Router /admin/solution-attachments/{id} [delete]
func (h *GradingHandler) DeleteSolutionAttachment(c *gin.Context) {
	attachmentID := h.parseIDParam(c, "id")
	if attachmentID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	if err := h.markingService.DeleteSolutionAttachment(c.Request.Context(), caller, attachmentID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ClearSolutions deletes all answer images and solution attachments of an attempt
// @Router /admin/attempts/{id}/solutions [delete]
func (h *GradingHandler) ClearSolutions(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Clearing solutions", "attempt_id", attemptID)

	result, err := h.markingService.ClearSolutions(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
