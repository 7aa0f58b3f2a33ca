package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExamAdminHandler serves option, tag, retake and export maintenance
type ExamAdminHandler struct {
	BaseHandler
	examAdminService services.ExamAdminService
}

func NewExamAdminHandler(examAdminService services.ExamAdminService, logger utils.Logger) *ExamAdminHandler {
	return &ExamAdminHandler{
		BaseHandler:      NewBaseHandler(logger),
		examAdminService: examAdminService,
	}
}

// UpdateOption edits an option and re-scores affected attempts when correctness changes
// @Router /admin/options/{id} [put]
func (h *ExamAdminHandler) UpdateOption(c *gin.Context) {
	optionID := h.parseIDParam(c, "id")
	if optionID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.UpdateOptionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Updating option", "option_id", optionID)

	resp, err := h.examAdminService.UpdateOption(c.Request.Context(), caller, optionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteOption removes an option after detaching it from every answer
// @Router /admin/options/{id} [delete]
func (h *ExamAdminHandler) DeleteOption(c *gin.Context) {
	optionID := h.parseIDParam(c, "id")
	if optionID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Deleting option", "option_id", optionID)

	resp, err := h.examAdminService.DeleteOption(c.Request.Context(), caller, optionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateQuestionTags replaces the tags of a question
// @Router /admin/questions/{id}/tags [put]
func (h *ExamAdminHandler) UpdateQuestionTags(c *gin.Context) {
	questionID := h.parseIDParam(c, "id")
	if questionID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.UpdateTagsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	question, err := h.examAdminService.UpdateQuestionTags(c.Request.Context(), caller, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// ListTags returns every tag in use
// @Router /admin/tags [get]
func (h *ExamAdminHandler) ListTags(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	tags, err := h.examAdminService.ListTags(c.Request.Context(), caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// ListRetakeRequests returns the retake requests of an exam
// @Router /admin/exams/{id}/retakes [get]
func (h *ExamAdminHandler) ListRetakeRequests(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	requests, err := h.examAdminService.ListRetakeRequests(c.Request.Context(), caller, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"retake_requests": requests})
}

// GrantRetake deletes a student's attempt so they can start again
// @Router /admin/exams/{id}/retakes/{user_id}/grant [post]
func (h *ExamAdminHandler) GrantRetake(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	userID := h.parseStringParam(c, "user_id")
	if userID == "" {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Granting retake", "exam_id", examID, "student_id", userID)

	resp, err := h.examAdminService.GrantRetake(c.Request.Context(), caller, examID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ExportResults downloads the attempt results of an exam as a spreadsheet
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Router /admin/exams/{id}/results/export [get]
func (h *ExamAdminHandler) ExportResults(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting results", "exam_id", examID)

	data, err := h.examAdminService.ExportResults(c.Request.Context(), caller, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("exam_%d_results_%s.xlsx", examID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
