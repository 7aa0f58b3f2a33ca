package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/monitor"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// MonitorHandler serves the admin live views and the realtime channels
type MonitorHandler struct {
	BaseHandler
	monitoringService services.MonitoringService
	hub               *monitor.Hub
}

func NewMonitorHandler(monitoringService services.MonitoringService, hub *monitor.Hub, logger utils.Logger) *MonitorHandler {
	return &MonitorHandler{
		BaseHandler:       NewBaseHandler(logger),
		monitoringService: monitoringService,
		hub:               hub,
	}
}

// LiveAttempts returns the live snapshot of an exam
// @Router /admin/exams/{id}/live-attempts [get]
func (h *MonitorHandler) LiveAttempts(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	rows, err := h.monitoringService.LiveAttempts(c.Request.Context(), caller, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exam_id": examID, "attempts": rows})
}

// AttemptDetails returns an attempt with its proctoring state and recent activity
// @Router /admin/attempts/{id}/details [get]
func (h *MonitorHandler) AttemptDetails(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	details, err := h.monitoringService.AttemptDetails(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// Activities returns the activity log of an attempt, newest first
// @Router /admin/attempts/{id}/activities [get]
func (h *MonitorHandler) Activities(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	activities, err := h.monitoringService.Activities(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempt_id": attemptID, "activities": activities})
}

// ===== REALTIME =====

// ProctoringSocket upgrades to the student sensor channel
// @Router /ws/proctoring/{attempt_id} [get]
func (h *MonitorHandler) ProctoringSocket(c *gin.Context) {
	h.upgrade(c, "attempt_id", h.hub.ServeProctoring)
}

// ExamMonitorSocket upgrades to an admin observer of a whole exam
// @Router /ws/monitor/exams/{id} [get]
func (h *MonitorHandler) ExamMonitorSocket(c *gin.Context) {
	h.upgrade(c, "id", h.hub.ServeExamMonitor)
}

// AttemptMonitorSocket upgrades to an admin observer of one attempt
// @Router /ws/monitor/attempts/{id} [get]
func (h *MonitorHandler) AttemptMonitorSocket(c *gin.Context) {
	h.upgrade(c, "id", h.hub.ServeAttemptMonitor)
}

type serveFunc func(w http.ResponseWriter, r *http.Request, caller services.Caller, id uint) error

func (h *MonitorHandler) upgrade(c *gin.Context, param string, serve serveFunc) {
	id := h.parseIDParam(c, param)
	if id == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	// Errors are only returned before the upgrade, so the response is still writable.
	if err := serve(c.Writer, c.Request, caller, id); err != nil {
		h.handleServiceError(c, err)
	}
}
