package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/middleware"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging and error mapping for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", c.GetString("user_id"),
	}
	fields = append(fields, additionalFields...)

	h.logger.Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", c.GetString("user_id"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	fields = append(fields, additionalFields...)

	h.logger.LogError(err, message, fields...)
}

// caller returns the authenticated caller, answering 401 when there is none
func (h *BaseHandler) caller(c *gin.Context) (services.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
	}
	return caller, ok
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		details := "ID must be a positive integer"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: details,
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseStringParam(c *gin.Context, param string) string {
	value := strings.TrimSpace(c.Param(param))
	if value == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
	}
	return value
}

func (h *BaseHandler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case services.IsUnauthorized(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: err.Error()})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}

// attemptTransition is any attempt state change keyed by attempt id
type attemptTransition func(ctx context.Context, caller services.Caller, attemptID uint) (*models.ExamAttempt, error)

func (h *BaseHandler) transition(c *gin.Context, message string, fn attemptTransition) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, message, "attempt_id", attemptID)

	attempt, err := fn(c.Request.Context(), caller, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ===== MULTIPART HELPERS =====

// formFiles opens the files uploaded under field. The returned closer must be called
// once the service has consumed them.
func formFiles(c *gin.Context, field string) ([]services.FileUpload, func(), error) {
	noop := func() {}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, err
	}

	headers := form.File[field]
	uploads := make([]services.FileUpload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, noop, err
		}
		opened = append(opened, file)
		uploads = append(uploads, services.FileUpload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     file,
		})
	}
	return uploads, closeAll, nil
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEMultipartPOSTForm
}

// HealthCheck reports liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "exam-proctoring-service",
	})
}
