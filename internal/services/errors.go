package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/exam-proctoring-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrConflict         = errors.New("resource conflict")

	// Exam specific errors
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotOpen      = errors.New("exam is not open for attempts")
	ErrQuestionNotFound = errors.New("question not found")
	ErrOptionNotFound   = errors.New("option not found")

	// Attempt specific errors
	ErrAttemptNotFound          = errors.New("attempt not found")
	ErrAttemptAccessDenied      = errors.New("access denied to attempt")
	ErrAttemptCompleted         = errors.New("exam already completed")
	ErrAttemptNotAnswerable     = errors.New("attempt is not accepting answers")
	ErrAttemptInvalidTransition = errors.New("invalid attempt status transition")
	ErrResultsNotAvailable      = errors.New("results are available once the attempt is finished")

	// Answer and marking errors
	ErrAnswerNotFound             = errors.New("answer not found")
	ErrSolutionAttachmentNotFound = errors.New("solution attachment not found")

	// Proctoring errors
	ErrSessionNotFound = errors.New("proctoring session not found")

	// Retake errors
	ErrRetakeAlreadyRequested = errors.New("retake already requested")
	ErrRetakeNotAllowed       = errors.New("retake requires a finished attempt")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// fieldError wraps a single field failure as ValidationErrors so handlers report it as 400.
func fieldError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{*NewValidationError(field, message, value)}
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrOptionNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrAnswerNotFound) ||
		errors.Is(err, ErrSolutionAttachmentNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	var pe *PermissionError
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAttemptAccessDenied) ||
		errors.As(err, &pe)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrExamNotOpen) ||
		errors.Is(err, ErrAttemptCompleted) ||
		errors.Is(err, ErrAttemptNotAnswerable) ||
		errors.Is(err, ErrAttemptInvalidTransition) ||
		errors.Is(err, ErrResultsNotAvailable) ||
		errors.Is(err, ErrRetakeNotAllowed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrRetakeAlreadyRequested)
}
