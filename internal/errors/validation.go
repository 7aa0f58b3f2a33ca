package errors

import (
	stderrors "errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

func (pe *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", pe.Field, pe.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewValidationErrorWithRule creates a new validation error with rule
func NewValidationErrorWithRule(field, message, rule string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Rule:    rule,
	}
}

// ToValidationErrors flattens validator field errors into ValidationErrors.
// Anything else yields nil.
func ToValidationErrors(err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return nil
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: messageFor(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

var ruleMessages = map[string]string{
	"required":       "is required",
	"question_type":  "must be one of MCQ, TF, SHORT_ANSWER, FREE_TEXT, IMAGE_UPLOAD",
	"violation_type": "must be a non-empty upper-case violation type",
	"tag_name":       "must be 1-50 characters without commas",
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := ruleMessages[fe.Tag()]; ok {
		return msg
	}

	// min/max measure length for strings and collections
	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = "characters"
	case reflect.Slice, reflect.Map, reflect.Array:
		unit = "items"
	}

	switch fe.Tag() {
	case "min":
		if unit != "" {
			return fmt.Sprintf("must contain at least %s %s", fe.Param(), unit)
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if unit != "" {
			return fmt.Sprintf("must contain at most %s %s", fe.Param(), unit)
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return fmt.Sprintf("failed the '%s' rule", fe.Tag())
}
