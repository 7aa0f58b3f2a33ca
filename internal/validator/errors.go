package validator

import (
	"github.com/SAP-F-2025/exam-proctoring-service/internal/errors"
)

type (
	ValidationError  = errors.ValidationError
	ValidationErrors = errors.ValidationErrors
)

// fieldErrors returns nil when err does not come from struct tag validation.
func fieldErrors(err error) ValidationErrors {
	return errors.ToValidationErrors(err)
}
