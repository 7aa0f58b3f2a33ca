package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		notFound     bool
		unauthorized bool
		validation   bool
		conflict     bool
	}{
		{name: "wrapped attempt not found", err: fmt.Errorf("failed to get attempt: %w", ErrAttemptNotFound), notFound: true},
		{name: "solution attachment", err: ErrSolutionAttachmentNotFound, notFound: true},
		{name: "permission error", err: NewPermissionError("student-2", 7, "attempt", "view", "not the owner"), unauthorized: true},
		{name: "access denied", err: ErrAttemptAccessDenied, unauthorized: true},
		{name: "terminal attempt", err: ErrAttemptCompleted, validation: true},
		{name: "field error", err: fieldError("question_id", "belongs to another exam", 3), validation: true},
		{name: "duplicate retake", err: ErrRetakeAlreadyRequested, conflict: true},
		{name: "opaque", err: assert.AnError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.unauthorized, IsUnauthorized(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
		})
	}
}

func TestBusinessRuleError(t *testing.T) {
	err := NewBusinessRuleError("results_before_submission", "results can only be released for a finished attempt", map[string]interface{}{"attempt_id": 4})

	assert.True(t, IsBusinessRule(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, "business rule violation (results_before_submission): results can only be released for a finished attempt", err.Error())
	assert.False(t, IsBusinessRule(ErrAttemptNotFound))
}
