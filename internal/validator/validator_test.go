package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type violationRequest struct {
	AttemptID     uint   `json:"attempt_id" validate:"required"`
	ViolationType string `json:"violation_type" validate:"violation_type"`
}

type limitedRequest struct {
	Images int `json:"images"`
}

func (r limitedRequest) BusinessRules() ValidationErrors {
	if r.Images > 3 {
		return ValidationErrors{{Field: "images", Message: "at most 3 images allowed", Value: r.Images}}
	}
	return nil
}

func TestValidator_StructTags(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(&violationRequest{AttemptID: 1, ViolationType: "TAB_SWITCH"}))

	err := v.Validate(&violationRequest{ViolationType: "tab switch"})
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 2)
	assert.Equal(t, "attempt_id", errs[0].Field)
	assert.Equal(t, "violation_type", errs[1].Field)
}

func TestValidator_BusinessRules(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(limitedRequest{Images: 3}))

	err := v.Validate(limitedRequest{Images: 4})
	require.Error(t, err)
	assert.Equal(t, "validation failed: images at most 3 images allowed", err.Error())
}
