package services

import (
	"context"
	"testing"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitoringService_LiveAttempts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)

	active := env.start(t, student, exam.ID)
	env.answer(t, student, active.ID, exam.Questions[0], 0)
	_, err := env.services.Proctoring().RecordFaceSample(ctx, student, active.ID, &FaceSampleRequest{FacesDetected: 2, Confidence: 0.7})
	require.NoError(t, err)

	finished := env.start(t, otherStudent, exam.ID)
	_, err = env.services.Attempt().Submit(ctx, otherStudent, finished.ID)
	require.NoError(t, err)

	_, err = env.services.Monitoring().LiveAttempts(ctx, student, exam.ID)
	assert.True(t, IsUnauthorized(err))

	rows, err := env.services.Monitoring().LiveAttempts(ctx, admin, exam.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, active.ID, row.ID)
	assert.Equal(t, student.UserName, row.UserName)
	assert.Equal(t, models.AttemptInProgress, row.Status)
	assert.Equal(t, 1, row.AnsweredQuestions)
	assert.Equal(t, 2, row.TotalQuestions)
	assert.InDelta(t, 50, row.ProgressPercentage, 1e-9)
	assert.Equal(t, int64(1), row.ViolationsCount)
	assert.True(t, row.CameraStatus)
	assert.True(t, row.FaceDetected)
	require.NotNil(t, row.LastActivity)
	assert.Equal(t, models.ActivityAnswerSubmitted, row.LastActivity.Type)

	// The snapshot is cached until the next attempt event.
	var cached []LiveAttempt
	require.NoError(t, env.cache.Get(ctx, liveAttemptsKey(exam.ID), &cached))
	assert.Len(t, cached, 1)

	env.answer(t, student, active.ID, exam.Questions[1], 0)
	assert.Error(t, env.cache.Get(ctx, liveAttemptsKey(exam.ID), &cached))

	rows, err = env.services.Monitoring().LiveAttempts(ctx, admin, exam.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].AnsweredQuestions)
	assert.InDelta(t, 100, rows[0].ProgressPercentage, 1e-9)

	_, err = env.services.Monitoring().LiveAttempts(ctx, admin, 9999)
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestMonitoringService_AttemptDetails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	attempt := env.start(t, student, exam.ID)
	env.answer(t, student, attempt.ID, exam.Questions[0], 0)

	details, err := env.services.Monitoring().AttemptDetails(ctx, admin, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.Title, details.ExamTitle)
	assert.InDelta(t, 5, details.Score, 1e-9)
	assert.False(t, details.CameraEnabled)
	require.Len(t, details.ActivityLogs, 2)

	activities, err := env.services.Monitoring().Activities(ctx, admin, attempt.ID)
	require.NoError(t, err)
	assert.Len(t, activities, 2)
	assert.NotNil(t, activities[0].Metadata)

	examID, err := env.services.Monitoring().AttemptExamID(ctx, student, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.ID, examID)
	_, err = env.services.Monitoring().AttemptExamID(ctx, otherStudent, attempt.ID)
	assert.True(t, IsUnauthorized(err))

	_, err = env.services.Monitoring().AttemptDetails(ctx, student, attempt.ID)
	assert.True(t, IsUnauthorized(err))
	_, err = env.services.Monitoring().Activities(ctx, admin, 9999)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}
