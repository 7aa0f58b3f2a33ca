package services

import (
	"context"
	"testing"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkingService_MarkAnswer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.seedExam(t, &models.Exam{
		TotalMarks:   15,
		PassingMarks: 50,
		Questions: []models.Question{
			mcq("Port of HTTPS?", 5, 1),
			freeText("Describe the three-way handshake", 10, 2),
		},
	})
	attempt := env.start(t, student, exam.ID)
	env.answer(t, student, attempt.ID, exam.Questions[0], 0)
	text := "SYN, SYN-ACK, ACK"
	essay, err := env.services.Answer().SubmitAnswer(ctx, student, attempt.ID, &SubmitAnswerRequest{
		QuestionID: exam.Questions[1].ID,
		TextAnswer: &text,
	})
	require.NoError(t, err)

	_, err = env.services.Marking().MarkAnswer(ctx, student, essay.AnswerID, &MarkAnswerRequest{MarksAwarded: models.Float64Ptr(8)})
	assert.True(t, IsUnauthorized(err))

	_, err = env.services.Marking().MarkAnswer(ctx, admin, essay.AnswerID, &MarkAnswerRequest{MarksAwarded: models.Float64Ptr(11)})
	assert.True(t, IsValidation(err))

	comment := "Good, missing sequence numbers"
	resp, err := env.services.Marking().MarkAnswer(ctx, admin, essay.AnswerID, &MarkAnswerRequest{
		MarksAwarded: models.Float64Ptr(8),
		Comment:      &comment,
	})
	require.NoError(t, err)
	assert.True(t, resp.Answer.IsCorrect)
	assert.InDelta(t, 13, resp.AttemptScore, 1e-9)
	assert.InDelta(t, 13.0/15*100, resp.AttemptPercentage, 1e-9)

	stored := env.storedAnswer(t, essay.AnswerID)
	assert.True(t, stored.IsManuallyMarked)
	require.NotNil(t, stored.MarkedBy)
	assert.Equal(t, admin.UserName, *stored.MarkedBy)
	assert.Equal(t, comment, *stored.Comment)

	// Zero marks on a manual type defaults to incorrect.
	resp, err = env.services.Marking().MarkAnswer(ctx, admin, essay.AnswerID, &MarkAnswerRequest{MarksAwarded: models.Float64Ptr(0)})
	require.NoError(t, err)
	assert.False(t, resp.Answer.IsCorrect)
	assert.InDelta(t, 5, resp.AttemptScore, 1e-9)

	_, err = env.services.Marking().MarkAnswer(ctx, admin, 9999, &MarkAnswerRequest{MarksAwarded: models.Float64Ptr(1)})
	assert.ErrorIs(t, err, ErrAnswerNotFound)
}

func TestMarkingService_BulkMarkPartialFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.seedExam(t, &models.Exam{
		TotalMarks:   10,
		PassingMarks: 50,
		Questions:    []models.Question{freeText("Explain DNS", 10, 1)},
	})

	var answerIDs []uint
	for _, caller := range []Caller{student, otherStudent} {
		attempt := env.start(t, caller, exam.ID)
		text := "resolves names"
		resp, err := env.services.Answer().SubmitAnswer(ctx, caller, attempt.ID, &SubmitAnswerRequest{
			QuestionID: exam.Questions[0].ID,
			TextAnswer: &text,
		})
		require.NoError(t, err)
		answerIDs = append(answerIDs, resp.AnswerID)
	}

	resp, err := env.services.Marking().BulkMark(ctx, admin, &BulkMarkRequest{Answers: []BulkMarkItem{
		{AnswerID: answerIDs[0], MarksAwarded: models.Float64Ptr(7)},
		{AnswerID: 9999, MarksAwarded: models.Float64Ptr(4)},
		{AnswerID: answerIDs[1], MarksAwarded: models.Float64Ptr(10)},
	}})
	require.NoError(t, err)

	assert.Len(t, resp.UpdatedAnswers, 2)
	require.Len(t, resp.FailedUpdates, 1)
	assert.Equal(t, uint(9999), resp.FailedUpdates[0].AnswerID)
	assert.Equal(t, "Answer not found", resp.FailedUpdates[0].Error)

	first := env.storedAnswer(t, answerIDs[0])
	assert.InDelta(t, 7, *first.MarksAwarded, 1e-9)
	assert.True(t, first.IsManuallyMarked)

	attempt := env.attempt(t, first.AttemptID)
	assert.InDelta(t, 7, attempt.Score, 1e-9)
	assert.True(t, attempt.ResultsReady)
}

func TestMarkingService_BulkMarkRejectsOutOfRangeMarks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	attempt := env.start(t, student, exam.ID)
	answer := env.answer(t, student, attempt.ID, exam.Questions[0], 0)

	resp, err := env.services.Marking().BulkMark(ctx, admin, &BulkMarkRequest{Answers: []BulkMarkItem{
		{AnswerID: answer.AnswerID, MarksAwarded: models.Float64Ptr(6)},
		{AnswerID: answer.AnswerID},
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.UpdatedAnswers)
	assert.Len(t, resp.FailedUpdates, 2)
}

func TestMarkingService_OptionCorrectnessPropagation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	q := exam.Questions[0]

	var attempts []*models.ExamAttempt
	for _, caller := range []Caller{student, otherStudent} {
		attempt := env.start(t, caller, exam.ID)
		resp := env.answer(t, caller, attempt.ID, q, 1)
		assert.False(t, resp.IsCorrect)
		attempts = append(attempts, attempt)
	}

	resp, err := env.services.ExamAdmin().UpdateOption(ctx, admin, q.Options[1].ID, &UpdateOptionRequest{IsCorrect: models.BoolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Propagation.Updated)
	assert.Empty(t, resp.Propagation.Failed)

	for _, a := range attempts {
		answer, err := env.repo.Answer().GetByAttemptAndQuestion(ctx, nil, a.ID, q.ID)
		require.NoError(t, err)
		assert.True(t, answer.IsCorrect)
		assert.InDelta(t, 5, *answer.MarksAwarded, 1e-9)

		stored := env.attempt(t, a.ID)
		assert.InDelta(t, 5, stored.Score, 1e-9)
		assert.InDelta(t, 50, stored.PercentageScore, 1e-9)
		assert.Equal(t, 1, stored.CorrectAnswers)
	}

	// Flipping back re-applies the negative mark.
	_, err = env.services.ExamAdmin().UpdateOption(ctx, admin, q.Options[1].ID, &UpdateOptionRequest{IsCorrect: models.BoolPtr(false)})
	require.NoError(t, err)
	answer, err := env.repo.Answer().GetByAttemptAndQuestion(ctx, nil, attempts[0].ID, q.ID)
	require.NoError(t, err)
	assert.InDelta(t, -1.25, *answer.MarksAwarded, 1e-9)
}

func TestMarkingService_ManualOverrideDurability(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	q1, q2 := exam.Questions[0], exam.Questions[1]

	attempt := env.start(t, student, exam.ID)
	env.answer(t, student, attempt.ID, q1, 1)
	overridden := env.answer(t, student, attempt.ID, q2, 1)

	_, err := env.services.Marking().MarkAnswer(ctx, admin, overridden.AnswerID, &MarkAnswerRequest{MarksAwarded: models.Float64Ptr(2.5)})
	require.NoError(t, err)

	// An edit on a different question re-scores the attempt.
	_, err = env.services.ExamAdmin().UpdateOption(ctx, admin, q1.Options[1].ID, &UpdateOptionRequest{IsCorrect: models.BoolPtr(true)})
	require.NoError(t, err)
	// An edit on the overridden question itself.
	_, err = env.services.ExamAdmin().UpdateOption(ctx, admin, q2.Options[1].ID, &UpdateOptionRequest{IsCorrect: models.BoolPtr(true)})
	require.NoError(t, err)
	_, err = env.services.Marking().RecalculateExamScores(ctx, admin, exam.ID)
	require.NoError(t, err)

	stored := env.storedAnswer(t, overridden.AnswerID)
	assert.True(t, stored.IsManuallyMarked)
	assert.InDelta(t, 2.5, *stored.MarksAwarded, 1e-9)
	assert.False(t, stored.IsCorrect)

	assert.InDelta(t, 7.5, env.attempt(t, attempt.ID).Score, 1e-9)
}

func TestMarkingService_DeleteOptionClearsSelection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	q := exam.Questions[0]
	attempt := env.start(t, student, exam.ID)
	resp := env.answer(t, student, attempt.ID, q, 0)

	deleted, err := env.services.ExamAdmin().DeleteOption(ctx, admin, q.Options[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Propagation.Updated)

	answer := env.storedAnswer(t, resp.AnswerID)
	assert.Nil(t, answer.SelectedOptionID)
	assert.False(t, answer.IsCorrect)
	assert.Equal(t, 0.0, *answer.MarksAwarded)

	stored := env.attempt(t, attempt.ID)
	assert.Equal(t, 0.0, stored.Score)
	assert.Equal(t, 2, stored.UnansweredQuestions)
	assert.Equal(t, int64(0), env.countRows(t, &models.Option{}, "id = ?", q.Options[0].ID))

	_, err = env.services.ExamAdmin().DeleteOption(ctx, admin, q.Options[0].ID)
	assert.ErrorIs(t, err, ErrOptionNotFound)
}

func TestMarkingService_DeleteOptionKeepsManualMarks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	q := exam.Questions[0]
	attempt := env.start(t, student, exam.ID)
	resp := env.answer(t, student, attempt.ID, q, 1)

	marked, err := env.services.Marking().MarkAnswer(ctx, admin, resp.AnswerID, &MarkAnswerRequest{MarksAwarded: models.Float64Ptr(4)})
	require.NoError(t, err)
	assert.InDelta(t, 4, marked.AttemptScore, 1e-9)

	_, err = env.services.ExamAdmin().DeleteOption(ctx, admin, q.Options[1].ID)
	require.NoError(t, err)

	answer := env.storedAnswer(t, resp.AnswerID)
	assert.Nil(t, answer.SelectedOptionID)
	assert.True(t, answer.IsManuallyMarked)
	assert.InDelta(t, 4, *answer.MarksAwarded, 1e-9)

	stored := env.attempt(t, attempt.ID)
	assert.InDelta(t, 4, stored.Score, 1e-9)
	assert.Equal(t, 1, stored.UnansweredQuestions)

	_, err = env.services.Marking().RecalculateExamScores(ctx, admin, exam.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4, env.attempt(t, attempt.ID).Score, 1e-9)
}

func TestMarkingService_ReleaseResultsRequiresFinishedAttempt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	attempt := env.start(t, student, exam.ID)
	env.answer(t, student, attempt.ID, exam.Questions[0], 0)

	_, err := env.services.Marking().ReleaseResults(ctx, admin, attempt.ID)
	require.Error(t, err)
	assert.True(t, IsBusinessRule(err))
	assert.False(t, env.attempt(t, attempt.ID).ResultsReady)

	_, err = env.services.Attempt().Submit(ctx, student, attempt.ID)
	require.NoError(t, err)

	released, err := env.services.Marking().ReleaseResults(ctx, admin, attempt.ID)
	require.NoError(t, err)
	assert.True(t, released.ResultsReady)
	assert.True(t, env.attempt(t, attempt.ID).ResultsReady)
}

func TestMarkingService_RecalculateExamScores(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.negativeMarkingExam(t)
	q := exam.Questions[0]

	changed := env.start(t, student, exam.ID)
	env.answer(t, student, changed.ID, q, 1)
	unchanged := env.start(t, otherStudent, exam.ID)
	env.answer(t, otherStudent, unchanged.ID, exam.Questions[1], 0)

	// Correctness edited behind the service's back.
	require.NoError(t, env.db.Model(&models.Option{}).Where("id = ?", q.Options[1].ID).Update("is_correct", true).Error)

	result, err := env.services.Marking().RecalculateExamScores(ctx, admin, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalAttempts)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Empty(t, result.Failed)
	assert.InDelta(t, 5, env.attempt(t, changed.ID).Score, 1e-9)

	again, err := env.services.Marking().RecalculateExamScores(ctx, admin, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.UpdatedCount)
}

func TestMarkingService_Solutions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	exam := env.seedExam(t, &models.Exam{
		TotalMarks:   10,
		PassingMarks: 50,
		Questions:    []models.Question{freeText("Sketch the OSI model", 10, 1)},
	})
	attempt := env.start(t, student, exam.ID)
	resp, err := env.services.Answer().SubmitAnswer(ctx, student, attempt.ID, &SubmitAnswerRequest{
		QuestionID:  exam.Questions[0].ID,
		Images:      []FileUpload{upload("osi.png", "image/png", "img")},
		Attachments: []FileUpload{upload("notes.pdf", "application/pdf", "pdf")},
	})
	require.NoError(t, err)

	text, err := env.services.Marking().UpdateSolutionText(ctx, admin, resp.AnswerID, &UpdateSolutionRequest{SolutionText: "Seven layers"})
	require.NoError(t, err)
	assert.Equal(t, "Seven layers", text)

	attachments, err := env.services.Marking().AddSolutionAttachments(ctx, admin, resp.AnswerID, []FileUpload{
		upload("solution.pdf", "application/pdf", "solution"),
	})
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.NotEmpty(t, attachments[0].URL)

	require.NoError(t, env.services.Marking().DeleteSolutionAttachment(ctx, admin, attachments[0].ID))
	assert.ErrorIs(t, env.services.Marking().DeleteSolutionAttachment(ctx, admin, attachments[0].ID), ErrSolutionAttachmentNotFound)

	cleared, err := env.services.Marking().ClearSolutions(ctx, admin, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, DeletedCounts{Images: 1, Attachments: 1}, cleared.DeletedCounts)
	assert.Equal(t, student.UserName, cleared.Student)
	assert.Equal(t, exam.Title, cleared.Exam)

	for _, activityType := range []models.ActivityType{
		models.ActivitySolutionUpdated,
		models.ActivitySolutionAttachmentAdded,
		models.ActivitySolutionAttachmentDeleted,
	} {
		assert.Equal(t, int64(1), env.countRows(t, &models.ActivityLog{},
			"attempt_id = ? AND activity_type = ?", attempt.ID, activityType), activityType)
	}
}
