package scoring

import (
	"testing"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcq(marks float64) *models.Question {
	return &models.Question{Type: models.QuestionMultipleChoice, Marks: marks}
}

func TestEvaluateAnswer(t *testing.T) {
	negative := ExamRules{EnableNegativeMarking: true, NegativeMarkPercentage: 0.25}
	plain := ExamRules{}

	tests := []struct {
		name        string
		rules       ExamRules
		question    *models.Question
		selected    *models.Option
		wantCorrect bool
		wantMarks   *float64
	}{
		{"correct option earns full marks", plain, mcq(5), &models.Option{IsCorrect: true}, true, models.Float64Ptr(5)},
		{"wrong option without negative marking", plain, mcq(5), &models.Option{}, false, models.Float64Ptr(0)},
		{"wrong option with negative marking", negative, mcq(5), &models.Option{}, false, models.Float64Ptr(-1.25)},
		{"correct option ignores negative marking", negative, mcq(4), &models.Option{IsCorrect: true}, true, models.Float64Ptr(4)},
		{"no selection stays unmarked", negative, mcq(5), nil, false, nil},
		{"true false uses option correctness", plain, &models.Question{Type: models.QuestionTrueFalse, Marks: 2}, &models.Option{IsCorrect: true}, true, models.Float64Ptr(2)},
		{"free text is never auto marked", plain, &models.Question{Type: models.QuestionFreeText, Marks: 10}, nil, false, nil},
		{"image upload is never auto marked", negative, &models.Question{Type: models.QuestionImageUpload, Marks: 3}, &models.Option{IsCorrect: true}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateAnswer(tt.rules, tt.question, tt.selected)
			assert.Equal(t, tt.wantCorrect, got.IsCorrect)
			if tt.wantMarks == nil {
				assert.Nil(t, got.MarksAwarded)
				return
			}
			require.NotNil(t, got.MarksAwarded)
			assert.InDelta(t, *tt.wantMarks, *got.MarksAwarded, 1e-9)
		})
	}
}

func TestCompute_NegativeMarkingScenario(t *testing.T) {
	// passing_marks is a percentage threshold: 6 of 10 marks is 60.
	rules := ExamRules{TotalMarks: 10, PassingMarks: 60, EnableNegativeMarking: true, NegativeMarkPercentage: 0.25}

	right := EvaluateAnswer(rules, mcq(5), &models.Option{IsCorrect: true})
	wrong := EvaluateAnswer(rules, mcq(5), &models.Option{})

	res := Compute(rules, []AnswerInput{
		{QuestionType: models.QuestionMultipleChoice, HasSelection: true, IsCorrect: right.IsCorrect, MarksAwarded: right.MarksAwarded},
		{QuestionType: models.QuestionMultipleChoice, HasSelection: true, IsCorrect: wrong.IsCorrect, MarksAwarded: wrong.MarksAwarded},
	})

	assert.InDelta(t, 3.75, res.Score, 1e-9)
	assert.InDelta(t, 37.5, res.Percentage, 1e-9)
	assert.False(t, res.IsPassed)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 1, res.Wrong)
	assert.Equal(t, 0, res.Unanswered)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		rules   ExamRules
		answers []AnswerInput
		want    Result
	}{
		{
			name:  "empty attempt",
			rules: ExamRules{TotalMarks: 10, PassingMarks: 40},
			want:  Result{},
		},
		{
			name:  "score is clamped at zero",
			rules: ExamRules{TotalMarks: 10, PassingMarks: 0},
			answers: []AnswerInput{
				{QuestionType: models.QuestionMultipleChoice, HasSelection: true, MarksAwarded: models.Float64Ptr(-2.5)},
			},
			want: Result{Score: 0, Percentage: 0, Wrong: 1, IsPassed: true},
		},
		{
			name:  "zero total marks never passes",
			rules: ExamRules{TotalMarks: 0, PassingMarks: 0},
			answers: []AnswerInput{
				{QuestionType: models.QuestionMultipleChoice, HasSelection: true, IsCorrect: true, MarksAwarded: models.Float64Ptr(3)},
			},
			want: Result{Score: 3, Correct: 1},
		},
		{
			name:  "unmarked manual answers count as unanswered",
			rules: ExamRules{TotalMarks: 20, PassingMarks: 50},
			answers: []AnswerInput{
				{QuestionType: models.QuestionFreeText},
				{QuestionType: models.QuestionShortAnswer, MarksAwarded: models.Float64Ptr(0)},
				{QuestionType: models.QuestionImageUpload, MarksAwarded: models.Float64Ptr(10)},
				{QuestionType: models.QuestionTrueFalse},
			},
			want: Result{Score: 10, Percentage: 50, Correct: 1, Wrong: 1, Unanswered: 2, IsPassed: true},
		},
		{
			name:  "manual marks on an auto question count without a selection",
			rules: ExamRules{TotalMarks: 10, PassingMarks: 30},
			answers: []AnswerInput{
				{QuestionType: models.QuestionMultipleChoice, IsManuallyMarked: true, IsCorrect: true, MarksAwarded: models.Float64Ptr(4)},
				{QuestionType: models.QuestionTrueFalse, MarksAwarded: models.Float64Ptr(0)},
			},
			want: Result{Score: 4, Percentage: 40, Correct: 1, Unanswered: 1, IsPassed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.rules, tt.answers)
			assert.InDelta(t, tt.want.Score, got.Score, 1e-9)
			assert.InDelta(t, tt.want.Percentage, got.Percentage, 1e-9)
			assert.Equal(t, tt.want.Correct, got.Correct)
			assert.Equal(t, tt.want.Wrong, got.Wrong)
			assert.Equal(t, tt.want.Unanswered, got.Unanswered)
			assert.Equal(t, tt.want.IsPassed, got.IsPassed)
		})
	}
}

func TestCompute_Idempotent(t *testing.T) {
	rules := ExamRules{TotalMarks: 12, PassingMarks: 50, EnableNegativeMarking: true, NegativeMarkPercentage: 0.5}
	answers := []AnswerInput{
		{QuestionType: models.QuestionMultipleChoice, HasSelection: true, IsCorrect: true, MarksAwarded: models.Float64Ptr(4)},
		{QuestionType: models.QuestionMultipleChoice, HasSelection: true, MarksAwarded: models.Float64Ptr(-2)},
		{QuestionType: models.QuestionFreeText, MarksAwarded: models.Float64Ptr(3)},
	}

	first := Compute(rules, answers)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Compute(rules, answers))
	}
	assert.InDelta(t, 5, first.Score, 1e-9)
}

func TestResultsReady(t *testing.T) {
	assert.True(t, ResultsReady(nil))
	assert.True(t, ResultsReady([]AnswerInput{{QuestionType: models.QuestionMultipleChoice}}))
	assert.False(t, ResultsReady([]AnswerInput{{QuestionType: models.QuestionFreeText}}))
	assert.True(t, ResultsReady([]AnswerInput{{QuestionType: models.QuestionFreeText, MarksAwarded: models.Float64Ptr(0)}}))
}

func TestInputsFrom(t *testing.T) {
	answers := []models.Answer{
		{SelectedOptionID: models.UintPtr(3), IsCorrect: true, MarksAwarded: models.Float64Ptr(2), Question: mcq(2)},
		{Question: &models.Question{Type: models.QuestionFreeText}, IsManuallyMarked: true},
	}

	inputs := InputsFrom(answers)
	require.Len(t, inputs, 2)
	assert.True(t, inputs[0].HasSelection)
	assert.False(t, inputs[0].IsManuallyMarked)
	assert.True(t, inputs[1].IsManuallyMarked)
	assert.Equal(t, models.QuestionFreeText, inputs[1].QuestionType)
	assert.Nil(t, inputs[1].MarksAwarded)
}
