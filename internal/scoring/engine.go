// Package scoring holds the pure answer evaluation and attempt aggregation rules.
package scoring

import (
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
)

// ExamRules is the subset of exam settings the engine needs.
type ExamRules struct {
	TotalMarks             float64
	PassingMarks           float64
	EnableNegativeMarking  bool
	NegativeMarkPercentage float64
}

func RulesFor(exam *models.Exam) ExamRules {
	return ExamRules{
		TotalMarks:             exam.TotalMarks,
		PassingMarks:           exam.PassingMarks,
		EnableNegativeMarking:  exam.EnableNegativeMarking,
		NegativeMarkPercentage: exam.NegativeMarkPercentage,
	}
}

// Evaluation is the automatic outcome for one answer.
type Evaluation struct {
	IsCorrect    bool
	MarksAwarded *float64
}

// EvaluateAnswer applies the per-answer rule. selected is nil when no option was chosen.
// Manually marked question types always come back unmarked.
func EvaluateAnswer(rules ExamRules, question *models.Question, selected *models.Option) Evaluation {
	if question.Type.RequiresManualMarking() {
		return Evaluation{}
	}
	if selected == nil {
		return Evaluation{}
	}
	if selected.IsCorrect {
		marks := question.Marks
		return Evaluation{IsCorrect: true, MarksAwarded: &marks}
	}
	marks := 0.0
	if rules.EnableNegativeMarking {
		marks = -question.Marks * rules.NegativeMarkPercentage
	}
	return Evaluation{IsCorrect: false, MarksAwarded: &marks}
}

// AnswerInput is one answer as seen by Compute.
type AnswerInput struct {
	QuestionType     models.QuestionType
	HasSelection     bool
	IsCorrect        bool
	IsManuallyMarked bool
	MarksAwarded     *float64
}

// Result holds attempt aggregates.
type Result struct {
	Score      float64
	Percentage float64
	Correct    int
	Wrong      int
	Unanswered int
	IsPassed   bool
}

// Compute aggregates answers into a score. It is deterministic and has no side effects.
func Compute(rules ExamRules, answers []AnswerInput) Result {
	var res Result
	total := 0.0

	for _, a := range answers {
		if a.QuestionType.RequiresManualMarking() {
			if a.MarksAwarded == nil {
				res.Unanswered++
				continue
			}
			total += *a.MarksAwarded
			if *a.MarksAwarded > 0 {
				res.Correct++
			} else {
				res.Wrong++
			}
			continue
		}

		// Manual marks count even when the selection is missing or was cleared.
		if !a.HasSelection && !(a.IsManuallyMarked && a.MarksAwarded != nil) {
			res.Unanswered++
			continue
		}
		if a.MarksAwarded != nil {
			total += *a.MarksAwarded
		}
		if a.IsCorrect {
			res.Correct++
		} else {
			res.Wrong++
		}
	}

	if total < 0 {
		total = 0
	}
	res.Score = total

	if rules.TotalMarks > 0 {
		res.Percentage = total / rules.TotalMarks * 100
		res.IsPassed = res.Percentage >= rules.PassingMarks
	}
	return res
}

// InputsFrom converts persisted answers to engine inputs. Each answer must have its
// Question loaded.
func InputsFrom(answers []models.Answer) []AnswerInput {
	inputs := make([]AnswerInput, 0, len(answers))
	for _, a := range answers {
		var qType models.QuestionType
		if a.Question != nil {
			qType = a.Question.Type
		}
		inputs = append(inputs, AnswerInput{
			QuestionType:     qType,
			HasSelection:     a.SelectedOptionID != nil,
			IsCorrect:        a.IsCorrect,
			IsManuallyMarked: a.IsManuallyMarked,
			MarksAwarded:     a.MarksAwarded,
		})
	}
	return inputs
}

// ResultsReady reports whether every manually marked answer has marks.
func ResultsReady(answers []AnswerInput) bool {
	for _, a := range answers {
		if a.QuestionType.RequiresManualMarking() && a.MarksAwarded == nil {
			return false
		}
	}
	return true
}
