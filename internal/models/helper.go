package models

// AllModels returns every persisted model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Subject{},
		&Exam{},
		&Question{},
		&Option{},
		&QuestionTag{},
		&RetakeRequest{},
		&ExamAttempt{},
		&Answer{},
		&AnswerImage{},
		&AnswerAttachment{},
		&SolutionAttachment{},
		&ActivityLog{},
		&ProctoringSession{},
		&ViolationLog{},
		&FaceDetectionLog{},
		&AudioMonitoringLog{},
	}
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// UintPtr returns a pointer to v.
func UintPtr(v uint) *uint {
	return &v
}

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool {
	return &v
}
