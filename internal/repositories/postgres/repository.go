package postgres

import (
	"context"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"gorm.io/gorm"
)

type repositoryManager struct {
	db         *gorm.DB
	exam       repositories.ExamRepository
	attempt    repositories.AttemptRepository
	answer     repositories.AnswerRepository
	activity   repositories.ActivityRepository
	proctoring repositories.ProctoringRepository
}

// NewRepository wires every gorm repository on one connection.
func NewRepository(db *gorm.DB) repositories.Repository {
	return &repositoryManager{
		db:         db,
		exam:       NewExamPostgreSQL(db),
		attempt:    NewAttemptPostgreSQL(db),
		answer:     NewAnswerPostgreSQL(db),
		activity:   NewActivityPostgreSQL(db),
		proctoring: NewProctoringPostgreSQL(db),
	}
}

func (r *repositoryManager) Exam() repositories.ExamRepository             { return r.exam }
func (r *repositoryManager) Attempt() repositories.AttemptRepository       { return r.attempt }
func (r *repositoryManager) Answer() repositories.AnswerRepository         { return r.answer }
func (r *repositoryManager) Activity() repositories.ActivityRepository     { return r.activity }
func (r *repositoryManager) Proctoring() repositories.ProctoringRepository { return r.proctoring }

func (r *repositoryManager) DB() *gorm.DB {
	return r.db
}

func (r *repositoryManager) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
