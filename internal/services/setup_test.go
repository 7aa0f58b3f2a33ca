package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/cache"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	student      = Caller{UserID: "student-1", UserName: "Student One"}
	otherStudent = Caller{UserID: "student-2", UserName: "Student Two"}
	admin        = Caller{UserID: "admin-1", UserName: "Admin", IsAdmin: true}
)

type testEnv struct {
	db       *gorm.DB
	repo     repositories.Repository
	broker   *events.MemoryBroker
	cache    cache.CacheService
	services ServiceManager
}

// newTestEnv runs the services against a private in-memory sqlite database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := postgres.NewRepository(db)
	broker := events.NewRecordingBroker(log)
	memCache := cache.NewMemoryCache()

	return &testEnv{
		db:       db,
		repo:     repo,
		broker:   broker,
		cache:    memCache,
		services: NewServiceManager(repo, storage.NewLocalStorageProvider(t.TempDir()), broker, memCache, log, validator.New()),
	}
}

func mcq(text string, marks float64, order int) models.Question {
	return models.Question{
		QuestionText: text,
		Type:         models.QuestionMultipleChoice,
		Marks:        marks,
		Order:        order,
		Options: []models.Option{
			{OptionText: "right", IsCorrect: true, Order: 0},
			{OptionText: "wrong", IsCorrect: false, Order: 1},
		},
	}
}

func freeText(text string, marks float64, order int) models.Question {
	return models.Question{
		QuestionText: text,
		Type:         models.QuestionFreeText,
		Marks:        marks,
		Order:        order,
	}
}

// seedExam stores an exam with its questions and options. IDs are filled in place.
func (e *testEnv) seedExam(t *testing.T, exam *models.Exam) *models.Exam {
	t.Helper()
	if exam.Title == "" {
		exam.Title = "Networks midterm"
	}
	require.NoError(t, e.db.Create(exam).Error)
	return exam
}

// negativeMarkingExam is two MCQs of 5 marks each with 25% negative marking and a 60% pass mark.
func (e *testEnv) negativeMarkingExam(t *testing.T) *models.Exam {
	return e.seedExam(t, &models.Exam{
		TotalMarks:             10,
		PassingMarks:           60,
		EnableNegativeMarking:  true,
		NegativeMarkPercentage: 0.25,
		Questions: []models.Question{
			mcq("What does TCP stand for?", 5, 1),
			mcq("Which layer does IP belong to?", 5, 2),
		},
	})
}

func (e *testEnv) start(t *testing.T, caller Caller, examID uint) *models.ExamAttempt {
	t.Helper()
	resp, err := e.services.Attempt().Start(context.Background(), caller, examID)
	require.NoError(t, err)
	return resp.Attempt
}

func (e *testEnv) answer(t *testing.T, caller Caller, attemptID uint, question models.Question, optionIndex int) *SubmitAnswerResponse {
	t.Helper()
	optionID := question.Options[optionIndex].ID
	resp, err := e.services.Answer().SubmitAnswer(context.Background(), caller, attemptID, &SubmitAnswerRequest{
		QuestionID:       question.ID,
		SelectedOptionID: &optionID,
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) attempt(t *testing.T, id uint) *models.ExamAttempt {
	t.Helper()
	attempt, err := e.repo.Attempt().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return attempt
}

func (e *testEnv) storedAnswer(t *testing.T, id uint) *models.Answer {
	t.Helper()
	answer, err := e.repo.Answer().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return answer
}

func (e *testEnv) countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(model).Where(query, args...).Count(&count).Error)
	return count
}

func upload(name, contentType, body string) FileUpload {
	return FileUpload{
		FileName:    name,
		ContentType: contentType,
		Size:        int64(len(body)),
		Content:     bytes.NewBufferString(body),
	}
}
