package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/cache"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/config"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/middleware"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/monitor"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
	"github.com/SAP-F-2025/exam-proctoring-service/pkg"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	studentToken = "student-token"
	adminToken   = "admin-token"
)

type apiEnv struct {
	db     *gorm.DB
	router *gin.Engine
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{DatabaseDriver: "sqlite", DatabaseURL: ":memory:", Environment: "test"}
	db, err := pkg.InitDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, pkg.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger := utils.NewSlogLogger(slogger)

	repo := postgres.NewRepository(db)
	serviceManager := services.NewServiceManager(
		repo,
		storage.NewLocalStorageProvider(t.TempDir()),
		events.NewMemoryBroker(slogger),
		cache.NewMemoryCache(),
		slogger,
		validator.New(),
	)
	hub := monitor.NewHub(serviceManager.Monitoring(), serviceManager.Proctoring(), slogger)
	t.Cleanup(hub.Stop)

	parser := middleware.ParserFunc(func(token string) (services.Caller, error) {
		switch token {
		case studentToken:
			return services.Caller{UserID: "student-1", UserName: "Student One"}, nil
		case adminToken:
			return services.Caller{UserID: "admin-1", UserName: "Admin", IsAdmin: true}, nil
		}
		return services.Caller{}, errors.New("invalid token")
	})

	router := gin.New()
	NewHandlerManager(serviceManager, hub, parser, logger).SetupRoutes(router)
	return &apiEnv{db: db, router: router}
}

func (e *apiEnv) seedExam(t *testing.T) *models.Exam {
	t.Helper()
	exam := &models.Exam{
		Title:        "Networks midterm",
		TotalMarks:   15,
		PassingMarks: 60,
		Questions: []models.Question{
			{
				QuestionText: "What does TCP stand for?",
				Type:         models.QuestionMultipleChoice,
				Marks:        5,
				Order:        1,
				Options: []models.Option{
					{OptionText: "Transmission Control Protocol", IsCorrect: true},
					{OptionText: "Transfer Control Process"},
				},
			},
			{
				QuestionText: "Explain the three-way handshake.",
				Type:         models.QuestionFreeText,
				Marks:        10,
				Order:        2,
			},
		},
	}
	require.NoError(t, e.db.Create(exam).Error)
	return exam
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

func TestAPI_AttemptLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	exam := env.seedExam(t)
	mcq, essay := exam.Questions[0], exam.Questions[1]

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exams/%d/start", exam.ID), studentToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var started services.StartAttemptResponse
	decodeBody(t, w, &started)
	attemptID := started.Attempt.ID

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exams/%d/start", exam.ID), studentToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/attempts/%d/submit-answer", attemptID), studentToken, map[string]interface{}{
		"question_id":        mcq.ID,
		"selected_option_id": mcq.Options[0].ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var answered services.SubmitAnswerResponse
	decodeBody(t, w, &answered)
	assert.True(t, answered.IsCorrect)

	// Free text answers arrive as multipart forms with their files.
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	require.NoError(t, writer.WriteField("question_id", fmt.Sprint(essay.ID)))
	require.NoError(t, writer.WriteField("answer_text", "SYN, SYN-ACK, ACK"))
	part, err := writer.CreateFormFile("answer_images", "diagram.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/attempts/%d/submit-answer", attemptID), &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+studentToken)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/attempts/%d/submit", attemptID), studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/attempts/%d/results", attemptID), studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var results services.ResultsResponse
	decodeBody(t, w, &results)
	assert.Equal(t, models.AttemptCompleted, results.Attempt.Status)
	assert.InDelta(t, 5, results.Attempt.Score, 1e-9)
	require.Len(t, results.Answers, 2)
	assert.Len(t, results.Answers[1].Images, 1)

	var essayAnswerID uint
	require.NotNil(t, results.Answers[1].AnswerID)
	essayAnswerID = *results.Answers[1].AnswerID

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/answers/%d/mark", essayAnswerID), adminToken, map[string]interface{}{
		"marks_awarded": 8,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var marked services.MarkAnswerResponse
	decodeBody(t, w, &marked)
	assert.InDelta(t, 13, marked.AttemptScore, 1e-9)

	w = env.do(t, http.MethodPost, "/api/v1/admin/answers/bulk-mark", adminToken, map[string]interface{}{
		"answers": []map[string]interface{}{{"answer_id": 9999, "marks_awarded": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bulk services.BulkMarkResponse
	decodeBody(t, w, &bulk)
	require.Len(t, bulk.FailedUpdates, 1)
	assert.Equal(t, "Answer not found", bulk.FailedUpdates[0].Error)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/exams/%d/results/export", exam.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newAPIEnv(t)
	exam := env.seedExam(t)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       interface{}
		wantStatus int
	}{
		{name: "missing token", method: http.MethodPost, path: fmt.Sprintf("/api/v1/exams/%d/start", exam.ID), wantStatus: http.StatusUnauthorized},
		{name: "invalid id", method: http.MethodGet, path: "/api/v1/attempts/abc/results", token: studentToken, wantStatus: http.StatusBadRequest},
		{name: "unknown exam", method: http.MethodPost, path: "/api/v1/exams/9999/start", token: studentToken, wantStatus: http.StatusNotFound},
		{name: "unknown attempt", method: http.MethodGet, path: "/api/v1/attempts/9999/results", token: studentToken, wantStatus: http.StatusNotFound},
		{name: "admin route as student", method: http.MethodGet, path: "/api/v1/admin/tags", token: studentToken, wantStatus: http.StatusForbidden},
		{name: "malformed body", method: http.MethodPost, path: "/api/v1/admin/answers/bulk-mark", token: adminToken, body: "not an object", wantStatus: http.StatusBadRequest},
		{name: "empty bulk mark", method: http.MethodPost, path: "/api/v1/admin/answers/bulk-mark", token: adminToken, body: map[string]interface{}{"answers": []interface{}{}}, wantStatus: http.StatusBadRequest},
		{name: "retake without attempt", method: http.MethodPost, path: fmt.Sprintf("/api/v1/exams/%d/retake-request", exam.ID), token: studentToken, wantStatus: http.StatusNotFound},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}
