package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMonitoringService is a mock implementation of services.MonitoringService
type MockMonitoringService struct {
	mock.Mock
}

func (m *MockMonitoringService) LiveAttempts(ctx context.Context, caller services.Caller, examID uint) ([]services.LiveAttempt, error) {
	args := m.Called(ctx, caller, examID)
	rows, _ := args.Get(0).([]services.LiveAttempt)
	return rows, args.Error(1)
}

func (m *MockMonitoringService) AttemptDetails(ctx context.Context, caller services.Caller, attemptID uint) (*services.AttemptDetails, error) {
	args := m.Called(ctx, caller, attemptID)
	details, _ := args.Get(0).(*services.AttemptDetails)
	return details, args.Error(1)
}

func (m *MockMonitoringService) Activities(ctx context.Context, caller services.Caller, attemptID uint) ([]services.ActivityEntry, error) {
	args := m.Called(ctx, caller, attemptID)
	entries, _ := args.Get(0).([]services.ActivityEntry)
	return entries, args.Error(1)
}

func (m *MockMonitoringService) AttemptExamID(ctx context.Context, caller services.Caller, attemptID uint) (uint, error) {
	args := m.Called(ctx, caller, attemptID)
	return args.Get(0).(uint), args.Error(1)
}

// MockProctoringService is a mock implementation of services.ProctoringService
type MockProctoringService struct {
	mock.Mock
}

func (m *MockProctoringService) RecordFaceSample(ctx context.Context, caller services.Caller, attemptID uint, req *services.FaceSampleRequest) (*services.SampleResult, error) {
	args := m.Called(ctx, caller, attemptID, req)
	result, _ := args.Get(0).(*services.SampleResult)
	return result, args.Error(1)
}

func (m *MockProctoringService) RecordAudioSample(ctx context.Context, caller services.Caller, attemptID uint, req *services.AudioSampleRequest) (*services.SampleResult, error) {
	args := m.Called(ctx, caller, attemptID, req)
	result, _ := args.Get(0).(*services.SampleResult)
	return result, args.Error(1)
}

func (m *MockProctoringService) ReportViolation(ctx context.Context, caller services.Caller, req *services.ReportViolationRequest) (*services.SampleResult, error) {
	args := m.Called(ctx, caller, req)
	result, _ := args.Get(0).(*services.SampleResult)
	return result, args.Error(1)
}

func (m *MockProctoringService) GetSession(ctx context.Context, caller services.Caller, attemptID uint) (*models.ProctoringSession, error) {
	args := m.Called(ctx, caller, attemptID)
	session, _ := args.Get(0).(*models.ProctoringSession)
	return session, args.Error(1)
}

func (m *MockProctoringService) ListViolations(ctx context.Context, caller services.Caller, attemptID uint) ([]*models.ViolationLog, error) {
	args := m.Called(ctx, caller, attemptID)
	logs, _ := args.Get(0).([]*models.ViolationLog)
	return logs, args.Error(1)
}

func (m *MockProctoringService) GetLogs(ctx context.Context, caller services.Caller, attemptID uint) (*services.ProctoringLogs, error) {
	args := m.Called(ctx, caller, attemptID)
	logs, _ := args.Get(0).(*services.ProctoringLogs)
	return logs, args.Error(1)
}

func (m *MockProctoringService) GetViolationReport(ctx context.Context, caller services.Caller, attemptID uint) (*services.ViolationReport, error) {
	args := m.Called(ctx, caller, attemptID)
	report, _ := args.Get(0).(*services.ViolationReport)
	return report, args.Error(1)
}

var (
	admin   = services.Caller{UserID: "admin-1", UserName: "Admin", IsAdmin: true}
	student = services.Caller{UserID: "student-1", UserName: "Student One"}
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestHub() (*Hub, *MockMonitoringService, *MockProctoringService) {
	monitoring := new(MockMonitoringService)
	proctoring := new(MockProctoringService)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(monitoring, proctoring, logger), monitoring, proctoring
}

func dial(t *testing.T, handler http.HandlerFunc) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_ExamMonitor(t *testing.T) {
	hub, monitoring, _ := newTestHub()
	defer hub.Stop()

	rows := []services.LiveAttempt{{ID: 7, UserName: "Student One", Status: models.AttemptInProgress, TotalQuestions: 2}}
	monitoring.On("LiveAttempts", mock.Anything, admin, uint(3)).Return(rows, nil)
	monitoring.On("Activities", mock.Anything, admin, uint(7)).Return([]services.ActivityEntry{{ID: 1, ActivityType: models.ActivityAnswerSubmitted}}, nil)

	conn := dial(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, hub.ServeExamMonitor(w, r, admin, 3))
	})

	initial := readMessage(t, conn)
	assert.Equal(t, "live_attempts", initial.Type)
	var snapshot struct {
		ExamID   uint                   `json:"exam_id"`
		Attempts []services.LiveAttempt `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(initial.Data, &snapshot))
	assert.Equal(t, uint(3), snapshot.ExamID)
	require.Len(t, snapshot.Attempts, 1)
	assert.Equal(t, uint(7), snapshot.Attempts[0].ID)
	assert.Equal(t, 1, hub.observers(events.ExamTopic(3)))

	t.Run("broker events reach observers of the topic", func(t *testing.T) {
		hub.Dispatch(events.AttemptTopic(7), events.NewMonitorEvent(events.EventAttemptUpdate, events.AttemptUpdateEvent{ID: 99}))
		hub.Dispatch(events.ExamTopic(3), events.NewMonitorEvent(events.EventActivityUpdate, events.ActivityUpdateEvent{
			ID:           5,
			ActivityType: string(models.ActivityAnswerSubmitted),
			AttemptID:    7,
		}))

		msg := readMessage(t, conn)
		assert.Equal(t, "activity_update", msg.Type)
		var payload events.ActivityUpdateEvent
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.Equal(t, uint(7), payload.AttemptID)
	})

	t.Run("requests are answered", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "get_activities", "data": map[string]uint{"attempt_id": 7}}))
		msg := readMessage(t, conn)
		assert.Equal(t, "activities", msg.Type)

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "heartbeat"}))
		assert.Equal(t, "heartbeat_ack", readMessage(t, conn).Type)

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
		assert.Equal(t, "pong", readMessage(t, conn).Type)

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "face_detection"}))
		assert.Equal(t, "error", readMessage(t, conn).Type)
	})
}

func TestHub_Proctoring(t *testing.T) {
	hub, monitoring, proctoring := newTestHub()
	defer hub.Stop()

	monitoring.On("AttemptExamID", mock.Anything, student, uint(7)).Return(uint(3), nil)
	proctoring.On("RecordFaceSample", mock.Anything, student, uint(7), &services.FaceSampleRequest{FacesDetected: 2, Confidence: 0.8}).
		Return(&services.SampleResult{
			FacesDetected: 2,
			Confidence:    0.8,
			Violation:     &events.ViolationPayload{ViolationType: "MULTIPLE_FACES", Severity: "CRITICAL"},
		}, nil)
	proctoring.On("ReportViolation", mock.Anything, student, mock.MatchedBy(func(req *services.ReportViolationRequest) bool {
		return req.AttemptID == 7 && req.ViolationType == "TAB_SWITCH"
	})).Return(nil, services.ErrAttemptCompleted)

	conn := dial(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, hub.ServeProctoring(w, r, student, 7))
	})

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "face_detection",
		"data": map[string]interface{}{"faces_detected": 2, "confidence": 0.8},
	}))
	msg := readMessage(t, conn)
	assert.Equal(t, "face_detection_result", msg.Type)
	var result services.SampleResult
	require.NoError(t, json.Unmarshal(msg.Data, &result))
	require.NotNil(t, result.Violation)
	assert.Equal(t, "CRITICAL", result.Violation.Severity)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "violation",
		"data": map[string]interface{}{"attempt_id": 999, "violation_type": "TAB_SWITCH"},
	}))
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, string(msg.Data), services.ErrAttemptCompleted.Error())

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_live_attempts"}))
	assert.Equal(t, "error", readMessage(t, conn).Type)

	proctoring.AssertExpectations(t)
	monitoring.AssertNotCalled(t, "LiveAttempts", mock.Anything, mock.Anything, mock.Anything)
}

func TestHub_Authorization(t *testing.T) {
	hub, monitoring, _ := newTestHub()
	monitoring.On("AttemptExamID", mock.Anything, student, uint(8)).
		Return(uint(0), services.NewPermissionError(student.UserID, 8, "attempt", "observe", "not owned by user"))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	err := hub.ServeExamMonitor(httptest.NewRecorder(), req, student, 3)
	assert.True(t, services.IsUnauthorized(err))

	err = hub.ServeAttemptMonitor(httptest.NewRecorder(), req, student, 8)
	assert.True(t, services.IsUnauthorized(err))

	err = hub.ServeProctoring(httptest.NewRecorder(), req, student, 8)
	assert.True(t, services.IsUnauthorized(err))

	assert.Equal(t, 0, hub.observers(events.ExamTopic(3)))
}
