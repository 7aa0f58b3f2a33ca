package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/cache"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, event *events.MonitorEvent) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

func TestEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	attempt := &models.ExamAttempt{ID: 7, ExamID: 3, UserName: "Student One", Status: models.AttemptInProgress}

	t.Run("publishes to exam and attempt topics", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("Publish", mock.Anything, events.ExamTopic(3), mock.Anything).Return(nil).Once()
		publisher.On("Publish", mock.Anything, events.AttemptTopic(7), mock.Anything).Return(nil).Once()

		newEventEmitter(publisher, nil, logger).attemptUpdate(attempt)

		publisher.AssertExpectations(t)
		event := publisher.Calls[0].Arguments.Get(2).(*events.MonitorEvent)
		assert.Equal(t, events.EventAttemptUpdate, event.Type)
		payload := event.Data.(events.AttemptUpdateEvent)
		assert.Equal(t, "IN_PROGRESS", payload.Status)
	})

	t.Run("publish failures are swallowed", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

		emitter := newEventEmitter(publisher, nil, logger)
		assert.NotPanics(t, func() {
			emitter.activity(attempt, &models.ActivityLog{ID: 1, ActivityType: models.ActivityAnswerSubmitted, Timestamp: time.Now()})
		})
		publisher.AssertNumberOfCalls(t, "Publish", 2)
	})

	t.Run("panicking publisher is recovered", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Panic("boom")

		emitter := newEventEmitter(publisher, nil, logger)
		assert.NotPanics(t, func() {
			emitter.violation(attempt, &models.ViolationLog{ID: 2, ViolationType: models.ViolationTabSwitch, Severity: models.SeverityMedium})
		})
	})

	t.Run("invalidates the live snapshot", func(t *testing.T) {
		ctx := context.Background()
		memCache := cache.NewMemoryCache()
		require.NoError(t, memCache.Set(ctx, liveAttemptsKey(3), []LiveAttempt{{ID: 7}}, time.Minute))

		newEventEmitter(nil, memCache, logger).attemptUpdate(attempt)

		var rows []LiveAttempt
		assert.ErrorIs(t, memCache.Get(ctx, liveAttemptsKey(3), &rows), cache.ErrCacheMiss)
	})

	t.Run("nil activity is ignored", func(t *testing.T) {
		publisher := new(MockPublisher)
		newEventEmitter(publisher, nil, logger).activity(attempt, nil)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})
}
