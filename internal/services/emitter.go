package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/cache"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/metrics"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
)

// liveAttemptsKey caches the live monitoring snapshot of one exam.
func liveAttemptsKey(examID uint) string {
	return fmt.Sprintf("live_attempts:exam:%d", examID)
}

// eventEmitter publishes monitoring events after commit. Publishing is best effort:
// failures are logged and counted but never returned to the caller.
type eventEmitter struct {
	publisher events.Publisher
	cache     cache.CacheService
	logger    *slog.Logger
}

func newEventEmitter(publisher events.Publisher, cacheService cache.CacheService, logger *slog.Logger) *eventEmitter {
	return &eventEmitter{
		publisher: publisher,
		cache:     cacheService,
		logger:    logger,
	}
}

func (e *eventEmitter) activity(attempt *models.ExamAttempt, log *models.ActivityLog) {
	if log == nil {
		return
	}
	payload := events.ActivityUpdateEvent{
		ID:           log.ID,
		ActivityType: string(log.ActivityType),
		Description:  log.Description,
		Metadata:     log.Metadata,
		Timestamp:    log.Timestamp,
		AttemptID:    attempt.ID,
		UserName:     attempt.UserName,
	}
	e.publish(attempt.ExamID, attempt.ID, events.NewMonitorEvent(events.EventActivityUpdate, payload))
}

func (e *eventEmitter) attemptUpdate(attempt *models.ExamAttempt) {
	payload := events.AttemptUpdateEvent{
		ID:              attempt.ID,
		Status:          string(attempt.Status),
		Score:           attempt.Score,
		PercentageScore: attempt.PercentageScore,
		CorrectAnswers:  attempt.CorrectAnswers,
		WrongAnswers:    attempt.WrongAnswers,
		UserName:        attempt.UserName,
		ResultsReady:    attempt.ResultsReady,
		IsPassed:        attempt.IsPassed,
	}
	e.publish(attempt.ExamID, attempt.ID, events.NewMonitorEvent(events.EventAttemptUpdate, payload))
}

func (e *eventEmitter) violation(attempt *models.ExamAttempt, v *models.ViolationLog) {
	payload := events.ViolationUpdateEvent{
		Event:     "violation",
		Violation: violationPayload(v),
		AttemptID: attempt.ID,
	}
	e.publish(attempt.ExamID, attempt.ID, events.NewMonitorEvent(events.EventAttemptUpdate, payload))
}

func (e *eventEmitter) publish(examID, attemptID uint, event *events.MonitorEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic while publishing monitor event",
				"event_type", event.Type,
				"attempt_id", attemptID,
				"panic", r)
		}
	}()

	e.invalidate(examID)
	if e.publisher == nil {
		return
	}

	ctx := context.Background()
	for _, topic := range []string{events.ExamTopic(examID), events.AttemptTopic(attemptID)} {
		if err := e.publisher.Publish(ctx, topic, event); err != nil {
			metrics.EventsPublished.WithLabelValues(string(event.Type), "error").Inc()
			e.logger.Warn("Failed to publish monitor event",
				"event_type", event.Type,
				"topic", topic,
				"error", err)
			continue
		}
		metrics.EventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
	}
}

// invalidate drops the cached live snapshot of an exam.
func (e *eventEmitter) invalidate(examID uint) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(context.Background(), liveAttemptsKey(examID)); err != nil {
		e.logger.Warn("Failed to invalidate live attempts cache", "exam_id", examID, "error", err)
	}
}

func violationPayload(v *models.ViolationLog) events.ViolationPayload {
	return events.ViolationPayload{
		ID:            v.ID,
		ViolationType: string(v.ViolationType),
		Description:   v.Description,
		Severity:      string(v.Severity),
		Timestamp:     v.Timestamp,
	}
}
