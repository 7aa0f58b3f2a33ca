package services

import (
	"log/slog"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/cache"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/validator"
)

// ServiceManager exposes every service of the exam and proctoring domain.
type ServiceManager interface {
	Attempt() AttemptService
	Answer() AnswerService
	Marking() MarkingService
	Proctoring() ProctoringService
	Monitoring() MonitoringService
	ExamAdmin() ExamAdminService
}

type serviceManager struct {
	attempt    AttemptService
	answer     AnswerService
	marking    MarkingService
	proctoring ProctoringService
	monitoring MonitoringService
	examAdmin  ExamAdminService
}

// NewServiceManager wires the services around one repository, storage provider and event
// publisher. cacheService may be nil, in which case live snapshots are not cached.
func NewServiceManager(
	repo repositories.Repository,
	storageProvider storage.StorageProvider,
	publisher events.Publisher,
	cacheService cache.CacheService,
	logger *slog.Logger,
	validator *validator.Validator,
) ServiceManager {
	emitter := newEventEmitter(publisher, cacheService, logger.With("component", "emitter"))
	marking := NewMarkingService(repo, storageProvider, emitter, logger.With("service", "marking"), validator)

	return &serviceManager{
		attempt:    NewAttemptService(repo, storageProvider, emitter, logger.With("service", "attempt")),
		answer:     NewAnswerService(repo, storageProvider, emitter, logger.With("service", "answer"), validator),
		marking:    marking,
		proctoring: NewProctoringService(repo, emitter, logger.With("service", "proctoring"), validator),
		monitoring: NewMonitoringService(repo, cacheService, logger.With("service", "monitoring")),
		examAdmin:  NewExamAdminService(repo, marking, storageProvider, emitter, logger.With("service", "exam_admin"), validator),
	}
}

func (m *serviceManager) Attempt() AttemptService {
	return m.attempt
}

func (m *serviceManager) Answer() AnswerService {
	return m.answer
}

func (m *serviceManager) Marking() MarkingService {
	return m.marking
}

func (m *serviceManager) Proctoring() ProctoringService {
	return m.proctoring
}

func (m *serviceManager) Monitoring() MonitoringService {
	return m.monitoring
}

func (m *serviceManager) ExamAdmin() ExamAdminService {
	return m.examAdmin
}
