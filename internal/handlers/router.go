package handlers

import (
	"github.com/SAP-F-2025/exam-proctoring-service/internal/metrics"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/middleware"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/monitor"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	attemptHandler   *AttemptHandler
	gradingHandler   *GradingHandler
	monitorHandler   *MonitorHandler
	examAdminHandler *ExamAdminHandler

	auth gin.HandlerFunc
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	hub *monitor.Hub,
	tokenParser middleware.TokenParser,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(
			serviceManager.Attempt(),
			serviceManager.Answer(),
			serviceManager.Proctoring(),
			serviceManager.ExamAdmin(),
			logger,
		),
		gradingHandler:   NewGradingHandler(serviceManager.Marking(), serviceManager.Attempt(), logger),
		monitorHandler:   NewMonitorHandler(serviceManager.Monitoring(), hub, logger),
		examAdminHandler: NewExamAdminHandler(serviceManager.ExamAdmin(), logger),
		auth:             middleware.Auth(tokenParser, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)
	router.GET("/metrics", metrics.PrometheusHandler())

	// Realtime channels
	ws := router.Group("/ws", hm.auth)
	{
		ws.GET("/proctoring/:attempt_id", hm.monitorHandler.ProctoringSocket)
		ws.GET("/monitor/exams/:id", hm.monitorHandler.ExamMonitorSocket)
		ws.GET("/monitor/attempts/:id", hm.monitorHandler.AttemptMonitorSocket)
	}

	v1 := router.Group("/api/v1", hm.auth)
	{
		// Exam routes
		exams := v1.Group("/exams")
		{
			exams.POST("/:id/start", hm.attemptHandler.StartExam)
			exams.POST("/:id/retake-request", hm.attemptHandler.RequestRetake)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/:id/submit-answer", hm.attemptHandler.SubmitAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitExam)
			attempts.POST("/:id/pause", hm.attemptHandler.PauseExam)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeExam)
			attempts.GET("/:id/results", hm.attemptHandler.GetResults)

			// Proctoring
			attempts.GET("/:id/proctoring/session", hm.attemptHandler.GetSession)
			attempts.GET("/:id/proctoring/logs", hm.attemptHandler.GetProctoringLogs)
			attempts.GET("/:id/violations", hm.attemptHandler.ListViolations)
			attempts.GET("/:id/violations/report", hm.attemptHandler.GetViolationReport)
		}

		v1.POST("/proctoring/violations", hm.attemptHandler.ReportViolation)

		// Admin routes
		admin := v1.Group("/admin", middleware.RequireAdmin())
		{
			// Marking
			admin.POST("/answers/:id/mark", hm.gradingHandler.MarkAnswer)
			admin.POST("/answers/bulk-mark", hm.gradingHandler.BulkMark)
			admin.PUT("/answers/:id/solution", hm.gradingHandler.UpdateSolution)
			admin.POST("/answers/:id/solution/attachments", hm.gradingHandler.AddSolutionAttachments)
			admin.DELETE("/solution-attachments/:id", hm.gradingHandler.DeleteSolutionAttachment)

			// Attempt administration
			admin.POST("/attempts/:id/release-results", hm.gradingHandler.ReleaseResults)
			admin.POST("/attempts/:id/restart", hm.gradingHandler.RestartAttempt)
			admin.POST("/attempts/:id/terminate", hm.gradingHandler.TerminateAttempt)
			admin.DELETE("/attempts/:id/solutions", hm.gradingHandler.ClearSolutions)
			admin.GET("/attempts/:id/details", hm.monitorHandler.AttemptDetails)
			admin.GET("/attempts/:id/activities", hm.monitorHandler.Activities)

			// Exam administration
			admin.POST("/exams/:id/recalculate-scores", hm.gradingHandler.RecalculateScores)
			admin.GET("/exams/:id/live-attempts", hm.monitorHandler.LiveAttempts)
			admin.GET("/exams/:id/retakes", hm.examAdminHandler.ListRetakeRequests)
			admin.POST("/exams/:id/retakes/:user_id/grant", hm.examAdminHandler.GrantRetake)
			admin.GET("/exams/:id/results/export", hm.examAdminHandler.ExportResults)

			// Question maintenance
			admin.PUT("/options/:id", hm.examAdminHandler.UpdateOption)
			admin.DELETE("/options/:id", hm.examAdminHandler.DeleteOption)
			admin.PUT("/questions/:id/tags", hm.examAdminHandler.UpdateQuestionTags)
			admin.GET("/tags", hm.examAdminHandler.ListTags)
		}
	}
}
