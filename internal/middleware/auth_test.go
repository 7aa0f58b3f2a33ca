package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	parser := ParserFunc(func(token string) (services.Caller, error) {
		switch token {
		case "student-token":
			return services.Caller{UserID: "student-1", UserName: "Student One"}, nil
		case "admin-token":
			return services.Caller{UserID: "admin-1", UserName: "Admin", IsAdmin: true}, nil
		}
		return services.Caller{}, errors.New("token is invalid")
	})
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := gin.New()
	api := router.Group("/api", Auth(parser, logger))
	api.GET("/me", func(c *gin.Context) {
		caller, _ := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID})
	})
	api.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestAuth(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "bearer header", path: "/api/me", header: "Bearer student-token", wantStatus: http.StatusOK, wantBody: "student-1"},
		{name: "query token", path: "/api/me?token=admin-token", wantStatus: http.StatusOK, wantBody: "admin-1"},
		{name: "missing token", path: "/api/me", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/api/me", header: "Basic student-token", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", path: "/api/me", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
		{name: "admin route as student", path: "/api/admin", header: "Bearer student-token", wantStatus: http.StatusForbidden},
		{name: "admin route as admin", path: "/api/admin", header: "Bearer admin-token", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}
