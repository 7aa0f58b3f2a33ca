package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	router := gin.New()
	router.Use(LoggerMiddleware(logger))
	router.GET("/attempts/:id", func(c *gin.Context) {
		c.Set("user_id", "student-1")
		c.Status(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/attempts/9", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "HTTP Request", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/attempts/:id", entry["path"])
	assert.Equal(t, "student-1", entry["user_id"])
	assert.EqualValues(t, http.StatusNotFound, entry["status_code"])
}

func TestNewLogger_WritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "service.log")
	logger := NewLogger(LogOptions{Environment: "production", File: file})

	logger.Info("Attempt submitted", "attempt_id", 7)
	logger.Debug("not written at info level")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"attempt_id":7`)
	assert.NotContains(t, string(data), "not written")
}

func TestToSlogLogger(t *testing.T) {
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, base, ToSlogLogger(NewSlogLogger(base)))
}
