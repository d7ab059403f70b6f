package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" ERROR "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "INFO", JSONFormat: true, Component: "main", Output: &buf})

	l.Debug().Msg("hidden")
	l.Info().Str("k", "v").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "main", entry["component"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "v", entry["k"])
}

func TestGinMiddleware_PropagatesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := New(Config{Level: "INFO", JSONFormat: true, Output: &buf})

	r := gin.New()
	r.Use(GinMiddleware(base))
	r.GET("/ping", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info().Msg("inside handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get(TraceHeader))
	assert.Contains(t, buf.String(), `"trace_id":"trace-123"`)
	assert.Equal(t, "trace-123", traceOf(t, buf.String(), "inside handler"))
	assert.Contains(t, buf.String(), "Request completed")
}

func TestGinMiddleware_GeneratesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(zerolog.Nop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Len(t, w.Header().Get(TraceHeader), 36)
}

// traceOf returns the trace_id of the JSON log line carrying message
func traceOf(t *testing.T, logs, message string) string {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(logs), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == message {
			id, _ := entry["trace_id"].(string)
			return id
		}
	}
	t.Fatalf("no log line %q", message)
	return ""
}
