package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
)

func TestLoggingMiddleware_TraceAndUser(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("api", "info", "json")
	logger.SetOutput(&buf)

	auth := NewAuthMiddleware(testSecret, logging.NewDiscard(), nil)
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logger))
	router.Handle("/notes", auth.Handler(okHandler()))

	req := httptest.NewRequest("GET", "/notes", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, testSecret, "user-9", "USER", false))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-abc", rec.Header().Get("X-Trace-ID"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trace-abc", entry["trace_id"])
	assert.Equal(t, "user-9", entry["user_id"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
}

func TestLoggingMiddleware_GeneratesTraceID(t *testing.T) {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logging.NewDiscard()))
	router.Handle("/health", okHandler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := metrics.New()
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(m))
	router.HandleFunc("/notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/notes/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := httptest.NewRecorder()
	m.Handler().ServeHTTP(body, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(body.Body.String(), `path="/notes/{id}"`))
	assert.True(t, strings.Contains(body.Body.String(), `status="404"`))
}

func TestRecoveryMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(logging.NewDiscard()))
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)
	rw.Flush()

	assert.True(t, rec.Flushed)
	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Same(t, rw, wrapResponseWriter(rw))
}
