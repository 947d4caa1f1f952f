package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_Endpoints(t *testing.T) {
	// Disabled: /metrics answers 503 until the registry exists.
	s := NewServer(ServerConfig{})
	assert.Equal(t, 9090, s.Port())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/metrics")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	InitRegistry()
	assert.True(t, IsEnabled())

	s = NewServer(ServerConfig{Port: 9191})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestNoopIngestMetrics(t *testing.T) {
	m := NewNoopIngestMetrics()
	m.RecordDownload(1)
	m.RecordSkipped()
	m.RecordProcessingStart()
	m.RecordProcessingEnd()
	m.RecordOutcome("mrc", "", 0)
	m.RecordVolumeBytes("mrc", 1)
}
