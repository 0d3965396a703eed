package ops

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"rnadash/internal"
	"rnadash/internal/session"
)

func TestHealthz(t *testing.T) {
	s := NewServer(session.NewStore(), internal.NewLogger(internal.LogLevelError))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsSnapshot(t *testing.T) {
	store := session.NewStore()
	s := NewServer(store, internal.NewLogger(internal.LogLevelError))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_results":false`)

	store.Commit(&session.Snapshot{})

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Contains(t, rec.Body.String(), `"has_results":true`)
}

func TestPprofIndex(t *testing.T) {
	s := NewServer(session.NewStore(), internal.NewLogger(internal.LogLevelError))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
