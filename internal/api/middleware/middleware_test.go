package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/harishm17/study-buddy/internal/api/middleware"
	"github.com/harishm17/study-buddy/internal/metrics"
)

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func hashToken(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

// ========================================
// InternalAuth Tests
// ========================================

func TestInternalAuth_Disabled(t *testing.T) {
	auth := mw.NewInternalAuth("")
	assert.False(t, auth.Enabled())

	req := httptest.NewRequest("POST", "/jobs/chunk-material", nil)
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInternalAuth_MissingHeader(t *testing.T) {
	auth := mw.NewInternalAuth(hashToken(t, "relay-secret"))

	req := httptest.NewRequest("POST", "/jobs/chunk-material", nil)
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestInternalAuth_InvalidBearerFormat(t *testing.T) {
	auth := mw.NewInternalAuth(hashToken(t, "relay-secret"))

	req := httptest.NewRequest("POST", "/jobs/chunk-material", nil)
	req.Header.Set("Authorization", "Basic relay-secret")
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalAuth_WrongToken(t *testing.T) {
	auth := mw.NewInternalAuth(hashToken(t, "relay-secret"))

	req := httptest.NewRequest("POST", "/jobs/chunk-material", nil)
	req.Header.Set("Authorization", "Bearer something-else")
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid internal token", errBody(t, w)["message"])
}

func TestInternalAuth_ValidToken(t *testing.T) {
	auth := mw.NewInternalAuth(hashToken(t, "relay-secret"))

	req := httptest.NewRequest("POST", "/jobs/chunk-material", nil)
	req.Header.Set("Authorization", "bearer relay-secret")
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logger and Recovery Tests
// ========================================

func TestLogger_RecordsRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(mw.Logger(m))
	r.Get("/jobs/{jobID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/jobs/123", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	count, err := testutil.GatherAndCount(m.Registry(), "studybuddy_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLogger_NilMetrics(t *testing.T) {
	handler := mw.Logger(nil)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery_CatchesPanic(t *testing.T) {
	panicker := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	mw.Recovery(panicker).ServeHTTP(w, httptest.NewRequest("POST", "/jobs/grade-exam", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRecovery_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Recovery(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
