package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lastline-erp/lastline-backend/pkg/logger"
)

func serveLogged(t *testing.T, level zerolog.Level, path string, handler http.HandlerFunc) map[string]any {
	t.Helper()
	var out bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: level, Output: &out})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/api/v1/cards/{cardID}", handler)
	r.Get("/health/live", handler)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	if out.Len() == 0 {
		return nil
	}
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	return entry
}

func TestLoggingRecordsRouteAndImplicitStatus(t *testing.T) {
	entry := serveLogged(t, zerolog.InfoLevel, "/api/v1/cards/abc", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	require.NotNil(t, entry)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "/api/v1/cards/{cardID}", entry["route"])
	assert.EqualValues(t, http.StatusOK, entry["status"])
	assert.EqualValues(t, 2, entry["bytes"])
}

func TestLoggingWarnsOnClientErrors(t *testing.T) {
	entry := serveLogged(t, zerolog.InfoLevel, "/api/v1/cards/abc", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	require.NotNil(t, entry)
	assert.Equal(t, "warn", entry["level"])
	assert.EqualValues(t, http.StatusConflict, entry["status"])
}

func TestLoggingKeepsProbesAtDebug(t *testing.T) {
	entry := serveLogged(t, zerolog.InfoLevel, "/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.Nil(t, entry)
}
