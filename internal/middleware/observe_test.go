package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/formdef/internal/metrics"
	"github.com/maynagashev/formdef/internal/middleware"
)

func TestObserve(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(middleware.Observe(log, m))
	r.Get("/api/forms/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	tests := []struct {
		name          string
		target        string
		expectedRoute string
		expectedCode  int
		expectedLevel string
	}{
		{
			name:          "route pattern is used as label",
			target:        "/api/forms/42",
			expectedRoute: "/api/forms/{id}",
			expectedCode:  http.StatusTeapot,
			expectedLevel: "INFO",
		},
		{
			name:          "server errors are logged as errors",
			target:        "/boom",
			expectedRoute: "/boom",
			expectedCode:  http.StatusInternalServerError,
			expectedLevel: "ERROR",
		},
		{
			name:          "unknown path",
			target:        "/nope",
			expectedRoute: "unmatched",
			expectedCode:  http.StatusNotFound,
			expectedLevel: "INFO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.Reset()
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))

			require.Equal(t, tt.expectedCode, rr.Code)

			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(logs.String())), &entry))
			assert.Equal(t, tt.expectedLevel, entry["level"])
			assert.Equal(t, tt.expectedRoute, entry["route"])
			assert.Equal(t, "HTTP", entry["component"])

			assert.Equal(t, float64(1),
				testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, tt.expectedRoute,
					strconv.Itoa(tt.expectedCode))))
		})
	}
}

func TestObserve_NilMetrics(t *testing.T) {
	handler := middleware.Observe(slog.New(slog.DiscardHandler), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}
