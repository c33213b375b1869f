package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/formdef/internal/handlers"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		mockSetup      func(mock sqlmock.Sqlmock)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "database up",
			mockSetup:      func(mock sqlmock.Sqlmock) { mock.ExpectPing() },
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"ok","database":"up"}`,
		},
		{
			name:           "database down",
			mockSetup:      func(mock sqlmock.Sqlmock) { mock.ExpectPing().WillReturnError(errors.New("refused")) },
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"unavailable","database":"down"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()
			tt.mockSetup(mock)

			h := handlers.NewHealthHandler(sqlx.NewDb(db, "sqlmock"))
			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.JSONEq(t, tt.expectedBody, rr.Body.String())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	rr := httptest.NewRecorder()
	handlers.NewHealthHandler(nil).Ping(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong\n", rr.Body.String())
}
