package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/maynagashev/formdef/internal/services"
)

// envelope is the body of successful write responses.
type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// errorBody is the body of every error response.
type errorBody struct {
	Error   string `json:"error"`
	ErrorID string `json:"error_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

func writeEnvelope(w http.ResponseWriter, log *slog.Logger, status int, message string, data any) {
	writeJSON(w, log, status, envelope{Status: message, Data: data})
}

func writeBadRequest(w http.ResponseWriter, log *slog.Logger, message string) {
	writeJSON(w, log, http.StatusBadRequest, errorBody{Error: message})
}

// writeServiceError maps a service error to its status code. Unexpected errors get an
// error_id that is logged together with the cause and returned instead of it.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, message := statusFor(err)
	if status != http.StatusInternalServerError {
		writeJSON(w, log, status, errorBody{Error: message})
		return
	}

	errorID := uuid.NewString()
	log.ErrorContext(r.Context(), "request failed",
		"method", r.Method, "path", r.URL.Path, "error_id", errorID, "error", err)
	writeJSON(w, log, status, errorBody{Error: message, ErrorID: errorID})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, conflictMessage(err)
	case errors.Is(err, services.ErrPublishingDisabled):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func conflictMessage(err error) string {
	var opErr *services.OperationError
	if errors.As(err, &opErr) {
		return opErr.Err.Error()
	}
	return err.Error()
}
