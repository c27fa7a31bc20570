package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/garnizeh/introdesk/pkg/repository"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

// writeError maps the shared error taxonomy onto HTTP statuses. Raw
// collaborator errors never reach the caller; after any mutation failure the
// dashboard re-fetches, so the body only needs the short classification.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrPrecondition):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, repository.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	default:
		logger.Error("internal error", slog.Any("err", err))
		writeJSON(w, map[string]any{"error": "internal error"}, http.StatusInternalServerError)
		return
	}

	body := map[string]any{"error": err.Error()}
	var conflict *repository.ConflictError
	if errors.As(err, &conflict) {
		body["expected_version"] = conflict.ExpectedVersion
		body["current_version"] = conflict.CurrentVersion
	}
	writeJSON(w, body, status)
}
