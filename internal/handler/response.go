package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/homebase-app/homebase/internal/ctxkeys"
	"github.com/homebase-app/homebase/internal/repository"
	"github.com/homebase-app/homebase/internal/service"
	"github.com/homebase-app/homebase/internal/validation"
)

const maxJSONBody = 1 << 20

// ListResponse wraps unpaginated lists so the payload can grow fields later.
type ListResponse[T any] struct {
	Items []T `json:"items"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	err := WriteJSON(w, statusCode, data)
	if err != nil {
		slog.Error("failed to write response", "error", err, "path", r.URL.Path)
	}
}

func notFound(w http.ResponseWriter, what string) {
	_ = ErrorResponse(w, http.StatusNotFound, "not_found", what+" not found")
}

func badRequest(w http.ResponseWriter, message string) {
	_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", message)
}

// writeError maps store and service errors onto HTTP responses. Unknown
// errors are logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidFilter),
		errors.Is(err, validation.ErrInvalidFile):
		badRequest(w, err.Error())
	case errors.Is(err, repository.ErrEntityExists):
		_ = ErrorResponse(w, http.StatusConflict, "conflict", "entity already exists")
	case errors.Is(err, service.ErrFileNotFound):
		notFound(w, "file")
	case repository.IsRetryable(err), errors.Is(err, service.ErrBlobUnavailable):
		slog.Warn("storage unavailable", "op", op, "error", err, "request_id", ctxkeys.RequestID(r.Context()))
		w.Header().Set("Retry-After", "1")
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "storage_unavailable", "storage is temporarily unavailable")
	default:
		slog.Error("request failed", "op", op, "error", err, "request_id", ctxkeys.RequestID(r.Context()))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
