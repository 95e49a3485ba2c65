// Package httpapi holds the JSON envelope and query parsing shared by the HTTP handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/rs/zerolog"
)

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code"`
}

// WriteJSON encodes data as the whole response body
func WriteJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteData wraps data in the {"data": ..., "metadata": {...}} envelope
func WriteData(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	WriteJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}, log)
}

// WriteError maps err to a status code and writes the error body.
// Server-side failures are logged, client errors are not.
func WriteError(w http.ResponseWriter, err error, log zerolog.Logger) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	WriteJSON(w, status, ErrorBody{Error: messageOf(err), Code: domain.CodeOf(err)}, log)
}

// StatusFor maps an error classification to an HTTP status
func StatusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeConcurrentConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Invalid builds a client error for malformed requests
func Invalid(message string) error {
	return domain.WrapError(domain.CodeInvalidInput, message, domain.ErrInvalidInput)
}

func messageOf(err error) string {
	var e *domain.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
