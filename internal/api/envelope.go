package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"clipstream/internal/auth"
	"clipstream/internal/storage"
)

// Envelope is the uniform response body for every endpoint.
type Envelope struct {
	StatusCode int      `json:"statusCode"`
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Data       any      `json:"data"`
	Errors     []string `json:"errors,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(envelope.StatusCode)
	_ = json.NewEncoder(w).Encode(envelope)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, Envelope{
		StatusCode: status,
		Success:    true,
		Message:    message,
		Data:       data,
	})
}

func writeFailure(w http.ResponseWriter, status int, message string, errs ...string) {
	writeEnvelope(w, Envelope{
		StatusCode: status,
		Success:    false,
		Message:    message,
		Errors:     errs,
	})
}

// writeDomainError maps domain sentinels onto the envelope taxonomy. Internal
// diagnostics stay server-side; only the sentinel message leaves the process.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeFailure(w, http.StatusBadRequest, "already exists")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, storage.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidRefreshToken), errors.Is(err, auth.ErrUnauthenticated):
		writeFailure(w, http.StatusUnauthorized, "unauthorized request")
	default:
		h.logger().Error("request failed", "path", r.URL.Path, "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}
