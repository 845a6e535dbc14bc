package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opcoord/opcoord/internal/core"
)

// ErrorResponse wraps an OpError for JSON serialization.
type ErrorResponse struct {
	Error *core.OpError `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a classified error response.
func WriteError(w http.ResponseWriter, status int, err *core.OpError) {
	WriteJSON(w, status, ErrorResponse{Error: err})
}

// HandleError maps an error to the appropriate HTTP status and writes it.
func HandleError(w http.ResponseWriter, err error) {
	var opErr *core.OpError
	if errors.As(err, &opErr) {
		WriteError(w, statusFor(opErr), opErr)
		return
	}
	if errors.Is(err, core.ErrNotFound) {
		WriteError(w, http.StatusNotFound, &core.OpError{
			Class:   core.ClassInput,
			Message: "Not found.",
		})
		return
	}
	WriteError(w, http.StatusInternalServerError, &core.OpError{
		Class:     core.ClassServerError,
		Message:   err.Error(),
		Retryable: true,
	})
}

func statusFor(err *core.OpError) int {
	switch err.Class {
	case core.ClassInput:
		return http.StatusBadRequest
	case core.ClassAuthorization:
		return http.StatusForbidden
	case core.ClassRateLimited:
		return http.StatusTooManyRequests
	case core.ClassTimeout:
		return http.StatusGatewayTimeout
	case core.ClassConnection, core.ClassServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
