package httpapi

import (
	"encoding/json"
	"net/http"

	"modelhost/internal/manager"
	"modelhost/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		Code:  http.StatusText(status),
		Error: msg,
	})
}

// writeServiceError maps typed lifecycle errors onto HTTP statuses and a
// payload carrying the recoverable flag and suggestions.
func writeServiceError(w http.ResponseWriter, err error) {
	if e, ok := manager.AsError(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(e.StatusCode())
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{
			Code:        string(e.Code),
			Error:       e.Message,
			Recoverable: e.Recoverable,
			Suggestions: e.Suggestions,
		})
		return
	}
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}
