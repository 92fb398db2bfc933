// Package api provides the administrative HTTP handlers and JSON helpers.
package api

import (
	"encoding/json"
	"net/http"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Status writes the {"status": "ok", "message": ...} acknowledgement used by
// the bulk endpoints.
func Status(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok", "message": message})
}
