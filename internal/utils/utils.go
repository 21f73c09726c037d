package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

// WriteError writes the failure envelope {success:false, error:msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

// WriteInternalError writes the generic 500 envelope. The cause is only
// exposed as "details" when showDetails is set (development mode).
func WriteInternalError(w http.ResponseWriter, cause error, showDetails bool) {
	body := map[string]any{
		"success": false,
		"error":   "internal server error",
	}
	if showDetails && cause != nil {
		body["details"] = cause.Error()
	}
	WriteJSON(w, http.StatusInternalServerError, body)
}
