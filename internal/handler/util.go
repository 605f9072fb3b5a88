// Package handler exposes the HTTP surface of the assistant: the
// chat-platform webhook, health probes and the admin API.
package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode failures past WriteHeader are unrecoverable; the request
	// log carries the status either way.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope. Operator-facing only; user
// replies travel over the outbound bus, never this channel.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: message})
}
