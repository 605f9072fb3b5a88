package handler

import (
	"net/http"

	"github.com/vanilka-ai/bento-assistant/internal/history"
	natsclient "github.com/vanilka-ai/bento-assistant/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	store      *history.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(natsClient *natsclient.Client, store *history.Store) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		store:      store,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient == nil || !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	if h.store == nil || h.store.Ping() != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "turn store unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
