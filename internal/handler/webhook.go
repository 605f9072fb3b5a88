package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/internal/middleware"
	"github.com/vanilka-ai/bento-assistant/internal/model"
	"github.com/vanilka-ai/bento-assistant/internal/orchestrator"
	"github.com/vanilka-ai/bento-assistant/pkg/logger"
)

// WebhookHandler receives inbound chat-platform events. The bridge in
// front of the chat platform posts every update here; replies travel
// back asynchronously over the outbound bus.
type WebhookHandler struct {
	orch        *orchestrator.Orchestrator
	logger      *logger.Logger
	turnTimeout time.Duration
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(orch *orchestrator.Orchestrator, log *logger.Logger, turnTimeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		orch:        orch,
		logger:      log,
		turnTimeout: turnTimeout,
	}
}

// Receive handles POST /webhook
//
// Actionable events are accepted with 202 and processed asynchronously;
// non-actionable events get 204. The webhook never blocks on the LLM.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var event model.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	if err := middleware.ValidateUserID(event.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch event.Kind {
	case model.EventKindText:
		if err := middleware.ValidateMessageContent(event.Text); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case model.EventKindVoice:
		if err := middleware.ValidateAudio(event.Audio, event.AudioFormat); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if !event.Actionable() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	correlationID := middleware.GetCorrelationID(r.Context())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.turnTimeout)
		defer cancel()

		if _, err := h.orch.Handle(ctx, &event); err != nil {
			h.logger.Error("turn processing failed",
				zap.String("correlation_id", correlationID),
				zap.String("user_id", event.UserID),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}
