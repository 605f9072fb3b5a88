package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/internal/history"
	"github.com/vanilka-ai/bento-assistant/internal/knowledge"
	"github.com/vanilka-ai/bento-assistant/internal/middleware"
	"github.com/vanilka-ai/bento-assistant/internal/model"
	"github.com/vanilka-ai/bento-assistant/internal/orchestrator"
	"github.com/vanilka-ai/bento-assistant/pkg/logger"
)

// AdminHandler handles the admin surface: stats, knowledge reload,
// broadcast and history reset.
type AdminHandler struct {
	store     *history.Store
	knowledge *knowledge.Provider
	orch      *orchestrator.Orchestrator
	logger    *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	store *history.Store,
	provider *knowledge.Provider,
	orch *orchestrator.Orchestrator,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		store:     store,
		knowledge: provider,
		orch:      orch,
		logger:    log,
	}
}

// Stats handles GET /api/v1/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("failed to collect stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ReloadKnowledge handles POST /api/v1/admin/knowledge/reload
//
// A failed reload keeps the previous snapshot serving traffic; the
// admin gets the error, users never notice.
func (h *AdminHandler) ReloadKnowledge(w http.ResponseWriter, r *http.Request) {
	snap, err := h.knowledge.Reload(r.Context())
	if err != nil {
		h.logger.Warn("admin knowledge reload failed",
			zap.String("admin_id", middleware.GetAdminID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "knowledge reload failed, previous snapshot kept")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"bytes":     len(snap.Content),
	})
}

// Broadcast handles POST /api/v1/admin/broadcast
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req model.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateBroadcastText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orch.Broadcast(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("broadcast failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}

	h.logger.Info("admin broadcast",
		zap.String("admin_id", middleware.GetAdminID(r.Context())),
		zap.Int("recipients", result.Recipients),
	)

	writeJSON(w, http.StatusOK, result)
}

// ResetHistory handles DELETE /api/v1/admin/history/{userID}
func (h *AdminHandler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.orch.ResetHistory(userID, h.store.ResetHistory)
	if err != nil {
		if errors.Is(err, history.ErrStorageUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "turn store unavailable")
			return
		}
		h.logger.Error("history reset failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history reset failed")
		return
	}

	h.logger.Info("history reset",
		zap.String("admin_id", middleware.GetAdminID(r.Context())),
		zap.String("user_id", userID),
	)

	w.WriteHeader(http.StatusNoContent)
}
