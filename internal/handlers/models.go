package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/courtvision/nba-analysis/internal/logic"
)

// ListModels returns production and staged versions per target
// @Summary List Models
// @Tags Models
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ModelSummary
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /models [get]
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.models.ListModels(r.Context())
	if err != nil {
		h.logger.Errorw("Failed to list models", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to list models")
		return
	}
	h.jsonResponse(w, http.StatusOK, summaries)
}

// ModelHistory returns recent training runs for a target
// @Summary Training History
// @Tags Models
// @Produce json
// @Security BearerAuth
// @Param target path string true "Target column"
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {array} models.RunRecord
// @Failure 404 {object} map[string]string "History not configured"
// @Router /models/{target}/history [get]
func (h *Handler) ModelHistory(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	if target == "" {
		h.errorResponse(w, http.StatusBadRequest, "Target is required")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.errorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, err := h.models.History(r.Context(), target, limit)
	if err != nil {
		if errors.Is(err, logic.ErrHistoryDisabled) {
			h.errorResponse(w, http.StatusNotFound, "Training history is not enabled")
			return
		}
		h.logger.Errorw("Failed to read training history", "error", err, "target", target)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to read training history")
		return
	}
	h.jsonResponse(w, http.StatusOK, records)
}
