package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/courtvision/nba-analysis/internal/artifacts"
	"github.com/courtvision/nba-analysis/internal/logic"
	"github.com/courtvision/nba-analysis/internal/models"
)

// Predict returns per-player predictions for the current season dataset
// @Summary Predict Player Stats
// @Description Predicts each requested target for every player in the current dataset using the production models
// @Tags Predictions
// @Produce json
// @Param team query string false "Team abbreviation"
// @Param season query int false "Season"
// @Param targets query []string false "Targets to predict (repeatable or comma separated)"
// @Success 200 {array} models.PlayerPrediction
// @Failure 400 {object} map[string]string "Unsupported targets or bad filter"
// @Failure 503 {object} map[string]string "Models are being promoted"
// @Failure 500 {object} map[string]string "Internal Error"
// @Router /predict [get]
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := models.PredictRequest{Team: strings.TrimSpace(q.Get("team"))}
	if s := q.Get("season"); s != "" {
		season, err := strconv.Atoi(s)
		if err != nil {
			h.errorResponse(w, http.StatusBadRequest, "Invalid season")
			return
		}
		req.Season = season
	}
	for _, raw := range q["targets"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Targets = append(req.Targets, t)
			}
		}
	}
	if err := h.validator.Struct(req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	rows, err := h.prediction.Predict(r.Context(), req)
	if err != nil {
		var unsupported *logic.UnsupportedTargetsError
		switch {
		case errors.As(err, &unsupported):
			h.errorResponse(w, http.StatusBadRequest, unsupported.Error())
		case errors.Is(err, artifacts.ErrMixedArtifacts):
			h.logger.Warnw("Production artifacts are mid-promotion", "error", err)
			h.errorResponse(w, http.StatusServiceUnavailable, "Models are being updated, retry shortly")
		default:
			h.logger.Errorw("Failed to predict", "error", err, "team", req.Team, "season", req.Season, "targets", req.Targets)
			h.errorResponse(w, http.StatusInternalServerError, "Failed to get predictions")
		}
		return
	}

	h.jsonResponse(w, http.StatusOK, rows)
}
