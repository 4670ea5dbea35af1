package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/courtvision/nba-analysis/internal/models"
)

// TriggerTraining queues a training run
// @Summary Train Models
// @Description Queues training for the given targets (all configured targets when empty)
// @Tags Pipeline
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.TrainRequest false "Targets"
// @Success 202 {object} models.JobAcceptedResponse
// @Failure 400 {object} map[string]string "Unknown target"
// @Failure 503 {object} map[string]string "Queue full"
// @Router /pipeline/train [post]
func (h *Handler) TriggerTraining(w http.ResponseWriter, r *http.Request) {
	var req models.TrainRequest
	if r.ContentLength != 0 && !h.decodeBody(w, r, &req) {
		return
	}
	h.enqueue(w, r, models.JobTrain, req.Targets)
}

// TriggerPromotion queues a promotion
// @Summary Promote Models
// @Description Queues promotion of the newest complete staged version per target
// @Tags Pipeline
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.PromoteRequest false "Targets"
// @Success 202 {object} models.JobAcceptedResponse
// @Failure 503 {object} map[string]string "Queue full"
// @Router /pipeline/promote [post]
func (h *Handler) TriggerPromotion(w http.ResponseWriter, r *http.Request) {
	var req models.PromoteRequest
	if r.ContentLength != 0 && !h.decodeBody(w, r, &req) {
		return
	}
	h.enqueue(w, r, models.JobPromote, req.Targets)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, kind models.JobKind, targets []string) {
	for _, t := range targets {
		if !h.targets[t] {
			h.errorResponse(w, http.StatusBadRequest, "Unknown target: "+t)
			return
		}
	}

	status, ok := h.pool.Enqueue(kind, targets)
	if !ok {
		h.errorResponse(w, http.StatusServiceUnavailable, "Pipeline queue is full")
		return
	}
	h.logger.Infow("Pipeline job queued", "job", status.ID, "kind", kind, "targets", targets, "user", usernameFromContext(r.Context()))
	h.jsonResponse(w, http.StatusAccepted, models.JobAcceptedResponse{JobID: status.ID, Status: string(status.State)})
}

// GetJob returns the status of a pipeline job
// @Summary Pipeline Job Status
// @Tags Pipeline
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} models.JobStatus
// @Failure 404 {object} map[string]string "Not Found"
// @Router /pipeline/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := h.pool.Job(id)
	if !ok {
		h.errorResponse(w, http.StatusNotFound, "Job not found")
		return
	}
	h.jsonResponse(w, http.StatusOK, status)
}
