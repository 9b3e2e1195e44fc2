package handler

import (
	"context"
	"net/http"
	"time"
)

// DepthReader is satisfied by service.QueueService.
type DepthReader interface {
	Depth(ctx context.Context) (int, error)
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	queue DepthReader
}

func NewHealthHandler(queue DepthReader) *HealthHandler { return &HealthHandler{queue: queue} }

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready. It answers 503 while the queue store cannot be
// queried.
//
// @Summary  Readiness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.queue.Depth(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
