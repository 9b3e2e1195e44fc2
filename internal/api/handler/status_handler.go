package handler

import (
	"net/http"

	"go.uber.org/zap"
)

// StatusHandler serves a human-readable JSON snapshot of the harvester.
// Raw Prometheus metrics are available at /metrics and are separate from
// this endpoint.
type StatusHandler struct {
	queue  DepthReader
	state  func() string
	logger *zap.Logger
}

// NewStatusHandler builds the handler. state reports the processor state;
// nil means no processor runs in this process.
func NewStatusHandler(queue DepthReader, state func() string, logger *zap.Logger) *StatusHandler {
	if state == nil {
		state = func() string { return "not_running" }
	}
	return &StatusHandler{queue: queue, state: state, logger: logger}
}

// GetStatus handles GET /api/v1/status
//
// @Summary  Queue depth and processor state
// @Tags     status
// @Produce  json
// @Success  200  {object}  map[string]any
// @Failure  503  {object}  map[string]string
// @Router   /api/v1/status [get]
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		h.logger.Warn("read queue depth failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth":     depth,
		"processor_state": h.state(),
	})
}
