package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	apimw "github.com/ricirt/job-harvester/internal/api/middleware"
	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/service"
)

// urlsRequest is the body of POST and DELETE /api/v1/work-items.
type urlsRequest struct {
	URLs []string `json:"urls"`
}

// WorkItemHandler exposes the producer side of the queue.
type WorkItemHandler struct {
	svc    *service.QueueService
	logger *zap.Logger
}

func NewWorkItemHandler(svc *service.QueueService, logger *zap.Logger) *WorkItemHandler {
	return &WorkItemHandler{svc: svc, logger: logger}
}

// Enqueue handles POST /api/v1/work-items
//
// @Summary     Enqueue job posting urls
// @Tags        work-items
// @Accept      json
// @Produce     json
// @Param       body  body      urlsRequest            true  "Up to 1000 absolute http(s) urls"
// @Success     201   {object}  service.EnqueueResult  "At least one url was new"
// @Success     200   {object}  service.EnqueueResult  "Every url was already queued"
// @Failure     422   {object}  map[string]string
// @Failure     503   {object}  map[string]string
// @Router      /api/v1/work-items [post]
func (h *WorkItemHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req urlsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Enqueue(r.Context(), req.URLs)
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Inserted == 0 {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

// List handles GET /api/v1/work-items
//
// @Summary  Peek at the next work items
// @Tags     work-items
// @Produce  json
// @Param    limit  query     int  false  "Max items (default 50, max 1000)"
// @Success  200    {object}  map[string]any
// @Failure  400    {object}  map[string]string
// @Router   /api/v1/work-items [get]
func (h *WorkItemHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, domain.ErrInvalidLimit.Error())
			return
		}
		limit = n
	}

	items, err := h.svc.Peek(r.Context(), limit)
	if err != nil {
		mapError(w, err)
		return
	}

	type itemView struct {
		URL      string `json:"url"`
		ID       string `json:"id"`
		Enqueued string `json:"enqueued_at,omitempty"`
		Failures int    `json:"failures"`
	}
	views := make([]itemView, len(items))
	for i, it := range items {
		views[i] = itemView{URL: it.URL, ID: it.ID(), Failures: it.Failures}
		if !it.EnqueuedAt.IsZero() {
			views[i].Enqueued = it.EnqueuedAt.UTC().Format(time.RFC3339)
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"count": len(views),
	})
}

// Remove handles DELETE /api/v1/work-items
//
// @Summary  Remove urls from the queue
// @Tags     work-items
// @Accept   json
// @Param    body  body  urlsRequest  true  "Urls to remove; unknown urls are ignored"
// @Success  204
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/work-items [delete]
func (h *WorkItemHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req urlsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.svc.Remove(r.Context(), req.URLs); err != nil {
		h.logger.Warn("remove failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
