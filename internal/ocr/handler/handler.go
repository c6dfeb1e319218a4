package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/service"
	"github.com/ocrflow/ocrflow-backend/pkg/httputil"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Handler handles HTTP requests for OCR batch processing
type Handler struct {
	service *service.BatchService
	log     *logger.Logger
}

// NewHandler creates a new OCR handler
func NewHandler(svc *service.BatchService, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		log:     log,
	}
}

// Routes mounts the OCR API under the given router
func (h *Handler) Routes(r chi.Router) {
	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.StartBatch)
		r.Get("/", h.ListBatches)
		r.Post("/cleanup", h.Cleanup)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/", h.GetStatus)
			r.Post("/pause", h.PauseBatch)
			r.Post("/resume", h.ResumeBatch)
			r.Post("/stop", h.StopBatch)
		})
	})
	r.Get("/gpu", h.GPUStats)
}

// StartBatch handles POST /batches
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req service.StartBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	snap, err := h.service.StartBatch(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Accepted(w, snap)
}

// ListBatches handles GET /batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.service.ListBatches())
}

// GetStatus handles GET /batches/{batchID}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetStatus(chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, snap)
}

// PauseBatch handles POST /batches/{batchID}/pause
func (h *Handler) PauseBatch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.PauseBatch(chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, snap)
}

// ResumeBatch handles POST /batches/{batchID}/resume
func (h *Handler) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.ResumeBatch(chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, snap)
}

// StopBatch handles POST /batches/{batchID}/stop
func (h *Handler) StopBatch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.StopBatch(chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, snap)
}

// Cleanup handles POST /batches/cleanup
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed := h.service.Cleanup()
	httputil.JSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// GPUStats handles GET /gpu
func (h *Handler) GPUStats(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.service.GPUStats())
}
