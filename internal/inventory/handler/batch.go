package handler

import (
	"net/http"
	"strconv"

	"github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/internal/inventory/service"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.InventoryService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Create registers a batch from a verified donation intake
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var batch repository.ItemBatch
	if err := httputil.DecodeJSON(r, &batch); err != nil {
		httputil.Error(w, err)
		return
	}
	if batch.InventoryID == 0 || batch.ItemID == 0 {
		httputil.Error(w, errors.Validation(map[string]string{
			"inventory_id": "inventory and item references are required",
		}))
		return
	}

	if err := h.service.CreateBatch(r.Context(), &batch); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid batch ID"))
		return
	}

	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// Update applies a stock correction to a batch. The body carries the
// corrected values plus the version_nbr the caller last saw.
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid batch ID"))
		return
	}

	var batch repository.ItemBatch
	if err := httputil.DecodeJSON(r, &batch); err != nil {
		httputil.Error(w, err)
		return
	}
	batch.ID = id

	if err := h.service.UpdateBatch(r.Context(), &batch); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// Expiring lists batches with stock expiring within the window given by
// the within_days query parameter (default 30).
func (h *BatchHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	withinDays := 30
	if raw := r.URL.Query().Get("within_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.Error(w, errors.BadRequest("invalid within_days"))
			return
		}
		withinDays = parsed
	}

	batches, err := h.service.ListExpiringBatches(r.Context(), withinDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// ListByItem lists active batches for an item
func (h *BatchHandler) ListByItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid item ID"))
		return
	}

	batches, err := h.service.ListBatchesByItem(r.Context(), itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}
