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

// InventoryHandler handles warehouse and item endpoints
type InventoryHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(svc *service.InventoryService, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  log,
	}
}

// CreateWarehouse creates a new warehouse
func (h *InventoryHandler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var warehouse repository.Warehouse
	if err := httputil.DecodeJSON(r, &warehouse); err != nil {
		httputil.Error(w, err)
		return
	}
	if warehouse.WarehouseName == "" {
		httputil.Error(w, errors.Validation(map[string]string{
			"warehouse_name": "this field is required",
		}))
		return
	}

	if err := h.service.CreateWarehouse(r.Context(), &warehouse); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, warehouse)
}

// ListWarehouses lists active warehouses
func (h *InventoryHandler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, warehouses)
}

// CreateItem creates a new relief item
func (h *InventoryHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item repository.ReliefItem
	if err := httputil.DecodeJSON(r, &item); err != nil {
		httputil.Error(w, err)
		return
	}
	if item.ItemName == "" || item.UOMCode == "" {
		details := make(map[string]string)
		if item.ItemName == "" {
			details["item_name"] = "this field is required"
		}
		if item.UOMCode == "" {
			details["uom_code"] = "this field is required"
		}
		httputil.Error(w, errors.Validation(details))
		return
	}

	if err := h.service.CreateItem(r.Context(), &item); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// GetItem gets a relief item by ID
func (h *InventoryHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid item ID"))
		return
	}

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// ItemAvailability sums an item's stock across all active warehouses
func (h *InventoryHandler) ItemAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid item ID"))
		return
	}

	avail, err := h.service.GetItemAvailability(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, avail)
}

// ListItems lists active relief items
func (h *InventoryHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}
