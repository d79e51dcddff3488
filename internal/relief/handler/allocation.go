package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/drims/drims-backend/internal/relief/service"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AllocationHandler handles batch availability queries
type AllocationHandler struct {
	service *service.AllocationService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.AllocationService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

// QueryBatches returns the eligible batches for an item, ranked FEFO/FIFO.
//
// Query parameters:
//   - remaining_qty: quantity still needed (required)
//   - uom: restrict to batches in this unit of measure
//   - package_id: release this package's own persisted reservations
//   - allocated_batch_ids: comma-separated batch IDs to force-include
//   - allocations: JSON map of batch ID to staged quantity
func (h *AllocationHandler) QueryBatches(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid item ID"))
		return
	}

	params := service.BatchQueryParams{ItemID: itemID}
	q := r.URL.Query()

	if raw := q.Get("remaining_qty"); raw != "" {
		params.RemainingQty, err = decimal.NewFromString(raw)
		if err != nil || params.RemainingQty.IsNegative() {
			httputil.Error(w, errors.BadRequest("invalid remaining_qty"))
			return
		}
	}

	params.RequiredUOM = q.Get("uom")

	if raw := q.Get("package_id"); raw != "" {
		params.PackageID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid package_id"))
			return
		}
	}

	if raw := q.Get("allocated_batch_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				httputil.Error(w, errors.BadRequest("invalid allocated_batch_ids"))
				return
			}
			params.ForceIncludeBatchIDs = append(params.ForceIncludeBatchIDs, id)
		}
	}

	if raw := q.Get("allocations"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params.CurrentAllocations); err != nil {
			httputil.Error(w, errors.BadRequest("invalid allocations map"))
			return
		}
	}

	listing, err := h.service.QueryBatches(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, listing)
}
