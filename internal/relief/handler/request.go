package handler

import (
	"net/http"
	"strconv"

	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/internal/relief/service"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// RequestHandler handles relief request endpoints
type RequestHandler struct {
	service *service.RequestService
	logger  *logger.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(svc *service.RequestService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		service: svc,
		logger:  log,
	}
}

func requestID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		return 0, errors.BadRequest("invalid request ID")
	}
	return id, nil
}

// CreateReliefRequest is the body for registering a relief request
type CreateReliefRequest struct {
	RequestorName string  `json:"requestor_name" validate:"required,max=255"`
	RegionCode    *string `json:"region_code,omitempty"`
}

// Create registers a new relief request
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateReliefRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(body); err != nil {
		httputil.Error(w, err)
		return
	}

	req := &repository.ReliefRequest{
		RequestorName: body.RequestorName,
		RegionCode:    body.RegionCode,
	}
	if err := h.service.CreateRequest(r.Context(), req); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, req)
}

// List lists relief requests by status
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.service.ListRequests(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, reqs)
}

// Get returns a relief request with its line items
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// AddItemRequest is the body for adding a line item to a request
type AddItemRequest struct {
	ItemID       int64           `json:"item_id" validate:"required,gt=0"`
	RequestedQty decimal.Decimal `json:"requested_qty" validate:"required"`
	UOMCode      string          `json:"uom_code,omitempty"`
}

// AddItem adds a line item to a relief request
func (h *RequestHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var body AddItemRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(body); err != nil {
		httputil.Error(w, err)
		return
	}
	if !body.RequestedQty.IsPositive() {
		httputil.Error(w, errors.Validation(map[string]string{
			"requested_qty": "must be greater than zero",
		}))
		return
	}

	line := &repository.ReliefRequestItem{
		ReliefReqID:  id,
		ItemID:       body.ItemID,
		RequestedQty: body.RequestedQty,
		UOMCode:      body.UOMCode,
	}
	if err := h.service.AddItem(r.Context(), line); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, line)
}
