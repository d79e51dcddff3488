package service

import (
	"context"

	invrepo "github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/pkg/logger"
)

// RequestService handles relief request intake
type RequestService struct {
	requestRepo *repository.RequestRepository
	itemRepo    *invrepo.ItemRepository
	logger      *logger.Logger
}

// NewRequestService creates a new request service
func NewRequestService(requestRepo *repository.RequestRepository, itemRepo *invrepo.ItemRepository, log *logger.Logger) *RequestService {
	return &RequestService{
		requestRepo: requestRepo,
		itemRepo:    itemRepo,
		logger:      log,
	}
}

// RequestWithItems is a relief request with its line items
type RequestWithItems struct {
	*repository.ReliefRequest
	Items []*repository.ReliefRequestItem `json:"items"`
}

// CreateRequest registers a new relief request
func (s *RequestService) CreateRequest(ctx context.Context, req *repository.ReliefRequest) error {
	if req.StatusCode == "" {
		req.StatusCode = repository.RequestStatusOpen
	}
	return s.requestRepo.Create(ctx, req)
}

// GetRequest returns a relief request with its line items
func (s *RequestService) GetRequest(ctx context.Context, requestID int64) (*RequestWithItems, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	items, err := s.requestRepo.GetItems(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &RequestWithItems{ReliefRequest: req, Items: items}, nil
}

// ListRequests lists relief requests by status
func (s *RequestService) ListRequests(ctx context.Context, statusCode string) ([]*repository.ReliefRequest, error) {
	if statusCode == "" {
		statusCode = repository.RequestStatusOpen
	}
	return s.requestRepo.ListByStatus(ctx, statusCode)
}

// AddItem adds a line item to a relief request. The item must exist; its
// unit of measure fills in when the line omits one.
func (s *RequestService) AddItem(ctx context.Context, line *repository.ReliefRequestItem) error {
	item, err := s.itemRepo.GetByID(ctx, line.ItemID)
	if err != nil {
		return err
	}
	if line.UOMCode == "" {
		line.UOMCode = item.UOMCode
	}
	return s.requestRepo.AddItem(ctx, line)
}
