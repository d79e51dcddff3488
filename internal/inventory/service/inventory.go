package service

import (
	"context"
	"time"

	"github.com/drims/drims-backend/internal/inventory/events"
	"github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
)

// InventoryService handles warehouse, item and batch business logic
type InventoryService struct {
	warehouseRepo *repository.WarehouseRepository
	itemRepo      *repository.ItemRepository
	invRepo       *repository.InventoryRepository
	batchRepo     *repository.BatchRepository
	publisher     *events.InventoryEventPublisher
	logger        *logger.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	warehouseRepo *repository.WarehouseRepository,
	itemRepo *repository.ItemRepository,
	invRepo *repository.InventoryRepository,
	batchRepo *repository.BatchRepository,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		warehouseRepo: warehouseRepo,
		itemRepo:      itemRepo,
		invRepo:       invRepo,
		batchRepo:     batchRepo,
		publisher:     publisher,
		logger:        log,
	}
}

// Warehouse operations

// CreateWarehouse creates a new warehouse
func (s *InventoryService) CreateWarehouse(ctx context.Context, w *repository.Warehouse) error {
	if w.StatusCode == "" {
		w.StatusCode = "A"
	}
	return s.warehouseRepo.Create(ctx, w)
}

// ListWarehouses lists active warehouses
func (s *InventoryService) ListWarehouses(ctx context.Context) ([]*repository.Warehouse, error) {
	return s.warehouseRepo.ListActive(ctx)
}

// Item operations

// CreateItem creates a new relief item
func (s *InventoryService) CreateItem(ctx context.Context, item *repository.ReliefItem) error {
	if item.StatusCode == "" {
		item.StatusCode = "A"
	}
	return s.itemRepo.Create(ctx, item)
}

// GetItem gets a relief item by ID
func (s *InventoryService) GetItem(ctx context.Context, id int64) (*repository.ReliefItem, error) {
	return s.itemRepo.GetByID(ctx, id)
}

// ListItems lists active relief items
func (s *InventoryService) ListItems(ctx context.Context) ([]*repository.ReliefItem, error) {
	return s.itemRepo.ListActive(ctx)
}

// GetItemAvailability sums an item's stock across all active warehouses
func (s *InventoryService) GetItemAvailability(ctx context.Context, itemID int64) (*repository.ItemAvailability, error) {
	if _, err := s.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.invRepo.GetItemAvailability(ctx, itemID)
}

// Batch operations

// CreateBatch registers a batch from a verified donation intake. Intake
// rules: batch number and receipt date come as a pair, an expiring item
// must carry an expiry date after the receipt date, reservations cannot
// exceed usable stock, and the same batch number cannot be taken in twice
// for one item at one warehouse.
func (s *InventoryService) CreateBatch(ctx context.Context, batch *repository.ItemBatch) error {
	item, err := s.itemRepo.GetByID(ctx, batch.ItemID)
	if err != nil {
		return err
	}
	if _, err := s.invRepo.GetByID(ctx, batch.InventoryID); err != nil {
		return err
	}

	if err := validateBatch(item, batch); err != nil {
		return err
	}

	if batch.BatchNo != nil {
		dup, err := s.batchRepo.HasDuplicateBatchNo(ctx, batch.InventoryID, batch.ItemID, *batch.BatchNo)
		if err != nil {
			return err
		}
		if dup {
			return errors.Conflict("a batch with this batch number already exists for the item")
		}
	}

	if batch.UOMCode == "" {
		batch.UOMCode = item.UOMCode
	}
	if batch.StatusCode == "" {
		batch.StatusCode = "A"
	}

	if err := s.batchRepo.Create(ctx, batch); err != nil {
		return err
	}

	s.publisher.PublishBatchCreated(ctx, batch)
	return nil
}

// validateBatch applies the donation-intake rules shared by batch creation
// and batch correction.
func validateBatch(item *repository.ReliefItem, batch *repository.ItemBatch) error {
	details := make(map[string]string)
	if (batch.BatchNo == nil) != (batch.BatchDate == nil) {
		details["batch_no"] = "batch number and batch date must be provided together"
	}
	if item.CanExpireFlag && batch.ExpiryDate == nil {
		details["expiry_date"] = "required for items that can expire"
	}
	if batch.ExpiryDate != nil && batch.BatchDate != nil && !batch.ExpiryDate.After(*batch.BatchDate) {
		details["expiry_date"] = "must be after the batch date"
	}
	if batch.UsableQty.IsNegative() || batch.ReservedQty.IsNegative() ||
		batch.DefectiveQty.IsNegative() || batch.ExpiredQty.IsNegative() {
		details["quantity"] = "must not be negative"
	}
	if batch.ReservedQty.GreaterThan(batch.UsableQty) {
		details["reserved_qty"] = "must not exceed usable quantity"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// UpdateBatch applies a stock correction to a batch under the optimistic
// lock. The warehouse and item references of a batch are immutable; the
// intake validation rules apply to the corrected values.
func (s *InventoryService) UpdateBatch(ctx context.Context, batch *repository.ItemBatch) error {
	existing, err := s.batchRepo.GetByID(ctx, batch.ID)
	if err != nil {
		return err
	}
	batch.InventoryID = existing.InventoryID
	batch.ItemID = existing.ItemID

	item, err := s.itemRepo.GetByID(ctx, batch.ItemID)
	if err != nil {
		return err
	}
	if err := validateBatch(item, batch); err != nil {
		return err
	}

	if batch.UOMCode == "" {
		batch.UOMCode = existing.UOMCode
	}
	if batch.StatusCode == "" {
		batch.StatusCode = existing.StatusCode
	}

	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return err
	}

	s.publisher.PublishBatchUpdated(ctx, batch)
	return nil
}

// GetBatch gets a batch by ID
func (s *InventoryService) GetBatch(ctx context.Context, id int64) (*repository.ItemBatch, error) {
	return s.batchRepo.GetByID(ctx, id)
}

// ListBatchesByItem lists active batches for an item
func (s *InventoryService) ListBatchesByItem(ctx context.Context, itemID int64) ([]*repository.ItemBatch, error) {
	if _, err := s.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.batchRepo.ListByItem(ctx, itemID)
}

// ListExpiringBatches lists active batches with stock expiring within the
// given window, soonest first.
func (s *InventoryService) ListExpiringBatches(ctx context.Context, withinDays int) ([]*repository.ExpiringBatch, error) {
	return s.batchRepo.GetExpiringBatches(ctx, withinDays)
}

// CheckExpiringBatches publishes an expiring event for every batch with
// stock running out within the given window. Meant to be called from a
// periodic job.
func (s *InventoryService) CheckExpiringBatches(ctx context.Context, withinDays int) (int, error) {
	batches, err := s.batchRepo.GetExpiringBatches(ctx, withinDays)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, batch := range batches {
		daysUntil := int(batch.ExpiryDate.Sub(now).Hours() / 24)
		s.publisher.PublishBatchExpiring(ctx, batch, daysUntil)
	}

	if len(batches) > 0 {
		s.logger.Info().Int("count", len(batches)).Int("within_days", withinDays).Msg("expiring batches flagged")
	}
	return len(batches), nil
}
