package events

import (
	"context"

	"github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/messaging"
)

// InventoryEventPublisher publishes inventory-related events
type InventoryEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "drims-server", log)
	if err != nil {
		return nil, err
	}

	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchCreated publishes a batch created event
func (p *InventoryEventPublisher) PublishBatchCreated(ctx context.Context, batch *repository.ItemBatch) {
	if p == nil {
		return
	}

	data := messaging.BatchCreatedEvent{
		BatchID:     batch.ID,
		InventoryID: batch.InventoryID,
		ItemID:      batch.ItemID,
		BatchNo:     batch.BatchNo,
		ExpiryDate:  batch.ExpiryDate,
		UsableQty:   batch.UsableQty,
		CreatedBy:   batch.CreateByID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchCreated, data); err != nil {
		p.logger.Error().Err(err).Int64("batch_id", batch.ID).Msg("failed to publish batch created event")
	}
}

// PublishBatchUpdated publishes a batch updated event
func (p *InventoryEventPublisher) PublishBatchUpdated(ctx context.Context, batch *repository.ItemBatch) {
	if p == nil {
		return
	}

	data := messaging.BatchUpdatedEvent{
		BatchID:     batch.ID,
		InventoryID: batch.InventoryID,
		ItemID:      batch.ItemID,
		UsableQty:   batch.UsableQty,
		ReservedQty: batch.ReservedQty,
		StatusCode:  batch.StatusCode,
		UpdatedBy:   batch.UpdateByID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchUpdated, data); err != nil {
		p.logger.Error().Err(err).Int64("batch_id", batch.ID).Msg("failed to publish batch updated event")
	}
}

// PublishBatchExpiring publishes a batch expiring event
func (p *InventoryEventPublisher) PublishBatchExpiring(ctx context.Context, batch *repository.ExpiringBatch, daysUntil int) {
	if p == nil {
		return
	}
	if batch.ExpiryDate == nil {
		return
	}

	data := messaging.BatchExpiringEvent{
		BatchID:    batch.ID,
		ItemID:     batch.ItemID,
		ItemName:   batch.ItemName,
		BatchNo:    batch.BatchNo,
		ExpiryDate: *batch.ExpiryDate,
		DaysUntil:  daysUntil,
		UsableQty:  batch.UsableQty,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchExpiring, data); err != nil {
		p.logger.Error().Err(err).Int64("batch_id", batch.ID).Msg("failed to publish batch expiring event")
	}
}
