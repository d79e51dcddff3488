package events

import (
	"context"
	"time"

	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/messaging"
	"github.com/shopspring/decimal"
)

// ReliefEventPublisher publishes relief-related events
type ReliefEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewReliefEventPublisher creates a new relief event publisher
func NewReliefEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*ReliefEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeReliefEvents, "drims-server", log)
	if err != nil {
		return nil, err
	}

	return &ReliefEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishAllocationApplied publishes an allocation applied event
func (p *ReliefEventPublisher) PublishAllocationApplied(ctx context.Context, packageID, requestID, itemID int64, allocatedQty decimal.Decimal, batchCount int, performedBy int64) {
	if p == nil {
		return
	}

	data := messaging.AllocationAppliedEvent{
		ReliefPkgID:  packageID,
		ReliefReqID:  requestID,
		ItemID:       itemID,
		AllocatedQty: allocatedQty,
		BatchCount:   batchCount,
		PerformedBy:  performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAllocationApplied, data); err != nil {
		p.logger.Error().Err(err).Int64("reliefpkg_id", packageID).Msg("failed to publish allocation applied event")
	}
}

// PublishAllocationReleased publishes an allocation released event
func (p *ReliefEventPublisher) PublishAllocationReleased(ctx context.Context, packageID, itemID int64, releasedQty decimal.Decimal, performedBy int64) {
	if p == nil {
		return
	}

	data := messaging.AllocationReleasedEvent{
		ReliefPkgID: packageID,
		ItemID:      itemID,
		ReleasedQty: releasedQty,
		PerformedBy: performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAllocationReleased, data); err != nil {
		p.logger.Error().Err(err).Int64("reliefpkg_id", packageID).Msg("failed to publish allocation released event")
	}
}

// PublishPackageDispatched publishes a package dispatched event
func (p *ReliefEventPublisher) PublishPackageDispatched(ctx context.Context, packageID, requestID int64, itemCount int, performedBy int64) {
	if p == nil {
		return
	}

	data := messaging.PackageDispatchedEvent{
		ReliefPkgID:  packageID,
		ReliefReqID:  requestID,
		ItemCount:    itemCount,
		DispatchedAt: time.Now().UTC(),
		PerformedBy:  performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPackageDispatched, data); err != nil {
		p.logger.Error().Err(err).Int64("reliefpkg_id", packageID).Msg("failed to publish package dispatched event")
	}
}
