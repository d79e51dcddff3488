package service

import (
	"context"
	"fmt"

	invrepo "github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/internal/relief/events"
	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// DispatchService executes the dispatch of a relief package: the staged
// reservations are undone, the package rows are overwritten with the final
// loading plan, and usable stock is drawn down, all in one transaction.
type DispatchService struct {
	db          *database.DB
	requestRepo *repository.RequestRepository
	packageRepo *repository.PackageRepository
	pkgItemRepo *repository.PackageItemRepository
	batchRepo   *invrepo.BatchRepository
	invRepo     *invrepo.InventoryRepository
	publisher   *events.ReliefEventPublisher
	logger      *logger.Logger
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(
	db *database.DB,
	requestRepo *repository.RequestRepository,
	packageRepo *repository.PackageRepository,
	pkgItemRepo *repository.PackageItemRepository,
	batchRepo *invrepo.BatchRepository,
	invRepo *invrepo.InventoryRepository,
	publisher *events.ReliefEventPublisher,
	log *logger.Logger,
) *DispatchService {
	return &DispatchService{
		db:          db,
		requestRepo: requestRepo,
		packageRepo: packageRepo,
		pkgItemRepo: pkgItemRepo,
		batchRepo:   batchRepo,
		invRepo:     invRepo,
		publisher:   publisher,
		logger:      log,
	}
}

// dispatchLine is one batch quantity in the final loading plan
type dispatchLine struct {
	itemID      int64
	batchID     int64
	inventoryID int64
	uomCode     string
	qty         decimal.Decimal
}

// Dispatch commits a package for dispatch. finalPlans is the loading plan
// confirmed at the dock; when empty, the staged allocations dispatch as-is.
// Staged rows the final plan dropped are zeroed, not deleted, so the
// package record still shows what was originally planned.
func (s *DispatchService) Dispatch(ctx context.Context, packageID int64, versionNbr int, finalPlans []ItemAllocationPlan) error {
	pkg, err := s.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		return err
	}
	if pkg.StatusCode == repository.PackageStatusDispatched {
		return errors.Conflict("package has already been dispatched")
	}

	staged, err := s.pkgItemRepo.ListByPackage(ctx, packageID)
	if err != nil {
		return err
	}
	if len(staged) == 0 && len(finalPlans) == 0 {
		return errors.BadRequest("package has no allocations to dispatch")
	}

	lines, err := s.buildLines(ctx, staged, finalPlans)
	if err != nil {
		return err
	}

	req, err := s.requestRepo.GetByID(ctx, pkg.ReliefReqID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.packageRepo.MarkDispatchedTx(ctx, tx, packageID, versionNbr); err != nil {
			return err
		}

		// Undo the staged reservations. From here on the stock is governed
		// by the final loading plan alone.
		for _, row := range staged {
			if !row.AllocatedQty.IsPositive() {
				continue
			}
			if err := s.batchRepo.AdjustReservedTx(ctx, tx, row.BatchID, row.AllocatedQty.Neg()); err != nil {
				return err
			}
			if err := s.invRepo.AdjustReservedTx(ctx, tx, row.FRInventoryID, row.AllocatedQty.Neg()); err != nil {
				return err
			}
		}

		// Overwrite the package rows with the final plan, zeroing staged
		// rows the plan dropped.
		inPlan := make(map[int64]bool, len(lines))
		for _, line := range lines {
			inPlan[line.batchID] = true
		}
		for _, row := range staged {
			if !inPlan[row.BatchID] {
				if err := s.pkgItemRepo.ZeroQuantityTx(ctx, tx, row.ID); err != nil {
					return err
				}
			}
		}
		for _, line := range lines {
			row := &repository.ReliefPackageItem{
				ReliefPkgID:   packageID,
				FRInventoryID: line.inventoryID,
				BatchID:       line.batchID,
				ItemID:        line.itemID,
				AllocatedQty:  line.qty,
				UOMCode:       line.uomCode,
			}
			if err := s.pkgItemRepo.UpsertTx(ctx, tx, row); err != nil {
				return err
			}
		}

		// Deplete usable stock for what actually leaves the warehouse and
		// tally the issued quantity per request line.
		issuedByItem := make(map[int64]decimal.Decimal)
		issueOrder := make([]int64, 0, len(lines))
		for _, line := range lines {
			if err := s.batchRepo.DeductUsableTx(ctx, tx, line.batchID, line.qty); err != nil {
				return err
			}
			if err := s.invRepo.DeductUsableTx(ctx, tx, line.inventoryID, line.qty); err != nil {
				return err
			}
			if _, seen := issuedByItem[line.itemID]; !seen {
				issueOrder = append(issueOrder, line.itemID)
			}
			issuedByItem[line.itemID] = issuedByItem[line.itemID].Add(line.qty)
		}

		for _, itemID := range issueOrder {
			if err := s.requestRepo.AddIssueQtyTx(ctx, tx, pkg.ReliefReqID, itemID, issuedByItem[itemID]); err != nil {
				return err
			}
		}

		return s.requestRepo.UpdateStatusTx(ctx, tx, req.ID, req.VersionNbr, repository.RequestStatusDispatched)
	})
	if err != nil {
		return err
	}

	s.publisher.PublishPackageDispatched(ctx, packageID, pkg.ReliefReqID, len(lines), actor.StampID(ctx))

	s.logger.Info().
		Int64("reliefpkg_id", packageID).
		Int64("reliefreq_id", pkg.ReliefReqID).
		Int("lines", len(lines)).
		Msg("package dispatched")
	return nil
}

// buildLines resolves the final loading plan. Plan entries reuse the staged
// row's inventory reference when one exists; new batches are resolved
// through the batch record.
func (s *DispatchService) buildLines(ctx context.Context, staged []*repository.ReliefPackageItem, finalPlans []ItemAllocationPlan) ([]dispatchLine, error) {
	stagedByBatch := make(map[int64]*repository.ReliefPackageItem, len(staged))
	for _, row := range staged {
		stagedByBatch[row.BatchID] = row
	}

	if len(finalPlans) == 0 {
		lines := make([]dispatchLine, 0, len(staged))
		for _, row := range staged {
			if !row.AllocatedQty.IsPositive() {
				continue
			}
			lines = append(lines, dispatchLine{
				itemID:      row.ItemID,
				batchID:     row.BatchID,
				inventoryID: row.FRInventoryID,
				uomCode:     row.UOMCode,
				qty:         row.AllocatedQty,
			})
		}
		return lines, nil
	}

	var lines []dispatchLine
	for _, plan := range finalPlans {
		for batchID, qty := range plan.Allocations {
			if qty.IsZero() {
				continue
			}
			if qty.IsNegative() {
				return nil, errors.BadRequest(fmt.Sprintf("negative quantity for batch %d", batchID))
			}

			line := dispatchLine{itemID: plan.ItemID, batchID: batchID, qty: qty}
			if row, ok := stagedByBatch[batchID]; ok {
				line.inventoryID = row.FRInventoryID
				line.uomCode = row.UOMCode
			} else {
				batch, err := s.batchRepo.GetByID(ctx, batchID)
				if err != nil {
					return nil, err
				}
				if batch.ItemID != plan.ItemID {
					return nil, errors.BadRequest(fmt.Sprintf("batch %d does not belong to item %d", batchID, plan.ItemID))
				}
				line.inventoryID = batch.InventoryID
				line.uomCode = batch.UOMCode
			}
			lines = append(lines, line)
		}
	}
	return lines, nil
}
