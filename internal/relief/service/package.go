package service

import (
	"context"
	"fmt"

	invrepo "github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/internal/relief/allocation"
	"github.com/drims/drims-backend/internal/relief/events"
	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PackageService reconciles finalized allocation plans against persisted
// package item rows and keeps batch and warehouse reservation totals in
// step with them.
type PackageService struct {
	db          *database.DB
	requestRepo *repository.RequestRepository
	packageRepo *repository.PackageRepository
	pkgItemRepo *repository.PackageItemRepository
	availRepo   *repository.AvailabilityRepository
	itemRepo    *invrepo.ItemRepository
	batchRepo   *invrepo.BatchRepository
	invRepo     *invrepo.InventoryRepository
	publisher   *events.ReliefEventPublisher
	logger      *logger.Logger
}

// NewPackageService creates a new package service
func NewPackageService(
	db *database.DB,
	requestRepo *repository.RequestRepository,
	packageRepo *repository.PackageRepository,
	pkgItemRepo *repository.PackageItemRepository,
	availRepo *repository.AvailabilityRepository,
	itemRepo *invrepo.ItemRepository,
	batchRepo *invrepo.BatchRepository,
	invRepo *invrepo.InventoryRepository,
	publisher *events.ReliefEventPublisher,
	log *logger.Logger,
) *PackageService {
	return &PackageService{
		db:          db,
		requestRepo: requestRepo,
		packageRepo: packageRepo,
		pkgItemRepo: pkgItemRepo,
		availRepo:   availRepo,
		itemRepo:    itemRepo,
		batchRepo:   batchRepo,
		invRepo:     invRepo,
		publisher:   publisher,
		logger:      log,
	}
}

// ItemAllocationPlan is the finalized batch-to-quantity map for one line item
type ItemAllocationPlan struct {
	ItemID      int64                     `json:"item_id"`
	Allocations map[int64]decimal.Decimal `json:"allocations"`
}

// reconciledItem is one line item's validated plan, ready to persist
type reconciledItem struct {
	itemID     int64
	final      map[int64]decimal.Decimal
	oldQty     map[int64]decimal.Decimal
	candidates map[int64]allocation.Candidate
	totalQty   decimal.Decimal
	released   decimal.Decimal
}

// CreatePackage creates a draft package against a relief request
func (s *PackageService) CreatePackage(ctx context.Context, requestID int64) (*repository.ReliefPackage, error) {
	if _, err := s.requestRepo.GetByID(ctx, requestID); err != nil {
		return nil, err
	}

	pkg := &repository.ReliefPackage{
		ReliefReqID: requestID,
		StatusCode:  repository.PackageStatusDraft,
	}
	if err := s.packageRepo.Create(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// GetPackage returns a package with its allocation rows
func (s *PackageService) GetPackage(ctx context.Context, packageID int64) (*repository.ReliefPackage, []*repository.ReliefPackageItem, error) {
	pkg, err := s.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.pkgItemRepo.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}
	return pkg, rows, nil
}

// SaveAllocations validates and persists the finalized allocation plans for
// a package. Validation re-runs the engine server side: availability,
// pick order and the requested-quantity ceiling are all enforced here, not
// just in the client. All row mutations and reservation adjustments commit
// in one transaction; a version conflict on the package aborts the save.
func (s *PackageService) SaveAllocations(ctx context.Context, packageID int64, versionNbr int, plans []ItemAllocationPlan) error {
	pkg, err := s.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		return err
	}
	if pkg.StatusCode == repository.PackageStatusDispatched {
		return errors.Conflict("package has already been dispatched")
	}

	reconciled := make([]*reconciledItem, 0, len(plans))
	for _, plan := range plans {
		rec, err := s.validatePlan(ctx, pkg, plan)
		if err != nil {
			return err
		}
		reconciled = append(reconciled, rec)
	}

	req, err := s.requestRepo.GetByID(ctx, pkg.ReliefReqID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		// CAS on the package version first so concurrent editors of the
		// same package fail fast without touching stock rows.
		if err := s.packageRepo.TouchTx(ctx, tx, packageID, versionNbr); err != nil {
			return err
		}

		for _, rec := range reconciled {
			if err := s.persistItem(ctx, tx, packageID, rec); err != nil {
				return err
			}
		}

		if req.StatusCode == repository.RequestStatusOpen {
			if err := s.requestRepo.UpdateStatusTx(ctx, tx, req.ID, req.VersionNbr, repository.RequestStatusAllocated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	performedBy := actor.StampID(ctx)
	for _, rec := range reconciled {
		if len(rec.final) > 0 {
			s.publisher.PublishAllocationApplied(ctx, packageID, pkg.ReliefReqID, rec.itemID, rec.totalQty, len(rec.final), performedBy)
		}
		if rec.released.IsPositive() {
			s.publisher.PublishAllocationReleased(ctx, packageID, rec.itemID, rec.released, performedBy)
		}
	}

	s.logger.Info().
		Int64("reliefpkg_id", packageID).
		Int("items", len(reconciled)).
		Msg("package allocations saved")
	return nil
}

// validatePlan re-runs the allocation engine for one line item and stages
// the incoming quantities against it.
func (s *PackageService) validatePlan(ctx context.Context, pkg *repository.ReliefPackage, plan ItemAllocationPlan) (*reconciledItem, error) {
	item, err := s.itemRepo.GetByID(ctx, plan.ItemID)
	if err != nil {
		return nil, err
	}
	reqItem, err := s.requestRepo.GetItem(ctx, pkg.ReliefReqID, plan.ItemID)
	if err != nil {
		return nil, err
	}

	persisted, err := s.pkgItemRepo.ListByPackageAndItem(ctx, pkg.ID, plan.ItemID)
	if err != nil {
		return nil, err
	}
	current := make(map[int64]decimal.Decimal, len(persisted))
	forceInclude := make([]int64, 0, len(persisted))
	oldQty := make(map[int64]decimal.Decimal, len(persisted))
	for _, row := range persisted {
		current[row.BatchID] = row.AllocatedQty
		forceInclude = append(forceInclude, row.BatchID)
		oldQty[row.BatchID] = row.AllocatedQty
	}

	stock, err := s.availRepo.GetBatchStock(ctx, plan.ItemID, "")
	if err != nil {
		return nil, err
	}
	candidates := make([]allocation.Candidate, len(stock))
	for i, row := range stock {
		candidates[i] = row.ToCandidate()
	}

	result := allocation.Evaluate(candidates, item.CanExpireFlag, reqItem.RequestedQty, forceInclude, current)
	byBatch := make(map[int64]allocation.Candidate, len(result.Batches))
	for _, c := range result.Batches {
		byBatch[c.BatchID] = c
	}

	draft := allocation.NewDraft(reqItem.RequestedQty, result)
	for batchID, qty := range plan.Allocations {
		if qty.IsZero() {
			continue
		}
		if qty.IsNegative() {
			return nil, errors.BadRequest(fmt.Sprintf("negative quantity for batch %d", batchID))
		}
		candidate, ok := byBatch[batchID]
		if !ok {
			return nil, errors.BadRequest(fmt.Sprintf("batch %d is not eligible for item %d", batchID, plan.ItemID))
		}
		if qty.GreaterThan(candidate.EffectiveAvailable) {
			return nil, errors.InsufficientStock(fmt.Sprintf(
				"batch %d has %s available, %s requested",
				batchID, candidate.EffectiveAvailable.String(), qty.String(),
			))
		}
		draft.SetQuantity(batchID, qty)
	}

	if check := draft.ValidatePickOrder(); !check.IsValid {
		details := map[string]string{
			"upstream_available": check.UpstreamAvailable.String(),
		}
		for _, id := range check.OffendingBatchIDs {
			details[fmt.Sprintf("batch_%d", id)] = "allocated out of pick order"
		}
		return nil, errors.PickOrderViolation(check.Message, details)
	}

	final, err := draft.Apply()
	if err != nil {
		return nil, err
	}

	rec := &reconciledItem{
		itemID:     plan.ItemID,
		final:      final,
		oldQty:     oldQty,
		candidates: byBatch,
		totalQty:   draft.TotalAllocated(),
	}
	for batchID, qty := range oldQty {
		if _, kept := final[batchID]; !kept {
			rec.released = rec.released.Add(qty)
		}
	}
	return rec, nil
}

// persistItem reconciles one line item's rows and reservation totals inside
// the save transaction.
func (s *PackageService) persistItem(ctx context.Context, tx *sqlx.Tx, packageID int64, rec *reconciledItem) error {
	keep := make([]int64, 0, len(rec.final))
	for batchID := range rec.final {
		keep = append(keep, batchID)
	}

	// Dropped batches lose their rows entirely; their reservations are
	// released on both the batch and the warehouse inventory record.
	deleted, err := s.pkgItemRepo.DeleteAbsentTx(ctx, tx, packageID, rec.itemID, keep)
	if err != nil {
		return err
	}
	for _, row := range deleted {
		if err := s.batchRepo.AdjustReservedTx(ctx, tx, row.BatchID, row.AllocatedQty.Neg()); err != nil {
			return err
		}
		if err := s.invRepo.AdjustReservedTx(ctx, tx, row.FRInventoryID, row.AllocatedQty.Neg()); err != nil {
			return err
		}
	}

	for batchID, qty := range rec.final {
		candidate := rec.candidates[batchID]
		row := &repository.ReliefPackageItem{
			ReliefPkgID:   packageID,
			FRInventoryID: candidate.InventoryID,
			BatchID:       batchID,
			ItemID:        rec.itemID,
			AllocatedQty:  qty,
			UOMCode:       candidate.UOMCode,
		}
		if err := s.pkgItemRepo.UpsertTx(ctx, tx, row); err != nil {
			return err
		}

		delta := qty.Sub(rec.oldQty[batchID])
		if delta.IsZero() {
			continue
		}
		if err := s.batchRepo.AdjustReservedTx(ctx, tx, batchID, delta); err != nil {
			return err
		}
		if err := s.invRepo.AdjustReservedTx(ctx, tx, candidate.InventoryID, delta); err != nil {
			return err
		}
	}
	return nil
}
