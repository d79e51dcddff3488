package service

import (
	"context"

	invrepo "github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/internal/relief/allocation"
	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// AllocationService answers batch availability queries for package
// preparation, applying reservation release semantics for the calling
// session's own staged and persisted allocations.
type AllocationService struct {
	itemRepo    *invrepo.ItemRepository
	availRepo   *repository.AvailabilityRepository
	pkgItemRepo *repository.PackageItemRepository
	logger      *logger.Logger
}

// NewAllocationService creates a new allocation service
func NewAllocationService(
	itemRepo *invrepo.ItemRepository,
	availRepo *repository.AvailabilityRepository,
	pkgItemRepo *repository.PackageItemRepository,
	log *logger.Logger,
) *AllocationService {
	return &AllocationService{
		itemRepo:    itemRepo,
		availRepo:   availRepo,
		pkgItemRepo: pkgItemRepo,
		logger:      log,
	}
}

// BatchQueryParams are the inputs of one batch availability query
type BatchQueryParams struct {
	ItemID       int64
	RemainingQty decimal.Decimal
	RequiredUOM  string

	// PackageID, when set, loads the package's persisted allocations for
	// this item and releases them from the reservation totals, so editing
	// an existing package never sees its own reservations as unavailable.
	PackageID int64

	// ForceIncludeBatchIDs keeps previously chosen batches visible even
	// when their warehouse has nothing left.
	ForceIncludeBatchIDs []int64

	// CurrentAllocations carries the session's staged quantities; entries
	// override the persisted quantity for the same batch.
	CurrentAllocations map[int64]decimal.Decimal
}

// BatchListing is the canonical response of a batch availability query:
// a flat list of batches, each tagged with its warehouse and priority group.
type BatchListing struct {
	ItemID       int64  `json:"item_id"`
	ItemName     string `json:"item_name"`
	CanExpire    bool   `json:"can_expire"`
	BatchTracked bool   `json:"batch_tracked"`
	*allocation.Result
}

// QueryBatches returns the eligible batches for one line item, ranked
// FEFO or FIFO and annotated with effective availability and shortfall.
func (s *AllocationService) QueryBatches(ctx context.Context, params BatchQueryParams) (*BatchListing, error) {
	item, err := s.itemRepo.GetByID(ctx, params.ItemID)
	if err != nil {
		return nil, err
	}

	forceInclude := append([]int64(nil), params.ForceIncludeBatchIDs...)
	current := make(map[int64]decimal.Decimal, len(params.CurrentAllocations))

	if params.PackageID > 0 {
		persisted, err := s.pkgItemRepo.ListByPackageAndItem(ctx, params.PackageID, params.ItemID)
		if err != nil {
			return nil, err
		}
		for _, row := range persisted {
			forceInclude = append(forceInclude, row.BatchID)
			current[row.BatchID] = row.AllocatedQty
		}
	}
	for batchID, qty := range params.CurrentAllocations {
		current[batchID] = qty
	}

	stock, err := s.availRepo.GetBatchStock(ctx, params.ItemID, params.RequiredUOM)
	if err != nil {
		return nil, err
	}

	candidates := make([]allocation.Candidate, len(stock))
	for i, row := range stock {
		candidates[i] = row.ToCandidate()
	}

	result := allocation.Evaluate(candidates, item.CanExpireFlag, params.RemainingQty, forceInclude, current)

	s.logger.Debug().
		Int64("item_id", params.ItemID).
		Int("batches", len(result.Batches)).
		Str("issuance_order", result.IssuanceOrder).
		Str("shortfall", result.Shortfall.String()).
		Msg("batch availability query")

	return &BatchListing{
		ItemID:       item.ID,
		ItemName:     item.ItemName,
		CanExpire:    item.CanExpireFlag,
		BatchTracked: item.BatchTrackedFlag,
		Result:       result,
	}, nil
}
