package repository

import (
	"context"
	"time"

	"github.com/drims/drims-backend/internal/relief/allocation"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/shopspring/decimal"
)

// BatchStock is one active batch of an item joined with its warehouse,
// as fed into the allocation engine. Filtering and ranking happen in the
// engine, not in SQL, so the engine sees every batch when computing
// warehouse-level net availability.
type BatchStock struct {
	BatchID       int64           `db:"batch_id"`
	InventoryID   int64           `db:"inventory_id"`
	WarehouseID   int64           `db:"warehouse_id"`
	WarehouseName string          `db:"warehouse_name"`
	ItemID        int64           `db:"item_id"`
	BatchNo       *string         `db:"batch_no"`
	BatchDate     *time.Time      `db:"batch_date"`
	ExpiryDate    *time.Time      `db:"expiry_date"`
	UsableQty     decimal.Decimal `db:"usable_qty"`
	ReservedQty   decimal.Decimal `db:"reserved_qty"`
	UOMCode       string          `db:"uom_code"`
	SizeSpec      *string         `db:"size_spec"`
}

// ToCandidate converts a stock row into an allocation candidate
func (s *BatchStock) ToCandidate() allocation.Candidate {
	return allocation.Candidate{
		BatchID:       s.BatchID,
		InventoryID:   s.InventoryID,
		WarehouseID:   s.WarehouseID,
		WarehouseName: s.WarehouseName,
		ItemID:        s.ItemID,
		BatchNo:       s.BatchNo,
		BatchDate:     s.BatchDate,
		ExpiryDate:    s.ExpiryDate,
		UsableQty:     s.UsableQty,
		ReservedQty:   s.ReservedQty,
		UOMCode:       s.UOMCode,
		SizeSpec:      s.SizeSpec,
	}
}

// AvailabilityRepository reads batch stock for the allocation engine
type AvailabilityRepository struct {
	db *database.DB
}

// NewAvailabilityRepository creates a new availability repository
func NewAvailabilityRepository(db *database.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetBatchStock returns every active batch of an item across all active
// warehouses, with its warehouse reference. requiredUOM narrows to batches
// in a specific unit of measure when non-empty.
func (r *AvailabilityRepository) GetBatchStock(ctx context.Context, itemID int64, requiredUOM string) ([]*BatchStock, error) {
	var stock []*BatchStock
	query := `
		SELECT
			b.id AS batch_id, b.inventory_id, inv.warehouse_id, w.warehouse_name, b.item_id,
			b.batch_no, b.batch_date, b.expiry_date,
			b.usable_qty, b.reserved_qty, b.uom_code, b.size_spec
		FROM item_batch b
		JOIN fr_inventory inv ON inv.id = b.inventory_id
		JOIN fr_warehouse w ON w.id = inv.warehouse_id
		WHERE b.item_id = $1 AND b.status_code = 'A'
		AND inv.status_code = 'A' AND w.status_code = 'A'
		AND ($2 = '' OR b.uom_code = $2)
		ORDER BY b.id
	`
	if err := r.db.SelectContext(ctx, &stock, query, itemID, requiredUOM); err != nil {
		return nil, err
	}
	return stock, nil
}
