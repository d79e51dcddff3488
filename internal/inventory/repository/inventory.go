package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Inventory represents one item's stock record at one warehouse. Its
// usable/reserved quantities aggregate the warehouse's batches for the item.
type Inventory struct {
	ID          int64           `db:"id" json:"id"`
	WarehouseID int64           `db:"warehouse_id" json:"warehouse_id"`
	ItemID      int64           `db:"item_id" json:"item_id"`
	UsableQty   decimal.Decimal `db:"usable_qty" json:"usable_qty"`
	ReservedQty decimal.Decimal `db:"reserved_qty" json:"reserved_qty"`
	StatusCode  string          `db:"status_code" json:"status_code"`
	CreateByID  int64           `db:"create_by_id" json:"create_by_id"`
	CreateDtime time.Time       `db:"create_dtime" json:"create_dtime"`
	UpdateByID  int64           `db:"update_by_id" json:"update_by_id"`
	UpdateDtime time.Time       `db:"update_dtime" json:"update_dtime"`
	VersionNbr  int             `db:"version_nbr" json:"version_nbr"`
}

// InventoryRepository handles warehouse inventory persistence
type InventoryRepository struct {
	db *database.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *database.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Create creates a new inventory record
func (r *InventoryRepository) Create(ctx context.Context, inv *Inventory) error {
	stamp := actor.StampID(ctx)

	query := `
		INSERT INTO fr_inventory (warehouse_id, item_id, usable_qty, reserved_qty, status_code, create_by_id, update_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	return r.db.QueryRowxContext(ctx, query,
		inv.WarehouseID, inv.ItemID, inv.UsableQty, inv.ReservedQty, inv.StatusCode, stamp,
	).Scan(&inv.ID, &inv.CreateDtime, &inv.UpdateDtime, &inv.VersionNbr)
}

// GetByID gets an inventory record by ID
func (r *InventoryRepository) GetByID(ctx context.Context, id int64) (*Inventory, error) {
	var inv Inventory
	query := `SELECT * FROM fr_inventory WHERE id = $1`
	if err := r.db.GetContext(ctx, &inv, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("inventory record")
		}
		return nil, err
	}
	return &inv, nil
}

// GetByWarehouseAndItem gets the inventory record for one warehouse and item
func (r *InventoryRepository) GetByWarehouseAndItem(ctx context.Context, warehouseID, itemID int64) (*Inventory, error) {
	var inv Inventory
	query := `SELECT * FROM fr_inventory WHERE warehouse_id = $1 AND item_id = $2`
	if err := r.db.GetContext(ctx, &inv, query, warehouseID, itemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("inventory record")
		}
		return nil, err
	}
	return &inv, nil
}

// ItemAvailability aggregates an item's stock across all active warehouses
type ItemAvailability struct {
	ItemID      int64           `db:"item_id" json:"item_id"`
	UsableQty   decimal.Decimal `db:"usable_qty" json:"usable_qty"`
	ReservedQty decimal.Decimal `db:"reserved_qty" json:"reserved_qty"`
	Warehouses  int             `db:"warehouses" json:"warehouses"`
}

// GetItemAvailability sums an item's usable and reserved stock over its
// active warehouse inventory records.
func (r *InventoryRepository) GetItemAvailability(ctx context.Context, itemID int64) (*ItemAvailability, error) {
	var avail ItemAvailability
	query := `
		SELECT $1 AS item_id,
			COALESCE(SUM(usable_qty), 0) AS usable_qty,
			COALESCE(SUM(reserved_qty), 0) AS reserved_qty,
			COUNT(*) AS warehouses
		FROM fr_inventory
		WHERE item_id = $1 AND status_code = 'A'
	`
	if err := r.db.GetContext(ctx, &avail, query, itemID); err != nil {
		return nil, err
	}
	return &avail, nil
}

// AdjustReservedTx shifts an inventory record's reserved quantity by delta
// inside an existing transaction. Negative deltas release reservations.
func (r *InventoryRepository) AdjustReservedTx(ctx context.Context, tx *sqlx.Tx, inventoryID int64, delta decimal.Decimal) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE fr_inventory SET
			reserved_qty = reserved_qty + $2,
			update_by_id = $3, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, inventoryID, delta, stamp)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("inventory record")
	}
	return nil
}

// DeductUsableTx draws down an inventory record's usable quantity on
// dispatch, inside an existing transaction. Reservations for the dispatched
// quantity must already have been released.
func (r *InventoryRepository) DeductUsableTx(ctx context.Context, tx *sqlx.Tx, inventoryID int64, qty decimal.Decimal) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE fr_inventory SET
			usable_qty = usable_qty - $2,
			update_by_id = $3, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND usable_qty >= $2
	`

	result, err := tx.ExecContext(ctx, query, inventoryID, qty, stamp)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InsufficientStock("warehouse stock is below the dispatch quantity")
	}
	return nil
}
