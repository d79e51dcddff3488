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

// ItemBatch represents one receipt-lot of an item at one warehouse.
// Reservations draw down availability, not stock itself, until dispatch.
type ItemBatch struct {
	ID           int64            `db:"id" json:"id"`
	InventoryID  int64            `db:"inventory_id" json:"inventory_id"`
	ItemID       int64            `db:"item_id" json:"item_id"`
	BatchNo      *string          `db:"batch_no" json:"batch_no,omitempty"`
	BatchDate    *time.Time       `db:"batch_date" json:"batch_date,omitempty"`
	ExpiryDate   *time.Time       `db:"expiry_date" json:"expiry_date,omitempty"`
	UsableQty    decimal.Decimal  `db:"usable_qty" json:"usable_qty"`
	ReservedQty  decimal.Decimal  `db:"reserved_qty" json:"reserved_qty"`
	DefectiveQty decimal.Decimal  `db:"defective_qty" json:"defective_qty"`
	ExpiredQty   decimal.Decimal  `db:"expired_qty" json:"expired_qty"`
	UOMCode      string           `db:"uom_code" json:"uom_code"`
	SizeSpec     *string          `db:"size_spec" json:"size_spec,omitempty"`
	AvgUnitValue *decimal.Decimal `db:"avg_unit_value" json:"avg_unit_value,omitempty"`
	VerifiedFlag bool             `db:"verified_flag" json:"verified_flag"`
	StatusCode   string           `db:"status_code" json:"status_code"`
	CreateByID   int64            `db:"create_by_id" json:"create_by_id"`
	CreateDtime  time.Time        `db:"create_dtime" json:"create_dtime"`
	UpdateByID   int64            `db:"update_by_id" json:"update_by_id"`
	UpdateDtime  time.Time        `db:"update_dtime" json:"update_dtime"`
	VersionNbr   int              `db:"version_nbr" json:"version_nbr"`
}

// ExpiringBatch is a batch nearing expiry, joined with its item name
type ExpiringBatch struct {
	ItemBatch
	ItemName string `db:"item_name" json:"item_name"`
}

// BatchRepository handles item batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *ItemBatch) error {
	stamp := actor.StampID(ctx)

	query := `
		INSERT INTO item_batch (
			inventory_id, item_id, batch_no, batch_date, expiry_date,
			usable_qty, reserved_qty, defective_qty, expired_qty,
			uom_code, size_spec, avg_unit_value, verified_flag, status_code,
			create_by_id, update_by_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	return r.db.QueryRowxContext(ctx, query,
		batch.InventoryID, batch.ItemID, batch.BatchNo, batch.BatchDate, batch.ExpiryDate,
		batch.UsableQty, batch.ReservedQty, batch.DefectiveQty, batch.ExpiredQty,
		batch.UOMCode, batch.SizeSpec, batch.AvgUnitValue, batch.VerifiedFlag, batch.StatusCode,
		stamp,
	).Scan(&batch.ID, &batch.CreateDtime, &batch.UpdateDtime, &batch.VersionNbr)
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id int64) (*ItemBatch, error) {
	var batch ItemBatch
	query := `SELECT * FROM item_batch WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListByItem lists active batches for an item across all warehouses
func (r *BatchRepository) ListByItem(ctx context.Context, itemID int64) ([]*ItemBatch, error) {
	var batches []*ItemBatch
	query := `
		SELECT * FROM item_batch
		WHERE item_id = $1 AND status_code = 'A'
		ORDER BY expiry_date NULLS LAST, batch_date NULLS LAST, id
	`
	if err := r.db.SelectContext(ctx, &batches, query, itemID); err != nil {
		return nil, err
	}
	return batches, nil
}

// HasDuplicateBatchNo reports whether an active batch with the same batch
// number already exists for the item at the same warehouse inventory.
func (r *BatchRepository) HasDuplicateBatchNo(ctx context.Context, inventoryID, itemID int64, batchNo string) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM item_batch
		WHERE inventory_id = $1 AND item_id = $2 AND batch_no = $3 AND status_code = 'A'
	`
	if err := r.db.GetContext(ctx, &count, query, inventoryID, itemID, batchNo); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update updates a batch, checking the optimistic-lock version
func (r *BatchRepository) Update(ctx context.Context, batch *ItemBatch) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE item_batch SET
			batch_no = $3, batch_date = $4, expiry_date = $5,
			usable_qty = $6, reserved_qty = $7, defective_qty = $8, expired_qty = $9,
			uom_code = $10, size_spec = $11, avg_unit_value = $12,
			verified_flag = $13, status_code = $14,
			update_by_id = $15, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND version_nbr = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.VersionNbr, batch.BatchNo, batch.BatchDate, batch.ExpiryDate,
		batch.UsableQty, batch.ReservedQty, batch.DefectiveQty, batch.ExpiredQty,
		batch.UOMCode, batch.SizeSpec, batch.AvgUnitValue,
		batch.VerifiedFlag, batch.StatusCode, stamp,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StaleVersion("batch")
	}

	batch.VersionNbr++
	return nil
}

// AdjustReservedTx shifts a batch's reserved quantity by delta inside an
// existing transaction. Negative deltas release reservations. The check
// constraint on reserved_qty guards against drift below zero or above
// usable stock.
func (r *BatchRepository) AdjustReservedTx(ctx context.Context, tx *sqlx.Tx, batchID int64, delta decimal.Decimal) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE item_batch SET
			reserved_qty = reserved_qty + $2,
			update_by_id = $3, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, batchID, delta, stamp)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// DeductUsableTx draws down a batch's usable quantity on dispatch, inside
// an existing transaction. Reservations for the dispatched quantity must
// already have been released.
func (r *BatchRepository) DeductUsableTx(ctx context.Context, tx *sqlx.Tx, batchID int64, qty decimal.Decimal) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE item_batch SET
			usable_qty = usable_qty - $2,
			update_by_id = $3, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND usable_qty >= $2
	`

	result, err := tx.ExecContext(ctx, query, batchID, qty, stamp)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InsufficientStock("batch stock is below the dispatch quantity")
	}
	return nil
}

// GetExpiringBatches gets active batches with stock expiring within days
func (r *BatchRepository) GetExpiringBatches(ctx context.Context, withinDays int) ([]*ExpiringBatch, error) {
	var batches []*ExpiringBatch
	query := `
		SELECT b.*, i.item_name
		FROM item_batch b
		JOIN relief_item i ON i.id = b.item_id
		WHERE b.status_code = 'A' AND b.usable_qty > 0
		AND b.expiry_date IS NOT NULL
		AND b.expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY b.expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query, withinDays); err != nil {
		return nil, err
	}
	return batches, nil
}
