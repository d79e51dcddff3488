package repository

import (
	"context"
	"time"

	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ReliefPackageItem holds the committed quantity for one batch within a
// relief package. Rows are keyed by the composite plan key
// (reliefpkg_id, fr_inventory_id, batch_id, item_id).
type ReliefPackageItem struct {
	ID            int64           `db:"id" json:"id"`
	ReliefPkgID   int64           `db:"reliefpkg_id" json:"reliefpkg_id"`
	FRInventoryID int64           `db:"fr_inventory_id" json:"fr_inventory_id"`
	BatchID       int64           `db:"batch_id" json:"batch_id"`
	ItemID        int64           `db:"item_id" json:"item_id"`
	AllocatedQty  decimal.Decimal `db:"allocated_qty" json:"allocated_qty"`
	UOMCode       string          `db:"uom_code" json:"uom_code"`
	CreateByID    int64           `db:"create_by_id" json:"create_by_id"`
	CreateDtime   time.Time       `db:"create_dtime" json:"create_dtime"`
	UpdateByID    int64           `db:"update_by_id" json:"update_by_id"`
	UpdateDtime   time.Time       `db:"update_dtime" json:"update_dtime"`
	VersionNbr    int             `db:"version_nbr" json:"version_nbr"`
}

// PackageItemRepository handles package allocation row persistence
type PackageItemRepository struct {
	db *database.DB
}

// NewPackageItemRepository creates a new package item repository
func NewPackageItemRepository(db *database.DB) *PackageItemRepository {
	return &PackageItemRepository{db: db}
}

// ListByPackage lists all allocation rows of a package
func (r *PackageItemRepository) ListByPackage(ctx context.Context, packageID int64) ([]*ReliefPackageItem, error) {
	var rows []*ReliefPackageItem
	query := `
		SELECT * FROM relief_package_item
		WHERE reliefpkg_id = $1
		ORDER BY item_id, batch_id
	`
	if err := r.db.SelectContext(ctx, &rows, query, packageID); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByPackageAndItem lists a package's allocation rows for one item
func (r *PackageItemRepository) ListByPackageAndItem(ctx context.Context, packageID, itemID int64) ([]*ReliefPackageItem, error) {
	var rows []*ReliefPackageItem
	query := `
		SELECT * FROM relief_package_item
		WHERE reliefpkg_id = $1 AND item_id = $2
		ORDER BY batch_id
	`
	if err := r.db.SelectContext(ctx, &rows, query, packageID, itemID); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertTx reconciles one allocation row by its composite plan key inside an
// existing transaction. An existing row is updated in place with a version
// bump; a new combination is inserted with version_nbr = 1.
func (r *PackageItemRepository) UpsertTx(ctx context.Context, tx *sqlx.Tx, row *ReliefPackageItem) error {
	stamp := actor.StampID(ctx)

	update := `
		UPDATE relief_package_item SET
			allocated_qty = $5, uom_code = $6,
			update_by_id = $7, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE reliefpkg_id = $1 AND fr_inventory_id = $2 AND batch_id = $3 AND item_id = $4
	`

	result, err := tx.ExecContext(ctx, update,
		row.ReliefPkgID, row.FRInventoryID, row.BatchID, row.ItemID,
		row.AllocatedQty, row.UOMCode, stamp,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	insert := `
		INSERT INTO relief_package_item (
			reliefpkg_id, fr_inventory_id, batch_id, item_id,
			allocated_qty, uom_code, create_by_id, update_by_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	err = tx.QueryRowxContext(ctx, insert,
		row.ReliefPkgID, row.FRInventoryID, row.BatchID, row.ItemID,
		row.AllocatedQty, row.UOMCode, stamp,
	).Scan(&row.ID, &row.CreateDtime, &row.UpdateDtime, &row.VersionNbr)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// DeleteAbsentTx removes a package item's allocation rows whose batch is not
// in keepBatchIDs, inside an existing transaction. An empty keep set removes
// every row for the item. The deleted rows are returned so the caller can
// release their reservations.
func (r *PackageItemRepository) DeleteAbsentTx(ctx context.Context, tx *sqlx.Tx, packageID, itemID int64, keepBatchIDs []int64) ([]*ReliefPackageItem, error) {
	if keepBatchIDs == nil {
		// a nil slice would bind as SQL NULL and ANY(NULL) matches nothing
		keepBatchIDs = []int64{}
	}

	var deleted []*ReliefPackageItem
	query := `
		DELETE FROM relief_package_item
		WHERE reliefpkg_id = $1 AND item_id = $2 AND NOT (batch_id = ANY($3))
		RETURNING *
	`
	if err := tx.SelectContext(ctx, &deleted, query, packageID, itemID, pq.Array(keepBatchIDs)); err != nil {
		return nil, err
	}
	return deleted, nil
}

// ZeroQuantityTx zeroes one allocation row inside an existing transaction.
// Dispatch uses this for rows the final loading plan dropped, keeping the
// row for audit instead of deleting it.
func (r *PackageItemRepository) ZeroQuantityTx(ctx context.Context, tx *sqlx.Tx, rowID int64) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE relief_package_item SET
			allocated_qty = 0,
			update_by_id = $2, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1
	`

	_, err := tx.ExecContext(ctx, query, rowID, stamp)
	return err
}
