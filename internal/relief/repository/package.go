package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
)

// Relief package status codes
const (
	PackageStatusDraft      = "DRAFT"
	PackageStatusReady      = "READY"
	PackageStatusDispatched = "DISP"
)

// ReliefPackage groups allocations prepared against one relief request
type ReliefPackage struct {
	ID            int64      `db:"id" json:"id"`
	ReliefReqID   int64      `db:"reliefreq_id" json:"reliefreq_id"`
	StatusCode    string     `db:"status_code" json:"status_code"`
	DispatchDtime *time.Time `db:"dispatch_dtime" json:"dispatch_dtime,omitempty"`
	CreateByID    int64      `db:"create_by_id" json:"create_by_id"`
	CreateDtime   time.Time  `db:"create_dtime" json:"create_dtime"`
	UpdateByID    int64      `db:"update_by_id" json:"update_by_id"`
	UpdateDtime   time.Time  `db:"update_dtime" json:"update_dtime"`
	VersionNbr    int        `db:"version_nbr" json:"version_nbr"`
}

// PackageRepository handles relief package persistence
type PackageRepository struct {
	db *database.DB
}

// NewPackageRepository creates a new package repository
func NewPackageRepository(db *database.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create creates a new relief package
func (r *PackageRepository) Create(ctx context.Context, pkg *ReliefPackage) error {
	stamp := actor.StampID(ctx)

	query := `
		INSERT INTO relief_package (reliefreq_id, status_code, create_by_id, update_by_id)
		VALUES ($1, $2, $3, $3)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	return r.db.QueryRowxContext(ctx, query,
		pkg.ReliefReqID, pkg.StatusCode, stamp,
	).Scan(&pkg.ID, &pkg.CreateDtime, &pkg.UpdateDtime, &pkg.VersionNbr)
}

// GetByID gets a relief package by ID
func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*ReliefPackage, error) {
	var pkg ReliefPackage
	query := `SELECT * FROM relief_package WHERE id = $1`
	if err := r.db.GetContext(ctx, &pkg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("relief package")
		}
		return nil, err
	}
	return &pkg, nil
}

// ListByRequest lists packages prepared for a relief request
func (r *PackageRepository) ListByRequest(ctx context.Context, requestID int64) ([]*ReliefPackage, error) {
	var pkgs []*ReliefPackage
	query := `
		SELECT * FROM relief_package
		WHERE reliefreq_id = $1
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &pkgs, query, requestID); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// TouchTx bumps a package's version and audit stamps inside an existing
// transaction, checking the optimistic-lock version. Used by the
// allocation-save flow so concurrent editors of the same package conflict.
func (r *PackageRepository) TouchTx(ctx context.Context, tx *sqlx.Tx, packageID int64, versionNbr int) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE relief_package SET
			update_by_id = $3, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND version_nbr = $2
	`

	result, err := tx.ExecContext(ctx, query, packageID, versionNbr, stamp)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StaleVersion("relief package")
	}
	return nil
}

// MarkDispatchedTx stamps a package as dispatched inside an existing
// transaction, checking the optimistic-lock version.
func (r *PackageRepository) MarkDispatchedTx(ctx context.Context, tx *sqlx.Tx, packageID int64, versionNbr int) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE relief_package SET
			status_code = $3, dispatch_dtime = NOW(),
			update_by_id = $4, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND version_nbr = $2
	`

	result, err := tx.ExecContext(ctx, query, packageID, versionNbr, PackageStatusDispatched, stamp)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StaleVersion("relief package")
	}
	return nil
}
