package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
)

// Warehouse represents a field relief warehouse
type Warehouse struct {
	ID            int64     `db:"id" json:"id"`
	WarehouseName string    `db:"warehouse_name" json:"warehouse_name"`
	RegionCode    *string   `db:"region_code" json:"region_code,omitempty"`
	StatusCode    string    `db:"status_code" json:"status_code"`
	CreateByID    int64     `db:"create_by_id" json:"create_by_id"`
	CreateDtime   time.Time `db:"create_dtime" json:"create_dtime"`
	UpdateByID    int64     `db:"update_by_id" json:"update_by_id"`
	UpdateDtime   time.Time `db:"update_dtime" json:"update_dtime"`
	VersionNbr    int       `db:"version_nbr" json:"version_nbr"`
}

// WarehouseRepository handles warehouse persistence
type WarehouseRepository struct {
	db *database.DB
}

// NewWarehouseRepository creates a new warehouse repository
func NewWarehouseRepository(db *database.DB) *WarehouseRepository {
	return &WarehouseRepository{db: db}
}

// Create creates a new warehouse
func (r *WarehouseRepository) Create(ctx context.Context, w *Warehouse) error {
	stamp := actor.StampID(ctx)

	query := `
		INSERT INTO fr_warehouse (warehouse_name, region_code, status_code, create_by_id, update_by_id)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	return r.db.QueryRowxContext(ctx, query,
		w.WarehouseName, w.RegionCode, w.StatusCode, stamp,
	).Scan(&w.ID, &w.CreateDtime, &w.UpdateDtime, &w.VersionNbr)
}

// GetByID gets a warehouse by ID
func (r *WarehouseRepository) GetByID(ctx context.Context, id int64) (*Warehouse, error) {
	var w Warehouse
	query := `SELECT * FROM fr_warehouse WHERE id = $1`
	if err := r.db.GetContext(ctx, &w, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("warehouse")
		}
		return nil, err
	}
	return &w, nil
}

// ListActive lists active warehouses
func (r *WarehouseRepository) ListActive(ctx context.Context) ([]*Warehouse, error) {
	var warehouses []*Warehouse
	query := `
		SELECT * FROM fr_warehouse
		WHERE status_code = 'A'
		ORDER BY warehouse_name
	`
	if err := r.db.SelectContext(ctx, &warehouses, query); err != nil {
		return nil, err
	}
	return warehouses, nil
}

// Update updates a warehouse, checking the optimistic-lock version
func (r *WarehouseRepository) Update(ctx context.Context, w *Warehouse) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE fr_warehouse SET
			warehouse_name = $3, region_code = $4, status_code = $5,
			update_by_id = $6, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND version_nbr = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		w.ID, w.VersionNbr, w.WarehouseName, w.RegionCode, w.StatusCode, stamp,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StaleVersion("warehouse")
	}

	w.VersionNbr++
	return nil
}
