package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
)

// ReliefItem represents a relief item master record
type ReliefItem struct {
	ID               int64     `db:"id" json:"id"`
	ItemName         string    `db:"item_name" json:"item_name"`
	UOMCode          string    `db:"uom_code" json:"uom_code"`
	CanExpireFlag    bool      `db:"can_expire_flag" json:"can_expire_flag"`
	BatchTrackedFlag bool      `db:"batch_tracked_flag" json:"batch_tracked_flag"`
	StatusCode       string    `db:"status_code" json:"status_code"`
	CreateByID       int64     `db:"create_by_id" json:"create_by_id"`
	CreateDtime      time.Time `db:"create_dtime" json:"create_dtime"`
	UpdateByID       int64     `db:"update_by_id" json:"update_by_id"`
	UpdateDtime      time.Time `db:"update_dtime" json:"update_dtime"`
	VersionNbr       int       `db:"version_nbr" json:"version_nbr"`
}

// ItemRepository handles relief item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create creates a new relief item
func (r *ItemRepository) Create(ctx context.Context, item *ReliefItem) error {
	stamp := actor.StampID(ctx)

	query := `
		INSERT INTO relief_item (item_name, uom_code, can_expire_flag, batch_tracked_flag, status_code, create_by_id, update_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	return r.db.QueryRowxContext(ctx, query,
		item.ItemName, item.UOMCode, item.CanExpireFlag, item.BatchTrackedFlag, item.StatusCode, stamp,
	).Scan(&item.ID, &item.CreateDtime, &item.UpdateDtime, &item.VersionNbr)
}

// GetByID gets a relief item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*ReliefItem, error) {
	var item ReliefItem
	query := `SELECT * FROM relief_item WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// ListActive lists active relief items
func (r *ItemRepository) ListActive(ctx context.Context) ([]*ReliefItem, error) {
	var items []*ReliefItem
	query := `
		SELECT * FROM relief_item
		WHERE status_code = 'A'
		ORDER BY item_name
	`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}

// Update updates a relief item, checking the optimistic-lock version
func (r *ItemRepository) Update(ctx context.Context, item *ReliefItem) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE relief_item SET
			item_name = $3, uom_code = $4, can_expire_flag = $5, batch_tracked_flag = $6, status_code = $7,
			update_by_id = $8, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND version_nbr = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		item.ID, item.VersionNbr, item.ItemName, item.UOMCode,
		item.CanExpireFlag, item.BatchTrackedFlag, item.StatusCode, stamp,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StaleVersion("item")
	}

	item.VersionNbr++
	return nil
}
