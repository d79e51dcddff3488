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

// Relief request status codes
const (
	RequestStatusOpen       = "OPEN"
	RequestStatusAllocated  = "ALLOC"
	RequestStatusDispatched = "DISP"
	RequestStatusClosed     = "CLOSED"
)

// ReliefRequest represents an incoming request for relief goods
type ReliefRequest struct {
	ID            int64     `db:"id" json:"id"`
	RequestorName string    `db:"requestor_name" json:"requestor_name"`
	RegionCode    *string   `db:"region_code" json:"region_code,omitempty"`
	StatusCode    string    `db:"status_code" json:"status_code"`
	CreateByID    int64     `db:"create_by_id" json:"create_by_id"`
	CreateDtime   time.Time `db:"create_dtime" json:"create_dtime"`
	UpdateByID    int64     `db:"update_by_id" json:"update_by_id"`
	UpdateDtime   time.Time `db:"update_dtime" json:"update_dtime"`
	VersionNbr    int       `db:"version_nbr" json:"version_nbr"`
}

// ReliefRequestItem is the demand side: one requested item and the ceiling
// that allocations must respect.
type ReliefRequestItem struct {
	ID           int64           `db:"id" json:"id"`
	ReliefReqID  int64           `db:"reliefreq_id" json:"reliefreq_id"`
	ItemID       int64           `db:"item_id" json:"item_id"`
	RequestedQty decimal.Decimal `db:"requested_qty" json:"requested_qty"`
	IssueQty     decimal.Decimal `db:"issue_qty" json:"issue_qty"`
	UOMCode      string          `db:"uom_code" json:"uom_code"`
	CreateByID   int64           `db:"create_by_id" json:"create_by_id"`
	CreateDtime  time.Time       `db:"create_dtime" json:"create_dtime"`
	UpdateByID   int64           `db:"update_by_id" json:"update_by_id"`
	UpdateDtime  time.Time       `db:"update_dtime" json:"update_dtime"`
	VersionNbr   int             `db:"version_nbr" json:"version_nbr"`
}

// RequestRepository handles relief request persistence
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create creates a new relief request
func (r *RequestRepository) Create(ctx context.Context, req *ReliefRequest) error {
	stamp := actor.StampID(ctx)

	query := `
		INSERT INTO relief_request (requestor_name, region_code, status_code, create_by_id, update_by_id)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	return r.db.QueryRowxContext(ctx, query,
		req.RequestorName, req.RegionCode, req.StatusCode, stamp,
	).Scan(&req.ID, &req.CreateDtime, &req.UpdateDtime, &req.VersionNbr)
}

// GetByID gets a relief request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*ReliefRequest, error) {
	var req ReliefRequest
	query := `SELECT * FROM relief_request WHERE id = $1`
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("relief request")
		}
		return nil, err
	}
	return &req, nil
}

// ListByStatus lists relief requests with the given status
func (r *RequestRepository) ListByStatus(ctx context.Context, statusCode string) ([]*ReliefRequest, error) {
	var reqs []*ReliefRequest
	query := `
		SELECT * FROM relief_request
		WHERE status_code = $1
		ORDER BY create_dtime
	`
	if err := r.db.SelectContext(ctx, &reqs, query, statusCode); err != nil {
		return nil, err
	}
	return reqs, nil
}

// AddItem adds a line item to a relief request
func (r *RequestRepository) AddItem(ctx context.Context, item *ReliefRequestItem) error {
	stamp := actor.StampID(ctx)

	query := `
		INSERT INTO relief_request_item (reliefreq_id, item_id, requested_qty, uom_code, create_by_id, update_by_id)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, create_dtime, update_dtime, version_nbr
	`

	return r.db.QueryRowxContext(ctx, query,
		item.ReliefReqID, item.ItemID, item.RequestedQty, item.UOMCode, stamp,
	).Scan(&item.ID, &item.CreateDtime, &item.UpdateDtime, &item.VersionNbr)
}

// GetItems gets the line items of a relief request
func (r *RequestRepository) GetItems(ctx context.Context, requestID int64) ([]*ReliefRequestItem, error) {
	var items []*ReliefRequestItem
	query := `
		SELECT * FROM relief_request_item
		WHERE reliefreq_id = $1
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &items, query, requestID); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem gets one line item of a relief request by item ID
func (r *RequestRepository) GetItem(ctx context.Context, requestID, itemID int64) (*ReliefRequestItem, error) {
	var item ReliefRequestItem
	query := `SELECT * FROM relief_request_item WHERE reliefreq_id = $1 AND item_id = $2`
	if err := r.db.GetContext(ctx, &item, query, requestID, itemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("request line item")
		}
		return nil, err
	}
	return &item, nil
}

// AddIssueQtyTx accumulates dispatched quantity onto a request line item
// inside an existing transaction. Repeated dispatches keep adding up.
func (r *RequestRepository) AddIssueQtyTx(ctx context.Context, tx *sqlx.Tx, requestID, itemID int64, qty decimal.Decimal) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE relief_request_item SET
			issue_qty = issue_qty + $3,
			update_by_id = $4, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE reliefreq_id = $1 AND item_id = $2
	`

	result, err := tx.ExecContext(ctx, query, requestID, itemID, qty, stamp)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("request line item")
	}
	return nil
}

// UpdateStatusTx updates a request's status inside an existing transaction,
// checking the optimistic-lock version.
func (r *RequestRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, requestID int64, versionNbr int, statusCode string) error {
	stamp := actor.StampID(ctx)

	query := `
		UPDATE relief_request SET
			status_code = $3,
			update_by_id = $4, update_dtime = NOW(), version_nbr = version_nbr + 1
		WHERE id = $1 AND version_nbr = $2
	`

	result, err := tx.ExecContext(ctx, query, requestID, versionNbr, statusCode, stamp)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.StaleVersion("relief request")
	}
	return nil
}
