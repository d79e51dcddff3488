package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	invrepo "github.com/drims/drims-backend/internal/inventory/repository"
	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/internal/relief/service"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatchService(t *testing.T) (*service.DispatchService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	db := database.FromSqlx(mockDB.DB, logger.New("test", "test"))

	svc := service.NewDispatchService(
		db,
		repository.NewRequestRepository(db),
		repository.NewPackageRepository(db),
		repository.NewPackageItemRepository(db),
		invrepo.NewBatchRepository(db),
		invrepo.NewInventoryRepository(db),
		nil, // events disabled
		logger.New("test", "test"),
	)
	return svc, mockDB
}

func expectStagedRows(mockDB *testutil.MockDB, packageID int64, rows ...*repository.ReliefPackageItem) {
	now := time.Now()
	mockRows := testutil.MockRows(
		"id", "reliefpkg_id", "fr_inventory_id", "batch_id", "item_id",
		"allocated_qty", "uom_code",
		"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr")
	for _, r := range rows {
		mockRows.AddRow(r.ID, packageID, r.FRInventoryID, r.BatchID, r.ItemID,
			r.AllocatedQty.String(), r.UOMCode, int64(0), now, int64(0), now, 1)
	}
	mockDB.ExpectQuery("SELECT * FROM relief_package_item").
		WithArgs(packageID).
		WillReturnRows(mockRows)
}

func TestDispatchService_Dispatch_RejectsAlreadyDispatched(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newDispatchService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDispatched, 4)

	err := svc.Dispatch(ctx, 10, 4, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	mockDB.ExpectationsWereMet(t)
}

func TestDispatchService_Dispatch_RejectsEmptyPackage(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newDispatchService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDraft, 1)
	expectStagedRows(mockDB, 10)

	err := svc.Dispatch(ctx, 10, 1, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	mockDB.ExpectationsWereMet(t)
}

func TestDispatchService_Dispatch_StagedPlanAsIs(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newDispatchService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDraft, 2)
	expectStagedRows(mockDB, 10, &repository.ReliefPackageItem{
		ID: 55, FRInventoryID: 3, BatchID: 101, ItemID: 7,
		AllocatedQty: decimal.NewFromInt(10), UOMCode: "BOX",
	})
	expectRequestLookup(mockDB, 5, repository.RequestStatusAllocated, 2)

	mockDB.ExpectBegin()
	// Package flips to dispatched under the version check
	mockDB.ExpectExec("UPDATE relief_package SET").
		WithArgs(int64(10), 2, repository.PackageStatusDispatched, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Staged reservations come off the batch and the warehouse record
	mockDB.ExpectExec("UPDATE item_batch SET").
		WithArgs(int64(101), testutil.DecimalArg{Want: decimal.NewFromInt(-10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE fr_inventory SET").
		WithArgs(int64(3), testutil.DecimalArg{Want: decimal.NewFromInt(-10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The staged row is re-upserted with the same quantity
	mockDB.ExpectExec("UPDATE relief_package_item SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Usable stock leaves the warehouse
	mockDB.ExpectExec("UPDATE item_batch SET").
		WithArgs(int64(101), testutil.DecimalArg{Want: decimal.NewFromInt(10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE fr_inventory SET").
		WithArgs(int64(3), testutil.DecimalArg{Want: decimal.NewFromInt(10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Issued quantity lands on the request line
	mockDB.ExpectExec("UPDATE relief_request_item SET").
		WithArgs(int64(5), int64(7), testutil.DecimalArg{Want: decimal.NewFromInt(10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE relief_request SET").
		WithArgs(int64(5), 2, repository.RequestStatusDispatched, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	err := svc.Dispatch(ctx, 10, 2, nil)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestDispatchService_Dispatch_ZeroesDroppedRows(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newDispatchService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDraft, 2)
	expectStagedRows(mockDB, 10,
		&repository.ReliefPackageItem{
			ID: 55, FRInventoryID: 3, BatchID: 101, ItemID: 7,
			AllocatedQty: decimal.NewFromInt(10), UOMCode: "BOX",
		},
		&repository.ReliefPackageItem{
			ID: 56, FRInventoryID: 3, BatchID: 102, ItemID: 7,
			AllocatedQty: decimal.NewFromInt(5), UOMCode: "BOX",
		},
	)
	expectRequestLookup(mockDB, 5, repository.RequestStatusAllocated, 2)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE relief_package SET").
		WithArgs(int64(10), 2, repository.PackageStatusDispatched, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Both staged reservations are undone
	mockDB.ExpectExec("UPDATE item_batch SET").
		WithArgs(int64(101), testutil.DecimalArg{Want: decimal.NewFromInt(-10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE fr_inventory SET").
		WithArgs(int64(3), testutil.DecimalArg{Want: decimal.NewFromInt(-10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE item_batch SET").
		WithArgs(int64(102), testutil.DecimalArg{Want: decimal.NewFromInt(-5)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE fr_inventory SET").
		WithArgs(int64(3), testutil.DecimalArg{Want: decimal.NewFromInt(-5)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Batch 102 is not in the final plan: its row is zeroed, not deleted
	mockDB.ExpectExec("UPDATE relief_package_item SET").
		WithArgs(int64(56), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Batch 101 dispatches 8 of the staged 10
	mockDB.ExpectExec("UPDATE relief_package_item SET").
		WithArgs(int64(10), int64(3), int64(101), int64(7), testutil.DecimalArg{Want: decimal.NewFromInt(8)}, "BOX", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE item_batch SET").
		WithArgs(int64(101), testutil.DecimalArg{Want: decimal.NewFromInt(8)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE fr_inventory SET").
		WithArgs(int64(3), testutil.DecimalArg{Want: decimal.NewFromInt(8)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE relief_request_item SET").
		WithArgs(int64(5), int64(7), testutil.DecimalArg{Want: decimal.NewFromInt(8)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE relief_request SET").
		WithArgs(int64(5), 2, repository.RequestStatusDispatched, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	plans := []service.ItemAllocationPlan{{
		ItemID:      7,
		Allocations: map[int64]decimal.Decimal{101: decimal.NewFromInt(8)},
	}}

	err := svc.Dispatch(ctx, 10, 2, plans)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}
