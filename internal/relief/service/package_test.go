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

func newPackageService(t *testing.T) (*service.PackageService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	db := database.FromSqlx(mockDB.DB, logger.New("test", "test"))

	svc := service.NewPackageService(
		db,
		repository.NewRequestRepository(db),
		repository.NewPackageRepository(db),
		repository.NewPackageItemRepository(db),
		repository.NewAvailabilityRepository(db),
		invrepo.NewItemRepository(db),
		invrepo.NewBatchRepository(db),
		invrepo.NewInventoryRepository(db),
		nil, // events disabled
		logger.New("test", "test"),
	)
	return svc, mockDB
}

func expectPackageLookup(mockDB *testutil.MockDB, packageID, requestID int64, status string, version int) {
	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM relief_package WHERE id = $1").
		WithArgs(packageID).
		WillReturnRows(testutil.MockRows(
			"id", "reliefreq_id", "status_code", "dispatch_dtime",
			"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr").
			AddRow(packageID, requestID, status, nil, int64(0), now, int64(0), now, version))
}

func expectPlanItemLookup(mockDB *testutil.MockDB, itemID int64, canExpire bool) {
	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM relief_item WHERE id = $1").
		WithArgs(itemID).
		WillReturnRows(testutil.MockRows(
			"id", "item_name", "uom_code", "can_expire_flag", "batch_tracked_flag", "status_code",
			"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr").
			AddRow(itemID, "Water Purification Tablets", "BOX", canExpire, true, "A", int64(0), now, int64(0), now, 1))
}

func expectRequestItemLookup(mockDB *testutil.MockDB, requestID, itemID int64, requested int64) {
	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM relief_request_item WHERE reliefreq_id = $1 AND item_id = $2").
		WithArgs(requestID, itemID).
		WillReturnRows(testutil.MockRows(
			"id", "reliefreq_id", "item_id", "requested_qty", "issue_qty", "uom_code",
			"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr").
			AddRow(int64(1), requestID, itemID, decimal.NewFromInt(requested).String(), "0", "BOX",
				int64(0), now, int64(0), now, 1))
}

func expectNoPersistedRows(mockDB *testutil.MockDB, packageID, itemID int64) {
	mockDB.ExpectQuery("SELECT * FROM relief_package_item").
		WithArgs(packageID, itemID).
		WillReturnRows(testutil.MockRows(
			"id", "reliefpkg_id", "fr_inventory_id", "batch_id", "item_id",
			"allocated_qty", "uom_code",
			"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr"))
}

type stockRow struct {
	batchID     int64
	inventoryID int64
	warehouseID int64
	expiry      *time.Time
	usable      int64
	reserved    int64
}

func expectBatchStock(mockDB *testutil.MockDB, itemID int64, stock ...stockRow) {
	rows := testutil.MockRows(
		"batch_id", "inventory_id", "warehouse_id", "warehouse_name", "item_id",
		"batch_no", "batch_date", "expiry_date",
		"usable_qty", "reserved_qty", "uom_code", "size_spec")
	for _, s := range stock {
		rows.AddRow(s.batchID, s.inventoryID, s.warehouseID, "Central Depot", itemID,
			nil, nil, s.expiry,
			decimal.NewFromInt(s.usable).String(), decimal.NewFromInt(s.reserved).String(), "BOX", nil)
	}
	mockDB.ExpectQuery("FROM item_batch b").WithArgs(itemID, "").WillReturnRows(rows)
}

func expectRequestLookup(mockDB *testutil.MockDB, requestID int64, status string, version int) {
	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM relief_request WHERE id = $1").
		WithArgs(requestID).
		WillReturnRows(testutil.MockRows(
			"id", "requestor_name", "region_code", "status_code",
			"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr").
			AddRow(requestID, "Coastal District Relief Office", nil, status, int64(0), now, int64(0), now, version))
}

func datePtr(t time.Time) *time.Time { return &t }

func TestPackageService_SaveAllocations_RejectsDispatchedPackage(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newPackageService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDispatched, 3)

	err := svc.SaveAllocations(ctx, 10, 3, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	mockDB.ExpectationsWereMet(t)
}

func TestPackageService_SaveAllocations_RejectsOverAvailability(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newPackageService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDraft, 1)
	expectPlanItemLookup(mockDB, 7, true)
	expectRequestItemLookup(mockDB, 5, 7, 100)
	expectNoPersistedRows(mockDB, 10, 7)
	expectBatchStock(mockDB, 7, stockRow{
		batchID: 101, inventoryID: 3, warehouseID: 1,
		expiry: datePtr(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)),
		usable: 10, reserved: 0,
	})

	plans := []service.ItemAllocationPlan{{
		ItemID:      7,
		Allocations: map[int64]decimal.Decimal{101: decimal.NewFromInt(50)},
	}}

	err := svc.SaveAllocations(ctx, 10, 1, plans)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	mockDB.ExpectationsWereMet(t)
}

func TestPackageService_SaveAllocations_RejectsPickOrderSkip(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newPackageService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDraft, 1)
	expectPlanItemLookup(mockDB, 7, true)
	expectRequestItemLookup(mockDB, 5, 7, 10)
	expectNoPersistedRows(mockDB, 10, 7)
	// Batch 101 expires first and still has stock; allocating only from 102
	// skips over it.
	expectBatchStock(mockDB, 7,
		stockRow{
			batchID: 101, inventoryID: 3, warehouseID: 1,
			expiry: datePtr(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)),
			usable: 10,
		},
		stockRow{
			batchID: 102, inventoryID: 3, warehouseID: 1,
			expiry: datePtr(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)),
			usable: 10,
		},
	)

	plans := []service.ItemAllocationPlan{{
		ItemID:      7,
		Allocations: map[int64]decimal.Decimal{102: decimal.NewFromInt(10)},
	}}

	err := svc.SaveAllocations(ctx, 10, 1, plans)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPickOrder))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Details, "batch_102")
	assert.Equal(t, "10", appErr.Details["upstream_available"])
	mockDB.ExpectationsWereMet(t)
}

func TestPackageService_SaveAllocations_StaleVersionAbortsSave(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newPackageService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDraft, 1)
	expectPlanItemLookup(mockDB, 7, true)
	expectRequestItemLookup(mockDB, 5, 7, 10)
	expectNoPersistedRows(mockDB, 10, 7)
	expectBatchStock(mockDB, 7, stockRow{
		batchID: 101, inventoryID: 3, warehouseID: 1,
		expiry: datePtr(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)),
		usable: 50,
	})
	expectRequestLookup(mockDB, 5, repository.RequestStatusOpen, 1)

	mockDB.ExpectBegin()
	// The caller's version is behind; no row matches the CAS predicate
	mockDB.ExpectExec("UPDATE relief_package SET").
		WithArgs(int64(10), 1, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectRollback()

	plans := []service.ItemAllocationPlan{{
		ItemID:      7,
		Allocations: map[int64]decimal.Decimal{101: decimal.NewFromInt(10)},
	}}

	err := svc.SaveAllocations(ctx, 10, 1, plans)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStaleVersion))
	mockDB.ExpectationsWereMet(t)
}

func TestPackageService_SaveAllocations_PersistsPlanAndReservations(t *testing.T) {
	ctx := context.Background()
	svc, mockDB := newPackageService(t)
	defer mockDB.Close()

	expectPackageLookup(mockDB, 10, 5, repository.PackageStatusDraft, 1)
	expectPlanItemLookup(mockDB, 7, true)
	expectRequestItemLookup(mockDB, 5, 7, 10)
	expectNoPersistedRows(mockDB, 10, 7)
	expectBatchStock(mockDB, 7, stockRow{
		batchID: 101, inventoryID: 3, warehouseID: 1,
		expiry: datePtr(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)),
		usable: 50,
	})
	expectRequestLookup(mockDB, 5, repository.RequestStatusOpen, 1)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE relief_package SET").
		WithArgs(int64(10), 1, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Nothing persisted yet, so the reconcile delete removes nothing
	mockDB.ExpectQuery("DELETE FROM relief_package_item").
		WillReturnRows(testutil.MockRows(
			"id", "reliefpkg_id", "fr_inventory_id", "batch_id", "item_id",
			"allocated_qty", "uom_code",
			"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr"))
	// First save of this plan key: update misses, insert takes over
	mockDB.ExpectExec("UPDATE relief_package_item SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery("INSERT INTO relief_package_item").
		WillReturnRows(testutil.MockRows("id", "create_dtime", "update_dtime", "version_nbr").
			AddRow(int64(55), time.Now(), time.Now(), 1))
	// Reservations move on the batch and its warehouse inventory record
	mockDB.ExpectExec("UPDATE item_batch SET").
		WithArgs(int64(101), testutil.DecimalArg{Want: decimal.NewFromInt(10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE fr_inventory SET").
		WithArgs(int64(3), testutil.DecimalArg{Want: decimal.NewFromInt(10)}, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// First allocation moves the request from open to allocated
	mockDB.ExpectExec("UPDATE relief_request SET").
		WithArgs(int64(5), 1, repository.RequestStatusAllocated, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	plans := []service.ItemAllocationPlan{{
		ItemID:      7,
		Allocations: map[int64]decimal.Decimal{101: decimal.NewFromInt(10)},
	}}

	err := svc.SaveAllocations(ctx, 10, 1, plans)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}
