package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/drims/drims-backend/internal/relief/repository"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/testutil"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPackageItemRepo(t *testing.T) (*repository.PackageItemRepository, *testutil.MockDB, *database.DB) {
	mockDB := testutil.NewMockDB(t)
	db := database.FromSqlx(mockDB.DB, logger.New("test", "test"))
	return repository.NewPackageItemRepository(db), mockDB, db
}

func TestPackageItemRepository_UpsertTx_InsertsNewPlanKey(t *testing.T) {
	ctx := context.Background()
	repo, mockDB, db := newPackageItemRepo(t)
	defer mockDB.Close()

	row := &repository.ReliefPackageItem{
		ReliefPkgID:   10,
		FRInventoryID: 3,
		BatchID:       101,
		ItemID:        7,
		AllocatedQty:  decimal.NewFromInt(15),
		UOMCode:       "BOX",
	}

	mockDB.ExpectBegin()
	// No row for the plan key yet, so the update touches nothing
	mockDB.ExpectExec("UPDATE relief_package_item SET").
		WithArgs(int64(10), int64(3), int64(101), int64(7), testutil.DecimalArg{Want: decimal.NewFromInt(15)}, "BOX", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery("INSERT INTO relief_package_item").
		WithArgs(int64(10), int64(3), int64(101), int64(7), testutil.DecimalArg{Want: decimal.NewFromInt(15)}, "BOX", int64(0)).
		WillReturnRows(testutil.MockRows("id", "create_dtime", "update_dtime", "version_nbr").
			AddRow(int64(55), time.Now(), time.Now(), 1))
	mockDB.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	err = repo.UpsertTx(ctx, tx, row)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(55), row.ID)
	assert.Equal(t, 1, row.VersionNbr)
	mockDB.ExpectationsWereMet(t)
}

func TestPackageItemRepository_UpsertTx_UpdatesExistingPlanKey(t *testing.T) {
	ctx := context.Background()
	repo, mockDB, db := newPackageItemRepo(t)
	defer mockDB.Close()

	row := &repository.ReliefPackageItem{
		ReliefPkgID:   10,
		FRInventoryID: 3,
		BatchID:       101,
		ItemID:        7,
		AllocatedQty:  decimal.NewFromInt(20),
		UOMCode:       "BOX",
	}

	mockDB.ExpectBegin()
	// The plan key already has a row; it updates in place, no insert follows
	mockDB.ExpectExec("UPDATE relief_package_item SET").
		WithArgs(int64(10), int64(3), int64(101), int64(7), testutil.DecimalArg{Want: decimal.NewFromInt(20)}, "BOX", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	err = repo.UpsertTx(ctx, tx, row)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	mockDB.ExpectationsWereMet(t)
}

func TestPackageItemRepository_DeleteAbsentTx_ReturnsDeletedRows(t *testing.T) {
	ctx := context.Background()
	repo, mockDB, db := newPackageItemRepo(t)
	defer mockDB.Close()

	now := time.Now()
	columns := []string{
		"id", "reliefpkg_id", "fr_inventory_id", "batch_id", "item_id",
		"allocated_qty", "uom_code",
		"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr",
	}

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("DELETE FROM relief_package_item").
		WithArgs(int64(10), int64(7), pq.Array([]int64{101})).
		WillReturnRows(testutil.MockRows(columns...).
			AddRow(int64(56), int64(10), int64(4), int64(102), int64(7), "5", "BOX", int64(0), now, int64(0), now, 2))
	mockDB.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	deleted, err := repo.DeleteAbsentTx(ctx, tx, 10, 7, []int64{101})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, deleted, 1)
	assert.Equal(t, int64(102), deleted[0].BatchID)
	assert.True(t, deleted[0].AllocatedQty.Equal(decimal.NewFromInt(5)))
	mockDB.ExpectationsWereMet(t)
}

func TestPackageItemRepository_DeleteAbsentTx_EmptyKeepDeletesAll(t *testing.T) {
	ctx := context.Background()
	repo, mockDB, db := newPackageItemRepo(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("DELETE FROM relief_package_item").
		WithArgs(int64(10), int64(7), pq.Array([]int64{})).
		WillReturnRows(testutil.MockRows("id", "reliefpkg_id", "fr_inventory_id", "batch_id", "item_id",
			"allocated_qty", "uom_code",
			"create_by_id", "create_dtime", "update_by_id", "update_dtime", "version_nbr"))
	mockDB.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	deleted, err := repo.DeleteAbsentTx(ctx, tx, 10, 7, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Empty(t, deleted)
	mockDB.ExpectationsWereMet(t)
}
