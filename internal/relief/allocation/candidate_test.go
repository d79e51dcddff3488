package allocation_test

import (
	"testing"
	"time"

	"github.com/drims/drims-backend/internal/relief/allocation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func qty(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func batch(id, warehouseID int64, usable, reserved int64) allocation.Candidate {
	return allocation.Candidate{
		BatchID:     id,
		InventoryID: warehouseID * 100,
		WarehouseID: warehouseID,
		ItemID:      1,
		UsableQty:   qty(usable),
		ReservedQty: qty(reserved),
		UOMCode:     "BOX",
	}
}

func TestEvaluate_FEFOOrdering(t *testing.T) {
	// Expiry dates deliberately run against receipt dates: FEFO must win.
	b1 := batch(1, 1, 10, 0)
	b1.ExpiryDate = datePtr(2026, 3, 1)
	b1.BatchDate = datePtr(2025, 1, 1)

	b2 := batch(2, 1, 10, 0)
	b2.ExpiryDate = datePtr(2026, 1, 1)
	b2.BatchDate = datePtr(2025, 6, 1)

	b3 := batch(3, 1, 10, 0)
	b3.ExpiryDate = datePtr(2026, 2, 1)
	b3.BatchDate = datePtr(2025, 3, 1)

	result := allocation.Evaluate([]allocation.Candidate{b1, b2, b3}, true, qty(5), nil, nil)

	require.Len(t, result.Batches, 3)
	assert.Equal(t, allocation.OrderFEFO, result.IssuanceOrder)
	assert.Equal(t, int64(2), result.Batches[0].BatchID)
	assert.Equal(t, int64(3), result.Batches[1].BatchID)
	assert.Equal(t, int64(1), result.Batches[2].BatchID)
}

func TestEvaluate_FEFONullExpirySortsLast(t *testing.T) {
	b1 := batch(1, 1, 10, 0)
	b1.BatchDate = datePtr(2025, 1, 1)

	b2 := batch(2, 1, 10, 0)
	b2.ExpiryDate = datePtr(2026, 12, 1)
	b2.BatchDate = datePtr(2025, 6, 1)

	result := allocation.Evaluate([]allocation.Candidate{b1, b2}, true, qty(5), nil, nil)

	require.Len(t, result.Batches, 2)
	assert.Equal(t, int64(2), result.Batches[0].BatchID)
	assert.Equal(t, int64(1), result.Batches[1].BatchID)
}

func TestEvaluate_FIFOOrdering(t *testing.T) {
	b1 := batch(1, 1, 10, 0)
	b1.BatchDate = datePtr(2025, 6, 1)

	b2 := batch(2, 1, 10, 0)
	b2.BatchDate = datePtr(2025, 1, 1)

	b3 := batch(3, 1, 10, 0)
	b3.BatchDate = datePtr(2025, 3, 1)

	result := allocation.Evaluate([]allocation.Candidate{b1, b2, b3}, false, qty(5), nil, nil)

	require.Len(t, result.Batches, 3)
	assert.Equal(t, allocation.OrderFIFO, result.IssuanceOrder)
	assert.Equal(t, int64(2), result.Batches[0].BatchID)
	assert.Equal(t, int64(3), result.Batches[1].BatchID)
	assert.Equal(t, int64(1), result.Batches[2].BatchID)
}

func TestEvaluate_TiesBreakOnBatchID(t *testing.T) {
	b2 := batch(2, 1, 10, 0)
	b2.BatchDate = datePtr(2025, 1, 1)

	b1 := batch(1, 1, 10, 0)
	b1.BatchDate = datePtr(2025, 1, 1)

	result := allocation.Evaluate([]allocation.Candidate{b2, b1}, false, qty(5), nil, nil)

	require.Len(t, result.Batches, 2)
	assert.Equal(t, int64(1), result.Batches[0].BatchID)
	assert.Equal(t, int64(2), result.Batches[1].BatchID)
	// Equal sort keys share a priority group.
	assert.Equal(t, result.Batches[0].PriorityGroup, result.Batches[1].PriorityGroup)
}

func TestEvaluate_WarehouseExclusion(t *testing.T) {
	// W1 fully reserved, W2 has stock.
	b1 := batch(1, 1, 10, 10)
	b2 := batch(2, 2, 10, 2)

	result := allocation.Evaluate([]allocation.Candidate{b1, b2}, false, qty(5), nil, nil)

	require.Len(t, result.Batches, 1)
	assert.Equal(t, int64(2), result.Batches[0].BatchID)
}

func TestEvaluate_ForceIncludeKeepsReservedBatchVisible(t *testing.T) {
	// W1 has zero net availability but batch 1 was previously allocated.
	b1 := batch(1, 1, 10, 10)
	b2 := batch(2, 1, 5, 5)
	b3 := batch(3, 2, 10, 0)

	result := allocation.Evaluate([]allocation.Candidate{b1, b2, b3}, false, qty(5), []int64{1}, nil)

	require.Len(t, result.Batches, 2)
	ids := []int64{result.Batches[0].BatchID, result.Batches[1].BatchID}
	assert.Contains(t, ids, int64(1))
	assert.Contains(t, ids, int64(3))
	// Batch 2 shares the warehouse but was never allocated and has nothing left.
	assert.NotContains(t, ids, int64(2))
}

func TestEvaluate_ReleaseSemantics(t *testing.T) {
	// reserved_qty includes this session's own staged 5; it must be
	// released back into availability.
	b := batch(1, 1, 10, 7)

	result := allocation.Evaluate(
		[]allocation.Candidate{b}, false, qty(5),
		[]int64{1}, map[int64]decimal.Decimal{1: qty(5)},
	)

	require.Len(t, result.Batches, 1)
	assert.True(t, result.Batches[0].EffectiveAvailable.Equal(qty(8)),
		"expected 10 - 7 + 5 = 8, got %s", result.Batches[0].EffectiveAvailable)
}

func TestEvaluate_ShortfallAndFulfillment(t *testing.T) {
	b1 := batch(1, 1, 10, 0)
	b2 := batch(2, 1, 10, 4)

	result := allocation.Evaluate([]allocation.Candidate{b1, b2}, false, qty(20), nil, nil)

	assert.True(t, result.TotalAvailable.Equal(qty(16)))
	assert.True(t, result.Shortfall.Equal(qty(4)))
	assert.False(t, result.CanFulfill)
}

func TestEvaluate_NoEligibleBatches(t *testing.T) {
	result := allocation.Evaluate(nil, true, qty(10), nil, nil)

	assert.Empty(t, result.Batches)
	assert.True(t, result.TotalAvailable.IsZero())
	assert.True(t, result.Shortfall.Equal(qty(10)))
	assert.False(t, result.CanFulfill)
}

func TestEvaluate_PriorityGroupsSpanWarehouses(t *testing.T) {
	// Ranks are global: the soonest-expiring batch leads regardless of
	// which warehouse holds it.
	b1 := batch(1, 1, 10, 0)
	b1.ExpiryDate = datePtr(2026, 6, 1)

	b2 := batch(2, 2, 10, 0)
	b2.ExpiryDate = datePtr(2026, 1, 1)

	b3 := batch(3, 1, 10, 0)
	b3.ExpiryDate = datePtr(2026, 9, 1)

	result := allocation.Evaluate([]allocation.Candidate{b1, b2, b3}, true, qty(5), nil, nil)

	require.Len(t, result.Batches, 3)
	assert.Equal(t, int64(2), result.Batches[0].BatchID)
	assert.Equal(t, 1, result.Batches[0].PriorityGroup)
	assert.Equal(t, int64(1), result.Batches[1].BatchID)
	assert.Equal(t, 2, result.Batches[1].PriorityGroup)
	assert.Equal(t, int64(3), result.Batches[2].BatchID)
	assert.Equal(t, 3, result.Batches[2].PriorityGroup)
}
