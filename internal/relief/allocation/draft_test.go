package allocation_test

import (
	"testing"

	"github.com/drims/drims-backend/internal/relief/allocation"
	pkgerrors "github.com/drims/drims-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// draftWithBatches builds a draft over batches laid out as one priority
// group per batch, in the order given.
func draftWithBatches(t *testing.T, requested int64, availables ...int64) *allocation.Draft {
	t.Helper()
	candidates := make([]allocation.Candidate, 0, len(availables))
	for i, avail := range availables {
		b := batch(int64(i+1), 1, avail, 0)
		b.BatchDate = datePtr(2025, 1, i+1)
		candidates = append(candidates, b)
	}
	result := allocation.Evaluate(candidates, false, qty(requested), nil, nil)
	require.Len(t, result.Batches, len(availables))
	return allocation.NewDraft(qty(requested), result)
}

func TestDraft_SetQuantityClampsToAvailability(t *testing.T) {
	d := draftWithBatches(t, 100, 10)

	stored := d.SetQuantity(1, qty(999))
	assert.True(t, stored.Equal(qty(10)))
	assert.True(t, d.Quantity(1).Equal(qty(10)))
}

func TestDraft_SetQuantityClampsNegativeToZero(t *testing.T) {
	d := draftWithBatches(t, 100, 10)

	d.SetQuantity(1, qty(5))
	stored := d.SetQuantity(1, qty(-3))

	assert.True(t, stored.IsZero())
	assert.True(t, d.Quantity(1).IsZero())
	assert.True(t, d.TotalAllocated().IsZero())
}

func TestDraft_SetQuantityUnknownBatch(t *testing.T) {
	d := draftWithBatches(t, 100, 10)

	stored := d.SetQuantity(99, qty(5))
	assert.True(t, stored.IsZero())
	assert.True(t, d.TotalAllocated().IsZero())
}

func TestDraft_UseMaxFillsUpToNeed(t *testing.T) {
	// Need 15, batch holds 10: take all of it.
	d := draftWithBatches(t, 15, 10, 10)
	assert.True(t, d.UseMax(1).Equal(qty(10)))

	// 5 still needed, second batch holds 10: take only 5.
	assert.True(t, d.UseMax(2).Equal(qty(5)))
	assert.True(t, d.TotalAllocated().Equal(qty(15)))
}

func TestDraft_UseMaxDoesNotDoublePenalizeOwnAllocation(t *testing.T) {
	d := draftWithBatches(t, 10, 20)

	d.SetQuantity(1, qty(6))
	// Remaining is 4, but the batch's own 6 is added back: max is 10.
	assert.True(t, d.UseMax(1).Equal(qty(10)))
}

func TestDraft_ApplyRejectsOverAllocation(t *testing.T) {
	d := draftWithBatches(t, 10, 20)
	d.SetQuantity(1, qty(10))

	// Grow the ceiling breach by staging directly at the cap of a second
	// draft sharing the same ceiling.
	d2 := draftWithBatches(t, 5, 20)
	d2.SetQuantity(1, qty(20))

	_, err := d2.Apply()
	require.Error(t, err)

	var appErr *pkgerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "OVER_ALLOCATION", appErr.Code)

	// At or under the ceiling applies cleanly.
	final, err := d.Apply()
	require.NoError(t, err)
	assert.True(t, final[1].Equal(qty(10)))
}

func TestDraft_ApplyReturnsCopy(t *testing.T) {
	d := draftWithBatches(t, 10, 20)
	d.SetQuantity(1, qty(5))

	final, err := d.Apply()
	require.NoError(t, err)

	final[1] = qty(999)
	assert.True(t, d.Quantity(1).Equal(qty(5)))
}

func TestDraft_ValidatePickOrder_SkippedGroupsFail(t *testing.T) {
	// Three groups of 10 each; allocating only in the last one skips
	// 20 units of earlier stock.
	d := draftWithBatches(t, 30, 10, 10, 10)
	d.SetQuantity(3, qty(5))

	result := d.ValidatePickOrder()
	require.False(t, result.IsValid)
	assert.Equal(t, []int64{3}, result.OffendingBatchIDs)
	assert.True(t, result.UpstreamAvailable.Equal(qty(20)),
		"expected 10 + 10 upstream, got %s", result.UpstreamAvailable)
	assert.NotEmpty(t, result.Message)
}

func TestDraft_ValidatePickOrder_ExhaustedEarlierGroupsPass(t *testing.T) {
	d := draftWithBatches(t, 30, 10, 10, 10)
	d.SetQuantity(1, qty(10))
	d.SetQuantity(2, qty(10))
	d.SetQuantity(3, qty(5))

	result := d.ValidatePickOrder()
	assert.True(t, result.IsValid)
	assert.Empty(t, result.OffendingBatchIDs)
}

func TestDraft_ValidatePickOrder_PartialEarlierGroupFails(t *testing.T) {
	d := draftWithBatches(t, 30, 10, 10)
	d.SetQuantity(1, qty(4))
	d.SetQuantity(2, qty(6))

	result := d.ValidatePickOrder()
	require.False(t, result.IsValid)
	assert.Equal(t, []int64{2}, result.OffendingBatchIDs)
	assert.True(t, result.UpstreamAvailable.Equal(qty(6)))
}

func TestDraft_ValidatePickOrder_EmptyDraftPasses(t *testing.T) {
	d := draftWithBatches(t, 30, 10, 10)
	result := d.ValidatePickOrder()
	assert.True(t, result.IsValid)
}

func TestDraft_Load_ClampsPersistedQuantities(t *testing.T) {
	d := draftWithBatches(t, 100, 10)

	d.Load(map[int64]decimal.Decimal{
		1:  qty(25), // over cap, clamped to 10
		99: qty(5),  // unknown batch, dropped
	})

	assert.True(t, d.Quantity(1).Equal(qty(10)))
	assert.True(t, d.TotalAllocated().Equal(qty(10)))
}

// Scenario: expiring item, two batches in one warehouse, request of 15.
func TestAllocation_PreparationScenario(t *testing.T) {
	a := batch(1, 1, 10, 0)
	a.ExpiryDate = datePtr(2025, 1, 1)
	b := batch(2, 1, 10, 0)
	b.ExpiryDate = datePtr(2025, 6, 1)

	result := allocation.Evaluate([]allocation.Candidate{a, b}, true, qty(15), nil, nil)

	require.Len(t, result.Batches, 2)
	assert.Equal(t, int64(1), result.Batches[0].BatchID)
	assert.Equal(t, int64(2), result.Batches[1].BatchID)
	assert.True(t, result.TotalAvailable.Equal(qty(20)))
	assert.True(t, result.Shortfall.IsZero())
	assert.True(t, result.CanFulfill)

	// FEFO-respecting allocation applies cleanly.
	d := allocation.NewDraft(qty(15), result)
	d.SetQuantity(1, qty(10))
	d.SetQuantity(2, qty(5))
	require.True(t, d.ValidatePickOrder().IsValid)
	_, err := d.Apply()
	require.NoError(t, err)

	// Skipping the earlier-expiring batch is flagged with its 10 units.
	d2 := allocation.NewDraft(qty(15), result)
	d2.SetQuantity(1, qty(0))
	d2.SetQuantity(2, qty(10))
	check := d2.ValidatePickOrder()
	require.False(t, check.IsValid)
	assert.Equal(t, []int64{2}, check.OffendingBatchIDs)
	assert.True(t, check.UpstreamAvailable.Equal(qty(10)))
}
