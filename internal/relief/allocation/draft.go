package allocation

import (
	"fmt"
	"sort"

	"github.com/drims/drims-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Draft is the session-scoped allocation state for one relief request line
// item. It holds the staged batch quantities and the candidate metadata from
// the last query. A Draft is owned by a single editing session and is not
// safe for concurrent use.
type Draft struct {
	requestedQty decimal.Decimal
	batches      map[int64]Candidate
	quantities   map[int64]decimal.Decimal
}

// NewDraft creates a draft for a line item with the given allocation ceiling,
// seeded with the candidates from a query result.
func NewDraft(requestedQty decimal.Decimal, result *Result) *Draft {
	d := &Draft{
		requestedQty: requestedQty,
		batches:      make(map[int64]Candidate, len(result.Batches)),
		quantities:   make(map[int64]decimal.Decimal),
	}
	for _, c := range result.Batches {
		d.batches[c.BatchID] = c
	}
	return d
}

// Load seeds the draft with previously persisted allocations, clamped the
// same way SetQuantity clamps. Quantities on batches absent from the
// candidate set are dropped.
func (d *Draft) Load(existing map[int64]decimal.Decimal) {
	for batchID, qty := range existing {
		d.SetQuantity(batchID, qty)
	}
}

// SetQuantity stages qty against a batch, clamped to
// [0, effective_available]. A zero result removes the entry. Returns the
// quantity actually stored.
func (d *Draft) SetQuantity(batchID int64, qty decimal.Decimal) decimal.Decimal {
	batch, ok := d.batches[batchID]
	if !ok {
		return decimal.Zero
	}

	if qty.IsNegative() {
		qty = decimal.Zero
	}
	if qty.GreaterThan(batch.EffectiveAvailable) {
		qty = batch.EffectiveAvailable
	}

	if qty.IsPositive() {
		d.quantities[batchID] = qty
	} else {
		delete(d.quantities, batchID)
	}
	return qty
}

// UseMax greedily fills a batch up to the smaller of its availability and
// the quantity still needed. The batch's own staged quantity is added back
// to the need so it is not penalized twice.
func (d *Draft) UseMax(batchID int64) decimal.Decimal {
	batch, ok := d.batches[batchID]
	if !ok {
		return decimal.Zero
	}

	need := d.requestedQty.Sub(d.TotalAllocated()).Add(d.Quantity(batchID))
	if need.GreaterThan(batch.EffectiveAvailable) {
		need = batch.EffectiveAvailable
	}
	return d.SetQuantity(batchID, need)
}

// Quantity returns the staged quantity for a batch, zero if none.
func (d *Draft) Quantity(batchID int64) decimal.Decimal {
	if qty, ok := d.quantities[batchID]; ok {
		return qty
	}
	return decimal.Zero
}

// TotalAllocated returns the sum of all staged quantities.
func (d *Draft) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, qty := range d.quantities {
		total = total.Add(qty)
	}
	return total
}

// RemainingQty returns how much of the ceiling is still unallocated,
// floored at zero.
func (d *Draft) RemainingQty() decimal.Decimal {
	remaining := d.requestedQty.Sub(d.TotalAllocated())
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// PickOrderResult is the structured outcome of pick-order validation.
type PickOrderResult struct {
	IsValid bool `json:"is_valid"`

	// Message describes the violation for display; empty when valid.
	Message string `json:"message,omitempty"`

	// OffendingBatchIDs are the batches allocated out of order.
	OffendingBatchIDs []int64 `json:"offending_batch_ids,omitempty"`

	// UpstreamAvailable is the quantity still available in priority groups
	// earlier than the first out-of-order allocation.
	UpstreamAvailable decimal.Decimal `json:"upstream_available"`
}

// ValidatePickOrder checks that no allocation lands in a later priority
// group while an earlier group still has capacity. The rule spans all
// warehouses: priority groups are assigned by the global FEFO/FIFO rank.
func (d *Draft) ValidatePickOrder() *PickOrderResult {
	type groupState struct {
		group     int
		available decimal.Decimal
		allocated decimal.Decimal
		batchIDs  []int64
	}

	byGroup := make(map[int]*groupState)
	for id, batch := range d.batches {
		gs, ok := byGroup[batch.PriorityGroup]
		if !ok {
			gs = &groupState{group: batch.PriorityGroup}
			byGroup[batch.PriorityGroup] = gs
		}
		gs.available = gs.available.Add(batch.EffectiveAvailable)
		gs.allocated = gs.allocated.Add(d.Quantity(id))
		gs.batchIDs = append(gs.batchIDs, id)
	}

	groups := make([]*groupState, 0, len(byGroup))
	for _, gs := range byGroup {
		groups = append(groups, gs)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].group < groups[j].group })

	// First group with capacity left; allocations in any later group
	// violate pick order.
	firstOpen := -1
	for i, gs := range groups {
		if gs.allocated.LessThan(gs.available) {
			firstOpen = i
			break
		}
	}
	if firstOpen == -1 {
		return &PickOrderResult{IsValid: true}
	}

	var offending []int64
	upstream := decimal.Zero
	for i, gs := range groups {
		if i <= firstOpen {
			continue
		}
		if !gs.allocated.IsPositive() {
			continue
		}
		for _, id := range gs.batchIDs {
			if d.Quantity(id).IsPositive() {
				offending = append(offending, id)
			}
		}
	}
	if len(offending) == 0 {
		return &PickOrderResult{IsValid: true}
	}

	// Capacity still open in groups ahead of the violation.
	for i := 0; i <= firstOpen; i++ {
		gs := groups[i]
		if gs.allocated.LessThan(gs.available) {
			upstream = upstream.Add(gs.available.Sub(gs.allocated))
		}
	}
	// Include every open group ahead of the earliest offending allocation.
	earliestOffending := len(groups)
	for i := firstOpen + 1; i < len(groups); i++ {
		if groups[i].allocated.IsPositive() {
			earliestOffending = i
			break
		}
	}
	for i := firstOpen + 1; i < earliestOffending; i++ {
		gs := groups[i]
		if gs.allocated.LessThan(gs.available) {
			upstream = upstream.Add(gs.available.Sub(gs.allocated))
		}
	}

	sort.Slice(offending, func(i, j int) bool { return offending[i] < offending[j] })

	return &PickOrderResult{
		IsValid:           false,
		Message:           fmt.Sprintf("allocation skips earlier batches with %s still available", upstream.String()),
		OffendingBatchIDs: offending,
		UpstreamAvailable: upstream,
	}
}

// Apply finalizes the staged mapping. It fails when the total exceeds the
// line item's requested quantity; otherwise it returns a copy of the
// authoritative batch-to-quantity map.
func (d *Draft) Apply() (map[int64]decimal.Decimal, error) {
	total := d.TotalAllocated()
	if total.GreaterThan(d.requestedQty) {
		return nil, errors.OverAllocation(fmt.Sprintf(
			"allocated %s exceeds requested %s", total.String(), d.requestedQty.String(),
		))
	}

	out := make(map[int64]decimal.Decimal, len(d.quantities))
	for id, qty := range d.quantities {
		out[id] = qty
	}
	return out, nil
}
