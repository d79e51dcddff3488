// Package allocation implements the batch allocation engine used during
// relief package preparation: FEFO/FIFO candidate ranking, reservation
// release semantics, and the session-scoped allocation draft.
package allocation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Issuance order labels
const (
	OrderFEFO = "FEFO"
	OrderFIFO = "FIFO"
)

// Candidate is one batch eligible for allocation, annotated with its
// effective availability and global pick-order rank.
type Candidate struct {
	BatchID       int64           `json:"batch_id"`
	InventoryID   int64           `json:"inventory_id"`
	WarehouseID   int64           `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name,omitempty"`
	ItemID        int64           `json:"item_id"`
	BatchNo       *string         `json:"batch_no,omitempty"`
	BatchDate     *time.Time      `json:"batch_date,omitempty"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	UsableQty     decimal.Decimal `json:"usable_qty"`
	ReservedQty   decimal.Decimal `json:"reserved_qty"`
	UOMCode       string          `json:"uom_code"`
	SizeSpec      *string         `json:"size_spec,omitempty"`

	// EffectiveAvailable is usable_qty - reserved_qty plus the calling
	// session's own staged quantity on this batch (release semantics).
	EffectiveAvailable decimal.Decimal `json:"effective_available"`

	// PriorityGroup is the batch's rank across ALL eligible batches,
	// not per warehouse. Batches with equal sort keys share a group.
	PriorityGroup int `json:"priority_group"`
}

// Result is the outcome of a candidate query for one line item.
type Result struct {
	IssuanceOrder  string          `json:"issuance_order"`
	CanExpire      bool            `json:"can_expire"`
	Batches        []Candidate     `json:"batches"`
	TotalAvailable decimal.Decimal `json:"total_available"`
	Shortfall      decimal.Decimal `json:"shortfall"`
	CanFulfill     bool            `json:"can_fulfill"`
}

// Evaluate filters, ranks and annotates the given batches for one item.
//
// A warehouse is included only if its net availability (sum of
// usable - reserved over its batches) is strictly positive, unless one of
// its batches appears in forceInclude, in which case the previously chosen
// batch stays visible for editing even when fully reserved.
//
// currentAllocations carries the calling session's staged quantities; each
// staged quantity is added back to its batch's availability so the session
// never sees its own pending picks as unavailable stock.
func Evaluate(batches []Candidate, canExpire bool, remainingQty decimal.Decimal, forceInclude []int64, currentAllocations map[int64]decimal.Decimal) *Result {
	forced := make(map[int64]bool, len(forceInclude))
	for _, id := range forceInclude {
		forced[id] = true
	}

	// Warehouse-level net availability, ignoring release semantics.
	netByWarehouse := make(map[int64]decimal.Decimal)
	forcedWarehouse := make(map[int64]bool)
	for _, b := range batches {
		netByWarehouse[b.WarehouseID] = netByWarehouse[b.WarehouseID].Add(b.UsableQty.Sub(b.ReservedQty))
		if forced[b.BatchID] {
			forcedWarehouse[b.WarehouseID] = true
		}
	}

	eligible := make([]Candidate, 0, len(batches))
	for _, b := range batches {
		if !netByWarehouse[b.WarehouseID].IsPositive() && !forcedWarehouse[b.WarehouseID] {
			continue
		}
		b.EffectiveAvailable = b.UsableQty.Sub(b.ReservedQty)
		if staged, ok := currentAllocations[b.BatchID]; ok {
			b.EffectiveAvailable = b.EffectiveAvailable.Add(staged)
		}
		if !b.EffectiveAvailable.IsPositive() && !forced[b.BatchID] {
			continue
		}
		eligible = append(eligible, b)
	}

	rank(eligible, canExpire)

	total := decimal.Zero
	for _, b := range eligible {
		total = total.Add(b.EffectiveAvailable)
	}

	shortfall := remainingQty.Sub(total)
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}

	order := OrderFIFO
	if canExpire {
		order = OrderFEFO
	}

	return &Result{
		IssuanceOrder:  order,
		CanExpire:      canExpire,
		Batches:        eligible,
		TotalAvailable: total,
		Shortfall:      shortfall,
		CanFulfill:     !shortfall.IsPositive(),
	}
}

// rank sorts candidates globally and assigns priority groups. FEFO orders by
// expiry date ascending with nulls last, then receipt date; FIFO by receipt
// date only. Ties break on batch ID for determinism.
func rank(candidates []Candidate, canExpire bool) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if canExpire {
			if c := compareDates(a.ExpiryDate, b.ExpiryDate); c != 0 {
				return c < 0
			}
		}
		if c := compareDates(a.BatchDate, b.BatchDate); c != 0 {
			return c < 0
		}
		return a.BatchID < b.BatchID
	})

	group := 0
	for i := range candidates {
		if i == 0 || !sameSortKey(&candidates[i-1], &candidates[i], canExpire) {
			group++
		}
		candidates[i].PriorityGroup = group
	}
}

// compareDates orders non-nil before nil, earlier before later.
func compareDates(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}

func sameSortKey(a, b *Candidate, canExpire bool) bool {
	if canExpire && compareDates(a.ExpiryDate, b.ExpiryDate) != 0 {
		return false
	}
	return compareDates(a.BatchDate, b.BatchDate) == 0
}
