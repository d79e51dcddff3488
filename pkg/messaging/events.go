package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	// Inventory events
	EventBatchCreated  = "inventory.batch.created"
	EventBatchUpdated  = "inventory.batch.updated"
	EventBatchExpiring = "inventory.batch.expiring"
	EventStockDepleted = "inventory.stock.depleted"

	// Relief events
	EventAllocationApplied  = "relief.allocation.applied"
	EventAllocationReleased = "relief.allocation.released"
	EventPackageDispatched  = "relief.package.dispatched"
	EventRequestFulfilled   = "relief.request.fulfilled"

	// User events
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeReliefEvents    = "relief.events"
	ExchangeUserEvents      = "user.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Inventory Events

// BatchCreatedEvent is published when an item batch is registered
type BatchCreatedEvent struct {
	BatchID     int64           `json:"batch_id"`
	InventoryID int64           `json:"inventory_id"`
	ItemID      int64           `json:"item_id"`
	BatchNo     *string         `json:"batch_no,omitempty"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	UsableQty   decimal.Decimal `json:"usable_qty"`
	CreatedBy   int64           `json:"created_by"`
}

// BatchUpdatedEvent is published when a batch record is corrected
type BatchUpdatedEvent struct {
	BatchID     int64           `json:"batch_id"`
	InventoryID int64           `json:"inventory_id"`
	ItemID      int64           `json:"item_id"`
	UsableQty   decimal.Decimal `json:"usable_qty"`
	ReservedQty decimal.Decimal `json:"reserved_qty"`
	StatusCode  string          `json:"status_code"`
	UpdatedBy   int64           `json:"updated_by"`
}

// BatchExpiringEvent is published when a batch is nearing expiry
type BatchExpiringEvent struct {
	BatchID    int64           `json:"batch_id"`
	ItemID     int64           `json:"item_id"`
	ItemName   string          `json:"item_name"`
	BatchNo    *string         `json:"batch_no,omitempty"`
	ExpiryDate time.Time       `json:"expiry_date"`
	DaysUntil  int             `json:"days_until"`
	UsableQty  decimal.Decimal `json:"usable_qty"`
}

// StockDepletedEvent is published when dispatch draws down usable stock
type StockDepletedEvent struct {
	BatchID      int64           `json:"batch_id"`
	InventoryID  int64           `json:"inventory_id"`
	ItemID       int64           `json:"item_id"`
	DepletedQty  decimal.Decimal `json:"depleted_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	PerformedBy  int64           `json:"performed_by"`
}

// Relief Events

// AllocationAppliedEvent is published when a package's allocation plan is saved
type AllocationAppliedEvent struct {
	ReliefPkgID  int64           `json:"reliefpkg_id"`
	ReliefReqID  int64           `json:"reliefreq_id"`
	ItemID       int64           `json:"item_id"`
	AllocatedQty decimal.Decimal `json:"allocated_qty"`
	BatchCount   int             `json:"batch_count"`
	PerformedBy  int64           `json:"performed_by"`
}

// AllocationReleasedEvent is published when staged allocations are removed
type AllocationReleasedEvent struct {
	ReliefPkgID int64           `json:"reliefpkg_id"`
	ItemID      int64           `json:"item_id"`
	ReleasedQty decimal.Decimal `json:"released_qty"`
	PerformedBy int64           `json:"performed_by"`
}

// PackageDispatchedEvent is published when a relief package is dispatched
type PackageDispatchedEvent struct {
	ReliefPkgID  int64     `json:"reliefpkg_id"`
	ReliefReqID  int64     `json:"reliefreq_id"`
	ItemCount    int       `json:"item_count"`
	DispatchedAt time.Time `json:"dispatched_at"`
	PerformedBy  int64     `json:"performed_by"`
}

// RequestFulfilledEvent is published when a relief request is fully served
type RequestFulfilledEvent struct {
	ReliefReqID int64 `json:"reliefreq_id"`
	PackageID   int64 `json:"package_id"`
}

// User Events

// UserCreatedEvent is published when a user is created
type UserCreatedEvent struct {
	UserID      int64  `json:"user_id"`
	UserName    string `json:"user_name"`
	DisplayName string `json:"display_name"`
	RoleCode    string `json:"role_code"`
}

// UserUpdatedEvent is published when a user is updated
type UserUpdatedEvent struct {
	UserID int64          `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
