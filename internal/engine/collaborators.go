package engine

import (
	"context"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Availability is the inventory checker's answer for one product/quantity pair.
type Availability struct {
	Available    bool `json:"available"`
	MaxAvailable int  `json:"max_available"`
}

// DraftItem is a fully resolved order line ready for placement.
type DraftItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// DraftOrder is the concrete purchase order handed to the order-creation
// collaborator.
type DraftOrder struct {
	RecurringOrderID uuid.UUID             `json:"recurring_order_id"`
	SupplierID       uuid.UUID             `json:"supplier_id"`
	Warehouse        string                `json:"warehouse"`
	Items            []DraftItem           `json:"items"`
	ShippingMethod   string                `json:"shipping_method"`
	PaymentMethod    string                `json:"payment_method"`
	DeliveryAddress  model.DeliveryAddress `json:"delivery_address"`
	Instructions     string                `json:"instructions,omitempty"`
	TotalValue       decimal.Decimal       `json:"total_value"`
}

// PricingClient resolves the current unit price for a product at a warehouse.
type PricingClient interface {
	ResolvePrice(ctx context.Context, productID uuid.UUID, warehouse string) (decimal.Decimal, error)
}

// InventoryClient checks stock availability for a requested quantity.
type InventoryClient interface {
	CheckInventory(ctx context.Context, productID uuid.UUID, warehouse string, quantity int) (Availability, error)
}

// OrderPlacer places a resolved draft with the external order service.
// Failures should be *PlacementError so the pipeline can classify them.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, draft *DraftOrder) (uuid.UUID, error)
}

// NotificationSink receives notification intents. Fire-and-forget: a sink
// failure never affects execution status.
type NotificationSink interface {
	Send(ctx context.Context, intent model.NotificationIntent) error
}

// Store is the transactional persistence boundary the pipeline depends on.
type Store interface {
	LoadRecurringOrder(ctx context.Context, id uuid.UUID) (*model.RecurringOrder, error)

	// FindOpenExecution returns the latest non-terminal execution for the
	// order (awaiting approval or failed with retry budget left), or nil.
	FindOpenExecution(ctx context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error)

	SaveExecution(ctx context.Context, exec *model.OrderExecution) error

	// CompleteExecution persists a terminal execution and, when next is
	// non-nil, advances the parent's next_execution_date in the same
	// transaction.
	CompleteExecution(ctx context.Context, exec *model.OrderExecution, next *time.Time) error

	// SaveIntents inserts intents, skipping any whose dedupe key already
	// exists, and returns only the newly created ones.
	SaveIntents(ctx context.Context, intents []model.NotificationIntent) ([]model.NotificationIntent, error)
}

// Locker serializes concurrent invocations for the same recurring order.
// Acquire returns a release func, or ErrExecutionInProgress when the lease
// is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
