package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// Product is a catalog entry owning the sellable variants beneath it.
// Products are read-mostly: administration writes them out of band and the
// fulfillment pipeline only ever mutates variant stock.
type Product struct {
	ID        string
	Name      string
	BasePrice int64
	Variants  []Variant
	Images    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Variant is a concrete purchasable unit of a product. A variant has no
// lifecycle of its own; it lives and dies with its owning product.
type Variant struct {
	ID            string
	Color         string
	Size          *string
	Stock         int
	PriceOverride *int64
}

// Cart aggregates the mutable shopping cart state for one customer.
// There is at most one cart per customer; it is cleared, not deleted,
// when its items are converted into an order.
type Cart struct {
	ID         string
	CustomerID string
	Items      []CartItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem references live catalog state by id. It is deliberately not a
// snapshot: prices and stock are re-read at checkout time.
type CartItem struct {
	ID        string
	ProductID string
	VariantID string
	Quantity  int
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// CustomerInfo is the contact block captured with each order.
type CustomerInfo struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the sole initial state of a freshly placed order.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusPreparing indicates the order is being picked and packed.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// OrderStatusShipping indicates the order has been handed to the carrier.
	OrderStatusShipping OrderStatus = "SHIPPING"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is the immutable outcome of a successful checkout. Its line items
// are denormalized snapshots so later catalog edits never rewrite history.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerID    string
	Status        OrderStatus
	Items         []OrderItem
	Customer      CustomerInfo
	PaymentMethod string
	Total         int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PlacedAt      time.Time
	PreparedAt    *time.Time
	ShippedAt     *time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
}

// OrderItem freezes a purchased variant at the moment of checkout.
// It shares shape with CartItem but is a distinct type on purpose.
type OrderItem struct {
	ProductID   string
	VariantID   string
	ProductName string
	Color       string
	Size        *string
	UnitPrice   int64
	Quantity    int
	Subtotal    int64
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// StockLevel reports a variant's remaining stock after a ledger operation.
type StockLevel struct {
	ProductID string
	VariantID string
	Stock     int
	UpdatedAt time.Time
}

// HealthStatus grades the outcome of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK indicates the dependency responded normally.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates the dependency responded with errors.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates the dependency is unreachable or timed out.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck records one dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness endpoints.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
