package services

import (
	"context"
	"time"

	domain "github.com/fieldstone/storefront/internal/domain"
	"github.com/fieldstone/storefront/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	Variant            = domain.Variant
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CustomerInfo       = domain.CustomerInfo
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PricingBreakdown   = domain.PricingBreakdown
	PricedLine         = domain.PricedLine
	StockLevel         = domain.StockLevel
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService exposes read access to products and their variants.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}

// CartService manages a customer's cart as a mutable accumulator. Stock is
// never validated here; carts are long-lived and stock is volatile, so
// availability is checked only at checkout.
type CartService interface {
	GetCart(ctx context.Context, customerID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateItemQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, customerID string) (Cart, error)
}

// CheckoutService converts a cart into an order, reserving stock with
// all-or-nothing semantics.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
}

// OrderService exposes order reads and status transitions.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EventPublisher accepts order lifecycle and stock ledger notifications for
// downstream consumers. Publish failures are logged by callers and never
// fail the originating operation.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
	PublishStockEvent(ctx context.Context, message StockEventMessage) (string, error)
}

// OrderEventMessage is the payload emitted when an order is created or
// changes status.
type OrderEventMessage struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CustomerID  string    `json:"customerId"`
	Status      string    `json:"status"`
	Total       int64     `json:"total"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// StockEventMessage is the payload emitted when the stock ledger mutates a
// variant's stock.
type StockEventMessage struct {
	Type       string    `json:"type"`
	ProductID  string    `json:"productId"`
	VariantID  string    `json:"variantId"`
	OrderRef   string    `json:"orderRef,omitempty"`
	Delta      int       `json:"delta"`
	Stock      int       `json:"stock"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Command and DTO definitions ------------------------------------------------

type AddItemCommand struct {
	CustomerID string
	ProductID  string
	Hint       VariantHint
	Quantity   int
}

type UpdateItemQuantityCommand struct {
	CustomerID string
	ItemID     string
	Quantity   int
}

type RemoveCartItemCommand struct {
	CustomerID string
	ItemID     string
}

type CheckoutCommand struct {
	CustomerID    string
	PaymentMethod string
	Customer      CustomerInfo
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus string
	ActorID      string
}

type OrderListFilter = repositories.OrderListFilter
