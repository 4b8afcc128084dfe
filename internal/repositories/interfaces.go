package repositories

import (
	"context"
	"time"

	domain "github.com/fieldstone/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	Stock() StockRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads products with their variants. The catalog is
// administered out of band; the fulfillment pipeline only reads it, and
// variant stock is mutated exclusively through StockRepository.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// CartRepository owns cart header + items persistence. Item mutations are
// applied per item so two concurrent edits to the same cart never clobber
// each other's unrelated items.
type CartRepository interface {
	GetCart(ctx context.Context, customerID string) (domain.Cart, error)
	UpsertItem(ctx context.Context, customerID string, item domain.CartItem) (domain.Cart, error)
	RemoveItem(ctx context.Context, customerID string, itemID string) (domain.Cart, error)
	ClearItems(ctx context.Context, customerID string) (domain.Cart, error)
}

// StockRepository is the stock ledger's storage boundary. Reserve is a
// single conditional decrement: the stock check and the write happen in
// one atomic storage operation, never as a separate read and write.
type StockRepository interface {
	Reserve(ctx context.Context, req StockReserveRequest) (StockMutationResult, error)
	Release(ctx context.Context, req StockReleaseRequest) (StockMutationResult, error)
}

// StockReserveRequest decrements a variant's stock when enough is available.
type StockReserveRequest struct {
	ProductID string
	VariantID string
	Quantity  int
	OrderRef  string
	Now       time.Time
}

// StockReleaseRequest restores previously reserved stock, compensating a
// failed multi-item reservation.
type StockReleaseRequest struct {
	ProductID string
	VariantID string
	Quantity  int
	OrderRef  string
	Reason    string
	Now       time.Time
}

// StockMutationResult reports the stock level after a ledger mutation.
type StockMutationResult struct {
	Level domain.StockLevel
}

// OrderRepository persists order headers and provides query helpers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings for customers and back office.
type OrderListFilter struct {
	CustomerID string
	Status     []string
	Pagination domain.Pagination
}

// CounterRepository provides transaction-safe sequence numbers, used to
// allocate order numbers at checkout.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}
