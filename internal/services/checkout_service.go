package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/fieldstone/storefront/internal/domain"
	"github.com/fieldstone/storefront/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	stockEventReserved      = "stock.reserved"
	stockEventReleased      = "stock.released"
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates the cart is absent or has zero items.
	ErrCheckoutEmptyCart = errors.New("checkout: empty cart")
	// ErrCheckoutProductUnavailable indicates a cart item's product disappeared from the catalog.
	ErrCheckoutProductUnavailable = errors.New("checkout: product unavailable")
	// ErrCheckoutVariantUnavailable indicates a cart item's variant disappeared from the product.
	ErrCheckoutVariantUnavailable = errors.New("checkout: variant unavailable")
	// ErrCheckoutInsufficientStock indicates a reservation failed; the error names the item and available quantity.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutUnavailable indicates the backing store could not serve the request.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Stock       repositories.StockRepository
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      EventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts    repositories.CartRepository
	catalog  repositories.CatalogRepository
	stock    repositories.StockRepository
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	clock    func() time.Time
	newID    func() string
	events   EventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("checkout service: stock repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		stock:    deps.Stock,
		orders:   deps.Orders,
		counters: deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Checkout converts the customer's cart into a PENDING order. Each cart item
// is re-resolved against the current catalog, priced, and reserved against
// the stock ledger. Reservations are all-or-nothing: when any item fails,
// every earlier reservation is released before the error is returned.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrCheckoutInvalidInput)
	}
	paymentMethod := strings.TrimSpace(cmd.PaymentMethod)
	if paymentMethod == "" {
		return Order{}, fmt.Errorf("%w: payment method is required", ErrCheckoutInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			return Order{}, fmt.Errorf("%w: customer %s", ErrCheckoutEmptyCart, customerID)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	if len(cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: customer %s", ErrCheckoutEmptyCart, customerID)
	}

	lines, err := s.resolveAndPrice(ctx, cart)
	if err != nil {
		return Order{}, err
	}

	orderID := orderIDPrefix + s.newID()
	now := s.clock()

	reserved, err := s.reserveAll(ctx, orderID, lines, now)
	if err != nil {
		return Order{}, err
	}

	breakdown, err := SumLines(lines)
	if err != nil {
		s.releaseReservations(ctx, orderID, reserved, "invalid total", now)
		return Order{}, err
	}

	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		s.releaseReservations(ctx, orderID, reserved, "order number allocation failed", now)
		return Order{}, s.mapRepositoryError(err)
	}

	order := domain.Order{
		ID:            orderID,
		OrderNumber:   number,
		CustomerID:    customerID,
		Status:        domain.OrderStatusPending,
		Items:         orderItemsFromLines(lines),
		Customer:      cmd.Customer,
		PaymentMethod: paymentMethod,
		Total:         breakdown.Total,
		CreatedAt:     now,
		UpdatedAt:     now,
		PlacedAt:      now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		s.releaseReservations(ctx, orderID, reserved, "order persist failed", now)
		return Order{}, s.mapRepositoryError(err)
	}

	// The order is committed; a failed cart clear is logged, never fatal.
	if _, err := s.carts.ClearItems(ctx, customerID); err != nil && !isNotFound(err) {
		s.logger(ctx, "checkout.cart.clear.failed", map[string]any{
			"customer_id": customerID,
			"order_id":    order.ID,
			"error":       err.Error(),
		})
	}

	s.publishOrderEvent(ctx, OrderEventMessage{
		Type:        orderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      string(order.Status),
		Total:       order.Total,
		OccurredAt:  now,
	})

	return order, nil
}

// resolveAndPrice re-resolves every cart item against current catalog state
// and prices it. Stored variant ids can be stale, so resolution fails with
// the unavailable errors naming the offending item.
func (s *checkoutService) resolveAndPrice(ctx context.Context, cart Cart) ([]domain.PricedLine, error) {
	lines := make([]domain.PricedLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: item %s product %s", ErrCheckoutProductUnavailable, item.ID, item.ProductID)
			}
			return nil, s.mapRepositoryError(err)
		}

		match, err := ResolveVariant(product, VariantHint{
			Strategy: ResolutionLegacyToken,
			Token:    item.VariantID,
		})
		if err != nil {
			if errors.Is(err, ErrNoVariantsAvailable) {
				return nil, fmt.Errorf("%w: item %s variant %s", ErrCheckoutVariantUnavailable, item.ID, item.VariantID)
			}
			return nil, err
		}
		if match.Degraded {
			s.logger(ctx, "checkout.variant.degraded_match", map[string]any{
				"item_id":    item.ID,
				"product_id": item.ProductID,
				"stored":     item.VariantID,
				"resolved":   match.Variant.ID,
			})
		}

		line, err := PriceLine(product, match.Variant, item)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// reserveAll decrements stock for every line. On the first failure it
// releases the reservations already taken; compensation is mandatory, not
// best-effort cleanup.
func (s *checkoutService) reserveAll(ctx context.Context, orderID string, lines []domain.PricedLine, now time.Time) ([]domain.PricedLine, error) {
	reserved := make([]domain.PricedLine, 0, len(lines))
	for _, line := range lines {
		result, err := s.stock.Reserve(ctx, repositories.StockReserveRequest{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			OrderRef:  orderID,
			Now:       now,
		})
		if err != nil {
			s.releaseReservations(ctx, orderID, reserved, "reservation failed", now)

			var stockErr *repositories.StockError
			if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficientStock {
				return nil, fmt.Errorf("%w: item %s requested %d, available %d",
					ErrCheckoutInsufficientStock, line.ItemID, line.Quantity, stockErr.Available)
			}
			if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorVariantNotFound {
				return nil, fmt.Errorf("%w: item %s variant %s", ErrCheckoutVariantUnavailable, line.ItemID, line.VariantID)
			}
			return nil, s.mapRepositoryError(err)
		}

		reserved = append(reserved, line)
		s.publishStockEvent(ctx, StockEventMessage{
			Type:       stockEventReserved,
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			OrderRef:   orderID,
			Delta:      -line.Quantity,
			Stock:      result.Level.Stock,
			OccurredAt: now,
		})
	}
	return reserved, nil
}

func (s *checkoutService) releaseReservations(ctx context.Context, orderID string, reserved []domain.PricedLine, reason string, now time.Time) {
	for _, line := range reserved {
		result, err := s.stock.Release(ctx, repositories.StockReleaseRequest{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			OrderRef:  orderID,
			Reason:    reason,
			Now:       now,
		})
		if err != nil {
			// A failed compensation leaks reserved stock; log loudly so
			// operators can reconcile the ledger.
			s.logger(ctx, "checkout.stock.release.failed", map[string]any{
				"order_id":   orderID,
				"product_id": line.ProductID,
				"variant_id": line.VariantID,
				"quantity":   line.Quantity,
				"error":      err.Error(),
			})
			continue
		}
		s.publishStockEvent(ctx, StockEventMessage{
			Type:       stockEventReleased,
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			OrderRef:   orderID,
			Delta:      line.Quantity,
			Stock:      result.Level.Stock,
			OccurredAt: now,
		})
	}
}

func (s *checkoutService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("FS-%04d-%06d", now.Year(), seq), nil
}

func (s *checkoutService) publishOrderEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"type":     message.Type,
			"order_id": message.OrderID,
			"error":    err.Error(),
		})
	}
}

func (s *checkoutService) publishStockEvent(ctx context.Context, message StockEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishStockEvent(ctx, message); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"type":       message.Type,
			"product_id": message.ProductID,
			"variant_id": message.VariantID,
			"error":      err.Error(),
		})
	}
}

func (s *checkoutService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return err
}

func orderItemsFromLines(lines []domain.PricedLine) []domain.OrderItem {
	items := make([]domain.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = domain.OrderItem{
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: line.ProductName,
			Color:       line.Color,
			Size:        line.Size,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Subtotal:    line.Subtotal,
		}
	}
	return items
}
