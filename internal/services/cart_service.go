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

const cartItemIDPrefix = "ci_"

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced cart item id is absent.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductNotFound indicates the product being added does not exist.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartUnavailable indicates the backing store could not serve the request.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
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

	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, customerID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			// Carts are created lazily; an absent cart reads as empty.
			return domain.Cart{CustomerID: customerID}, nil
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddItemCommand) (Cart, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be >= 1", ErrCartInvalidInput)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
		}
		return Cart{}, s.mapRepositoryError(err)
	}

	match, err := ResolveVariant(product, cmd.Hint)
	if err != nil {
		return Cart{}, err
	}
	if match.Degraded {
		s.logger(ctx, "cart.variant.degraded_match", map[string]any{
			"customer_id": customerID,
			"product_id":  productID,
			"variant_id":  match.Variant.ID,
		})
	}

	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	item := domain.CartItem{
		ID:        cartItemIDPrefix + s.newID(),
		ProductID: productID,
		VariantID: match.Variant.ID,
		Quantity:  cmd.Quantity,
		AddedAt:   now,
	}

	// One cart item per (cart, variant): adding an already-present variant
	// merges quantities instead of appending a duplicate row. The stored
	// variant id is always the resolved one, so degraded legacy references
	// self-heal on write.
	if existing, ok := findItemByVariant(cart, productID, match.Variant.ID); ok {
		item.ID = existing.ID
		item.Quantity = existing.Quantity + cmd.Quantity
		item.AddedAt = existing.AddedAt
		item.UpdatedAt = &now
	}

	updated, err := s.carts.UpsertItem(ctx, customerID, item)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateItemQuantityCommand) (Cart, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}

	if cmd.Quantity <= 0 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{CustomerID: customerID, ItemID: itemID})
	}

	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}
	existing, ok := findItemByID(cart, itemID)
	if !ok {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}

	now := s.clock()
	existing.Quantity = cmd.Quantity
	existing.UpdatedAt = &now

	updated, err := s.carts.UpsertItem(ctx, customerID, existing)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

// RemoveItem is idempotent: removing an absent item succeeds, because UI
// retries are common and a missing row is the desired end state.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}

	updated, err := s.carts.RemoveItem(ctx, customerID, itemID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{CustomerID: customerID}, nil
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *cartService) ClearCart(ctx context.Context, customerID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}

	updated, err := s.carts.ClearItems(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{CustomerID: customerID}, nil
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *cartService) mapRepositoryError(err error) error {
	return mapCartRepositoryError(err)
}

func mapCartRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func findItemByVariant(cart Cart, productID, variantID string) (domain.CartItem, bool) {
	for _, item := range cart.Items {
		if item.ProductID == productID && item.VariantID == variantID {
			return item, true
		}
	}
	return domain.CartItem{}, false
}

func findItemByID(cart Cart, itemID string) (domain.CartItem, bool) {
	for _, item := range cart.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return domain.CartItem{}, false
}
