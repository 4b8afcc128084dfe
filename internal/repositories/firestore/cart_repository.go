package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fieldstone/storefront/internal/domain"
	pfirestore "github.com/fieldstone/storefront/internal/platform/firestore"
	"github.com/fieldstone/storefront/internal/repositories"
)

const (
	cartCollection = "carts"
)

// CartRepository persists carts within Firestore. The customer id doubles
// as the document id, which enforces the one-cart-per-customer invariant
// at the storage layer. Items live in a map keyed by item id so concurrent
// edits to the same cart merge per item instead of overwriting the whole
// document.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart for the given customer id.
func (r *CartRepository) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	doc, err := r.base.Get(ctx, cid)
	if err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(doc), nil
}

// UpsertItem writes a single cart item using a merge set, leaving the
// cart's other items untouched.
func (r *CartRepository) UpsertItem(ctx context.Context, customerID string, item domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}
	itemID := strings.TrimSpace(item.ID)
	if itemID == "" {
		return domain.Cart{}, errors.New("cart repository: item id is required")
	}

	ref, err := r.base.DocumentRef(ctx, cid)
	if err != nil {
		return domain.Cart{}, err
	}

	payload := map[string]any{
		"customerId": cid,
		"updatedAt":  mutationTime(item),
		"items": map[string]any{
			itemID: cartItemDocumentFrom(item),
		},
	}
	if _, err := ref.Set(ctx, payload, firestore.MergeAll); err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.upsert_item", err)
	}
	return r.GetCart(ctx, cid)
}

// RemoveItem deletes a single item field from the cart document. Removing
// an absent item from an existing cart succeeds; callers translate a
// missing cart document into an idempotent no-op.
func (r *CartRepository) RemoveItem(ctx context.Context, customerID string, itemID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}
	trimmed := strings.TrimSpace(itemID)
	if trimmed == "" {
		return domain.Cart{}, errors.New("cart repository: item id is required")
	}

	updates := []firestore.Update{
		{FieldPath: firestore.FieldPath{"items", trimmed}, Value: firestore.Delete},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if err := r.base.Update(ctx, cid, updates); err != nil {
		return domain.Cart{}, err
	}
	return r.GetCart(ctx, cid)
}

// ClearItems empties the cart's item map while keeping the document.
func (r *CartRepository) ClearItems(ctx context.Context, customerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	updates := []firestore.Update{
		{Path: "items", Value: map[string]cartItemDocument{}},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if err := r.base.Update(ctx, cid, updates); err != nil {
		return domain.Cart{}, err
	}
	return r.GetCart(ctx, cid)
}

func mutationTime(item domain.CartItem) time.Time {
	if item.UpdatedAt != nil && !item.UpdatedAt.IsZero() {
		return item.UpdatedAt.UTC()
	}
	if !item.AddedAt.IsZero() {
		return item.AddedAt.UTC()
	}
	return time.Now().UTC()
}

func cartFromDocument(doc pfirestore.Document[cartDocument]) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Data.Items))
	for id, item := range doc.Data.Items {
		items = append(items, domain.CartItem{
			ID:        id,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	// Insertion order: oldest added first, ids break ties.
	sort.Slice(items, func(i, j int) bool {
		if items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].AddedAt.Before(items[j].AddedAt)
	})

	cart := domain.Cart{
		ID:         doc.ID,
		CustomerID: doc.Data.CustomerID,
		Items:      items,
		CreatedAt:  doc.CreateTime,
		UpdatedAt:  doc.UpdateTime,
	}
	if cart.CustomerID == "" {
		cart.CustomerID = doc.ID
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.Data.UpdatedAt
	}
	return cart
}

func cartItemDocumentFrom(item domain.CartItem) cartItemDocument {
	return cartItemDocument{
		ProductID: strings.TrimSpace(item.ProductID),
		VariantID: strings.TrimSpace(item.VariantID),
		Quantity:  item.Quantity,
		AddedAt:   item.AddedAt.UTC(),
		UpdatedAt: item.UpdatedAt,
	}
}

type cartDocument struct {
	CustomerID string                      `firestore:"customerId"`
	Items      map[string]cartItemDocument `firestore:"items"`
	UpdatedAt  time.Time                   `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string     `firestore:"productId"`
	VariantID string     `firestore:"variantId"`
	Quantity  int        `firestore:"quantity"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
