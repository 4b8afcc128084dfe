package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domain "github.com/fieldstone/storefront/internal/domain"
	pfirestore "github.com/fieldstone/storefront/internal/platform/firestore"
	"github.com/fieldstone/storefront/internal/repositories"
)

const productsCollection = "products"

// CatalogRepository reads products and their variants from Firestore.
type CatalogRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection)
	return &CatalogRepository{provider: provider, products: products}, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog get product: id is required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	product := doc.Data.toDomain(doc.ID)
	if product.CreatedAt.IsZero() {
		product.CreatedAt = doc.CreateTime
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = doc.UpdateTime
	}
	return product, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// Document structures -------------------------------------------------------

// Variants are keyed by variant id so stock mutations can target a single
// variant with a field-path update instead of rewriting the whole document.
type productDocument struct {
	Name      string                     `firestore:"name"`
	BasePrice int64                      `firestore:"basePrice"`
	Variants  map[string]variantDocument `firestore:"variants"`
	Images    []string                   `firestore:"images,omitempty"`
	CreatedAt time.Time                  `firestore:"createdAt"`
	UpdatedAt time.Time                  `firestore:"updatedAt"`
}

type variantDocument struct {
	Color         string  `firestore:"color"`
	Size          *string `firestore:"size,omitempty"`
	Stock         int     `firestore:"stock"`
	PriceOverride *int64  `firestore:"priceOverride,omitempty"`
	Position      int     `firestore:"position"`
}

func (d productDocument) toDomain(id string) domain.Product {
	variants := make([]domain.Variant, 0, len(d.Variants))
	positions := make(map[string]int, len(d.Variants))
	for variantID, doc := range d.Variants {
		variants = append(variants, domain.Variant{
			ID:            variantID,
			Color:         doc.Color,
			Size:          doc.Size,
			Stock:         doc.Stock,
			PriceOverride: doc.PriceOverride,
		})
		positions[variantID] = doc.Position
	}
	sort.Slice(variants, func(i, j int) bool {
		pi, pj := positions[variants[i].ID], positions[variants[j].ID]
		if pi != pj {
			return pi < pj
		}
		return variants[i].ID < variants[j].ID
	})
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		BasePrice: d.BasePrice,
		Variants:  variants,
		Images:    d.Images,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
