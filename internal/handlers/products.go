package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldstone/storefront/internal/platform/httpx"
	"github.com/fieldstone/storefront/internal/services"
)

// ProductHandlers exposes public catalog reads.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs handlers backed by the catalog service.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}", h.getProduct)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to fetch product", http.StatusInternalServerError))
	}
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	BasePrice int64            `json:"basePrice"`
	Variants  []variantPayload `json:"variants"`
	Images    []string         `json:"images,omitempty"`
	CreatedAt string           `json:"createdAt,omitempty"`
	UpdatedAt string           `json:"updatedAt,omitempty"`
}

type variantPayload struct {
	ID            string  `json:"id"`
	Color         string  `json:"color"`
	Size          *string `json:"size,omitempty"`
	Stock         int     `json:"stock"`
	PriceOverride *int64  `json:"priceOverride,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:        strings.TrimSpace(product.ID),
		Name:      strings.TrimSpace(product.Name),
		BasePrice: product.BasePrice,
		Variants:  make([]variantPayload, 0, len(product.Variants)),
		Images:    product.Images,
		CreatedAt: formatTime(product.CreatedAt),
		UpdatedAt: formatTime(product.UpdatedAt),
	}
	for _, variant := range product.Variants {
		payload.Variants = append(payload.Variants, variantPayload{
			ID:            variant.ID,
			Color:         variant.Color,
			Size:          cloneStringPointer(variant.Size),
			Stock:         variant.Stock,
			PriceOverride: variant.PriceOverride,
		})
	}
	return payload
}
