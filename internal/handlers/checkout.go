package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldstone/storefront/internal/platform/auth"
	"github.com/fieldstone/storefront/internal/platform/httpx"
	"github.com/fieldstone/storefront/internal/services"
)

const maxCheckoutBodySize = 16 * 1024

// CheckoutHandlers exposes the authenticated checkout endpoint.
type CheckoutHandlers struct {
	authn    *auth.Middleware
	checkout services.CheckoutService
	limiter  RateLimiter
}

// NewCheckoutHandlers constructs handlers requiring a customer identity before
// invoking the checkout pipeline. A nil limiter disables rate limiting.
func NewCheckoutHandlers(authn *auth.Middleware, checkout services.CheckoutService, limiter RateLimiter) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		limiter:  limiter,
	}
}

// Routes wires the /checkout endpoint onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireCustomer())
	}
	r.Post("/", h.placeOrder)
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	customerID, ok := requireCustomer(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(customerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts; retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	order, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		CustomerID:    customerID,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Customer: services.CustomerInfo{
			Name:    strings.TrimSpace(req.Customer.Name),
			Email:   strings.TrimSpace(req.Customer.Email),
			Phone:   strings.TrimSpace(req.Customer.Phone),
			Address: strings.TrimSpace(req.Customer.Address),
		},
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutVariantUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("variant_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvalidPrice):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_price", err.Error(), http.StatusInternalServerError))
	case errors.Is(err, services.ErrInvalidTotal):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_total", "order total failed validation", http.StatusInternalServerError))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError))
	}
}

type checkoutRequest struct {
	PaymentMethod string                  `json:"paymentMethod"`
	Customer      checkoutCustomerRequest `json:"customer"`
}

type checkoutCustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}
