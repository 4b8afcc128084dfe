package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldstone/storefront/internal/services"
)

type stubCheckoutService struct {
	checkoutFunc func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
	if s.checkoutFunc == nil {
		return services.Order{}, errors.New("unexpected Checkout call")
	}
	return s.checkoutFunc(ctx, cmd)
}

func newCheckoutRouter(service services.CheckoutService, limiter RateLimiter) chi.Router {
	handler := NewCheckoutHandlers(nil, service, limiter)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)
	return router
}

func TestCheckoutHandlersPlaceOrder(t *testing.T) {
	placed := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	service := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
			if cmd.CustomerID != "cust-7" {
				t.Fatalf("unexpected customer id %q", cmd.CustomerID)
			}
			if cmd.PaymentMethod != "card" {
				t.Fatalf("unexpected payment method %q", cmd.PaymentMethod)
			}
			if cmd.Customer.Email != "mika@example.com" {
				t.Fatalf("unexpected customer email %q", cmd.Customer.Email)
			}
			size := "M"
			return services.Order{
				ID:          "ord_1",
				OrderNumber: "FS-2026-000042",
				CustomerID:  cmd.CustomerID,
				Status:      services.OrderStatus("PENDING"),
				Items: []services.OrderItem{
					{ProductID: "prod-1", VariantID: "var-navy-m", ProductName: "Canvas Tote", Color: "Navy", Size: &size, UnitPrice: 2400, Quantity: 2, Subtotal: 4800},
				},
				Customer:      cmd.Customer,
				PaymentMethod: cmd.PaymentMethod,
				Total:         4800,
				PlacedAt:      placed,
			}, nil
		},
	}

	body := strings.NewReader(`{"paymentMethod":"card","customer":{"name":"Mika","email":"mika@example.com","address":"1-2-3 Chuo"}}`)
	router := newCheckoutRouter(service, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/checkout", body, "cust-7"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload struct {
		Order struct {
			OrderNumber string `json:"orderNumber"`
			Status      string `json:"status"`
			Total       int64  `json:"total"`
			Items       []struct {
				ProductName string `json:"productName"`
				Subtotal    int64  `json:"subtotal"`
			} `json:"items"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Order.OrderNumber != "FS-2026-000042" || payload.Order.Status != "PENDING" {
		t.Fatalf("unexpected order payload %+v", payload.Order)
	}
	if len(payload.Order.Items) != 1 || payload.Order.Items[0].ProductName != "Canvas Tote" {
		t.Fatalf("unexpected items %+v", payload.Order.Items)
	}
}

func TestCheckoutHandlersEmptyCart(t *testing.T) {
	service := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: customer %s", services.ErrCheckoutEmptyCart, cmd.CustomerID)
		},
	}

	body := strings.NewReader(`{"paymentMethod":"card","customer":{"name":"Mika","email":"mika@example.com"}}`)
	router := newCheckoutRouter(service, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/checkout", body, "cust-7"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "empty_cart") {
		t.Fatalf("expected empty_cart code, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersInsufficientStock(t *testing.T) {
	service := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: item ci_1 requested 3, available 1", services.ErrCheckoutInsufficientStock)
		},
	}

	body := strings.NewReader(`{"paymentMethod":"card","customer":{"name":"Mika","email":"mika@example.com"}}`)
	router := newCheckoutRouter(service, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/checkout", body, "cust-7"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "available 1") {
		t.Fatalf("expected available quantity in message, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersInvalidTotal(t *testing.T) {
	service := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("checkout: %w", services.ErrInvalidTotal)
		},
	}

	body := strings.NewReader(`{"paymentMethod":"card","customer":{"name":"Mika","email":"mika@example.com"}}`)
	router := newCheckoutRouter(service, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/checkout", body, "cust-7"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_total") {
		t.Fatalf("expected invalid_total code, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersRateLimited(t *testing.T) {
	calls := 0
	service := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
			calls++
			return services.Order{ID: "ord_1", CustomerID: cmd.CustomerID, Status: services.OrderStatus("PENDING")}, nil
		},
	}

	clock := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time { return clock })
	router := newCheckoutRouter(service, limiter)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, authenticatedRequest(http.MethodPost, "/checkout", strings.NewReader(`{"paymentMethod":"card","customer":{"name":"Mika","email":"mika@example.com"}}`), "cust-7"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first attempt 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, authenticatedRequest(http.MethodPost, "/checkout", strings.NewReader(`{"paymentMethod":"card","customer":{"name":"Mika","email":"mika@example.com"}}`), "cust-7"))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second attempt 429, got %d", second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one service call, got %d", calls)
	}
}

func TestCheckoutHandlersEmptyBody(t *testing.T) {
	router := newCheckoutRouter(&stubCheckoutService{}, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/checkout", strings.NewReader("   "), "cust-7"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
