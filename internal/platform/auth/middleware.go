package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultCustomerHeader carries the caller's customer id, set by the
// upstream gateway after it has authenticated the request.
const DefaultCustomerHeader = "X-Customer-ID"

// Middleware extracts the trusted customer id header and stores the
// resulting identity on the request context. Requests without a customer
// id are rejected before reaching handlers that require one.
type Middleware struct {
	header string
}

// Option customises Middleware behaviour.
type Option func(*Middleware)

// WithHeader overrides the header carrying the customer id.
func WithHeader(header string) Option {
	return func(m *Middleware) {
		header = strings.TrimSpace(header)
		if header != "" {
			m.header = header
		}
	}
}

// NewMiddleware constructs identity middleware for composition in routers.
func NewMiddleware(opts ...Option) *Middleware {
	m := &Middleware{header: DefaultCustomerHeader}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// RequireCustomer rejects requests lacking a customer id and stores the
// identity on the context otherwise.
func (m *Middleware) RequireCustomer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID := ""
			if m != nil {
				customerID = strings.TrimSpace(r.Header.Get(m.header))
			}
			if customerID == "" {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "customer identity header missing")
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{CustomerID: customerID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
