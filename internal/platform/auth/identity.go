package auth

import (
	"context"
	"strings"
)

// Identity captures the caller principal established by the upstream
// gateway. Authentication policy is enforced before requests reach this
// service; here the customer id is treated as an opaque, trusted value.
type Identity struct {
	CustomerID string
}

// Valid reports whether the identity names a customer.
func (i *Identity) Valid() bool {
	return i != nil && strings.TrimSpace(i.CustomerID) != ""
}

type contextKey string

const identityContextKey contextKey = "github.com/fieldstone/storefront/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
