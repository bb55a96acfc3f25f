package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no active key matches the presented hash.
var ErrNotFound = errors.New("api key not found")

// Scopes recognized by the API.
const (
	// ScopeDiscountsWrite allows creating, deactivating, and deleting
	// discounts.
	ScopeDiscountsWrite = "discounts:write"
	// ScopeOrdersWrite allows fulfilment transitions on orders.
	ScopeOrdersWrite = "orders:write"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
// UserID is the storefront user the key acts as; review mutations use it as
// the requester identity.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// HasScope reports whether the key grants the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
