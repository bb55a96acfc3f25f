package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending is the initial state of a freshly placed order.
	StatusPending Status = "pending"
	// StatusCompleted marks a fulfilled order. Completed orders are what the
	// review service consults for verified-purchase checks.
	StatusCompleted Status = "completed"
	// StatusCancelled marks an abandoned order.
	StatusCancelled Status = "cancelled"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = fmt.Errorf("order not found")

// Order represents a customer order with pricing and discount details.
type Order struct {
	ID             string
	UserID         string
	Items          []OrderItem
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	DiscountCode   string
	FreeShipping   bool
	Status         Status
	CreatedAt      time.Time
}

// OrderItem represents a single line item in an order.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	SetStatus(ctx context.Context, id string, status Status) error

	// HasUserPurchasedProduct reports whether the user has a completed order
	// containing the product.
	HasUserPurchasedProduct(ctx context.Context, userID, productID string) (bool, error)
}
