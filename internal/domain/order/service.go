package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voltmart/storefront/internal/domain/discount"
	"github.com/voltmart/storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrInvalidQuantity = fmt.Errorf("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// DiscountApplier redeems a discount code against an order. Implemented by
// the discount Engine.
type DiscountApplier interface {
	Apply(ctx context.Context, req discount.ApplyRequest) (*discount.Application, error)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID       string
	Items        []OrderItem
	DiscountCode string
	ShippingCost decimal.Decimal
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates order placement business logic.
type Service struct {
	products  product.Repository
	discounts DiscountApplier
	orders    Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	discounts DiscountApplier,
	orders Repository,
) *Service {
	return &Service{
		products:  products,
		discounts: discounts,
		orders:    orders,
	}
}

// PlaceOrder validates items, fetches products in a single batch, redeems an
// optional discount code, persists the order, and returns the result.
// Not idempotent: a retry places a second order and consumes another
// discount use.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Verify every requested product was found, compute the subtotal.
	products := make([]product.Product, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	// Redeem the discount code when one is provided. This consumes a use, so
	// it happens after all order validation has passed.
	discountAmount := decimal.Zero
	freeShipping := false
	if req.DiscountCode != "" {
		app, err := s.discounts.Apply(ctx, discount.ApplyRequest{
			Code:         req.DiscountCode,
			Subtotal:     subtotal,
			UserID:       req.UserID,
			ShippingCost: req.ShippingCost,
		})
		if err != nil {
			return nil, fmt.Errorf("apply discount: %w", err)
		}
		discountAmount = app.DiscountAmount
		freeShipping = app.FreeShipping
	}

	// Total = subtotal - discount, floored at zero and rounded to 2 decimal places.
	total := subtotal.Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &Order{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Items:          req.Items,
		Subtotal:       subtotal.Round(2),
		DiscountAmount: discountAmount.Round(2),
		Total:          total.Round(2),
		DiscountCode:   discount.Canonicalize(req.DiscountCode),
		FreeShipping:   freeShipping,
		Status:         StatusPending,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}

// MarkCompleted transitions an order to the completed state, making its items
// count as verified purchases for reviews.
func (s *Service) MarkCompleted(ctx context.Context, id string) error {
	if _, err := s.orders.GetByID(ctx, id); err != nil {
		return err
	}
	return s.orders.SetStatus(ctx, id, StatusCompleted)
}
