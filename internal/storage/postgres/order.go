package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltmart/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, items, subtotal,
		discount_amount, total, discount_code, free_shipping, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	getOrderByIDSQL = `SELECT id, user_id, items, subtotal, discount_amount,
		total, discount_code, free_shipping, status, created_at
		FROM orders WHERE id = $1`

	setOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	// items is a JSONB array of {"product_id": ..., "quantity": ...}.
	hasPurchasedSQL = `SELECT EXISTS (
		SELECT 1 FROM orders o, jsonb_array_elements(o.items) item
		WHERE o.user_id = $1 AND o.status = 'completed'
		  AND item->>'product_id' = $2
	)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	err = r.pool.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal,
		o.DiscountAmount, o.Total, o.DiscountCode, o.FreeShipping, string(o.Status),
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID looks up an order by id. Returns order.ErrNotFound when it does
// not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	return &o, nil
}

// SetStatus transitions the order's lifecycle state.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, setOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("setting order %q status %q: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// HasUserPurchasedProduct reports whether the user has a completed order
// containing the product. Used by reviews for the verified-purchase flag.
func (r *OrderRepository) HasUserPurchasedProduct(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, hasPurchasedSQL, userID, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking purchase of %q by user %q: %w", productID, userID, err)
	}
	return exists, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Subtotal, &o.DiscountAmount,
		&o.Total, &o.DiscountCode, &o.FreeShipping, &status, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	return o, nil
}
