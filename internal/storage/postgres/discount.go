package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltmart/storefront/internal/domain/discount"
)

const (
	discountColumns = `id, code, discount_type, value, starts_at, expires_at,
		COALESCE(min_purchase_amount, 0), COALESCE(max_discount_amount, 0),
		COALESCE(max_usage_count, 0), COALESCE(max_usage_per_user, 0),
		usage_count, active, created_at, updated_at`

	insertDiscountSQL = `INSERT INTO discounts (id, code, discount_type, value,
		starts_at, expires_at, min_purchase_amount, max_discount_amount,
		max_usage_count, max_usage_per_user, usage_count, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0::numeric), NULLIF($8, 0::numeric),
			NULLIF($9, 0), NULLIF($10, 0), $11, $12, $13, $14)`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE code = UPPER($1)`

	getDiscountByIDSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`

	setDiscountActiveSQL = `UPDATE discounts SET active = $2, updated_at = now() WHERE id = $1`

	deleteDiscountSQL = `DELETE FROM discounts WHERE id = $1`

	userUsageCountSQL = `SELECT COUNT(*) FROM discount_usages
		WHERE discount_id = $1 AND user_id = $2`

	// The increment is conditional on the global cap so two concurrent
	// redemptions of the last use cannot both succeed.
	consumeUseSQL = `UPDATE discounts SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND (max_usage_count IS NULL OR usage_count < max_usage_count)`

	insertUsageSQL = `INSERT INTO discount_usages (id, discount_id, user_id, used_at)
		VALUES ($1, $2, $3, now())`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// Create persists a new discount. Returns discount.ErrCodeExists when the
// canonical code is already taken.
func (r *DiscountRepository) Create(ctx context.Context, d *discount.Discount) error {
	_, err := r.pool.Exec(ctx, insertDiscountSQL,
		d.ID, d.Code, string(d.Type), d.Value, d.StartsAt, d.ExpiresAt,
		d.MinPurchaseAmount, d.MaxDiscountAmount,
		d.MaxUsageCount, d.MaxUsagePerUser,
		d.UsageCount, d.Active, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return discount.ErrCodeExists
		}
		return fmt.Errorf("creating discount %q: %w", d.Code, err)
	}
	return nil
}

// FindByCode looks up a discount by its canonical code (case-insensitive).
// Returns discount.ErrNotFound when no such code exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &d, nil
}

// FindByID looks up a discount by id. Returns discount.ErrNotFound when it
// does not exist.
func (r *DiscountRepository) FindByID(ctx context.Context, id uuid.UUID) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding discount %s: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount %s: %w", id, err)
	}
	return &d, nil
}

// SetActive flips the active flag.
func (r *DiscountRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, setDiscountActiveSQL, id, active)
	if err != nil {
		return fmt.Errorf("setting discount %s active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// Delete hard-deletes a discount; its ledger rows cascade.
func (r *DiscountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteDiscountSQL, id)
	if err != nil {
		return fmt.Errorf("deleting discount %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// UserUsageCount counts the user's ledger rows for the discount.
func (r *DiscountRepository) UserUsageCount(ctx context.Context, discountID uuid.UUID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, userUsageCountSQL, discountID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage of discount %s by user %s: %w", discountID, userID, err)
	}
	return count, nil
}

// ConsumeUse increments the global usage counter and appends a ledger row in
// a single transaction. Returns discount.ErrUsageExhausted when the
// conditional increment matches no row (cap already reached).
func (r *DiscountRepository) ConsumeUse(ctx context.Context, discountID uuid.UUID, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning consume-use tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, consumeUseSQL, discountID)
	if err != nil {
		return fmt.Errorf("incrementing usage of discount %s: %w", discountID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrUsageExhausted
	}

	if _, err := tx.Exec(ctx, insertUsageSQL, uuid.New(), discountID, userID); err != nil {
		return fmt.Errorf("recording usage of discount %s by user %s: %w", discountID, userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing consume-use tx: %w", err)
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d            discount.Discount
		discountType string
	)
	err := row.Scan(
		&d.ID, &d.Code, &discountType, &d.Value, &d.StartsAt, &d.ExpiresAt,
		&d.MinPurchaseAmount, &d.MaxDiscountAmount,
		&d.MaxUsageCount, &d.MaxUsagePerUser,
		&d.UsageCount, &d.Active, &d.CreatedAt, &d.UpdatedAt,
	)
	d.Type = discount.Type(discountType)
	return d, err
}
