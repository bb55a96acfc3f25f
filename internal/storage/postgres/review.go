package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltmart/storefront/internal/domain/review"
)

const (
	reviewColumns = `id, product_id, user_id, rating, title, comment,
		verified, helpful_count, created_at, updated_at`

	insertReviewSQL = `INSERT INTO reviews (id, product_id, user_id, rating,
		title, comment, verified, helpful_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getReviewByIDSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	listReviewsByProductSQL = `SELECT ` + reviewColumns + ` FROM reviews
		WHERE product_id = $1 ORDER BY created_at DESC, id`

	updateReviewSQL = `UPDATE reviews SET rating = $2, title = $3, comment = $4,
		updated_at = $5 WHERE id = $1`

	deleteReviewSQL = `DELETE FROM reviews WHERE id = $1`

	incrementHelpfulSQL = `UPDATE reviews SET helpful_count = helpful_count + 1 WHERE id = $1`
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create persists a new review. The UNIQUE (product_id, user_id) constraint
// surfaces as review.ErrAlreadyReviewed.
func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.pool.Exec(ctx, insertReviewSQL,
		rv.ID, rv.ProductID, rv.UserID, rv.Rating,
		rv.Title, rv.Comment, rv.VerifiedPurchase, rv.HelpfulCount,
		rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return review.ErrAlreadyReviewed
		}
		return fmt.Errorf("creating review %s: %w", rv.ID, err)
	}
	return nil
}

// GetByID looks up a review by id. Returns review.ErrNotFound when it does
// not exist.
func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*review.Review, error) {
	rows, err := r.pool.Query(ctx, getReviewByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding review %s: %w", id, err)
	}

	rv, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, fmt.Errorf("finding review %s: %w", id, err)
	}
	return &rv, nil
}

// ListByProduct returns the full review set for a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	rows, err := r.pool.Query(ctx, listReviewsByProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews for product %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanReview)
}

// Update rewrites the mutable fields of a review.
func (r *ReviewRepository) Update(ctx context.Context, rv *review.Review) error {
	tag, err := r.pool.Exec(ctx, updateReviewSQL,
		rv.ID, rv.Rating, rv.Title, rv.Comment, rv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating review %s: %w", rv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteReviewSQL, id)
	if err != nil {
		return fmt.Errorf("deleting review %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

// IncrementHelpful atomically bumps the helpful counter.
func (r *ReviewRepository) IncrementHelpful(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, incrementHelpfulSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing helpful count of review %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

func scanReview(row pgx.CollectableRow) (review.Review, error) {
	var rv review.Review
	err := row.Scan(
		&rv.ID, &rv.ProductID, &rv.UserID, &rv.Rating, &rv.Title, &rv.Comment,
		&rv.VerifiedPurchase, &rv.HelpfulCount, &rv.CreatedAt, &rv.UpdatedAt,
	)
	return rv, err
}
