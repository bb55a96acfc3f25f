package review

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested review does not exist.
	ErrNotFound = errors.New("review not found")
	// ErrAlreadyReviewed is returned when a user submits a second review for
	// the same product.
	ErrAlreadyReviewed = errors.New("you have already reviewed this product")
	// ErrRatingOutOfRange is returned for ratings outside 1..5.
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
	// ErrNotAuthor is returned when someone other than the review's author
	// tries to update or delete it.
	ErrNotAuthor = errors.New("only the review author may modify this review")
	// ErrOwnReview is returned when a user tries to mark their own review
	// as helpful.
	ErrOwnReview = errors.New("you cannot mark your own review as helpful")
)

// Review is a user's rating of a product, at most one per (product, user).
type Review struct {
	ID               uuid.UUID
	ProductID        string
	UserID           string
	Rating           int
	Title            string
	Comment          string
	VerifiedPurchase bool
	HelpfulCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Repository provides persistence for reviews.
type Repository interface {
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
	Update(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id uuid.UUID) error

	// IncrementHelpful atomically bumps the helpful counter.
	IncrementHelpful(ctx context.Context, id uuid.UUID) error
}

// PurchaseChecker reports whether a user has a completed order containing a
// product. Implemented by the order history store.
type PurchaseChecker interface {
	HasUserPurchasedProduct(ctx context.Context, userID, productID string) (bool, error)
}
