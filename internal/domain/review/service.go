package review

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/voltmart/storefront/internal/domain/product"
)

// CreateParams holds the input for submitting a review.
type CreateParams struct {
	ProductID string
	UserID    string
	Rating    int
	Title     string
	Comment   string
}

// UpdateParams holds the author's changes to an existing review.
// Nil fields are left untouched.
type UpdateParams struct {
	Rating  *int
	Title   *string
	Comment *string
}

// Service owns review mutations and the product rating aggregate they drive.
// After every create, update, or delete it recomputes the owning product's
// average rating and review count from the full stored review set.
type Service struct {
	reviews   Repository
	products  product.Repository
	purchases PurchaseChecker
	now       func() time.Time
}

// NewService creates a review Service with the required collaborators.
func NewService(reviews Repository, products product.Repository, purchases PurchaseChecker) *Service {
	return &Service{
		reviews:   reviews,
		products:  products,
		purchases: purchases,
		now:       time.Now,
	}
}

// Create submits a new review. The verified-purchase flag is derived once, at
// creation time, from the user's completed order history. Not idempotent: the
// duplicate guard makes a blind retry fail with ErrAlreadyReviewed.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Review, error) {
	if p.Rating < 1 || p.Rating > 5 {
		return nil, ErrRatingOutOfRange
	}

	if _, err := s.products.GetByID(ctx, p.ProductID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}

	verified, err := s.purchases.HasUserPurchasedProduct(ctx, p.UserID, p.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "check purchase history")
	}

	now := s.now()
	r := &Review{
		ID:               uuid.New(),
		ProductID:        p.ProductID,
		UserID:           p.UserID,
		Rating:           p.Rating,
		Title:            p.Title,
		Comment:          p.Comment,
		VerifiedPurchase: verified,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.reviews.Create(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			return nil, ErrAlreadyReviewed
		}
		return nil, errors.Wrap(err, "create review")
	}

	if err := s.recomputeAggregate(ctx, p.ProductID); err != nil {
		return nil, err
	}
	return r, nil
}

// Update applies the author's changes and refreshes the product aggregate.
// Only the review's author may update it.
func (s *Service) Update(ctx context.Context, id uuid.UUID, requesterID string, p UpdateParams) (*Review, error) {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != requesterID {
		return nil, ErrNotAuthor
	}

	if p.Rating != nil {
		if *p.Rating < 1 || *p.Rating > 5 {
			return nil, ErrRatingOutOfRange
		}
		r.Rating = *p.Rating
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Comment != nil {
		r.Comment = *p.Comment
	}
	r.UpdatedAt = s.now()

	if err := s.reviews.Update(ctx, r); err != nil {
		return nil, errors.Wrap(err, "update review")
	}

	if err := s.recomputeAggregate(ctx, r.ProductID); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes the author's review and refreshes the product aggregate.
// Deleting the product's only review resets the aggregate to 0/0.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, requesterID string) error {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != requesterID {
		return ErrNotAuthor
	}

	if err := s.reviews.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete review")
	}
	return s.recomputeAggregate(ctx, r.ProductID)
}

// MarkHelpful bumps a review's helpful counter. Authors cannot mark their
// own reviews. The counter is not part of the rating aggregate, so no
// recomputation happens here.
func (s *Service) MarkHelpful(ctx context.Context, id uuid.UUID, requesterID string) error {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID == requesterID {
		return ErrOwnReview
	}
	return s.reviews.IncrementHelpful(ctx, id)
}

// ListByProduct returns every review for a product.
func (s *Service) ListByProduct(ctx context.Context, productID string) ([]Review, error) {
	return s.reviews.ListByProduct(ctx, productID)
}

// ProductSummary recomputes the derived rating view (average, count, per-star
// distribution) on demand from the stored review set.
func (s *Service) ProductSummary(ctx context.Context, productID string) (Summary, error) {
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "list reviews")
	}
	return Summarize(reviews), nil
}

// recomputeAggregate rereads the product's full review set and rewrites the
// cached average and count on the product record.
func (s *Service) recomputeAggregate(ctx context.Context, productID string) error {
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "list reviews for aggregate")
	}
	average, count := Aggregate(reviews)
	if err := s.products.UpdateRatingAggregate(ctx, productID, average, count); err != nil {
		return errors.Wrap(err, "update rating aggregate")
	}
	return nil
}
