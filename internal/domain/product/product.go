package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. RatingAverage and
// RatingCount are a derived cache of the product's review set; the review
// service rewrites them after every review mutation.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	Category      string
	Image         Image
	RatingAverage float64
	RatingCount   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// UpdateRatingAggregate overwrites the cached average rating and review
	// count for a product.
	UpdateRatingAggregate(ctx context.Context, id string, average float64, count int) error
}
