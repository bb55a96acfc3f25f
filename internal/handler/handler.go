// Package handler exposes the storefront domain services over REST.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/voltmart/storefront/internal/domain/auth"
	"github.com/voltmart/storefront/internal/domain/discount"
	"github.com/voltmart/storefront/internal/domain/order"
	"github.com/voltmart/storefront/internal/domain/product"
	"github.com/voltmart/storefront/internal/domain/review"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler routes API requests to the domain services.
type Handler struct {
	products     product.Repository
	discounts    *discount.Engine
	reviews      *review.Service
	orders       *order.Service
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	discounts *discount.Engine,
	reviews *review.Service,
	orders *order.Service,
) *Handler {
	return &Handler{
		products:     products,
		discounts:    discounts,
		reviews:      reviews,
		orders:       orders,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes builds the API router. Every route requires an authenticated API
// key; write-side discount administration and order fulfilment additionally
// require their scopes.
func (h *Handler) Routes(sec *Security) chi.Router {
	r := chi.NewRouter()
	r.Use(sec.Authenticate)

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Get("/products/{id}/reviews", h.ListReviews)
	r.Get("/products/{id}/reviews/summary", h.ReviewSummary)
	r.Post("/products/{id}/reviews", h.CreateReview)
	r.Patch("/reviews/{id}", h.UpdateReview)
	r.Delete("/reviews/{id}", h.DeleteReview)
	r.Post("/reviews/{id}/helpful", h.MarkReviewHelpful)

	r.Post("/discounts/validate", h.ValidateDiscount)
	r.Get("/discounts/preview", h.PreviewSavings)
	r.Get("/discounts/{id}/stats", h.DiscountStats)

	r.Group(func(r chi.Router) {
		r.Use(sec.RequireScope(auth.ScopeDiscountsWrite))
		r.Post("/discounts", h.CreateDiscount)
		r.Post("/discounts/{id}/deactivate", h.DeactivateDiscount)
		r.Delete("/discounts/{id}", h.DeleteDiscount)
	})

	r.Post("/orders", h.PlaceOrder)

	r.Group(func(r chi.Router) {
		r.Use(sec.RequireScope(auth.ScopeOrdersWrite))
		r.Post("/orders/{id}/complete", h.CompleteOrder)
	})

	return r
}
