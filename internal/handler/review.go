package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voltmart/storefront/internal/domain/review"
	"github.com/voltmart/storefront/pkg/apierror"
)

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Title   *string `json:"title"`
	Comment *string `json:"comment"`
}

type reviewResponse struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	UserID           string    `json:"user_id"`
	Rating           int       `json:"rating"`
	Title            string    `json:"title,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	VerifiedPurchase bool      `json:"verified_purchase"`
	HelpfulCount     int       `json:"helpful_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type reviewSummaryResponse struct {
	AverageRating float64     `json:"average_rating"`
	ReviewCount   int         `json:"review_count"`
	Distribution  map[int]int `json:"distribution"`
}

// ListReviews returns every review for a product.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ListByProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]reviewResponse, len(reviews))
	for i := range reviews {
		resp[i] = toReviewResponse(&reviews[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReviewSummary returns the derived rating view for a product, recomputed
// from the stored review set on every call.
func (h *Handler) ReviewSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reviews.ProductSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewSummaryResponse{
		AverageRating: summary.AverageRating,
		ReviewCount:   summary.ReviewCount,
		Distribution:  summary.Distribution,
	})
}

// CreateReview submits a review as the authenticated user.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.BadRequest("invalid request body"))
		return
	}

	created, err := h.reviews.Create(r.Context(), review.CreateParams{
		ProductID: chi.URLParam(r, "id"),
		UserID:    identityFrom(r.Context()).UserID,
		Rating:    req.Rating,
		Title:     req.Title,
		Comment:   req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(created))
}

// UpdateReview applies the author's changes to an existing review.
func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apierror.BadRequest("invalid review id"))
		return
	}

	var req updateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.BadRequest("invalid request body"))
		return
	}

	updated, err := h.reviews.Update(r.Context(), id, identityFrom(r.Context()).UserID, review.UpdateParams{
		Rating:  req.Rating,
		Title:   req.Title,
		Comment: req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(updated))
}

// DeleteReview removes the authenticated author's review.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apierror.BadRequest("invalid review id"))
		return
	}
	if err := h.reviews.Delete(r.Context(), id, identityFrom(r.Context()).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkReviewHelpful bumps a review's helpful counter on behalf of the
// authenticated user.
func (h *Handler) MarkReviewHelpful(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apierror.BadRequest("invalid review id"))
		return
	}
	if err := h.reviews.MarkHelpful(r.Context(), id, identityFrom(r.Context()).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toReviewResponse(r *review.Review) reviewResponse {
	return reviewResponse{
		ID:               r.ID.String(),
		ProductID:        r.ProductID,
		UserID:           r.UserID,
		Rating:           r.Rating,
		Title:            r.Title,
		Comment:          r.Comment,
		VerifiedPurchase: r.VerifiedPurchase,
		HelpfulCount:     r.HelpfulCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
