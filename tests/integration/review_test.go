//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestReviewLifecycle(t *testing.T) {
	// Create a review for product 2.
	resp := doPost(t, "/api/products/2/reviews", map[string]any{
		"rating": 4, "title": "Silky", "comment": "Perfect caramel top.",
	})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[reviewResponse](t, resp)
	resp.Body.Close()

	if created.UserID != "seed-user" {
		t.Errorf("expected author seed-user, got %q", created.UserID)
	}
	if created.VerifiedPurchase {
		t.Error("expected unverified review (no completed order for product 2)")
	}

	// The product aggregate now reflects the review.
	resp = doGet(t, "/api/products/2")
	p := decodeJSON[productResponse](t, resp)
	resp.Body.Close()

	if p.RatingAverage != 4 || p.RatingCount != 1 {
		t.Errorf("expected aggregate 4/1, got %v/%d", p.RatingAverage, p.RatingCount)
	}

	// A second review for the same product conflicts.
	resp = doPost(t, "/api/products/2/reviews", map[string]any{"rating": 1})
	if resp.StatusCode != http.StatusConflict {
		resp.Body.Close()
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The author updates the rating; the aggregate follows.
	resp = doRequest(t, http.MethodPatch, "/api/reviews/"+created.ID, map[string]any{"rating": 5}, seedAPIKey)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doGet(t, "/api/products/2/reviews/summary")
	summary := decodeJSON[summaryResponse](t, resp)
	resp.Body.Close()

	if summary.AverageRating != 5 || summary.ReviewCount != 1 {
		t.Errorf("expected summary 5/1, got %v/%d", summary.AverageRating, summary.ReviewCount)
	}
	if summary.Distribution[5] != 1 {
		t.Errorf("expected one 5-star review in distribution, got %v", summary.Distribution)
	}

	// Authors cannot mark their own review helpful.
	resp = doPost(t, "/api/reviews/"+created.ID+"/helpful", nil)
	if resp.StatusCode != http.StatusBadRequest {
		resp.Body.Close()
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The author deletes the review; the aggregate resets.
	resp = doRequest(t, http.MethodDelete, "/api/reviews/"+created.ID, nil, seedAPIKey)
	if resp.StatusCode != http.StatusNoContent {
		resp.Body.Close()
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doGet(t, "/api/products/2")
	p = decodeJSON[productResponse](t, resp)
	resp.Body.Close()

	if p.RatingAverage != 0 || p.RatingCount != 0 {
		t.Errorf("expected aggregate reset to 0/0, got %v/%d", p.RatingAverage, p.RatingCount)
	}
}

func TestCreateReview_RatingOutOfRange(t *testing.T) {
	resp := doPost(t, "/api/products/3/reviews", map[string]any{"rating": 6})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != "validation_failed" {
		t.Errorf("expected code validation_failed, got %q", body.Code)
	}
	if len(body.Fields["rating"]) == 0 {
		t.Errorf("expected field error for rating, got %v", body.Fields)
	}
}

func TestCreateReview_UnknownProduct(t *testing.T) {
	resp := doPost(t, "/api/products/9999/reviews", map[string]any{"rating": 3})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
