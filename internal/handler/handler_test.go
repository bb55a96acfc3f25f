package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmart/storefront/internal/domain/auth"
	"github.com/voltmart/storefront/internal/domain/discount"
	"github.com/voltmart/storefront/internal/domain/order"
	"github.com/voltmart/storefront/internal/domain/product"
	"github.com/voltmart/storefront/internal/domain/review"
)

const testPepper = "test-pepper"

// --- mock repositories ---

type mockProductRepo struct {
	products map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) UpdateRatingAggregate(_ context.Context, id string, average float64, count int) error {
	p, ok := m.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.RatingAverage = average
	p.RatingCount = count
	return nil
}

type mockDiscountRepo struct {
	byCode map[string]*discount.Discount
	byID   map[uuid.UUID]*discount.Discount
}

func newMockDiscountRepo(discounts ...*discount.Discount) *mockDiscountRepo {
	m := &mockDiscountRepo{
		byCode: make(map[string]*discount.Discount),
		byID:   make(map[uuid.UUID]*discount.Discount),
	}
	for _, d := range discounts {
		m.byCode[d.Code] = d
		m.byID[d.ID] = d
	}
	return m
}

func (m *mockDiscountRepo) Create(_ context.Context, d *discount.Discount) error {
	if _, ok := m.byCode[d.Code]; ok {
		return discount.ErrCodeExists
	}
	m.byCode[d.Code] = d
	m.byID[d.ID] = d
	return nil
}

func (m *mockDiscountRepo) FindByCode(_ context.Context, code string) (*discount.Discount, error) {
	d, ok := m.byCode[code]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (m *mockDiscountRepo) FindByID(_ context.Context, id uuid.UUID) (*discount.Discount, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (m *mockDiscountRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	d, ok := m.byID[id]
	if !ok {
		return discount.ErrNotFound
	}
	d.Active = active
	return nil
}

func (m *mockDiscountRepo) Delete(_ context.Context, id uuid.UUID) error {
	d, ok := m.byID[id]
	if !ok {
		return discount.ErrNotFound
	}
	delete(m.byCode, d.Code)
	delete(m.byID, id)
	return nil
}

func (m *mockDiscountRepo) UserUsageCount(_ context.Context, _ uuid.UUID, _ string) (int, error) {
	return 0, nil
}

func (m *mockDiscountRepo) ConsumeUse(_ context.Context, id uuid.UUID, _ string) error {
	d, ok := m.byID[id]
	if !ok {
		return discount.ErrNotFound
	}
	if d.MaxUsageCount > 0 && d.UsageCount >= d.MaxUsageCount {
		return discount.ErrUsageExhausted
	}
	d.UsageCount++
	return nil
}

type mockReviewRepo struct {
	reviews map[uuid.UUID]*review.Review
}

func newMockReviewRepo() *mockReviewRepo {
	return &mockReviewRepo{reviews: make(map[uuid.UUID]*review.Review)}
}

func (m *mockReviewRepo) Create(_ context.Context, r *review.Review) error {
	for _, existing := range m.reviews {
		if existing.ProductID == r.ProductID && existing.UserID == r.UserID {
			return review.ErrAlreadyReviewed
		}
	}
	cp := *r
	m.reviews[r.ID] = &cp
	return nil
}

func (m *mockReviewRepo) GetByID(_ context.Context, id uuid.UUID) (*review.Review, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, review.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReviewRepo) ListByProduct(_ context.Context, productID string) ([]review.Review, error) {
	var out []review.Review
	for _, r := range m.reviews {
		if r.ProductID == productID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) Update(_ context.Context, r *review.Review) error {
	if _, ok := m.reviews[r.ID]; !ok {
		return review.ErrNotFound
	}
	cp := *r
	m.reviews[r.ID] = &cp
	return nil
}

func (m *mockReviewRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.reviews[id]; !ok {
		return review.ErrNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *mockReviewRepo) IncrementHelpful(_ context.Context, id uuid.UUID) error {
	r, ok := m.reviews[id]
	if !ok {
		return review.ErrNotFound
	}
	r.HelpfulCount++
	return nil
}

type mockOrderRepo struct {
	orders    map[string]*order.Order
	purchased map[string]bool // userID|productID
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders:    make(map[string]*order.Order),
		purchased: make(map[string]bool),
	}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) SetStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *mockOrderRepo) HasUserPurchasedProduct(_ context.Context, userID, productID string) (bool, error) {
	return m.purchased[userID+"|"+productID], nil
}

type mockKeyRepo struct {
	keys map[string]*auth.APIKeyInfo // hash -> info
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return info, nil
}

// --- fixtures ---

type fixture struct {
	server    *httptest.Server
	products  *mockProductRepo
	discounts *mockDiscountRepo
	reviews   *mockReviewRepo
	orders    *mockOrderRepo
}

func keyHash(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// newFixture builds a test server over in-memory repositories. Three API
// keys are registered: "user-key" (user u1, no scopes), "other-key" (user
// u2, no scopes), and "admin-key" (user admin, all scopes).
func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &mockProductRepo{products: map[string]*product.Product{
		"1": {ID: "1", Name: "Waffle", Price: decimal.RequireFromString("6.50"), Category: "Waffle",
			Image: product.Image{Thumbnail: "images/waffle-thumbnail.jpg"}},
		"2": {ID: "2", Name: "Brownie", Price: decimal.RequireFromString("4.50"), Category: "Brownie"},
	}}
	discounts := newMockDiscountRepo(&discount.Discount{
		ID:     uuid.New(),
		Code:   "SAVE20",
		Type:   discount.TypePercentage,
		Value:  decimal.RequireFromString("20"),
		Active: true,
	})
	reviews := newMockReviewRepo()
	orders := newMockOrderRepo()

	keys := &mockKeyRepo{keys: map[string]*auth.APIKeyInfo{
		keyHash("user-key"): {
			ID: "k1", KeyHash: keyHash("user-key"), Name: "user", UserID: "u1",
		},
		keyHash("other-key"): {
			ID: "k2", KeyHash: keyHash("other-key"), Name: "other", UserID: "u2",
		},
		keyHash("admin-key"): {
			ID: "k3", KeyHash: keyHash("admin-key"), Name: "admin", UserID: "admin",
			Scopes: []string{auth.ScopeDiscountsWrite, auth.ScopeOrdersWrite},
		},
	}}

	engine := discount.NewEngine(discounts)
	reviewSvc := review.NewService(reviews, products, orders)
	orderSvc := order.NewService(products, engine, orders)

	h := NewHandler(Config{ImageBaseURL: "https://cdn.example.com"}, products, engine, reviewSvc, orderSvc)
	sec := NewSecurity(keys, []byte(testPepper))

	srv := httptest.NewServer(h.Routes(sec))
	t.Cleanup(srv.Close)

	return &fixture{
		server:    srv,
		products:  products,
		discounts: discounts,
		reviews:   reviews,
		orders:    orders,
	}
}

func (f *fixture) do(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// --- tests ---

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	t.Run("missing key", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/products", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "unauthorized", body["code"])
	})

	t.Run("unknown key", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/products", "nope", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid key", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/products", "user-key", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestScopeEnforcement(t *testing.T) {
	f := newFixture(t)

	t.Run("unscoped key cannot create discounts", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/discounts", "user-key", map[string]any{
			"code": "NEW10", "type": "percentage", "value": "10",
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin key can create discounts", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/discounts", "admin-key", map[string]any{
			"code": "NEW10", "type": "percentage", "value": "10",
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "NEW10", body["code"])
		assert.Equal(t, true, body["active"])
	})
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/products", "user-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[[]productResponse](t, resp)
	require.Len(t, body, 2)
	for _, p := range body {
		if p.ID == "1" {
			assert.Equal(t, "6.50", p.Price)
			assert.Equal(t, "https://cdn.example.com/images/waffle-thumbnail.jpg", p.Image.Thumbnail)
		}
	}
}

func TestGetProductNotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/products/99", "user-key", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "not_found", body["code"])
	assert.Equal(t, "product not found", body["message"])
}

func TestValidateDiscount(t *testing.T) {
	f := newFixture(t)

	t.Run("valid code", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/discounts/validate", "user-key", map[string]any{"code": "save20"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[validateDiscountResponse](t, resp)
		assert.True(t, body.Valid)
		require.NotNil(t, body.Discount)
		assert.Equal(t, "SAVE20", body.Discount.Code)
	})

	t.Run("unknown code is a 200 with a reason", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/discounts/validate", "user-key", map[string]any{"code": "NOPE"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[validateDiscountResponse](t, resp)
		assert.False(t, body.Valid)
		assert.Equal(t, "Invalid discount code", body.Reason)
		assert.Nil(t, body.Discount)
	})
}

func TestPreviewSavings(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/discounts/preview?code=SAVE20&subtotal=100", "user-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[previewSavingsResponse](t, resp)
	assert.Equal(t, "20.00", body.Savings)
}

func TestDiscountStats(t *testing.T) {
	f := newFixture(t)

	t.Run("capped", func(t *testing.T) {
		capped := &discount.Discount{
			ID:            uuid.New(),
			Code:          "CAPPED25",
			Type:          discount.TypePercentage,
			Value:         decimal.RequireFromString("10"),
			MaxUsageCount: 25,
			UsageCount:    5,
			Active:        true,
		}
		require.NoError(t, f.discounts.Create(context.Background(), capped))

		resp := f.do(t, http.MethodGet, "/discounts/"+capped.ID.String()+"/stats", "user-key", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[discountStatsResponse](t, resp)
		assert.Equal(t, 5, body.TotalUsage)
		require.NotNil(t, body.RemainingUsage)
		assert.Equal(t, 20, *body.RemainingUsage)
		assert.InDelta(t, 20.0, body.UsagePercentage, 1e-9)
	})

	t.Run("uncapped reports zero percentage", func(t *testing.T) {
		id := f.discounts.byCode["SAVE20"].ID

		resp := f.do(t, http.MethodGet, "/discounts/"+id.String()+"/stats", "user-key", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, float64(0), body["total_usage"])
		assert.NotContains(t, body, "remaining_usage")
		// present even without a cap
		require.Contains(t, body, "usage_percentage")
		assert.Equal(t, float64(0), body["usage_percentage"])
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/discounts/"+uuid.NewString()+"/stats", "user-key", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCreateReview(t *testing.T) {
	f := newFixture(t)

	t.Run("created with verified purchase", func(t *testing.T) {
		f.orders.purchased["u1|1"] = true

		resp := f.do(t, http.MethodPost, "/products/1/reviews", "user-key", map[string]any{
			"rating": 5, "title": "Great", "comment": "Crispy.",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[reviewResponse](t, resp)
		assert.Equal(t, "u1", body.UserID)
		assert.True(t, body.VerifiedPurchase)

		// The product aggregate is refreshed from the review set.
		assert.Equal(t, 5.0, f.products.products["1"].RatingAverage)
		assert.Equal(t, 1, f.products.products["1"].RatingCount)
	})

	t.Run("second review by same user conflicts", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/products/1/reviews", "user-key", map[string]any{"rating": 2})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "conflict", body["code"])
	})

	t.Run("rating out of range", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/products/2/reviews", "user-key", map[string]any{"rating": 6})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestReviewAuthorship(t *testing.T) {
	f := newFixture(t)

	created := decodeBody[reviewResponse](t, f.do(t, http.MethodPost, "/products/1/reviews", "user-key",
		map[string]any{"rating": 4, "title": "Good"}))

	t.Run("non-author cannot update", func(t *testing.T) {
		resp := f.do(t, http.MethodPatch, "/reviews/"+created.ID, "other-key", map[string]any{"rating": 1})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("author cannot mark own review helpful", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/reviews/"+created.ID+"/helpful", "user-key", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("another user can mark helpful", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/reviews/"+created.ID+"/helpful", "other-key", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("author deletes, aggregate resets", func(t *testing.T) {
		resp := f.do(t, http.MethodDelete, "/reviews/"+created.ID, "user-key", nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		assert.Equal(t, 0.0, f.products.products["1"].RatingAverage)
		assert.Equal(t, 0, f.products.products["1"].RatingCount)
	})
}

func TestReviewSummary(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/products/1/reviews", "user-key", map[string]any{"rating": 5})
	f.do(t, http.MethodPost, "/products/1/reviews", "other-key", map[string]any{"rating": 2})

	resp := f.do(t, http.MethodGet, "/products/1/reviews/summary", "user-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[reviewSummaryResponse](t, resp)
	assert.Equal(t, 3.5, body.AverageRating)
	assert.Equal(t, 2, body.ReviewCount)
	assert.Equal(t, map[int]int{1: 0, 2: 1, 3: 0, 4: 0, 5: 1}, body.Distribution)
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)

	t.Run("with discount", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders", "user-key", map[string]any{
			"items":         []map[string]any{{"product_id": "1", "quantity": 2}},
			"discount_code": "SAVE20",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[orderResponse](t, resp)
		assert.Equal(t, "13.00", body.Subtotal)
		assert.Equal(t, "2.60", body.DiscountAmount)
		assert.Equal(t, "10.40", body.Total)
		assert.Equal(t, "pending", body.Status)
		assert.Equal(t, "u1", body.UserID)
	})

	t.Run("empty items", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders", "user-key", map[string]any{
			"items": []map[string]any{},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown product", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders", "user-key", map[string]any{
			"items": []map[string]any{{"product_id": "99", "quantity": 1}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestCompleteOrder(t *testing.T) {
	f := newFixture(t)

	placed := decodeBody[orderResponse](t, f.do(t, http.MethodPost, "/orders", "user-key", map[string]any{
		"items": []map[string]any{{"product_id": "2", "quantity": 1}},
	}))

	t.Run("requires scope", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders/"+placed.ID+"/complete", "user-key", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin completes", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders/"+placed.ID+"/complete", "admin-key", nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, order.StatusCompleted, f.orders.orders[placed.ID].Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/orders/nope/complete", "admin-key", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
