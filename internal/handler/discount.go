package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voltmart/storefront/internal/domain/discount"
	"github.com/voltmart/storefront/pkg/apierror"
)

type validateDiscountRequest struct {
	Code string `json:"code"`
}

type validateDiscountResponse struct {
	Valid    bool              `json:"valid"`
	Reason   string            `json:"reason,omitempty"`
	Discount *discountResponse `json:"discount,omitempty"`
}

type discountResponse struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	Type              string     `json:"type"`
	Value             string     `json:"value"`
	StartsAt          *time.Time `json:"starts_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	MinPurchaseAmount string     `json:"min_purchase_amount,omitempty"`
	MaxDiscountAmount string     `json:"max_discount_amount,omitempty"`
	MaxUsageCount     int        `json:"max_usage_count,omitempty"`
	MaxUsagePerUser   int        `json:"max_usage_per_user,omitempty"`
	UsageCount        int        `json:"usage_count"`
	Active            bool       `json:"active"`
}

type previewSavingsResponse struct {
	Code    string `json:"code"`
	Savings string `json:"savings"`
}

type discountStatsResponse struct {
	TotalUsage      int     `json:"total_usage"`
	RemainingUsage  *int    `json:"remaining_usage,omitempty"`
	UsagePercentage float64 `json:"usage_percentage"`
}

type createDiscountRequest struct {
	Code              string     `json:"code"`
	Type              string     `json:"type"`
	Value             string     `json:"value"`
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	MinPurchaseAmount string     `json:"min_purchase_amount"`
	MaxDiscountAmount string     `json:"max_discount_amount"`
	MaxUsageCount     int        `json:"max_usage_count"`
	MaxUsagePerUser   int        `json:"max_usage_per_user"`
}

// ValidateDiscount checks a code's eligibility without consuming a use.
// Rule violations are part of the 200 response, not errors.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	var req validateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.BadRequest("invalid request body"))
		return
	}

	res, err := h.discounts.Validate(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := validateDiscountResponse{Valid: res.Valid, Reason: res.Reason}
	if res.Discount != nil {
		d := toDiscountResponse(res.Discount)
		resp.Discount = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

// PreviewSavings reports the discount amount a code would yield for a
// subtotal, with no eligibility checks and no side effects.
func (h *Handler) PreviewSavings(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	subtotal, err := decimal.NewFromString(r.URL.Query().Get("subtotal"))
	if err != nil {
		writeError(w, r, apierror.BadRequest("invalid subtotal"))
		return
	}

	savings, err := h.discounts.CalculateSavings(r.Context(), code, subtotal)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewSavingsResponse{
		Code:    discount.Canonicalize(code),
		Savings: savings.StringFixed(2),
	})
}

// DiscountStats reports global usage progress for a discount.
func (h *Handler) DiscountStats(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apierror.BadRequest("invalid discount id"))
		return
	}

	stats, err := h.discounts.Stats(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// UsagePercentage is 0 for uncapped discounts.
	writeJSON(w, http.StatusOK, discountStatsResponse{
		TotalUsage:      stats.TotalUsage,
		RemainingUsage:  stats.RemainingUsage,
		UsagePercentage: stats.UsagePercentage,
	})
}

// CreateDiscount creates a new discount code.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req createDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.BadRequest("invalid request body"))
		return
	}

	params, err := toCreateParams(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.discounts.Create(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDiscountResponse(d))
}

// DeactivateDiscount soft-disables a discount; its record and ledger survive.
func (h *Handler) DeactivateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apierror.BadRequest("invalid discount id"))
		return
	}
	if err := h.discounts.Deactivate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteDiscount hard-deletes a discount.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apierror.BadRequest("invalid discount id"))
		return
	}
	if err := h.discounts.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCreateParams(req createDiscountRequest) (discount.CreateParams, error) {
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		return discount.CreateParams{}, apierror.Validation("invalid discount", map[string][]string{
			"value": {"must be a decimal number"},
		})
	}

	params := discount.CreateParams{
		Code:            req.Code,
		Type:            discount.Type(req.Type),
		Value:           value,
		StartsAt:        req.StartsAt,
		ExpiresAt:       req.ExpiresAt,
		MaxUsageCount:   req.MaxUsageCount,
		MaxUsagePerUser: req.MaxUsagePerUser,
	}
	if req.MinPurchaseAmount != "" {
		if params.MinPurchaseAmount, err = decimal.NewFromString(req.MinPurchaseAmount); err != nil {
			return discount.CreateParams{}, apierror.Validation("invalid discount", map[string][]string{
				"min_purchase_amount": {"must be a decimal number"},
			})
		}
	}
	if req.MaxDiscountAmount != "" {
		if params.MaxDiscountAmount, err = decimal.NewFromString(req.MaxDiscountAmount); err != nil {
			return discount.CreateParams{}, apierror.Validation("invalid discount", map[string][]string{
				"max_discount_amount": {"must be a decimal number"},
			})
		}
	}
	return params, nil
}

func toDiscountResponse(d *discount.Discount) discountResponse {
	resp := discountResponse{
		ID:              d.ID.String(),
		Code:            d.Code,
		Type:            string(d.Type),
		Value:           d.Value.StringFixed(2),
		StartsAt:        d.StartsAt,
		ExpiresAt:       d.ExpiresAt,
		MaxUsageCount:   d.MaxUsageCount,
		MaxUsagePerUser: d.MaxUsagePerUser,
		UsageCount:      d.UsageCount,
		Active:          d.Active,
	}
	if d.MinPurchaseAmount.IsPositive() {
		resp.MinPurchaseAmount = d.MinPurchaseAmount.StringFixed(2)
	}
	if d.MaxDiscountAmount.IsPositive() {
		resp.MaxDiscountAmount = d.MaxDiscountAmount.StringFixed(2)
	}
	return resp
}
