package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/voltmart/storefront/internal/domain/order"
	"github.com/voltmart/storefront/pkg/apierror"
)

type placeOrderRequest struct {
	Items        []orderItemRequest `json:"items"`
	DiscountCode string             `json:"discount_code"`
	ShippingCost string             `json:"shipping_cost"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	Items          []orderItemRequest `json:"items"`
	Products       []productResponse  `json:"products"`
	Subtotal       string             `json:"subtotal"`
	DiscountAmount string             `json:"discount_amount"`
	Total          string             `json:"total"`
	DiscountCode   string             `json:"discount_code,omitempty"`
	FreeShipping   bool               `json:"free_shipping"`
	Status         string             `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
}

// PlaceOrder places an order for the authenticated user, optionally redeeming
// a discount code.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.BadRequest("invalid request body"))
		return
	}

	shipping := decimal.Zero
	if req.ShippingCost != "" {
		var err error
		if shipping, err = decimal.NewFromString(req.ShippingCost); err != nil {
			writeError(w, r, apierror.Validation("invalid order", map[string][]string{
				"shipping_cost": {"must be a decimal number"},
			}))
			return
		}
	}

	items := make([]order.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:       identityFrom(r.Context()).UserID,
		Items:        items,
		DiscountCode: req.DiscountCode,
		ShippingCost: shipping,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := orderResponse{
		ID:             result.Order.ID,
		UserID:         result.Order.UserID,
		Subtotal:       result.Order.Subtotal.StringFixed(2),
		DiscountAmount: result.Order.DiscountAmount.StringFixed(2),
		Total:          result.Order.Total.StringFixed(2),
		DiscountCode:   result.Order.DiscountCode,
		FreeShipping:   result.Order.FreeShipping,
		Status:         string(result.Order.Status),
		CreatedAt:      result.Order.CreatedAt,
	}
	resp.Items = make([]orderItemRequest, len(result.Order.Items))
	for i, item := range result.Order.Items {
		resp.Items[i] = orderItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	resp.Products = make([]productResponse, len(result.Products))
	for i := range result.Products {
		resp.Products[i] = h.toProductResponse(&result.Products[i])
	}
	writeJSON(w, http.StatusCreated, resp)
}

// CompleteOrder transitions an order to the completed state.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.MarkCompleted(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
