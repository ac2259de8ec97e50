package handlers

import (
	"net/http"
	"time"

	"github.com/kiranabazaar/api/internal/platform/httpx"
	"github.com/kiranabazaar/api/internal/services"
)

// CheckoutHandler serves the checkout summary and payment-order creation.
type CheckoutHandler struct {
	checkout services.CheckoutService
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(checkout services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type checkoutSummaryResponse struct {
	CartID    string        `json:"cartId"`
	Breakdown breakdownView `json:"breakdown"`
}

// Summary prices the cart and returns the totals shown on the checkout page.
func (h *CheckoutHandler) Summary(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDFromRequest(r)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_id_required", "missing cart identity header", http.StatusBadRequest))
		return
	}

	summary, err := h.checkout.Summary(r.Context(), cartID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutSummaryResponse{
		CartID:    summary.CartID,
		Breakdown: newBreakdownView(summary.Breakdown),
	})
}

type createPaymentOrderRequest struct {
	Provider string            `json:"provider,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createPaymentOrderResponse struct {
	Provider       string        `json:"provider"`
	GatewayOrderID string        `json:"gatewayOrderId"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	Status         string        `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	Breakdown      breakdownView `json:"breakdown"`
}

// CreatePaymentOrder asks the gateway for an order charging the cart's grand total.
func (h *CheckoutHandler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDFromRequest(r)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_id_required", "missing cart identity header", http.StatusBadRequest))
		return
	}

	req := createPaymentOrderRequest{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	result, err := h.checkout.CreatePaymentOrder(r.Context(), services.CreatePaymentOrderCommand{
		CartID:   cartID,
		Provider: req.Provider,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPaymentOrderResponse{
		Provider:       result.PaymentOrder.Provider,
		GatewayOrderID: result.PaymentOrder.GatewayID,
		Amount:         result.PaymentOrder.Amount,
		Currency:       result.PaymentOrder.Currency,
		Status:         result.PaymentOrder.Status,
		CreatedAt:      result.PaymentOrder.CreatedAt,
		Breakdown:      newBreakdownView(result.Breakdown),
	})
}
