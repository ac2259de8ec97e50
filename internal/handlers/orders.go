package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kiranabazaar/api/internal/domain"
	"github.com/kiranabazaar/api/internal/services"
)

// OrderHandler serves order placement, lookup, and totals verification.
type OrderHandler struct {
	orders services.OrderService
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orders services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type addressRequest struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type placeOrderRequest struct {
	CartID         string          `json:"cartId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	GuestContact   string          `json:"guestContact,omitempty"`
	Address        *addressRequest `json:"address,omitempty"`
	GatewayOrderID string          `json:"gatewayOrderId"`
	GatewayAmount  int64           `json:"gatewayAmount"`
	Provider       string          `json:"provider,omitempty"`
}

// Place converts the cart into a persisted order.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" {
		if headerID, ok := cartIDFromRequest(r); ok {
			cartID = headerID
		}
	}

	cmd := services.PlaceOrderCommand{
		CartID:         cartID,
		UserID:         strings.TrimSpace(req.UserID),
		GuestContact:   strings.TrimSpace(req.GuestContact),
		GatewayOrderID: strings.TrimSpace(req.GatewayOrderID),
		GatewayAmount:  req.GatewayAmount,
		Provider:       strings.TrimSpace(req.Provider),
	}
	if req.Address != nil {
		cmd.Address = &domain.Address{
			Recipient:  req.Address.Recipient,
			Line1:      req.Address.Line1,
			Line2:      req.Address.Line2,
			City:       req.Address.City,
			State:      req.Address.State,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
			Phone:      req.Address.Phone,
		}
	}

	order, err := h.orders.PlaceOrder(r.Context(), cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(order))
}

// Get returns a stored order with its immutable pricing breakdown.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

type verifyResponse struct {
	OrderID    string        `json:"orderId"`
	Consistent bool          `json:"consistent"`
	Stored     breakdownView `json:"stored"`
	Recomputed breakdownView `json:"recomputed"`
}

// Verify re-prices the order from its frozen line snapshots and reports
// whether the stored totals still reproduce.
func (h *OrderHandler) Verify(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))

	verification, err := h.orders.VerifyOrderTotals(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		OrderID:    verification.OrderID,
		Consistent: verification.Consistent,
		Stored:     newBreakdownView(verification.Stored),
		Recomputed: newBreakdownView(verification.Recomputed),
	})
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Transition moves the order along its lifecycle.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))

	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	order, err := h.orders.TransitionStatus(r.Context(), services.OrderStatusTransitionCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}
