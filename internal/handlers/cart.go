package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kiranabazaar/api/internal/platform/httpx"
	"github.com/kiranabazaar/api/internal/services"
)

// CartHandler serves cart reads and line mutations.
type CartHandler struct {
	carts services.CartService
}

// NewCartHandler constructs a CartHandler.
func NewCartHandler(carts services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

// Get returns the cart with its current price estimate.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDFromRequest(r)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_id_required", "missing cart identity header", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.GetOrCreateCart(r.Context(), cartID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

type upsertLineRequest struct {
	Quantity          int        `json:"quantity"`
	ExpectedUpdatedAt *time.Time `json:"expectedUpdatedAt,omitempty"`
}

// UpsertLine adds a product or changes its quantity.
func (h *CartHandler) UpsertLine(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDFromRequest(r)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_id_required", "missing cart identity header", http.StatusBadRequest))
		return
	}
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))

	var req upsertLineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	cart, err := h.carts.UpsertLine(r.Context(), services.UpsertCartLineCommand{
		CartID:            cartID,
		SKU:               sku,
		Quantity:          req.Quantity,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

// RemoveLine drops a SKU from the cart.
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	cartID, ok := cartIDFromRequest(r)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_id_required", "missing cart identity header", http.StatusBadRequest))
		return
	}
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))

	cart, err := h.carts.RemoveLine(r.Context(), services.RemoveCartLineCommand{
		CartID: cartID,
		SKU:    sku,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}
