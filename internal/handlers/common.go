package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/kiranabazaar/api/internal/platform/httpx"
	"github.com/kiranabazaar/api/internal/platform/requestctx"
	"github.com/kiranabazaar/api/internal/services"
)

const (
	// CartIDHeader carries the shopper's cart identity. Guests get one minted
	// on first contact and the client echoes it back on every request.
	CartIDHeader = "X-Cart-Id"

	maxBodyBytes = 1 << 20
)

var (
	errBodyTooLarge  = errors.New("handlers: request body too large")
	errMalformedBody = errors.New("handlers: malformed request body")
)

// CartIdentity resolves the cart id header, minting a fresh id when absent,
// and makes it available to handlers and the idempotency scope.
func CartIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cartID := strings.TrimSpace(r.Header.Get(CartIDHeader))
		if cartID == "" {
			cartID = "cart_" + ulid.Make().String()
		}
		w.Header().Set(CartIDHeader, cartID)
		next.ServeHTTP(w, r.WithContext(requestctx.WithCartID(r.Context(), cartID)))
	})
}

func cartIDFromRequest(r *http.Request) (string, bool) {
	return requestctx.CartID(r.Context())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// serviceError maps service sentinels onto the API error envelope. Unknown
// errors become opaque 500s so internals never leak to clients.
func serviceError(err error) httpx.Error {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge)
	case errors.Is(err, errMalformedBody):
		return httpx.NewError("malformed_body", "request body is not valid JSON for this endpoint", http.StatusBadRequest)

	case errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)

	case errors.Is(err, services.ErrCartProductNotFound):
		return httpx.NewError("product_not_found", "no active product for the given sku", http.StatusNotFound)
	case errors.Is(err, services.ErrCartLineNotFound):
		return httpx.NewError("cart_line_not_found", "sku is not in the cart", http.StatusNotFound)
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError("order_not_found", "order does not exist", http.StatusNotFound)

	case errors.Is(err, services.ErrCartConflict):
		return httpx.NewError("cart_conflict", "cart was modified concurrently, retry with fresh state", http.StatusConflict)
	case errors.Is(err, services.ErrOrderInvalidState):
		return httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict)

	case errors.Is(err, services.ErrCheckoutCartNotReady):
		return httpx.NewError("cart_not_ready", "cart cannot be checked out", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrOrderPricingMismatch):
		return httpx.NewError("pricing_mismatch", "gateway amount does not match the priced cart", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrInconsistentTotal):
		return httpx.NewError("pricing_inconsistent", "pricing totals failed verification", http.StatusUnprocessableEntity)

	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		return httpx.NewError("payment_gateway_error", "payment gateway rejected the request", http.StatusBadGateway)

	case errors.Is(err, services.ErrCartUnavailable),
		errors.Is(err, services.ErrCheckoutUnavailable),
		errors.Is(err, services.ErrOrderUnavailable):
		return httpx.NewError("service_unavailable", "storage temporarily unavailable, retry shortly", http.StatusServiceUnavailable)
	}
	return httpx.NewError("internal_error", "unexpected server error", http.StatusInternalServerError)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(r.Context(), w, serviceError(err))
}
