package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/kiranabazaar/api/internal/domain"
	"github.com/kiranabazaar/api/internal/payments"
	"github.com/kiranabazaar/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutCartNotReady indicates the cart is empty or missing data required for checkout.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutPaymentFailed indicates the gateway order could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// checkoutPaymentManager abstracts payments.Manager for easier testing.
type checkoutPaymentManager interface {
	CreatePaymentOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.PaymentOrderRequest) (payments.PaymentOrder, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts    repositories.CartRepository
	Payments checkoutPaymentManager
	Shipping domain.ShippingPolicy
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts    repositories.CartRepository
	payments checkoutPaymentManager
	shipping domain.ShippingPolicy
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		carts:    deps.Carts,
		payments: deps.Payments,
		shipping: deps.Shipping,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Summary prices the cart snapshot and returns the breakdown rendered on the
// checkout page. This is the same pipeline CreatePaymentOrder and order
// persistence run, so all three surfaces show identical numbers.
func (s *checkoutService) Summary(ctx context.Context, cartID string) (CheckoutSummary, error) {
	cart, err := s.loadReadyCart(ctx, cartID)
	if err != nil {
		return CheckoutSummary{}, err
	}

	breakdown, err := PriceCart(cart.Lines, s.shipping, cart.Currency)
	if err != nil {
		return CheckoutSummary{}, s.translatePricingError(ctx, cart.ID, err)
	}

	return CheckoutSummary{
		CartID:         cart.ID,
		Breakdown:      breakdown,
		DisplayTaxLine: breakdown.DisplaysTaxLine(),
	}, nil
}

// CreatePaymentOrder prices the cart and creates the gateway-side order
// charging exactly the engine's grand total, in paise.
func (s *checkoutService) CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentOrderResult, error) {
	cart, err := s.loadReadyCart(ctx, cmd.CartID)
	if err != nil {
		return PaymentOrderResult{}, err
	}

	breakdown, err := PriceCart(cart.Lines, s.shipping, cart.Currency)
	if err != nil {
		return PaymentOrderResult{}, s.translatePricingError(ctx, cart.ID, err)
	}
	if breakdown.GrandTotal <= 0 {
		return PaymentOrderResult{}, ErrCheckoutCartNotReady
	}

	paymentCtx := payments.PaymentContext{
		PreferredProvider: strings.TrimSpace(cmd.Provider),
		Currency:          cart.Currency,
	}
	req := payments.PaymentOrderRequest{
		Amount:         breakdown.GrandTotal,
		Currency:       cart.Currency,
		Receipt:        cart.ID,
		Notes:          s.buildNotes(cmd.Notes, cart, breakdown),
		IdempotencyKey: s.paymentIdempotencyKey(cart, breakdown),
	}

	order, err := s.payments.CreatePaymentOrder(ctx, paymentCtx, req)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentOrderResult{}, ErrCheckoutInvalidInput
		}
		s.logger(ctx, "checkout.payment_order_failed", map[string]any{
			"cartId":   cart.ID,
			"provider": paymentCtx.PreferredProvider,
			"error":    err.Error(),
		})
		return PaymentOrderResult{}, ErrCheckoutPaymentFailed
	}

	if order.Amount != breakdown.GrandTotal {
		// The gateway echoing a different amount than requested is the exact
		// divergence class this service guards against.
		s.logger(ctx, "checkout.payment_amount_mismatch", map[string]any{
			"cartId":   cart.ID,
			"expected": breakdown.GrandTotal,
			"actual":   order.Amount,
		})
		return PaymentOrderResult{}, fmt.Errorf("%w: gateway amount %d != %d", ErrInconsistentTotal, order.Amount, breakdown.GrandTotal)
	}

	s.logger(ctx, "checkout.payment_order_created", map[string]any{
		"cartId":    cart.ID,
		"gatewayId": order.GatewayID,
		"amount":    order.Amount,
	})

	return PaymentOrderResult{
		PaymentOrder: domain.PaymentOrder{
			Provider:  order.Provider,
			GatewayID: order.GatewayID,
			Amount:    order.Amount,
			Currency:  order.Currency,
			Status:    order.Status,
			CreatedAt: s.now(),
		},
		Breakdown: breakdown,
	}, nil
}

func (s *checkoutService) loadReadyCart(ctx context.Context, cartID string) (domain.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return domain.Cart{}, ErrCheckoutInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{}, ErrCheckoutCartNotReady
		}
		return domain.Cart{}, ErrCheckoutUnavailable
	}
	if len(cart.Lines) == 0 {
		return domain.Cart{}, ErrCheckoutCartNotReady
	}
	if cart.Currency == "" {
		cart.Currency = defaultCartCurrency
	}
	return cart, nil
}

func (s *checkoutService) translatePricingError(ctx context.Context, cartID string, err error) error {
	if errors.Is(err, ErrInconsistentTotal) {
		// Fatal pricing defect: abort checkout rather than risk a wrong total.
		s.logger(ctx, "checkout.pricing_inconsistent", map[string]any{
			"cartId": cartID,
			"error":  err.Error(),
		})
		return err
	}
	if errors.Is(err, ErrPricingInvalidInput) || errors.Is(err, ErrPricingOverflow) {
		return ErrCheckoutCartNotReady
	}
	return ErrCheckoutUnavailable
}

func (s *checkoutService) buildNotes(cmdNotes map[string]string, cart domain.Cart, breakdown domain.OrderPriceBreakdown) map[string]string {
	notes := map[string]string{
		"cart_id":        cart.ID,
		"items_subtotal": domain.FormatPaise(breakdown.ItemsSubtotal),
		"tax_total":      domain.FormatPaise(breakdown.TaxTotal),
		"shipping_fee":   domain.FormatPaise(breakdown.ShippingFee),
	}
	for k, v := range cmdNotes {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		notes[k] = v
	}
	return notes
}

// paymentIdempotencyKey derives a stable key from the cart snapshot so
// retrying the same checkout never creates a second gateway order, while any
// cart mutation produces a fresh key.
func (s *checkoutService) paymentIdempotencyKey(cart domain.Cart, breakdown domain.OrderPriceBreakdown) string {
	base := fmt.Sprintf("%s|%s|%d", cart.ID, cart.UpdatedAt.UTC().Format(time.RFC3339Nano), breakdown.GrandTotal)
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
