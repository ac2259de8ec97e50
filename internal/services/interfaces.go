package services

import (
	"context"
	"time"

	domain "github.com/kiranabazaar/api/internal/domain"
)

// CartService manages mutable cart state and keeps the stored estimate in sync
// with the pricing engine after every mutation.
type CartService interface {
	GetOrCreateCart(ctx context.Context, cartID string) (domain.Cart, error)
	UpsertLine(ctx context.Context, cmd UpsertCartLineCommand) (domain.Cart, error)
	RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (domain.Cart, error)
}

// CheckoutService produces checkout summaries and creates payment-gateway
// orders, both over the identical cart snapshot priced by the same engine.
type CheckoutService interface {
	Summary(ctx context.Context, cartID string) (CheckoutSummary, error)
	CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentOrderResult, error)
}

// OrderService places orders from carts and lets persisted orders be
// independently re-verified against their frozen line snapshots.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error)
	VerifyOrderTotals(ctx context.Context, orderID string) (OrderVerification, error)
}

// UpsertCartLineCommand adds a product to the cart or changes its quantity.
// Price and tax configuration are captured from the catalog only when the line
// is first added; a quantity change never refreshes the snapshot.
type UpsertCartLineCommand struct {
	CartID            string
	SKU               string
	Quantity          int
	ExpectedUpdatedAt *time.Time
}

// RemoveCartLineCommand removes a SKU from the cart.
type RemoveCartLineCommand struct {
	CartID            string
	SKU               string
	ExpectedUpdatedAt *time.Time
}

// CheckoutSummary is the engine output enriched with display hints for the
// checkout page.
type CheckoutSummary struct {
	CartID         string
	Breakdown      domain.OrderPriceBreakdown
	DisplayTaxLine bool
}

// CreatePaymentOrderCommand asks the gateway for an order carrying the cart's
// grand total as the charge amount.
type CreatePaymentOrderCommand struct {
	CartID   string
	Provider string
	Notes    map[string]string
}

// PaymentOrderResult pairs the gateway order with the breakdown it was priced
// from so callers can cross-check the charged amount.
type PaymentOrderResult struct {
	PaymentOrder domain.PaymentOrder
	Breakdown    domain.OrderPriceBreakdown
}

// PlaceOrderCommand converts a cart into a persisted order. GatewayOrderID and
// GatewayAmount reference the payment order created during checkout; the
// service recomputes the breakdown and refuses to persist when the recomputed
// grand total disagrees with the gateway amount.
type PlaceOrderCommand struct {
	CartID         string
	UserID         string
	GuestContact   string
	Address        *domain.Address
	GatewayOrderID string
	GatewayAmount  int64
	Provider       string
}

// OrderStatusTransitionCommand moves an order along its lifecycle.
type OrderStatusTransitionCommand struct {
	OrderID string
	Status  domain.OrderStatus
	Reason  string
}

// OrderVerification reports the outcome of re-pricing a persisted order from
// its line snapshots.
type OrderVerification struct {
	OrderID    string
	Consistent bool
	Stored     domain.OrderPriceBreakdown
	Recomputed domain.OrderPriceBreakdown
}
