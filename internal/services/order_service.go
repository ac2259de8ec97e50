package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kiranabazaar/api/internal/domain"
	"github.com/kiranabazaar/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderPricingMismatch indicates the recomputed total disagrees with the
	// gateway charge amount; the order must not be persisted.
	ErrOrderPricingMismatch = errors.New("order: pricing mismatch with gateway amount")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPendingPayment: {domain.OrderStatusPaid, domain.OrderStatusCanceled},
	domain.OrderStatusPaid:           {domain.OrderStatusShipped, domain.OrderStatusCanceled},
	domain.OrderStatusShipped:        {domain.OrderStatusDelivered},
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	PreviousStatus string
	CurrentStatus  string
	Amount         int64
	Currency       string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Shipping    domain.ShippingPolicy
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	shipping domain.ShippingPolicy
	events   OrderEventPublisher
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string {
			return orderIDPrefix + ulid.MustNew(ulid.Timestamp(clock().UTC()), rand.Reader).String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:   deps.Orders,
		carts:    deps.Carts,
		shipping: deps.Shipping,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

// PlaceOrder converts the cart into a persisted order. The breakdown is
// recomputed from the cart's line snapshots here, server-side, and compared to
// the amount the gateway order was created for; any disagreement aborts
// placement instead of persisting a possibly wrong total.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}
	if strings.TrimSpace(cmd.UserID) == "" && strings.TrimSpace(cmd.GuestContact) == "" {
		return domain.Order{}, fmt.Errorf("%w: guest orders need a contact", ErrOrderInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if isNotFound(err) {
			return domain.Order{}, ErrOrderInvalidInput
		}
		return domain.Order{}, ErrOrderUnavailable
	}
	if len(cart.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}
	if cart.Currency == "" {
		cart.Currency = defaultCartCurrency
	}

	breakdown, err := PriceCart(cart.Lines, s.shipping, cart.Currency)
	if err != nil {
		if errors.Is(err, ErrInconsistentTotal) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	if cmd.GatewayAmount != 0 && cmd.GatewayAmount != breakdown.GrandTotal {
		s.logger(ctx, "order.pricing_mismatch", map[string]any{
			"cartId":        cartID,
			"gatewayAmount": cmd.GatewayAmount,
			"recomputed":    breakdown.GrandTotal,
		})
		return domain.Order{}, fmt.Errorf("%w: gateway %d, recomputed %d", ErrOrderPricingMismatch, cmd.GatewayAmount, breakdown.GrandTotal)
	}

	now := s.now()
	order := domain.Order{
		ID:           s.newID(),
		UserID:       strings.TrimSpace(cmd.UserID),
		CartRef:      cartID,
		Status:       domain.OrderStatusPendingPayment,
		Currency:     cart.Currency,
		Lines:        freezeLines(cart.Lines, breakdown.Lines),
		Breakdown:    breakdown,
		Shipping:     s.shipping,
		Address:      cmd.Address,
		GuestContact: strings.TrimSpace(cmd.GuestContact),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if strings.TrimSpace(cmd.GatewayOrderID) != "" {
		order.Payment = &domain.PaymentOrder{
			Provider:  strings.TrimSpace(cmd.Provider),
			GatewayID: strings.TrimSpace(cmd.GatewayOrderID),
			Amount:    breakdown.GrandTotal,
			Currency:  cart.Currency,
			Status:    "created",
			CreatedAt: now,
		}
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	if err := s.carts.DeleteCart(ctx, cartID); err != nil {
		// Order placement already succeeded; a dangling cart is recoverable.
		s.logger(ctx, "order.cart_cleanup_failed", map[string]any{
			"orderId": order.ID,
			"cartId":  cartID,
			"error":   err.Error(),
		})
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		CurrentStatus: string(order.Status),
		Amount:        breakdown.GrandTotal,
		Currency:      order.Currency,
		OccurredAt:    now,
		Metadata: map[string]any{
			"itemsSubtotal": breakdown.ItemsSubtotal,
			"taxTotal":      breakdown.TaxTotal,
			"shippingFee":   breakdown.ShippingFee,
			"lines":         len(order.Lines),
		},
	})

	return order, nil
}

// GetOrder returns a persisted order by id.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, ErrOrderUnavailable
	}
	return order, nil
}

// TransitionStatus moves the order along its lifecycle, enforcing the
// transition whitelist.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error) {
	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	if !transitionAllowed(order.Status, cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, cmd.Status)
	}

	now := s.now()
	updated, err := s.orders.UpdateStatus(ctx, order.ID, cmd.Status, now, strings.TrimSpace(cmd.Reason))
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		Amount:         updated.Breakdown.GrandTotal,
		Currency:       updated.Currency,
		OccurredAt:     now,
	})

	return updated, nil
}

// VerifyOrderTotals re-prices a persisted order from its frozen line snapshots
// and compares the result to the stored breakdown. Because snapshots are
// immutable, this holds no matter how the catalog has changed since placement.
func (s *orderService) VerifyOrderTotals(ctx context.Context, orderID string) (OrderVerification, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return OrderVerification{}, err
	}

	recomputed, err := PriceCart(thawLines(order.Lines), order.Shipping, order.Currency)
	if err != nil {
		return OrderVerification{}, err
	}

	consistent := recomputed.GrandTotal == order.Breakdown.GrandTotal &&
		recomputed.ItemsSubtotal == order.Breakdown.ItemsSubtotal &&
		recomputed.TaxTotal == order.Breakdown.TaxTotal &&
		recomputed.ShippingFee == order.Breakdown.ShippingFee

	if !consistent {
		s.logger(ctx, "order.verify_mismatch", map[string]any{
			"orderId":    order.ID,
			"stored":     order.Breakdown.GrandTotal,
			"recomputed": recomputed.GrandTotal,
		})
	}

	return OrderVerification{
		OrderID:    order.ID,
		Consistent: consistent,
		Stored:     order.Breakdown,
		Recomputed: recomputed,
	}, nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderInvalidState
		}
	}
	return ErrOrderUnavailable
}

func transitionAllowed(from, to domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// freezeLines pairs each cart line with the per-line tax outcome computed for
// it, producing the immutable snapshots persisted with the order.
func freezeLines(lines []domain.CartLine, taxed []domain.LineTaxBreakdown) []domain.OrderLineSnapshot {
	frozen := make([]domain.OrderLineSnapshot, 0, len(lines))
	for i, line := range lines {
		snapshot := domain.OrderLineSnapshot{
			SKU:       line.SKU,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Tax:       line.Tax,
		}
		if i < len(taxed) {
			snapshot.TaxableBase = taxed[i].TaxableBase
			snapshot.TaxAmount = taxed[i].TaxAmount
		}
		frozen = append(frozen, snapshot)
	}
	return frozen
}

// thawLines rebuilds pricing-engine input from persisted snapshots.
func thawLines(snapshots []domain.OrderLineSnapshot) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(snapshots))
	for _, snap := range snapshots {
		lines = append(lines, domain.CartLine{
			SKU:       snap.SKU,
			ProductID: snap.ProductID,
			Name:      snap.Name,
			UnitPrice: snap.UnitPrice,
			Quantity:  snap.Quantity,
			Tax:       snap.Tax,
		})
	}
	return lines
}
