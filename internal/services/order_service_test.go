package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kiranabazaar/api/internal/domain"
)

type fakeOrderRepo struct {
	orders     map[string]domain.Order
	insertErr  error
	updateErr  error
	lastReason string
}

func (f *fakeOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.orders == nil {
		f.orders = make(map[string]domain.Order)
	}
	if _, ok := f.orders[order.ID]; ok {
		return stubRepoError{conflict: true}
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	return order, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, orderID string, status domain.OrderStatus, at time.Time, reason string) (domain.Order, error) {
	if f.updateErr != nil {
		return domain.Order{}, f.updateErr
	}
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	order.Status = status
	order.UpdatedAt = at
	switch status {
	case domain.OrderStatusPaid:
		order.PaidAt = &at
	case domain.OrderStatusCanceled:
		order.CanceledAt = &at
	}
	f.lastReason = reason
	f.orders[orderID] = order
	return order, nil
}

func (f *fakeOrderRepo) ListByUser(_ context.Context, userID string, _ int) ([]domain.Order, error) {
	var out []domain.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

type fakeEventPublisher struct {
	events []OrderEvent
	err    error
}

func (f *fakeEventPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func newOrderServiceForTest(t *testing.T, orders *fakeOrderRepo, carts *fakeCartRepo, events *fakeEventPublisher) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Carts:       carts,
		Shipping:    testShipping,
		Events:      events,
		Clock:       testClock,
		IDGenerator: func() string { return "ord_test01" },
	})
	if err != nil {
		t.Fatalf("NewOrderService error: %v", err)
	}
	return svc
}

func TestPlaceOrder_FreezesPricingEvidence(t *testing.T) {
	carts := readyCartRepo(t)
	orders := &fakeOrderRepo{}
	events := &fakeEventPublisher{}
	svc := newOrderServiceForTest(t, orders, carts, events)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CartID:         "cart_abc",
		UserID:         "user_1",
		GatewayOrderID: "order_fake01",
		Provider:       "razorpay",
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if order.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("status = %s", order.Status)
	}
	// 2 x 29900 exclusive @18% plus 64900 inclusive @12%: base 59800 + 57946,
	// tax 10764 + 6954, free shipping above threshold.
	want := domain.OrderPriceBreakdown{ItemsSubtotal: 117746, TaxTotal: 17718, ShippingFee: 0, GrandTotal: 135464}
	if order.Breakdown.ItemsSubtotal != want.ItemsSubtotal ||
		order.Breakdown.TaxTotal != want.TaxTotal ||
		order.Breakdown.ShippingFee != want.ShippingFee ||
		order.Breakdown.GrandTotal != want.GrandTotal {
		t.Fatalf("breakdown = %+v, want %+v", order.Breakdown, want)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("lines = %+v", order.Lines)
	}
	if order.Lines[0].TaxableBase != 59800 || order.Lines[0].TaxAmount != 10764 {
		t.Fatalf("line snapshot = %+v", order.Lines[0])
	}
	if order.Lines[1].TaxableBase != 57946 || order.Lines[1].TaxAmount != 6954 {
		t.Fatalf("line snapshot = %+v", order.Lines[1])
	}
	if order.Payment == nil || order.Payment.GatewayID != "order_fake01" || order.Payment.Amount != want.GrandTotal {
		t.Fatalf("payment = %+v", order.Payment)
	}

	if _, ok := carts.carts["cart_abc"]; ok {
		t.Fatal("cart should be deleted after placement")
	}
	stored, ok := orders.orders[order.ID]
	if !ok {
		t.Fatal("order not persisted")
	}
	if stored.Breakdown.GrandTotal != want.GrandTotal {
		t.Fatalf("persisted breakdown = %+v", stored.Breakdown)
	}

	if len(events.events) != 1 {
		t.Fatalf("events = %+v", events.events)
	}
	event := events.events[0]
	if event.Type != orderEventCreated || event.OrderID != order.ID || event.Amount != want.GrandTotal {
		t.Fatalf("event = %+v", event)
	}
}

func TestPlaceOrder_GatewayAmountMismatchAbortsPersistence(t *testing.T) {
	carts := readyCartRepo(t)
	orders := &fakeOrderRepo{}
	events := &fakeEventPublisher{}
	svc := newOrderServiceForTest(t, orders, carts, events)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CartID:        "cart_abc",
		UserID:        "user_1",
		GatewayAmount: 135465,
	})
	if !errors.Is(err, ErrOrderPricingMismatch) {
		t.Fatalf("got %v, want ErrOrderPricingMismatch", err)
	}
	if len(orders.orders) != 0 {
		t.Fatal("mismatched order must not be persisted")
	}
	if _, ok := carts.carts["cart_abc"]; !ok {
		t.Fatal("cart must survive an aborted placement")
	}
	if len(events.events) != 0 {
		t.Fatalf("no events expected, got %+v", events.events)
	}
}

func TestPlaceOrder_MatchingGatewayAmount(t *testing.T) {
	svc := newOrderServiceForTest(t, &fakeOrderRepo{}, readyCartRepo(t), &fakeEventPublisher{})

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CartID:        "cart_abc",
		UserID:        "user_1",
		GatewayAmount: 135464,
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if order.Breakdown.GrandTotal != 135464 {
		t.Fatalf("grand total = %d", order.Breakdown.GrandTotal)
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	carts := readyCartRepo(t)
	carts.carts["cart_empty"] = domain.Cart{ID: "cart_empty", Currency: "INR"}
	svc := newOrderServiceForTest(t, &fakeOrderRepo{}, carts, &fakeEventPublisher{})

	cases := []struct {
		name string
		cmd  PlaceOrderCommand
	}{
		{"missing cart id", PlaceOrderCommand{UserID: "user_1"}},
		{"no contact", PlaceOrderCommand{CartID: "cart_abc"}},
		{"unknown cart", PlaceOrderCommand{CartID: "cart_missing", UserID: "user_1"}},
		{"empty cart", PlaceOrderCommand{CartID: "cart_empty", UserID: "user_1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.PlaceOrder(context.Background(), tc.cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("got %v, want ErrOrderInvalidInput", err)
			}
		})
	}

	// A guest contact alone satisfies the identity requirement.
	if _, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{CartID: "cart_abc", GuestContact: "+919800000001"}); err != nil {
		t.Fatalf("guest placement error: %v", err)
	}
}

func TestVerifyOrderTotals(t *testing.T) {
	orders := &fakeOrderRepo{}
	svc := newOrderServiceForTest(t, orders, readyCartRepo(t), &fakeEventPublisher{})

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{CartID: "cart_abc", UserID: "user_1"})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	verification, err := svc.VerifyOrderTotals(context.Background(), placed.ID)
	if err != nil {
		t.Fatalf("VerifyOrderTotals error: %v", err)
	}
	if !verification.Consistent {
		t.Fatalf("fresh order inconsistent: %+v", verification)
	}
	if verification.Recomputed.GrandTotal != placed.Breakdown.GrandTotal {
		t.Fatalf("recomputed = %+v", verification.Recomputed)
	}

	// Tamper with the stored totals; re-pricing from the snapshots must expose it.
	tampered := orders.orders[placed.ID]
	tampered.Breakdown.TaxTotal -= 100
	tampered.Breakdown.GrandTotal -= 100
	orders.orders[placed.ID] = tampered

	verification, err = svc.VerifyOrderTotals(context.Background(), placed.ID)
	if err != nil {
		t.Fatalf("VerifyOrderTotals error: %v", err)
	}
	if verification.Consistent {
		t.Fatal("tampered order reported consistent")
	}
	if verification.Recomputed.TaxTotal != placed.Breakdown.TaxTotal {
		t.Fatalf("recomputed = %+v", verification.Recomputed)
	}
}

func TestTransitionStatus(t *testing.T) {
	orders := &fakeOrderRepo{}
	events := &fakeEventPublisher{}
	svc := newOrderServiceForTest(t, orders, readyCartRepo(t), events)

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{CartID: "cart_abc", UserID: "user_1"})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	events.events = nil

	updated, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: placed.ID,
		Status:  domain.OrderStatusPaid,
		Reason:  "payment captured",
	})
	if err != nil {
		t.Fatalf("TransitionStatus error: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid || updated.PaidAt == nil {
		t.Fatalf("updated = %+v", updated)
	}
	if orders.lastReason != "payment captured" {
		t.Fatalf("reason = %q", orders.lastReason)
	}
	if len(events.events) != 1 {
		t.Fatalf("events = %+v", events.events)
	}
	event := events.events[0]
	if event.Type != orderEventStatusChanged ||
		event.PreviousStatus != string(domain.OrderStatusPendingPayment) ||
		event.CurrentStatus != string(domain.OrderStatusPaid) {
		t.Fatalf("event = %+v", event)
	}

	// paid -> pending_payment is not whitelisted.
	_, err = svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: placed.ID,
		Status:  domain.OrderStatusPendingPayment,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("got %v, want ErrOrderInvalidState", err)
	}

	_, err = svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: "ord_missing",
		Status:  domain.OrderStatusPaid,
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("got %v, want ErrOrderNotFound", err)
	}
}

func TestPlaceOrder_PublishFailureDoesNotFailPlacement(t *testing.T) {
	events := &fakeEventPublisher{err: errors.New("broker unavailable")}
	svc := newOrderServiceForTest(t, &fakeOrderRepo{}, readyCartRepo(t), events)

	if _, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{CartID: "cart_abc", UserID: "user_1"}); err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
}
