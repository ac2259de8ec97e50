package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeOrderAPI struct {
	lastData    map[string]interface{}
	lastHeaders map[string]string
	response    map[string]interface{}
	err         error
}

func (f *fakeOrderAPI) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	f.lastData = data
	f.lastHeaders = extraHeaders
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakePaymentAPI struct {
	lastID   string
	response map[string]interface{}
	err      error
}

func (f *fakePaymentAPI) Fetch(paymentID string, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.lastID = paymentID
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func newTestProvider(t *testing.T, orders *fakeOrderAPI, paymentsAPI *fakePaymentAPI) *RazorpayProvider {
	t.Helper()
	provider, err := NewRazorpayProvider(RazorpayProviderConfig{
		Clients: &razorpayClients{orders: orders, payments: paymentsAPI},
	})
	if err != nil {
		t.Fatalf("NewRazorpayProvider error: %v", err)
	}
	return provider
}

func TestRazorpayCreatePaymentOrder(t *testing.T) {
	orders := &fakeOrderAPI{response: map[string]interface{}{
		"id":       "order_Nx001",
		"amount":   float64(135464),
		"currency": "INR",
		"status":   "created",
	}}
	provider := newTestProvider(t, orders, &fakePaymentAPI{})

	order, err := provider.CreatePaymentOrder(context.Background(), PaymentOrderRequest{
		Amount:         135464,
		Currency:       "inr",
		Receipt:        "cart_abc",
		Notes:          map[string]string{"cart_id": "cart_abc"},
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("CreatePaymentOrder error: %v", err)
	}
	if order.GatewayID != "order_Nx001" || order.Amount != 135464 || order.Provider != "razorpay" {
		t.Fatalf("order = %+v", order)
	}
	if order.Status != "created" || order.Currency != "INR" {
		t.Fatalf("order = %+v", order)
	}

	// Paise pass through unconverted and the currency is normalised upper-case.
	if orders.lastData["amount"] != int64(135464) || orders.lastData["currency"] != "INR" {
		t.Fatalf("request data = %v", orders.lastData)
	}
	if orders.lastData["receipt"] != "cart_abc" {
		t.Fatalf("request data = %v", orders.lastData)
	}
	notes, ok := orders.lastData["notes"].(map[string]interface{})
	if !ok || notes["cart_id"] != "cart_abc" {
		t.Fatalf("request notes = %v", orders.lastData["notes"])
	}
	if orders.lastHeaders["X-Razorpay-Idempotency"] != "key-1" {
		t.Fatalf("headers = %v", orders.lastHeaders)
	}
}

func TestRazorpayCreatePaymentOrder_Failures(t *testing.T) {
	orders := &fakeOrderAPI{err: errors.New("BAD_REQUEST_ERROR")}
	provider := newTestProvider(t, orders, &fakePaymentAPI{})

	_, err := provider.CreatePaymentOrder(context.Background(), PaymentOrderRequest{Amount: 100, Currency: "INR"})
	if err == nil || !strings.Contains(err.Error(), "create order") {
		t.Fatalf("got %v", err)
	}

	_, err = provider.CreatePaymentOrder(context.Background(), PaymentOrderRequest{Amount: 0, Currency: "INR"})
	if err == nil {
		t.Fatal("expected error for non-positive amount")
	}

	orders.err = nil
	orders.response = map[string]interface{}{"amount": float64(100)}
	_, err = provider.CreatePaymentOrder(context.Background(), PaymentOrderRequest{Amount: 100, Currency: "INR"})
	if err == nil || !strings.Contains(err.Error(), "missing order id") {
		t.Fatalf("got %v", err)
	}
}

func TestRazorpayLookupPayment(t *testing.T) {
	paymentsAPI := &fakePaymentAPI{response: map[string]interface{}{
		"id":       "pay_Nx002",
		"order_id": "order_Nx001",
		"status":   "captured",
		"amount":   float64(135464),
		"currency": "INR",
	}}
	provider := newTestProvider(t, &fakeOrderAPI{}, paymentsAPI)

	details, err := provider.LookupPayment(context.Background(), " pay_Nx002 ")
	if err != nil {
		t.Fatalf("LookupPayment error: %v", err)
	}
	if paymentsAPI.lastID != "pay_Nx002" {
		t.Fatalf("fetched id = %q", paymentsAPI.lastID)
	}
	if details.PaymentID != "pay_Nx002" || details.OrderID != "order_Nx001" ||
		details.Status != "captured" || details.Amount != 135464 {
		t.Fatalf("details = %+v", details)
	}

	if _, err := provider.LookupPayment(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank payment id")
	}
}

type staticProvider struct {
	name string
}

func (p staticProvider) CreatePaymentOrder(context.Context, PaymentOrderRequest) (PaymentOrder, error) {
	return PaymentOrder{GatewayID: "order_" + p.name, Amount: 100, Currency: "INR", Status: "created"}, nil
}

func (p staticProvider) LookupPayment(context.Context, string) (PaymentDetails, error) {
	return PaymentDetails{PaymentID: "pay_" + p.name}, nil
}

func TestManagerRouting(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": staticProvider{name: "rzp"},
		"payu":     staticProvider{name: "payu"},
	}, WithDefaultProvider("razorpay"), WithCurrencyRoutes(map[string]string{"usd": "payu"}))
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	order, err := manager.CreatePaymentOrder(context.Background(), PaymentContext{}, PaymentOrderRequest{Amount: 100})
	if err != nil {
		t.Fatalf("CreatePaymentOrder error: %v", err)
	}
	if order.GatewayID != "order_rzp" || order.Provider != "razorpay" {
		t.Fatalf("default route = %+v", order)
	}

	order, err = manager.CreatePaymentOrder(context.Background(), PaymentContext{Currency: "USD"}, PaymentOrderRequest{Amount: 100})
	if err != nil {
		t.Fatalf("CreatePaymentOrder error: %v", err)
	}
	if order.GatewayID != "order_payu" {
		t.Fatalf("currency route = %+v", order)
	}

	order, err = manager.CreatePaymentOrder(context.Background(), PaymentContext{PreferredProvider: "PayU", Currency: "INR"}, PaymentOrderRequest{Amount: 100})
	if err != nil {
		t.Fatalf("CreatePaymentOrder error: %v", err)
	}
	if order.GatewayID != "order_payu" {
		t.Fatalf("preferred route = %+v", order)
	}

	_, err = manager.CreatePaymentOrder(context.Background(), PaymentContext{PreferredProvider: "stripe"}, PaymentOrderRequest{Amount: 100})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("got %v, want ErrUnsupportedProvider", err)
	}
}
