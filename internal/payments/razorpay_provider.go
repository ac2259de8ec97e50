package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

const razorpayProviderName = "razorpay"

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Fetch(paymentID string, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayClients struct {
	orders   razorpayOrderAPI
	payments razorpayPaymentAPI
}

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID     string
	KeySecret string
	Logger    RazorpayLogger
	Clock     func() time.Time
	Clients   *razorpayClients
}

// RazorpayProvider implements the Provider interface against the Razorpay
// Orders and Payments APIs. Amounts pass through untouched: Razorpay expects
// minor units (paise) and so does the rest of this codebase.
type RazorpayProvider struct {
	api    razorpayClients
	clock  func() time.Time
	logger RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if (keyID == "" || keySecret == "") && cfg.Clients == nil {
		return nil, errors.New("razorpay: key id and secret are required")
	}

	var clients razorpayClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		rc := razorpay.NewClient(keyID, keySecret)
		clients = razorpayClients{orders: rc.Order, payments: rc.Payment}
	}
	if clients.orders == nil || clients.payments == nil {
		return nil, errors.New("razorpay: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		api: clients,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreatePaymentOrder creates a Razorpay order for the requested amount.
func (p *RazorpayProvider) CreatePaymentOrder(ctx context.Context, req PaymentOrderRequest) (PaymentOrder, error) {
	if p == nil {
		return PaymentOrder{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return PaymentOrder{}, errors.New("razorpay: amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	var headers map[string]string
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		headers = map[string]string{"X-Razorpay-Idempotency": key}
	}

	body, err := p.api.orders.Create(data, headers)
	if err != nil {
		p.logger(ctx, "razorpay.order_create_failed", map[string]any{
			"receipt": req.Receipt,
			"amount":  req.Amount,
			"error":   err.Error(),
		})
		return PaymentOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	order := PaymentOrder{
		GatewayID: stringField(body, "id"),
		Provider:  razorpayProviderName,
		Amount:    int64Field(body, "amount"),
		Currency:  firstNonEmptyString(stringField(body, "currency"), currency),
		Status:    stringField(body, "status"),
		Raw:       body,
	}
	if order.GatewayID == "" {
		return PaymentOrder{}, errors.New("razorpay: response missing order id")
	}

	p.logger(ctx, "razorpay.order_created", map[string]any{
		"gatewayId": order.GatewayID,
		"amount":    order.Amount,
		"status":    order.Status,
	})
	return order, nil
}

// LookupPayment fetches payment details for reconciliation.
func (p *RazorpayProvider) LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return PaymentDetails{}, errors.New("razorpay: payment id is required")
	}

	body, err := p.api.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: fetch payment: %w", err)
	}

	return PaymentDetails{
		Provider:  razorpayProviderName,
		PaymentID: stringField(body, "id"),
		OrderID:   stringField(body, "order_id"),
		Status:    stringField(body, "status"),
		Amount:    int64Field(body, "amount"),
		Currency:  stringField(body, "currency"),
		Raw:       body,
	}, nil
}

func stringField(body map[string]interface{}, key string) string {
	if body == nil {
		return ""
	}
	if value, ok := body[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// int64Field tolerates the float64 numbers produced by JSON decoding as well
// as integer values from test fakes.
func int64Field(body map[string]interface{}, key string) int64 {
	if body == nil {
		return 0
	}
	switch value := body[key].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	default:
		return 0
	}
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
