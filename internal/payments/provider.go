package payments

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// PaymentContext carries routing hints for provider selection.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

// PaymentOrderRequest captures the payload required to create a gateway order.
// Amount is in the currency's minor unit (paise for INR) and passes through
// unconverted; the pricing engine already produced minor units.
type PaymentOrderRequest struct {
	Amount         int64
	Currency       string
	Receipt        string
	Notes          map[string]string
	IdempotencyKey string
}

// PaymentOrder represents the gateway-side order returned to the client.
type PaymentOrder struct {
	GatewayID string
	Provider  string
	Amount    int64
	Currency  string
	Status    string
	Raw       map[string]any
}

// PaymentDetails normalises gateway payment fields for reconciliation.
type PaymentDetails struct {
	Provider  string
	PaymentID string
	OrderID   string
	Status    string
	Amount    int64
	Currency  string
	Raw       map[string]any
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreatePaymentOrder(ctx context.Context, req PaymentOrderRequest) (PaymentOrder, error)
	LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for currency, provider := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(currency))] = strings.ToLower(strings.TrimSpace(provider))
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for name, provider := range providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || provider == nil {
			return nil, errors.New("payments: provider entries must be named and non-nil")
		}
		m.providers[key] = provider
		if m.defaultProvider == "" {
			m.defaultProvider = key
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if _, ok := m.providers[m.defaultProvider]; !ok {
		return nil, errors.New("payments: default provider is not registered")
	}
	return m, nil
}

// CreatePaymentOrder routes the request to the selected provider.
func (m *Manager) CreatePaymentOrder(ctx context.Context, paymentCtx PaymentContext, req PaymentOrderRequest) (PaymentOrder, error) {
	provider, name, err := m.selectProvider(paymentCtx)
	if err != nil {
		return PaymentOrder{}, err
	}
	order, err := provider.CreatePaymentOrder(ctx, req)
	if err != nil {
		return PaymentOrder{}, err
	}
	if order.Provider == "" {
		order.Provider = name
	}
	return order, nil
}

// LookupPayment fetches payment details from the routed provider.
func (m *Manager) LookupPayment(ctx context.Context, paymentCtx PaymentContext, paymentID string) (PaymentDetails, error) {
	provider, name, err := m.selectProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, paymentID)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = name
	}
	return details, nil
}

func (m *Manager) selectProvider(paymentCtx PaymentContext) (Provider, string, error) {
	name := strings.ToLower(strings.TrimSpace(paymentCtx.PreferredProvider))
	if name == "" {
		if route, ok := m.currencyRoutes[strings.ToUpper(strings.TrimSpace(paymentCtx.Currency))]; ok {
			name = route
		} else {
			name = m.defaultProvider
		}
	}
	provider, ok := m.providers[name]
	if !ok {
		return nil, "", ErrUnsupportedProvider
	}
	return provider, name, nil
}
