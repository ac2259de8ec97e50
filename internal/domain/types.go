package domain

import (
	"errors"
	"time"
)

// ErrInvalidTaxConfig is returned when a tax configuration is constructed with a negative rate.
var ErrInvalidTaxConfig = errors.New("domain: invalid tax config")

// TaxConfig captures the GST configuration attached to a product. Rates are
// expressed in basis points (1800 = 18%) so the pricing engine never touches
// floating point.
type TaxConfig struct {
	RateBps   int64
	Inclusive bool
	Taxable   bool
}

// NewTaxConfig validates and builds a TaxConfig. Negative rates are rejected
// here so downstream pricing code can treat every TaxConfig as well formed.
func NewTaxConfig(rateBps int64, inclusive bool, taxable bool) (TaxConfig, error) {
	if rateBps < 0 {
		return TaxConfig{}, ErrInvalidTaxConfig
	}
	return TaxConfig{RateBps: rateBps, Inclusive: inclusive, Taxable: taxable}, nil
}

// Product is the catalog projection the cart needs when capturing a line.
type Product struct {
	ID        string
	SKU       string
	Name      string
	UnitPrice int64
	Currency  string
	Tax       TaxConfig
	IsActive  bool
	UpdatedAt time.Time
}

// CartLine stores a single SKU entry within a cart. UnitPrice and Tax are
// copied from the product when the line is added and never re-read afterwards,
// so catalog edits cannot retroactively change an open cart or a placed order.
type CartLine struct {
	SKU       string
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	Tax       TaxConfig
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// Cart aggregates the mutable shopping state for a user or guest device.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Lines     []CartLine
	Estimate  *OrderPriceBreakdown
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippingPolicy describes the flat-fee shipping rule: orders whose pre-tax
// subtotal reaches FreeThreshold ship free, everything below pays FlatFee.
type ShippingPolicy struct {
	FreeThreshold int64
	FlatFee       int64
}

// Address represents the postal address snapshot stored on an order.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits payment completion.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid indicates payment succeeded.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled indicates the order has been canceled.
	OrderStatusCanceled OrderStatus = "canceled"
)

// OrderLineSnapshot is the frozen copy of a cart line persisted with an order,
// together with the per-line tax outcome the engine produced for it. A stored
// order can be re-priced from its snapshots alone, without the catalog.
type OrderLineSnapshot struct {
	SKU         string
	ProductID   string
	Name        string
	UnitPrice   int64
	Quantity    int
	Tax         TaxConfig
	TaxableBase int64
	TaxAmount   int64
}

// PaymentOrder references the gateway-side order created for collecting payment.
type PaymentOrder struct {
	Provider  string
	GatewayID string
	Amount    int64
	Currency  string
	Status    string
	CreatedAt time.Time
}

// Order captures a placed order with its immutable pricing evidence.
type Order struct {
	ID           string
	UserID       string
	CartRef      string
	Status       OrderStatus
	Currency     string
	Lines        []OrderLineSnapshot
	Breakdown    OrderPriceBreakdown
	Shipping     ShippingPolicy
	Address      *Address
	Payment      *PaymentOrder
	GuestContact string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PaidAt       *time.Time
	CanceledAt   *time.Time
}
