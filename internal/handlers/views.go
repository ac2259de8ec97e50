package handlers

import (
	"time"

	domain "github.com/kiranabazaar/api/internal/domain"
)

type taxConfigView struct {
	RateBps   int64  `json:"rateBps"`
	Rate      string `json:"rate"`
	Inclusive bool   `json:"inclusive"`
	Taxable   bool   `json:"taxable"`
}

type cartLineView struct {
	SKU       string        `json:"sku"`
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	UnitPrice int64         `json:"unitPrice"`
	Quantity  int           `json:"quantity"`
	Tax       taxConfigView `json:"tax"`
	AddedAt   time.Time     `json:"addedAt"`
}

type lineTaxView struct {
	LineRef     string `json:"lineRef"`
	TaxableBase int64  `json:"taxableBase"`
	TaxAmount   int64  `json:"taxAmount"`
}

type breakdownView struct {
	Currency       string        `json:"currency"`
	ItemsSubtotal  int64         `json:"itemsSubtotal"`
	TaxTotal       int64         `json:"taxTotal"`
	ShippingFee    int64         `json:"shippingFee"`
	GrandTotal     int64         `json:"grandTotal"`
	Display        displayView   `json:"display"`
	Lines          []lineTaxView `json:"lines,omitempty"`
	DisplayTaxLine bool          `json:"displayTaxLine"`
}

type displayView struct {
	ItemsSubtotal string `json:"itemsSubtotal"`
	TaxTotal      string `json:"taxTotal"`
	ShippingFee   string `json:"shippingFee"`
	GrandTotal    string `json:"grandTotal"`
}

type cartView struct {
	CartID    string         `json:"cartId"`
	Currency  string         `json:"currency"`
	Lines     []cartLineView `json:"lines"`
	Estimate  *breakdownView `json:"estimate,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type orderLineView struct {
	SKU         string        `json:"sku"`
	ProductID   string        `json:"productId"`
	Name        string        `json:"name"`
	UnitPrice   int64         `json:"unitPrice"`
	Quantity    int           `json:"quantity"`
	Tax         taxConfigView `json:"tax"`
	TaxableBase int64         `json:"taxableBase"`
	TaxAmount   int64         `json:"taxAmount"`
}

type paymentOrderView struct {
	Provider  string `json:"provider"`
	GatewayID string `json:"gatewayOrderId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

type orderView struct {
	OrderID      string            `json:"orderId"`
	Status       string            `json:"status"`
	Currency     string            `json:"currency"`
	Lines        []orderLineView   `json:"lines"`
	Breakdown    breakdownView     `json:"breakdown"`
	Payment      *paymentOrderView `json:"payment,omitempty"`
	GuestContact string            `json:"guestContact,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func newTaxConfigView(tax domain.TaxConfig) taxConfigView {
	return taxConfigView{
		RateBps:   tax.RateBps,
		Rate:      domain.RateBpsToPercent(tax.RateBps),
		Inclusive: tax.Inclusive,
		Taxable:   tax.Taxable,
	}
}

func newBreakdownView(b domain.OrderPriceBreakdown) breakdownView {
	view := breakdownView{
		Currency:      b.Currency,
		ItemsSubtotal: b.ItemsSubtotal,
		TaxTotal:      b.TaxTotal,
		ShippingFee:   b.ShippingFee,
		GrandTotal:    b.GrandTotal,
		Display: displayView{
			ItemsSubtotal: domain.FormatPaise(b.ItemsSubtotal),
			TaxTotal:      domain.FormatPaise(b.TaxTotal),
			ShippingFee:   domain.FormatPaise(b.ShippingFee),
			GrandTotal:    domain.FormatPaise(b.GrandTotal),
		},
		DisplayTaxLine: b.DisplaysTaxLine(),
	}
	for _, line := range b.Lines {
		view.Lines = append(view.Lines, lineTaxView{
			LineRef:     line.LineRef,
			TaxableBase: line.TaxableBase,
			TaxAmount:   line.TaxAmount,
		})
	}
	return view
}

func newCartView(cart domain.Cart) cartView {
	view := cartView{
		CartID:    cart.ID,
		Currency:  cart.Currency,
		Lines:     make([]cartLineView, 0, len(cart.Lines)),
		UpdatedAt: cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		view.Lines = append(view.Lines, cartLineView{
			SKU:       line.SKU,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Tax:       newTaxConfigView(line.Tax),
			AddedAt:   line.AddedAt,
		})
	}
	if cart.Estimate != nil {
		estimate := newBreakdownView(*cart.Estimate)
		view.Estimate = &estimate
	}
	return view
}

func newOrderView(order domain.Order) orderView {
	view := orderView{
		OrderID:      order.ID,
		Status:       string(order.Status),
		Currency:     order.Currency,
		Lines:        make([]orderLineView, 0, len(order.Lines)),
		Breakdown:    newBreakdownView(order.Breakdown),
		GuestContact: order.GuestContact,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
	for _, line := range order.Lines {
		view.Lines = append(view.Lines, orderLineView{
			SKU:         line.SKU,
			ProductID:   line.ProductID,
			Name:        line.Name,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Tax:         newTaxConfigView(line.Tax),
			TaxableBase: line.TaxableBase,
			TaxAmount:   line.TaxAmount,
		})
	}
	if order.Payment != nil {
		view.Payment = &paymentOrderView{
			Provider:  order.Payment.Provider,
			GatewayID: order.Payment.GatewayID,
			Amount:    order.Payment.Amount,
			Currency:  order.Payment.Currency,
			Status:    order.Payment.Status,
		}
	}
	return view
}
