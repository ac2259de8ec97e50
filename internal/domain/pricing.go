package domain

// LineTaxBreakdown records the tax outcome for a single cart line, kept for
// display and audit alongside the aggregate totals.
type LineTaxBreakdown struct {
	LineRef     string
	TaxableBase int64
	TaxAmount   int64
}

// OrderPriceBreakdown captures the aggregated monetary results of pricing a
// cart. All amounts are paise. ItemsSubtotal is always the tax-exclusive base,
// whether the underlying lines quoted prices inclusive of GST or not, which
// keeps ItemsSubtotal + TaxTotal + ShippingFee additive by construction.
type OrderPriceBreakdown struct {
	Currency      string
	ItemsSubtotal int64
	TaxTotal      int64
	ShippingFee   int64
	GrandTotal    int64
	Lines         []LineTaxBreakdown
}

// DisplaysTaxLine reports whether a checkout surface should render a tax row.
// Zero-rated orders show no tax row at all rather than a zero amount.
func (b OrderPriceBreakdown) DisplaysTaxLine() bool {
	return b.TaxTotal > 0
}
