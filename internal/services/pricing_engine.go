package services

import (
	"errors"
	"fmt"
	"math"

	domain "github.com/kiranabazaar/api/internal/domain"
)

var (
	// ErrPricingInvalidInput signals bad request data such as non-positive quantities or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrInconsistentTotal is returned by Finalize when the additive invariant fails after rounding.
	// It signals a defect in the aggregation itself and must abort order placement.
	ErrInconsistentTotal = errors.New("pricing: inconsistent total")
	// ErrPricingOverflow is returned when a line or cart total exceeds the int64 range.
	ErrPricingOverflow = errors.New("pricing: amount overflow")
)

const rateScaleBps = 10000

// TaxPolicy is the effective tax treatment resolved for one cart line.
type TaxPolicy struct {
	RateBps   int64
	Inclusive bool
}

// Exempt reports whether the policy yields no tax regardless of mode.
func (p TaxPolicy) Exempt() bool { return p.RateBps == 0 }

// ResolveTaxPolicy collapses a product tax configuration into the effective
// rate and mode. Non-taxable products and zero rates both resolve to an exempt
// policy; the inclusive flag is irrelevant once the rate is zero. The resolver
// is total: TaxConfig construction already rejected negative rates.
func ResolveTaxPolicy(cfg domain.TaxConfig) TaxPolicy {
	if !cfg.Taxable || cfg.RateBps == 0 {
		return TaxPolicy{}
	}
	return TaxPolicy{RateBps: cfg.RateBps, Inclusive: cfg.Inclusive}
}

// LineTax is the outcome of taxing a single cart line.
type LineTax struct {
	TaxableBase int64
	TaxAmount   int64
}

// ComputeLineTax derives the tax-exclusive base and the tax amount for one
// line. For inclusive lines the quoted item total already contains GST and the
// pre-tax base is backed out of it; for exclusive lines tax is added on top.
// Rounding is half-up and applied exactly once, here, never at intermediate
// steps, so per-line rounding error cannot compound across an order.
func ComputeLineTax(line domain.CartLine) (LineTax, error) {
	if line.Quantity <= 0 {
		return LineTax{}, fmt.Errorf("%w: line %s quantity must be positive", ErrPricingInvalidInput, line.SKU)
	}
	if line.UnitPrice < 0 {
		return LineTax{}, fmt.Errorf("%w: line %s unit price cannot be negative", ErrPricingInvalidInput, line.SKU)
	}
	qty := int64(line.Quantity)
	if line.UnitPrice > 0 && line.UnitPrice > math.MaxInt64/qty {
		return LineTax{}, fmt.Errorf("%w: line %s", ErrPricingOverflow, line.SKU)
	}
	itemTotal := line.UnitPrice * qty

	policy := ResolveTaxPolicy(line.Tax)
	if policy.Exempt() {
		return LineTax{TaxableBase: itemTotal, TaxAmount: 0}, nil
	}

	if policy.Inclusive {
		// itemTotal = base * (1 + rate). The tax portion is rounded half-up
		// and the base taken as the exact remainder, so base + tax always
		// reconstructs the quoted inclusive total.
		tax, err := mulDivHalfUp(itemTotal, policy.RateBps, rateScaleBps+policy.RateBps)
		if err != nil {
			return LineTax{}, fmt.Errorf("%w: line %s", ErrPricingOverflow, line.SKU)
		}
		return LineTax{TaxableBase: itemTotal - tax, TaxAmount: tax}, nil
	}

	tax, err := mulDivHalfUp(itemTotal, policy.RateBps, rateScaleBps)
	if err != nil {
		return LineTax{}, fmt.Errorf("%w: line %s", ErrPricingOverflow, line.SKU)
	}
	return LineTax{TaxableBase: itemTotal, TaxAmount: tax}, nil
}

// Aggregate prices a full cart against a shipping policy. The subtotal used
// for the free-shipping comparison is the pre-tax base, so an 18%-inclusive
// line and its exclusive equivalent qualify identically. Reaching the
// threshold exactly ships free. An empty line set is defined but degenerate:
// no free-shipping discount applies, so the flat fee is charged.
func Aggregate(lines []domain.CartLine, shipping domain.ShippingPolicy, currency string) (domain.OrderPriceBreakdown, error) {
	if shipping.FreeThreshold < 0 || shipping.FlatFee < 0 {
		return domain.OrderPriceBreakdown{}, fmt.Errorf("%w: shipping policy amounts cannot be negative", ErrPricingInvalidInput)
	}

	breakdown := domain.OrderPriceBreakdown{
		Currency: currency,
		Lines:    make([]domain.LineTaxBreakdown, 0, len(lines)),
	}

	for _, line := range lines {
		lt, err := ComputeLineTax(line)
		if err != nil {
			return domain.OrderPriceBreakdown{}, err
		}
		if breakdown.ItemsSubtotal > math.MaxInt64-lt.TaxableBase {
			return domain.OrderPriceBreakdown{}, fmt.Errorf("%w: cart subtotal", ErrPricingOverflow)
		}
		breakdown.ItemsSubtotal += lt.TaxableBase
		breakdown.TaxTotal += lt.TaxAmount
		breakdown.Lines = append(breakdown.Lines, domain.LineTaxBreakdown{
			LineRef:     line.SKU,
			TaxableBase: lt.TaxableBase,
			TaxAmount:   lt.TaxAmount,
		})
	}

	if len(lines) == 0 || breakdown.ItemsSubtotal < shipping.FreeThreshold {
		breakdown.ShippingFee = shipping.FlatFee
	}

	breakdown.GrandTotal = breakdown.ItemsSubtotal + breakdown.TaxTotal + breakdown.ShippingFee
	return breakdown, nil
}

// Finalize re-asserts the additive invariant on a breakdown before it leaves
// the engine. The check is structurally impossible to fail given Aggregate's
// construction, but every consumer (cart estimate, gateway order creation,
// order persistence) runs it anyway: silently divergent totals between those
// call sites are exactly the failure mode this module exists to prevent.
func Finalize(b domain.OrderPriceBreakdown) (domain.OrderPriceBreakdown, error) {
	var lineBase, lineTax int64
	for _, line := range b.Lines {
		lineBase += line.TaxableBase
		lineTax += line.TaxAmount
	}
	if lineBase != b.ItemsSubtotal || lineTax != b.TaxTotal {
		return domain.OrderPriceBreakdown{}, fmt.Errorf("%w: line breakdown does not sum to totals", ErrInconsistentTotal)
	}
	if b.GrandTotal != b.ItemsSubtotal+b.TaxTotal+b.ShippingFee {
		return domain.OrderPriceBreakdown{}, fmt.Errorf("%w: %d != %d + %d + %d",
			ErrInconsistentTotal, b.GrandTotal, b.ItemsSubtotal, b.TaxTotal, b.ShippingFee)
	}
	return b, nil
}

// PriceCart runs the full pipeline: aggregate then finalize. All pricing call
// sites go through this single entry point with the same line snapshots, which
// is what guarantees the cart view, the gateway charge and the persisted order
// carry identical numbers.
func PriceCart(lines []domain.CartLine, shipping domain.ShippingPolicy, currency string) (domain.OrderPriceBreakdown, error) {
	breakdown, err := Aggregate(lines, shipping, currency)
	if err != nil {
		return domain.OrderPriceBreakdown{}, err
	}
	return Finalize(breakdown)
}

// mulDivHalfUp computes round(a*b/d) with half-up rounding for non-negative
// inputs, guarding the intermediate product against overflow.
func mulDivHalfUp(a, b, d int64) (int64, error) {
	if d <= 0 {
		return 0, errors.New("pricing: non-positive divisor")
	}
	if a != 0 && b != 0 && a > math.MaxInt64/b {
		return 0, ErrPricingOverflow
	}
	n := a * b
	q := n / d
	if 2*(n%d) >= d {
		q++
	}
	return q, nil
}
