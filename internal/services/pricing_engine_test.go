package services

import (
	"errors"
	"math/rand"
	"testing"

	domain "github.com/kiranabazaar/api/internal/domain"
)

func mustTaxConfig(t *testing.T, rateBps int64, inclusive, taxable bool) domain.TaxConfig {
	t.Helper()
	cfg, err := domain.NewTaxConfig(rateBps, inclusive, taxable)
	if err != nil {
		t.Fatalf("NewTaxConfig(%d) error: %v", rateBps, err)
	}
	return cfg
}

func line(t *testing.T, sku string, unitPrice int64, qty int, rateBps int64, inclusive, taxable bool) domain.CartLine {
	t.Helper()
	return domain.CartLine{
		SKU:       sku,
		UnitPrice: unitPrice,
		Quantity:  qty,
		Tax:       mustTaxConfig(t, rateBps, inclusive, taxable),
	}
}

func TestResolveTaxPolicy(t *testing.T) {
	cases := []struct {
		name string
		cfg  domain.TaxConfig
		want TaxPolicy
	}{
		{"taxable exclusive", domain.TaxConfig{RateBps: 1800, Taxable: true}, TaxPolicy{RateBps: 1800}},
		{"taxable inclusive", domain.TaxConfig{RateBps: 500, Inclusive: true, Taxable: true}, TaxPolicy{RateBps: 500, Inclusive: true}},
		{"zero rate", domain.TaxConfig{RateBps: 0, Inclusive: true, Taxable: true}, TaxPolicy{}},
		{"master switch off ignores rate", domain.TaxConfig{RateBps: 2800, Inclusive: true, Taxable: false}, TaxPolicy{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveTaxPolicy(tc.cfg); got != tc.want {
				t.Fatalf("ResolveTaxPolicy(%+v) = %+v, want %+v", tc.cfg, got, tc.want)
			}
		})
	}
}

func TestComputeLineTax_ZeroRateNeutrality(t *testing.T) {
	// Zero-rated and non-taxable lines must yield zero tax regardless of the
	// inclusive flag.
	for _, inclusive := range []bool{false, true} {
		for _, cfg := range []domain.TaxConfig{
			{RateBps: 0, Inclusive: inclusive, Taxable: true},
			{RateBps: 1800, Inclusive: inclusive, Taxable: false},
		} {
			got, err := ComputeLineTax(domain.CartLine{SKU: "SKU-1", UnitPrice: 29900, Quantity: 3, Tax: cfg})
			if err != nil {
				t.Fatalf("ComputeLineTax error: %v", err)
			}
			if got.TaxAmount != 0 {
				t.Fatalf("expected zero tax for %+v, got %d", cfg, got.TaxAmount)
			}
			if got.TaxableBase != 29900*3 {
				t.Fatalf("expected base %d, got %d", 29900*3, got.TaxableBase)
			}
		}
	}
}

func TestComputeLineTax_InclusiveExclusiveEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rates := []int64{500, 1200, 1800, 2800}

	for i := 0; i < 500; i++ {
		base := int64(rng.Intn(5_000_000)) + 1
		rate := rates[rng.Intn(len(rates))]

		excl, err := ComputeLineTax(line(t, "EX", base, 1, rate, false, true))
		if err != nil {
			t.Fatalf("exclusive ComputeLineTax error: %v", err)
		}
		if excl.TaxableBase != base {
			t.Fatalf("exclusive base changed: %d != %d", excl.TaxableBase, base)
		}

		// The inclusive price quotes the same pre-tax base with GST baked in.
		inclPrice := base + excl.TaxAmount
		incl, err := ComputeLineTax(line(t, "IN", inclPrice, 1, rate, true, true))
		if err != nil {
			t.Fatalf("inclusive ComputeLineTax error: %v", err)
		}

		if diff := incl.TaxAmount - excl.TaxAmount; diff < -1 || diff > 1 {
			t.Fatalf("base=%d rate=%d: inclusive tax %d, exclusive tax %d", base, rate, incl.TaxAmount, excl.TaxAmount)
		}
		if incl.TaxableBase+incl.TaxAmount != inclPrice {
			t.Fatalf("inclusive base+tax %d does not reconstruct quoted price %d", incl.TaxableBase+incl.TaxAmount, inclPrice)
		}
	}
}

func TestComputeLineTax_RoundsHalfUpOnce(t *testing.T) {
	// 333 paise at 5% = 16.65 paise, rounds to 17.
	got, err := ComputeLineTax(line(t, "SKU-R", 333, 1, 500, false, true))
	if err != nil {
		t.Fatalf("ComputeLineTax error: %v", err)
	}
	if got.TaxAmount != 17 {
		t.Fatalf("expected half-up rounding to 17, got %d", got.TaxAmount)
	}

	// Rounding applies to the line total, not per unit: 3 units of 333 paise
	// at 5% tax 49.95 paise -> 50, not 3*17=51.
	got, err = ComputeLineTax(line(t, "SKU-R", 333, 3, 500, false, true))
	if err != nil {
		t.Fatalf("ComputeLineTax error: %v", err)
	}
	if got.TaxAmount != 50 {
		t.Fatalf("expected line-level rounding to 50, got %d", got.TaxAmount)
	}
}

func TestComputeLineTax_InvalidInput(t *testing.T) {
	if _, err := ComputeLineTax(domain.CartLine{SKU: "A", UnitPrice: 100, Quantity: 0}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for zero quantity, got %v", err)
	}
	if _, err := ComputeLineTax(domain.CartLine{SKU: "A", UnitPrice: -1, Quantity: 1}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for negative price, got %v", err)
	}
}

func TestAggregate_Scenarios(t *testing.T) {
	shipping := domain.ShippingPolicy{FreeThreshold: 49900, FlatFee: 9900}

	cases := []struct {
		name  string
		lines []domain.CartLine
		want  domain.OrderPriceBreakdown
	}{
		{
			name:  "zero rated pair below free threshold per unit",
			lines: []domain.CartLine{line(t, "A", 29900, 2, 0, false, true)},
			want:  domain.OrderPriceBreakdown{ItemsSubtotal: 59800, TaxTotal: 0, ShippingFee: 0, GrandTotal: 59800},
		},
		{
			name:  "single exclusive gst line",
			lines: []domain.CartLine{line(t, "B", 99900, 1, 1800, false, true)},
			want:  domain.OrderPriceBreakdown{ItemsSubtotal: 99900, TaxTotal: 17982, ShippingFee: 0, GrandTotal: 117882},
		},
		{
			name: "mixed zero rated and exclusive",
			lines: []domain.CartLine{
				line(t, "A", 29900, 1, 0, false, true),
				line(t, "B", 99900, 1, 1800, false, true),
			},
			want: domain.OrderPriceBreakdown{ItemsSubtotal: 129800, TaxTotal: 17982, ShippingFee: 0, GrandTotal: 147782},
		},
		{
			name:  "inclusive backs out pre tax base",
			lines: []domain.CartLine{line(t, "D", 11800, 1, 1800, true, true)},
			want:  domain.OrderPriceBreakdown{ItemsSubtotal: 10000, TaxTotal: 1800, ShippingFee: 9900, GrandTotal: 21700},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Aggregate(tc.lines, shipping, "INR")
			if err != nil {
				t.Fatalf("Aggregate error: %v", err)
			}
			if got.ItemsSubtotal != tc.want.ItemsSubtotal || got.TaxTotal != tc.want.TaxTotal ||
				got.ShippingFee != tc.want.ShippingFee || got.GrandTotal != tc.want.GrandTotal {
				t.Fatalf("Aggregate mismatch: got %+v, want %+v", got, tc.want)
			}
			if len(got.Lines) != len(tc.lines) {
				t.Fatalf("expected %d line breakdowns, got %d", len(tc.lines), len(got.Lines))
			}
		})
	}
}

func TestAggregate_BelowThresholdChargesFlatFee(t *testing.T) {
	// One zero-rated line of 598.00 against a 499.00 threshold ships free; the
	// same cart against a 599.00 threshold pays the 99.00 flat fee.
	lines := []domain.CartLine{line(t, "A", 29900, 2, 0, false, true)}

	got, err := Aggregate(lines, domain.ShippingPolicy{FreeThreshold: 59900, FlatFee: 9900}, "INR")
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if got.ShippingFee != 9900 || got.GrandTotal != 69700 {
		t.Fatalf("expected flat fee 9900 and total 69700, got fee %d total %d", got.ShippingFee, got.GrandTotal)
	}
}

func TestAggregate_FreeShippingThresholdBoundary(t *testing.T) {
	policy := domain.ShippingPolicy{FreeThreshold: 50000, FlatFee: 9900}

	atThreshold, err := Aggregate([]domain.CartLine{line(t, "A", 50000, 1, 0, false, true)}, policy, "INR")
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if atThreshold.ShippingFee != 0 {
		t.Fatalf("subtotal == threshold must ship free, got fee %d", atThreshold.ShippingFee)
	}

	oneBelow, err := Aggregate([]domain.CartLine{line(t, "A", 49999, 1, 0, false, true)}, policy, "INR")
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if oneBelow.ShippingFee != 9900 {
		t.Fatalf("one paisa below threshold must pay flat fee, got %d", oneBelow.ShippingFee)
	}
}

func TestAggregate_EmptyCartChargesFlatFee(t *testing.T) {
	got, err := Aggregate(nil, domain.ShippingPolicy{FreeThreshold: 0, FlatFee: 9900}, "INR")
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if got.ItemsSubtotal != 0 || got.TaxTotal != 0 {
		t.Fatalf("empty cart totals should be zero, got %+v", got)
	}
	if got.ShippingFee != 9900 {
		t.Fatalf("empty cart gets no free-shipping discount, got fee %d", got.ShippingFee)
	}
}

func TestPriceCart_AdditiveInvariantProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rates := []int64{0, 500, 1200, 1800, 2800}

	for i := 0; i < 300; i++ {
		n := rng.Intn(6) + 1
		lines := make([]domain.CartLine, 0, n)
		for j := 0; j < n; j++ {
			lines = append(lines, line(t, "SKU", int64(rng.Intn(1_000_000)), rng.Intn(5)+1,
				rates[rng.Intn(len(rates))], rng.Intn(2) == 0, rng.Intn(4) != 0))
		}
		policy := domain.ShippingPolicy{
			FreeThreshold: int64(rng.Intn(100_000)),
			FlatFee:       int64(rng.Intn(20_000)),
		}

		got, err := PriceCart(lines, policy, "INR")
		if err != nil {
			t.Fatalf("PriceCart error: %v", err)
		}
		if got.GrandTotal != got.ItemsSubtotal+got.TaxTotal+got.ShippingFee {
			t.Fatalf("additive invariant broken: %+v", got)
		}
		if got.DisplaysTaxLine() != (got.TaxTotal > 0) {
			t.Fatalf("display rule broken: taxTotal=%d displays=%v", got.TaxTotal, got.DisplaysTaxLine())
		}
	}
}

func TestPriceCart_Idempotent(t *testing.T) {
	lines := []domain.CartLine{
		line(t, "A", 29900, 1, 0, false, true),
		line(t, "B", 99900, 1, 1800, false, true),
		line(t, "D", 11800, 1, 1800, true, true),
	}
	policy := domain.ShippingPolicy{FreeThreshold: 49900, FlatFee: 9900}

	first, err := PriceCart(lines, policy, "INR")
	if err != nil {
		t.Fatalf("PriceCart error: %v", err)
	}
	// Re-running over the same snapshot minutes later must reproduce the exact
	// numbers; this is what keeps the checkout view, the gateway charge and
	// the persisted order aligned.
	second, err := PriceCart(lines, policy, "INR")
	if err != nil {
		t.Fatalf("PriceCart error: %v", err)
	}
	if first.GrandTotal != second.GrandTotal || first.TaxTotal != second.TaxTotal ||
		first.ItemsSubtotal != second.ItemsSubtotal || first.ShippingFee != second.ShippingFee {
		t.Fatalf("recomputation diverged: %+v vs %+v", first, second)
	}
}

func TestFinalize_RejectsTamperedTotals(t *testing.T) {
	breakdown, err := Aggregate([]domain.CartLine{line(t, "B", 99900, 1, 1800, false, true)}, domain.ShippingPolicy{}, "INR")
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}

	tampered := breakdown
	tampered.GrandTotal += 1
	if _, err := Finalize(tampered); !errors.Is(err, ErrInconsistentTotal) {
		t.Fatalf("expected ErrInconsistentTotal for tampered grand total, got %v", err)
	}

	tampered = breakdown
	tampered.TaxTotal += 1
	if _, err := Finalize(tampered); !errors.Is(err, ErrInconsistentTotal) {
		t.Fatalf("expected ErrInconsistentTotal for tax drift, got %v", err)
	}

	if _, err := Finalize(breakdown); err != nil {
		t.Fatalf("Finalize rejected a consistent breakdown: %v", err)
	}
}

func TestNewTaxConfig_RejectsNegativeRate(t *testing.T) {
	if _, err := domain.NewTaxConfig(-1, false, true); !errors.Is(err, domain.ErrInvalidTaxConfig) {
		t.Fatalf("expected ErrInvalidTaxConfig, got %v", err)
	}
}
