package tool

import (
	"errors"
	"testing"
)

func TestPriceStats(t *testing.T) {
	t.Parallel()

	s := NewPriceStats([]float64{30, 10, 20, 40, -1, 0})
	if s.Count != 4 || s.Min != 10 || s.Max != 40 || s.Median != 25 || s.Mean != 25 {
		t.Fatalf("NewPriceStats() = %+v", s)
	}
	if odd := NewPriceStats([]float64{5, 1, 3}); odd.Median != 3 {
		t.Fatalf("odd median = %v", odd.Median)
	}
}

func TestPricingRuleApply(t *testing.T) {
	t.Parallel()

	stats := PriceStats{Count: 3, Min: 80, Max: 120, Mean: 100, Median: 100}
	cases := []struct {
		rule string
		want float64
	}{
		{DefaultPricingRule, 97},
		{"max({min}, {median} * 0.5)", 80},
		{"round({mean} / 3)", 33},
		{"({max} - {min}) / 2 + {min}", 100},
		{"-{min} + 2 ^ 2 * 50", 120},
		{"min({max}, 150, 130)", 120},
	}
	for _, tc := range cases {
		r, err := ParsePricingRule(tc.rule)
		if err != nil {
			t.Fatalf("ParsePricingRule(%q) error = %v", tc.rule, err)
		}
		got, ok := r.Apply(stats)
		if !ok || got != tc.want {
			t.Fatalf("Apply(%q) = %v, %v, want %v", tc.rule, got, ok, tc.want)
		}
	}
}

func TestPricingRuleRejectsBadInput(t *testing.T) {
	t.Parallel()

	for _, rule := range []string{"", "{median", "{p90} * 2", "median * 2", "1 +", "(1 + 2", "sqrt(4)", "1 / 0", "2 $ 3"} {
		if _, err := ParsePricingRule(rule); !errors.Is(err, ErrPricingRule) {
			t.Fatalf("ParsePricingRule(%q) error = %v, want ErrPricingRule", rule, err)
		}
	}
}

func TestPricingRuleNoSignal(t *testing.T) {
	t.Parallel()

	r, _ := ParsePricingRule(DefaultPricingRule)
	if _, ok := r.Apply(PriceStats{}); ok {
		t.Fatal("Apply() with no prices must report false")
	}
	neg, _ := ParsePricingRule("{min} - {max}")
	if _, ok := neg.Apply(PriceStats{Count: 2, Min: 1, Max: 5}); ok {
		t.Fatal("Apply() with non-positive result must report false")
	}
}
