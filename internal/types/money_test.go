package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyFromDecimalRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"41.625", 4163},
		{"1.875", 188},
		{"15.25", 1525},
		{"0.004", 0},
		{"0.005", 1},
		{"-1.875", -188},
	}
	for _, tc := range cases {
		got := MoneyFromDecimal(decimal.RequireFromString(tc.in), "")
		if got.Amount != tc.want {
			t.Errorf("MoneyFromDecimal(%s) = %d, want %d", tc.in, got.Amount, tc.want)
		}
		if got.Currency != CurrencyUSD {
			t.Errorf("MoneyFromDecimal(%s) currency = %q, want USD", tc.in, got.Currency)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if got := USD(4163).String(); got != "$41.63" {
		t.Fatalf("got %q", got)
	}
	if got := USD(-5).String(); got != "-$0.05" {
		t.Fatalf("got %q", got)
	}
}

func TestDerivedIDIsStable(t *testing.T) {
	a := DerivedID("route-1", "order-1")
	b := DerivedID("route-1", "order-1")
	c := DerivedID("route-1", "order-2")
	if a != b {
		t.Fatalf("expected stable id, got %s and %s", a, b)
	}
	if a == c {
		t.Fatalf("expected distinct ids for distinct orders")
	}
}
