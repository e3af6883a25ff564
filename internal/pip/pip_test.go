package pip_test

import (
	"testing"

	"DexSettle/internal/pip"
)

// ============================================================================
// Test: 128-bit arithmetic
// ============================================================================

func TestMultiply128_NoOverflow(t *testing.T) {
	// 2^62 * 4 overflows int64; the big.Int path must carry it exactly
	a := int64(1) << 62
	product := pip.Multiply128(a, 4)
	defer pip.Release(product)

	quotient := pip.Divide128(product, 4, pip.RoundDown)
	if quotient != a {
		t.Errorf("got %d, want %d", quotient, a)
	}
}

func TestDivide128_RoundDown(t *testing.T) {
	product := pip.Multiply128(7, 1)
	defer pip.Release(product)

	if got := pip.Divide128(product, 2, pip.RoundDown); got != 3 {
		t.Errorf("7/2 round down: got %d, want 3", got)
	}
}

func TestDivide128_RoundUp(t *testing.T) {
	product := pip.Multiply128(7, 1)
	defer pip.Release(product)

	if got := pip.Divide128(product, 2, pip.RoundUp); got != 4 {
		t.Errorf("7/2 round up: got %d, want 4", got)
	}
}

func TestDivide128_RoundUp_ExactNoBump(t *testing.T) {
	product := pip.Multiply128(8, 1)
	defer pip.Release(product)

	if got := pip.Divide128(product, 2, pip.RoundUp); got != 4 {
		t.Errorf("8/2 round up: got %d, want 4", got)
	}
}

func TestDivide128_RoundHalfEven(t *testing.T) {
	cases := []struct {
		numerator int64
		want      int64
	}{
		{5, 2},  // 2.5 -> 2 (even)
		{7, 4},  // 3.5 -> 4 (even)
		{9, 4},  // 4.5 -> 4 (even)
		{11, 6}, // 5.5 -> 6 (even)
		{6, 3},  // exact
	}

	for _, c := range cases {
		product := pip.Multiply128(c.numerator, 1)
		got := pip.Divide128(product, 2, pip.RoundHalfEven)
		pip.Release(product)
		if got != c.want {
			t.Errorf("%d/2 half-even: got %d, want %d", c.numerator, got, c.want)
		}
	}
}

func TestMulDiv_LargeIntermediate(t *testing.T) {
	// 3e18 * 2 / 3 would overflow the naive int64 product
	got := pip.MulDiv(3_000_000_000_000_000_000, 2, 3, pip.RoundDown)
	if got != 2_000_000_000_000_000_000 {
		t.Errorf("got %d, want 2e18", got)
	}
}

// ============================================================================
// Test: price and fraction helpers
// ============================================================================

func TestPrice(t *testing.T) {
	// 2 quote units per base unit: 2e8 quote pips / 1e8 base pips
	got := pip.Price(1*pip.Scale, 2*pip.Scale)
	if got != 2*pip.Scale {
		t.Errorf("got %d, want %d", got, 2*pip.Scale)
	}
}

func TestPrice_ZeroBase(t *testing.T) {
	if got := pip.Price(0, 5*pip.Scale); got != 0 {
		t.Errorf("price with zero base should be 0, got %d", got)
	}
}

func TestExceedsFraction(t *testing.T) {
	// 1% of 100 units is 1 unit
	onePercent := pip.FractionDenominator / 100
	reference := int64(100 * pip.Scale)

	if pip.ExceedsFraction(1*pip.Scale, onePercent, reference) {
		t.Error("exactly 1% should not exceed the 1% fraction")
	}
	if !pip.ExceedsFraction(1*pip.Scale+1, onePercent, reference) {
		t.Error("1% plus one pip should exceed the 1% fraction")
	}
}

// ============================================================================
// Test: constant-product helpers
// ============================================================================

func TestOutputForInput_ProductNeverDecreases(t *testing.T) {
	cases := []struct {
		reserveIn, reserveOut, netIn int64
	}{
		{1_000_000, 1_000_000, 100},
		{1_000_000, 2_000_000, 333},
		{5_000_000_000, 7, 1},
		{1_000_000_000_000, 3_000_000_000_000, 999_999_999},
	}

	for _, c := range cases {
		out := pip.OutputForInput(c.reserveIn, c.reserveOut, c.netIn)

		before := pip.ConstantProduct(c.reserveIn, c.reserveOut)
		after := pip.ConstantProduct(c.reserveIn+c.netIn, c.reserveOut-out)
		decreased := after.Cmp(before) < 0
		pip.Release(before)
		pip.Release(after)

		if decreased {
			t.Errorf("product decreased for in=%d out=%d net=%d (output %d)",
				c.reserveIn, c.reserveOut, c.netIn, out)
		}
		if out < 0 {
			t.Errorf("negative output %d", out)
		}
	}
}

func TestOutputForInput_OnePipMore_DecreasesProduct(t *testing.T) {
	// Taking one pip more than the computed maximum must break the product
	reserveIn, reserveOut, netIn := int64(1_000_000), int64(1_000_000), int64(337)
	out := pip.OutputForInput(reserveIn, reserveOut, netIn)

	before := pip.ConstantProduct(reserveIn, reserveOut)
	after := pip.ConstantProduct(reserveIn+netIn, reserveOut-(out+1))
	decreased := after.Cmp(before) < 0
	pip.Release(before)
	pip.Release(after)

	if !decreased {
		t.Error("output+1 should decrease the constant product")
	}
}

func TestSqrt128(t *testing.T) {
	cases := []struct {
		a, b, want int64
	}{
		{4, 9, 6},
		{1_000_000, 1_000_000, 1_000_000},
		{2, 2, 2},
		{1, 2, 1}, // floor(sqrt(2))
	}

	for _, c := range cases {
		if got := pip.Sqrt128(c.a, c.b); got != c.want {
			t.Errorf("sqrt(%d*%d): got %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
