// Package pip implements exact fixed-point arithmetic on int64 pip
// quantities, with pooled big.Int intermediates for products that
// exceed 64 bits.
package pip

import (
	"math/big"
	"sync"
)

// One pip is 1e-8 of a nominal asset unit. All ledger quantities, prices,
// and policy fractions are expressed in pips.
const (
	Decimals int   = 8
	Scale    int64 = 100_000_000
)

// Fractions (fee limits, reserve ratios) use pips of the reference quantity:
// a fraction of 1_000_000 pips means 1%.
const FractionDenominator = Scale

// Int128 pool for intermediate products that exceed 64 bits.
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// Multiply128 performs a * b using big.Int to prevent overflow.
// The caller owns the returned value until passing it to Release.
func Multiply128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// Release returns a big.Int obtained from Multiply128 to the pool.
func Release(v *big.Int) {
	putInt128(v)
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
	RoundHalfEven // Banker's rounding
)

// Divide128 performs numerator / denominator with the given rounding mode.
func Divide128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)
	result := quotient.Int64()

	switch roundingMode {
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	case RoundHalfEven:
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)
		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MulDiv computes a * b / c without intermediate overflow.
func MulDiv(a, b, c int64, roundingMode RoundingMode) int64 {
	product := Multiply128(a, b)
	result := Divide128(product, c, roundingMode)
	putInt128(product)
	return result
}

// Price computes quoteQty / baseQty scaled to pips (quote pips per whole
// base unit), rounding down.
func Price(baseQty, quoteQty int64) int64 {
	if baseQty == 0 {
		return 0
	}
	return MulDiv(quoteQty, Scale, baseQty, RoundDown)
}

// ExceedsFraction reports whether qty > fraction-of-reference, comparing
// qty * FractionDenominator against fraction * reference exactly.
func ExceedsFraction(qty, fraction, reference int64) bool {
	lhs := Multiply128(qty, FractionDenominator)
	rhs := Multiply128(fraction, reference)
	exceeds := lhs.Cmp(rhs) > 0
	putInt128(lhs)
	putInt128(rhs)
	return exceeds
}

// ConstantProduct returns baseReserve * quoteReserve as a big.Int.
// The caller owns the returned value until passing it to Release.
func ConstantProduct(baseReserve, quoteReserve int64) *big.Int {
	return Multiply128(baseReserve, quoteReserve)
}

// OutputForInput computes the maximum output a constant-product pool can
// deliver for a given net input: reserveOut - ceil(k / (reserveIn + netIn)).
// Ceiling division on the new counter-reserve guarantees the product never
// decreases when exactly this output is taken.
func OutputForInput(reserveIn, reserveOut, netIn int64) int64 {
	k := Multiply128(reserveIn, reserveOut)
	newReserveOut := Divide128(k, reserveIn+netIn, RoundUp)
	putInt128(k)
	return reserveOut - newReserveOut
}

// Sqrt128 computes the integer square root of a * b. Used for initial
// pair-token supply on first liquidity provision.
func Sqrt128(a, b int64) int64 {
	product := Multiply128(a, b)
	root := getInt128()
	root.Sqrt(product)
	result := root.Int64()
	putInt128(product)
	putInt128(root)
	return result
}
