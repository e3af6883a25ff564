// Package fee bounds the fees an operator may charge. The settlement core
// does not compute fees; the sequencer proposes them and the core rejects
// any settlement whose fees exceed the configured fractions of the
// traded quantities.
package fee

import (
	"DexSettle/internal/pip"
	"DexSettle/internal/reject"
)

// Policy holds the maximum fee fractions, denominated in
// pip.FractionDenominator (1e8 = 100%).
type Policy struct {
	MaxMakerFeeFraction         int64
	MaxTakerFeeFraction         int64
	MaxPoolInputFeeFraction     int64
	MaxOutputAdjustmentFraction int64
	MaxGasFeeFraction           int64
	MaxPriceCorrectionFraction  int64
	MaxLiquidityFeeFraction     int64
}

// DefaultPolicy mirrors the fractions the settlement contract ships with.
func DefaultPolicy() Policy {
	return Policy{
		MaxMakerFeeFraction:         1_000_000, // 1%
		MaxTakerFeeFraction:         1_000_000, // 1%
		MaxPoolInputFeeFraction:     2_000_000, // 2%
		MaxOutputAdjustmentFraction: 1_000_000, // 1%
		MaxGasFeeFraction:           5_000_000, // 5%
		MaxPriceCorrectionFraction:  1_000_000, // 1%
		MaxLiquidityFeeFraction:     1_000_000, // 1%
	}
}

// CheckMakerFee bounds the maker fee against the maker's gross proceeds.
func (p Policy) CheckMakerFee(fee, gross int64) error {
	if pip.ExceedsFraction(fee, p.MaxMakerFeeFraction, gross) {
		return reject.New(reject.ReasonExcessiveMakerFee, "fee %d of %d", fee, gross)
	}
	return nil
}

// CheckTakerFee bounds the taker fee against the taker's gross proceeds.
func (p Policy) CheckTakerFee(fee, gross int64) error {
	if pip.ExceedsFraction(fee, p.MaxTakerFeeFraction, gross) {
		return reject.New(reject.ReasonExcessiveTakerFee, "fee %d of %d", fee, gross)
	}
	return nil
}

// CheckPoolInputFee bounds the combined pool and protocol fee against the
// gross input quantity.
func (p Policy) CheckPoolInputFee(poolFee, protocolFee, grossIn int64) error {
	if pip.ExceedsFraction(poolFee+protocolFee, p.MaxPoolInputFeeFraction, grossIn) {
		return reject.New(reject.ReasonExcessivePoolInputFee,
			"pool %d + protocol %d of %d", poolFee, protocolFee, grossIn)
	}
	return nil
}

// CheckOutputAdjustment bounds the gap between the constant-product
// expected output and the settled gross output.
func (p Policy) CheckOutputAdjustment(settledOut, expectedOut int64) error {
	adjustment := expectedOut - settledOut
	if adjustment < 0 {
		adjustment = -adjustment
	}
	if pip.ExceedsFraction(adjustment, p.MaxOutputAdjustmentFraction, expectedOut) {
		return reject.New(reject.ReasonExcessivePoolOutputAdjust,
			"settled %d, expected %d", settledOut, expectedOut)
	}
	return nil
}

// CheckGasFee bounds the taker gas fee against the gross output quantity.
func (p Policy) CheckGasFee(fee, grossOut int64) error {
	if pip.ExceedsFraction(fee, p.MaxGasFeeFraction, grossOut) {
		return reject.New(reject.ReasonExcessiveGasFee, "fee %d of %d", fee, grossOut)
	}
	return nil
}

// CheckPriceCorrection bounds the price correction fee against the gross
// output quantity.
func (p Policy) CheckPriceCorrection(fee, grossOut int64) error {
	if pip.ExceedsFraction(fee, p.MaxPriceCorrectionFraction, grossOut) {
		return reject.New(reject.ReasonExcessivePriceCorrection, "fee %d of %d", fee, grossOut)
	}
	return nil
}

// CheckLiquidityFees bounds the per-asset fees on a liquidity operation.
func (p Policy) CheckLiquidityFees(feeA, grossA, feeB, grossB int64) error {
	if pip.ExceedsFraction(feeA, p.MaxLiquidityFeeFraction, grossA) {
		return reject.New(reject.ReasonExcessiveAFee, "fee %d of %d", feeA, grossA)
	}
	if pip.ExceedsFraction(feeB, p.MaxLiquidityFeeFraction, grossB) {
		return reject.New(reject.ReasonExcessiveBFee, "fee %d of %d", feeB, grossB)
	}
	return nil
}
