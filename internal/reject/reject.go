// Package reject defines the stable rejection reasons surfaced by the
// settlement core. Every validation failure maps to exactly one Reason so
// external tooling can assert on the cause of a rejection, not just its
// presence. Reasons are part of the wire contract; never rename.
package reject

import (
	"errors"
	"fmt"
)

// Reason is a stable rejection code.
type Reason string

const (
	// Authorization
	ReasonUnauthorizedCaller   Reason = "UnauthorizedCaller"
	ReasonBuyWalletExit        Reason = "BuyWalletExitFinalized"
	ReasonSellWalletExit       Reason = "SellWalletExitFinalized"
	ReasonWalletExitFinalized  Reason = "WalletExitFinalized"
	ReasonWalletExitNotStarted Reason = "WalletExitNotInitiated"
	ReasonWalletAlreadyExited  Reason = "WalletAlreadyExited"
	ReasonExitDelayNotElapsed  Reason = "ExitDelayNotElapsed"

	// Authenticity. Orders and liquidity intents surface distinct codes
	// for an unsupported hash version.
	ReasonInvalidSignature      Reason = "InvalidSignature"
	ReasonInvalidHashVersion    Reason = "InvalidHashVersion"
	ReasonSigHashVersionInvalid Reason = "SignatureHashVersionInvalid"
	ReasonInvalidNonce          Reason = "InvalidNonce"

	// Staleness
	ReasonNonceTooLow              Reason = "NonceTooLow"
	ReasonOrderOverfill            Reason = "OrderOverfill"
	ReasonOrderDoubleFilled        Reason = "OrderDoubleFilled"
	ReasonExpired                  Reason = "Expired"
	ReasonNotExecutableFromOnChain  Reason = "NotExecutableFromOnChain"
	ReasonNotExecutableFromOffChain Reason = "NotExecutableFromOffChain"
	ReasonIntentAlreadyExecuted    Reason = "LiquidityIntentAlreadyExecuted"
	ReasonIntentAlreadyInitiated   Reason = "LiquidityIntentAlreadyInitiated"

	// Bounds
	ReasonExcessiveMakerFee            Reason = "ExcessiveMakerFee"
	ReasonExcessiveTakerFee            Reason = "ExcessiveTakerFee"
	ReasonExcessivePoolInputFee        Reason = "ExcessivePoolInputFee"
	ReasonExcessivePoolOutputAdjust    Reason = "ExcessivePoolOutputAdjustment"
	ReasonExcessiveGasFee              Reason = "ExcessiveGasFee"
	ReasonNonZeroPoolGasFee            Reason = "NonZeroPoolGasFee"
	ReasonExcessivePriceCorrection     Reason = "ExcessivePriceCorrection"
	ReasonPriceCorrectionNotAllowed    Reason = "PriceCorrectionNotAllowed"
	ReasonQuoteOutWithPriceCorrection  Reason = "QuoteOutNotAllowedWithPriceCorrection"
	ReasonExcessiveAFee                Reason = "ExcessiveAFee"
	ReasonExcessiveBFee                Reason = "ExcessiveBFee"
	ReasonBuyLimitPriceExceeded        Reason = "BuyOrderLimitPriceExceeded"
	ReasonSellLimitPriceExceeded       Reason = "SellOrderLimitPriceExceeded"
	ReasonMarginalBuyPriceExceeded     Reason = "MarginalBuyPriceExceeded"
	ReasonMarginalSellPriceExceeded    Reason = "MarginalSellPriceExceeded"

	// Invariants
	ReasonConstantProductDecrease Reason = "ConstantProductCannotDecrease"
	ReasonBaseReservesBelowMin    Reason = "BaseReservesBelowMin"
	ReasonQuoteReservesBelowMin   Reason = "QuoteReservesBelowMin"
	ReasonBaseFeesUnbalanced      Reason = "BaseFeesUnbalanced"
	ReasonQuoteFeesUnbalanced     Reason = "QuoteFeesUnbalanced"
	ReasonInputFeesUnbalanced     Reason = "InputFeesUnbalanced"
	ReasonAssetsMustBeDifferent   Reason = "AssetsMustBeDifferent"
	ReasonMismatchedTradeAssets   Reason = "MismatchedTradeAssets"
	ReasonSymbolAddressMismatch   Reason = "SymbolAddressMismatch"
	ReasonAssetAddressMismatch    Reason = "AssetAddressMismatch"
	ReasonFeeAssetsMismatch       Reason = "FeeAssetsMismatchTradePair"
	ReasonBaseQtyNotPositive      Reason = "BaseQuantityMustBeGreaterThanZero"
	ReasonQuoteQtyNotPositive     Reason = "QuoteQuantityMustBeGreaterThanZero"
	ReasonInvalidAmountA          Reason = "InvalidAmountA"
	ReasonInvalidAmountB          Reason = "InvalidAmountB"
	ReasonInvalidLiquidity        Reason = "InvalidLiquidity"
	ReasonInvalidLiquidityBurned  Reason = "InvalidLiquidityBurned"
	ReasonInsufficientFunds       Reason = "InsufficientFunds"
	ReasonSelfTrading             Reason = "SelfTradingNotAllowed"
	ReasonQuoteQtyNonMarketOrder  Reason = "QuoteQuantityOnlyValidForMarketOrders"

	// State
	ReasonNoConfirmedAsset        Reason = "NoConfirmedAssetFoundForSymbol"
	ReasonAssetNotRegistered      Reason = "AssetNotRegistered"
	ReasonAssetAlreadyConfirmed   Reason = "AssetAlreadyConfirmed"
	ReasonAssetRegistrationMismatch Reason = "AssetRegistrationMismatch"
	ReasonPoolAlreadyExists       Reason = "PoolAlreadyExists"
	ReasonPoolDoesNotExist        Reason = "PoolDoesNotExist"
	ReasonNoUpgradeInProgress     Reason = "NoUpgradeInProgress"
	ReasonUpgradeInProgress       Reason = "UpgradeAlreadyInProgress"
	ReasonBlockThresholdNotReached Reason = "BlockThresholdNotYetReached"
	ReasonAddressMismatch         Reason = "AddressMismatch"
	ReasonMustBeDifferent         Reason = "MustBeDifferentFromCurrent"
	ReasonInvalidInstruction      Reason = "InvalidInstruction"
)

// Error is a settlement rejection. Rejections are the sole effect of a
// failed instruction: no ledger or reserve state is mutated.
type Error struct {
	Code   Reason
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// New creates a rejection with a formatted detail message.
func New(code Reason, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Of creates a bare rejection.
func Of(code Reason) *Error {
	return &Error{Code: code}
}

// ReasonOf extracts the rejection code from an error chain, or "" if the
// error is not a rejection (i.e. an infrastructure failure).
func ReasonOf(err error) Reason {
	var rej *Error
	if errors.As(err, &rej) {
		return rej.Code
	}
	return ""
}

// Is reports whether err is a rejection with the given code.
func Is(err error, code Reason) bool {
	return ReasonOf(err) == code
}
