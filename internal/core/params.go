package core

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/fee"
)

// Params are the operator-fixed settlement parameters. They are loaded
// once at startup; changing them requires a restart from a consistent
// snapshot.
type Params struct {
	// MinReserve is the per-side floor a pool's reserves may never drop
	// below once funded, in pips.
	MinReserve int64

	// ExitDelayBlocks gates WalletExitFinalize after WalletExit.
	ExitDelayBlocks int64

	// UpgradeDelayBlocks gates UpgradeFinalize after UpgradeInitiate.
	UpgradeDelayBlocks int64

	// NonceInvalidationMinGapMs is the smallest step a wallet's nonce
	// threshold may advance by per invalidation.
	NonceInvalidationMinGapMs int64

	// ExchangeAddress and GovernanceAddress seed the upgradeable role
	// references.
	ExchangeAddress   common.Address
	GovernanceAddress common.Address

	// FeePolicy bounds the fees the dispatcher may charge.
	FeePolicy fee.Policy

	// IdempotencyCapacity sizes the tier-1 dedup LRU.
	IdempotencyCapacity int
}

// DefaultParams mirrors the settlement contract's deployed constants.
func DefaultParams() Params {
	return Params{
		MinReserve:                1_000_000, // 0.01 units
		ExitDelayBlocks:           40_320,    // ~1 week at 15s blocks
		UpgradeDelayBlocks:        40_320,
		NonceInvalidationMinGapMs: 10_000,
		FeePolicy:                 fee.DefaultPolicy(),
		IdempotencyCapacity:       1_000_000,
	}
}
