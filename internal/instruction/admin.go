package instruction

import (
	"github.com/ethereum/go-ethereum/common"
)

// NonceInvalidation raises a wallet's minimum order-nonce timestamp,
// cancelling all orders with earlier nonces.
type NonceInvalidation struct {
	Dispatch

	Wallet      common.Address
	TimestampMs int64
}

func (n *NonceInvalidation) InstructionType() Type { return TypeNonceInvalidation }
func (n *NonceInvalidation) Market() *string       { return nil }

// WalletExit initiates a wallet's delay-gated exit from trading.
type WalletExit struct {
	Dispatch

	Wallet common.Address
}

func (w *WalletExit) InstructionType() Type { return TypeWalletExit }
func (w *WalletExit) Market() *string       { return nil }

// WalletExitFinalize completes an exit after the block delay has elapsed.
type WalletExitFinalize struct {
	Dispatch

	Wallet common.Address
}

func (w *WalletExitFinalize) InstructionType() Type { return TypeWalletExitFinalize }
func (w *WalletExitFinalize) Market() *string       { return nil }

// Deposit credits a wallet from the custody boundary. Custody has already
// taken possession of the asset when this instruction arrives.
type Deposit struct {
	Dispatch

	Wallet   common.Address
	Asset    common.Address
	Quantity int64
}

func (d *Deposit) InstructionType() Type { return TypeDeposit }
func (d *Deposit) Market() *string       { return nil }

// Withdrawal debits a wallet to the custody boundary for external
// transfer. The ledger must never go negative.
type Withdrawal struct {
	Dispatch

	Wallet   common.Address
	Asset    common.Address
	Quantity int64
}

func (w *Withdrawal) InstructionType() Type { return TypeWithdrawal }
func (w *Withdrawal) Market() *string       { return nil }

// AssetRegistration starts the two-step pending→confirmed asset lifecycle.
type AssetRegistration struct {
	Dispatch

	Asset    common.Address
	Symbol   string
	Decimals uint8
}

func (a *AssetRegistration) InstructionType() Type { return TypeAssetRegistration }
func (a *AssetRegistration) Market() *string       { return nil }

// AssetConfirmation confirms a pending registration. Identity, symbol and
// decimals must match the pending entry exactly.
type AssetConfirmation struct {
	Dispatch

	Asset    common.Address
	Symbol   string
	Decimals uint8
}

func (a *AssetConfirmation) InstructionType() Type { return TypeAssetConfirmation }
func (a *AssetConfirmation) Market() *string       { return nil }

// PoolPromotion creates the reserve pair for a confirmed asset pair.
type PoolPromotion struct {
	Dispatch

	BaseAsset  common.Address
	QuoteAsset common.Address
	PairToken  common.Address
}

func (p *PoolPromotion) InstructionType() Type { return TypePoolPromotion }
func (p *PoolPromotion) Market() *string       { return nil }

// UpgradeRole identifies which authorized contract reference an upgrade
// instruction targets.
type UpgradeRole int32

const (
	RoleExchange UpgradeRole = iota
	RoleGovernance
)

func (r UpgradeRole) String() string {
	if r == RoleGovernance {
		return "governance"
	}
	return "exchange"
}

// UpgradeInitiate proposes a new authorized contract reference, starting
// the block-delay timelock.
type UpgradeInitiate struct {
	Dispatch

	Role       UpgradeRole
	NewAddress common.Address
}

func (u *UpgradeInitiate) InstructionType() Type { return TypeUpgradeInitiate }
func (u *UpgradeInitiate) Market() *string       { return nil }

// UpgradeCancel abandons a pending upgrade.
type UpgradeCancel struct {
	Dispatch

	Role UpgradeRole
}

func (u *UpgradeCancel) InstructionType() Type { return TypeUpgradeCancel }
func (u *UpgradeCancel) Market() *string       { return nil }

// UpgradeFinalize commits a pending upgrade once the block threshold is
// reached. Address must equal the pending new address.
type UpgradeFinalize struct {
	Dispatch

	Role       UpgradeRole
	NewAddress common.Address
}

func (u *UpgradeFinalize) InstructionType() Type { return TypeUpgradeFinalize }
func (u *UpgradeFinalize) Market() *string       { return nil }

// BlockHeight advances the core's view of the chain height. Block numbers
// are versioned inputs; the core never observes the chain directly.
type BlockHeight struct {
	Dispatch

	Height int64
}

func (b *BlockHeight) InstructionType() Type { return TypeBlockHeight }
func (b *BlockHeight) Market() *string       { return nil }
