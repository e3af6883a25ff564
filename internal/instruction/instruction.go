package instruction

import (
	"github.com/google/uuid"
)

// Type discriminator for instruction payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeOrderBookTrade
	TypePoolTrade
	TypeHybridTrade
	TypeAddLiquidity
	TypeRemoveLiquidity
	TypeInitiateAddLiquidity
	TypeInitiateRemoveLiquidity
	TypeNonceInvalidation
	TypeWalletExit
	TypeWalletExitFinalize
	TypeDeposit
	TypeWithdrawal
	TypeAssetRegistration
	TypeAssetConfirmation
	TypePoolPromotion
	TypeUpgradeInitiate
	TypeUpgradeCancel
	TypeUpgradeFinalize
	TypeBlockHeight
)

func (t Type) String() string {
	switch t {
	case TypeOrderBookTrade:
		return "OrderBookTrade"
	case TypePoolTrade:
		return "PoolTrade"
	case TypeHybridTrade:
		return "HybridTrade"
	case TypeAddLiquidity:
		return "AddLiquidity"
	case TypeRemoveLiquidity:
		return "RemoveLiquidity"
	case TypeInitiateAddLiquidity:
		return "InitiateAddLiquidity"
	case TypeInitiateRemoveLiquidity:
		return "InitiateRemoveLiquidity"
	case TypeNonceInvalidation:
		return "NonceInvalidation"
	case TypeWalletExit:
		return "WalletExit"
	case TypeWalletExitFinalize:
		return "WalletExitFinalize"
	case TypeDeposit:
		return "Deposit"
	case TypeWithdrawal:
		return "Withdrawal"
	case TypeAssetRegistration:
		return "AssetRegistration"
	case TypeAssetConfirmation:
		return "AssetConfirmation"
	case TypePoolPromotion:
		return "PoolPromotion"
	case TypeUpgradeInitiate:
		return "UpgradeInitiate"
	case TypeUpgradeCancel:
		return "UpgradeCancel"
	case TypeUpgradeFinalize:
		return "UpgradeFinalize"
	case TypeBlockHeight:
		return "BlockHeight"
	default:
		return "Unknown"
	}
}

// Instruction is the interface all dispatcher payloads implement.
// Exactly one instruction is validated and applied per core call.
type Instruction interface {
	// IdempotencyKey returns the stable transport-level dedup key
	IdempotencyKey() string

	// InstructionType returns the discriminator
	InstructionType() Type

	// Market returns the market context (nil for global instructions)
	Market() *string

	// SourceSequence returns the dispatcher ordering key
	SourceSequence() int64
}

// Dispatch carries the transport metadata common to every instruction.
// The dispatcher assigns DispatchID (idempotency), Sequence (ordering) and
// TimestampMs (versioned input time; the core never reads the wall clock).
type Dispatch struct {
	DispatchID  uuid.UUID
	Sequence    int64
	TimestampMs int64
}

func (d Dispatch) IdempotencyKey() string {
	return d.DispatchID.String()
}

func (d Dispatch) SourceSequence() int64 {
	return d.Sequence
}

// DispatchTimestampMs returns the versioned input timestamp.
func (d Dispatch) DispatchTimestampMs() int64 {
	return d.TimestampMs
}
