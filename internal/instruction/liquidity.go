package instruction

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Origination distinguishes how a liquidity intent entered the system.
// Each intent settles through exactly the mode it originated in, at most
// once.
type Origination int32

const (
	// OriginationOffChain intents are signed by the wallet and submitted
	// by the dispatcher together with the settlement amounts.
	OriginationOffChain Origination = iota

	// OriginationOnChain intents were initiated directly by the wallet
	// (caller == wallet) and await a matching execute call.
	OriginationOnChain
)

// LiquidityIntentKind discriminates addition from removal.
type LiquidityIntentKind int32

const (
	LiquidityAddition LiquidityIntentKind = iota
	LiquidityRemoval
)

// LiquidityIntent is a signed, immutable request to add or remove reserve
// capital. AssetA/AssetB are in the provider's order; the engine maps them
// onto the pool's base/quote orientation at execution time.
type LiquidityIntent struct {
	Kind   LiquidityIntentKind
	Nonce  uuid.UUID
	Wallet common.Address

	AssetA common.Address
	AssetB common.Address

	// Desired amounts bound what the provider is willing to contribute
	// (addition only); Min amounts bound what must be delivered.
	AmountADesired int64
	AmountBDesired int64
	AmountAMin     int64
	AmountBMin     int64

	// Liquidity is the pair-token quantity to burn (removal only).
	Liquidity int64

	// To receives the minted pair tokens (addition) or the withdrawn
	// reserve assets (removal). When To equals Wallet the proceeds are
	// credited in the ledger; otherwise they are journaled to the custody
	// boundary for external transfer.
	To common.Address

	DeadlineMs int64

	SigHashVersion uint8
}

// LiquidityExecution carries the final settlement amounts computed by the
// dispatcher against the current reserves.
type LiquidityExecution struct {
	BaseAsset  common.Address
	QuoteAsset common.Address

	// Liquidity is the pair-token quantity minted (addition) or burned
	// (removal).
	Liquidity int64

	GrossBaseQty  int64
	GrossQuoteQty int64
	NetBaseQty    int64
	NetQuoteQty   int64
}

// InitiateAddLiquidity marks an addition intent as on-chain-originated.
// Caller must equal the intent's wallet.
type InitiateAddLiquidity struct {
	Dispatch

	Caller common.Address
	Intent LiquidityIntent
}

func (i *InitiateAddLiquidity) InstructionType() Type { return TypeInitiateAddLiquidity }
func (i *InitiateAddLiquidity) Market() *string       { return nil }

// InitiateRemoveLiquidity marks a removal intent as on-chain-originated.
type InitiateRemoveLiquidity struct {
	Dispatch

	Caller common.Address
	Intent LiquidityIntent
}

func (i *InitiateRemoveLiquidity) InstructionType() Type { return TypeInitiateRemoveLiquidity }
func (i *InitiateRemoveLiquidity) Market() *string       { return nil }

// AddLiquidity settles a liquidity addition against the reserves.
type AddLiquidity struct {
	Dispatch

	Intent      LiquidityIntent
	Signature   Signature // required for off-chain origination
	Origination Origination
	Execution   LiquidityExecution
}

func (a *AddLiquidity) InstructionType() Type { return TypeAddLiquidity }
func (a *AddLiquidity) Market() *string       { return nil }

// RemoveLiquidity settles a liquidity removal against the reserves.
type RemoveLiquidity struct {
	Dispatch

	Intent      LiquidityIntent
	Signature   Signature
	Origination Origination
	Execution   LiquidityExecution
}

func (r *RemoveLiquidity) InstructionType() Type { return TypeRemoveLiquidity }
func (r *RemoveLiquidity) Market() *string       { return nil }
