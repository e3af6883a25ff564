package state

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/reject"
)

// ExitState tracks one wallet's progress through the exit flow: the
// wallet initiates on-chain, waits out the block delay, then finalizes.
// A finalized wallet can no longer trade or provide liquidity.
type ExitState struct {
	Wallet           common.Address
	InitiatedAtBlock int64
	Finalized        bool
}

// ExitTracker maintains wallet exit state and enforces the block delay.
type ExitTracker struct {
	exits       map[common.Address]*ExitState
	delayBlocks int64
}

func NewExitTracker(delayBlocks int64) *ExitTracker {
	return &ExitTracker{
		exits:       make(map[common.Address]*ExitState),
		delayBlocks: delayBlocks,
	}
}

// Initiate starts the exit clock for a wallet.
func (et *ExitTracker) Initiate(wallet common.Address, blockHeight int64) error {
	st := et.exits[wallet]
	if st != nil {
		if st.Finalized {
			return reject.New(reject.ReasonWalletExitFinalized, "wallet %s", wallet.Hex())
		}
		return reject.New(reject.ReasonWalletAlreadyExited, "wallet %s already initiated", wallet.Hex())
	}

	et.exits[wallet] = &ExitState{
		Wallet:           wallet,
		InitiatedAtBlock: blockHeight,
	}
	return nil
}

// Finalize completes an exit once the delay has elapsed.
func (et *ExitTracker) Finalize(wallet common.Address, blockHeight int64) error {
	st := et.exits[wallet]
	if st == nil {
		return reject.New(reject.ReasonWalletExitNotStarted, "wallet %s", wallet.Hex())
	}
	if st.Finalized {
		return reject.New(reject.ReasonWalletExitFinalized, "wallet %s", wallet.Hex())
	}
	if blockHeight < st.InitiatedAtBlock+et.delayBlocks {
		return reject.New(reject.ReasonExitDelayNotElapsed,
			"block %d < %d", blockHeight, st.InitiatedAtBlock+et.delayBlocks)
	}

	st.Finalized = true
	return nil
}

// IsFinalized reports whether the wallet has completed its exit.
func (et *ExitTracker) IsFinalized(wallet common.Address) bool {
	st := et.exits[wallet]
	return st != nil && st.Finalized
}

// AllExits returns every exit record (for snapshot creation).
func (et *ExitTracker) AllExits() []*ExitState {
	result := make([]*ExitState, 0, len(et.exits))
	for _, st := range et.exits {
		result = append(result, st)
	}
	return result
}

// RestoreExit directly sets an exit record (used for snapshot restore).
func (et *ExitTracker) RestoreExit(st *ExitState) {
	et.exits[st.Wallet] = st
}
