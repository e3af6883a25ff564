package state

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/instruction"
	"DexSettle/internal/reject"
)

// IntentState is the lifecycle marker for one liquidity intent hash.
// On-chain intents are initiated first (the wallet called the contract
// directly) and must execute through the on-chain path; off-chain intents
// carry a wallet signature and execute without prior initiation. Either
// way an intent executes at most once.
type IntentState struct {
	Initiated bool
	Executed  bool
}

// IntentTracker maintains one-shot markers per liquidity intent hash.
type IntentTracker struct {
	intents map[common.Hash]*IntentState
}

func NewIntentTracker() *IntentTracker {
	return &IntentTracker{
		intents: make(map[common.Hash]*IntentState),
	}
}

// Initiate records an on-chain initiation for the intent hash.
func (it *IntentTracker) Initiate(intentHash common.Hash) error {
	st := it.intents[intentHash]
	if st != nil {
		if st.Executed {
			return reject.New(reject.ReasonIntentAlreadyExecuted, "intent %s", intentHash.Hex())
		}
		return reject.New(reject.ReasonIntentAlreadyInitiated, "intent %s", intentHash.Hex())
	}

	it.intents[intentHash] = &IntentState{Initiated: true}
	return nil
}

// CheckExecutable validates that the intent may execute via the given
// origination path.
func (it *IntentTracker) CheckExecutable(intentHash common.Hash, origination instruction.Origination) error {
	st := it.intents[intentHash]

	if st != nil && st.Executed {
		return reject.New(reject.ReasonIntentAlreadyExecuted, "intent %s", intentHash.Hex())
	}

	initiated := st != nil && st.Initiated
	if origination == instruction.OriginationOnChain && !initiated {
		return reject.New(reject.ReasonNotExecutableFromOnChain, "intent %s", intentHash.Hex())
	}
	if origination == instruction.OriginationOffChain && initiated {
		return reject.New(reject.ReasonNotExecutableFromOffChain, "intent %s", intentHash.Hex())
	}
	return nil
}

// MarkExecuted stamps the intent as spent. Callers run CheckExecutable
// first.
func (it *IntentTracker) MarkExecuted(intentHash common.Hash) {
	st := it.intents[intentHash]
	if st == nil {
		st = &IntentState{}
		it.intents[intentHash] = st
	}
	st.Executed = true
}

// AllIntents returns every intent marker (for snapshot creation).
func (it *IntentTracker) AllIntents() map[common.Hash]IntentState {
	result := make(map[common.Hash]IntentState, len(it.intents))
	for k, v := range it.intents {
		result[k] = *v
	}
	return result
}

// RestoreIntent directly sets a marker (used for snapshot restore).
func (it *IntentTracker) RestoreIntent(intentHash common.Hash, st IntentState) {
	copied := st
	it.intents[intentHash] = &copied
}
