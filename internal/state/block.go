package state

import "DexSettle/internal/reject"

// BlockCounter holds the latest observed chain height. The core never
// reads a clock; block heights arrive as instructions and every timelock
// check compares against this counter.
type BlockCounter struct {
	height int64
}

func NewBlockCounter() *BlockCounter {
	return &BlockCounter{}
}

// Height returns the latest observed block height.
func (bc *BlockCounter) Height() int64 {
	return bc.height
}

// Advance moves the counter forward. Heights never go backwards; a lower
// height means the feed replayed or reordered and is rejected.
func (bc *BlockCounter) Advance(height int64) error {
	if height < bc.height {
		return reject.New(reject.ReasonInvalidInstruction,
			"block height %d below current %d", height, bc.height)
	}
	bc.height = height
	return nil
}

// Restore directly sets the height (used for snapshot restore).
func (bc *BlockCounter) Restore(height int64) {
	bc.height = height
}
