package state

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/reject"
)

// NonceTracker maintains per-wallet nonce thresholds. Order nonces are
// time-ordered UUIDs; a wallet invalidates all orders with a nonce
// timestamp at or below the threshold in one step.
type NonceTracker struct {
	thresholds map[common.Address]int64

	// minGapMs is the smallest step a threshold may advance by, so a
	// wallet cannot spam invalidations one millisecond apart.
	minGapMs int64
}

func NewNonceTracker(minGapMs int64) *NonceTracker {
	return &NonceTracker{
		thresholds: make(map[common.Address]int64),
		minGapMs:   minGapMs,
	}
}

// Threshold returns the wallet's current nonce threshold in epoch ms.
func (nt *NonceTracker) Threshold(wallet common.Address) int64 {
	return nt.thresholds[wallet]
}

// CheckOrderNonce rejects an order whose nonce timestamp does not exceed
// the wallet's threshold.
func (nt *NonceTracker) CheckOrderNonce(wallet common.Address, nonceTsMs int64) error {
	if threshold := nt.thresholds[wallet]; nonceTsMs <= threshold {
		return reject.New(reject.ReasonNonceTooLow, "nonce %d <= threshold %d", nonceTsMs, threshold)
	}
	return nil
}

// Invalidate raises the wallet's threshold. The new value must advance
// the current one by at least minGapMs.
func (nt *NonceTracker) Invalidate(wallet common.Address, newThresholdMs int64) error {
	current := nt.thresholds[wallet]
	if newThresholdMs < current+nt.minGapMs {
		return reject.New(reject.ReasonNonceTooLow,
			"threshold %d must exceed %d by at least %dms", newThresholdMs, current, nt.minGapMs)
	}

	nt.thresholds[wallet] = newThresholdMs
	return nil
}

// AllThresholds returns every wallet threshold (for snapshot creation).
func (nt *NonceTracker) AllThresholds() map[common.Address]int64 {
	result := make(map[common.Address]int64, len(nt.thresholds))
	for k, v := range nt.thresholds {
		result[k] = v
	}
	return result
}

// RestoreThreshold directly sets a threshold (used for snapshot restore).
func (nt *NonceTracker) RestoreThreshold(wallet common.Address, thresholdMs int64) {
	nt.thresholds[wallet] = thresholdMs
}

// FillTracker records cumulative filled quantity per order hash. Limit
// orders may fill across many settlements up to their quantity; market
// orders settle exactly once.
type FillTracker struct {
	filled map[common.Hash]int64
}

func NewFillTracker() *FillTracker {
	return &FillTracker{
		filled: make(map[common.Hash]int64),
	}
}

// Filled returns the cumulative filled quantity for an order hash.
func (ft *FillTracker) Filled(orderHash common.Hash) int64 {
	return ft.filled[orderHash]
}

// Check validates a proposed fill against the order's capacity. Orders
// that must settle in one shot (allowPartial false) are rejected on any
// reappearance, and an order already filled to capacity is a double
// fill rather than an overfill.
func (ft *FillTracker) Check(orderHash common.Hash, fillQty, totalQty int64, allowPartial bool) error {
	prior := ft.filled[orderHash]

	if !allowPartial && prior > 0 {
		return reject.New(reject.ReasonOrderDoubleFilled, "order %s already settled", orderHash.Hex())
	}
	if prior >= totalQty {
		return reject.New(reject.ReasonOrderDoubleFilled,
			"order %s already filled to capacity %d", orderHash.Hex(), totalQty)
	}
	if prior+fillQty > totalQty {
		return reject.New(reject.ReasonOrderOverfill,
			"order %s: %d filled, fill %d exceeds %d", orderHash.Hex(), prior, fillQty, totalQty)
	}
	return nil
}

// Record adds a settled fill to the order's cumulative total. Callers run
// Check first.
func (ft *FillTracker) Record(orderHash common.Hash, fillQty int64) {
	ft.filled[orderHash] += fillQty
}

// AllFills returns every cumulative fill (for snapshot creation).
func (ft *FillTracker) AllFills() map[common.Hash]int64 {
	result := make(map[common.Hash]int64, len(ft.filled))
	for k, v := range ft.filled {
		result[k] = v
	}
	return result
}

// RestoreFill directly sets a cumulative fill (used for snapshot restore).
func (ft *FillTracker) RestoreFill(orderHash common.Hash, qty int64) {
	ft.filled[orderHash] = qty
}
