package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceTracker maintains in-memory account balances in pips. It is the
// sole source of truth for spendable funds; mutation happens only through
// validated journal batches.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// WalletBalance returns a wallet's spendable balance in one asset.
func (bt *BalanceTracker) WalletBalance(wallet, asset common.Address) int64 {
	return bt.balances[NewWalletAccountKey(wallet, asset)]
}

// PreviewBatch reports whether applying the batch would drive any
// never-negative account below zero, without mutating state. This is the
// all-or-nothing guard: settlements are rejected before any write.
func (bt *BalanceTracker) PreviewBatch(batch *Batch) error {
	deltas := make(map[AccountKey]int64, len(batch.Journals)*2)
	for _, j := range batch.Journals {
		deltas[j.DebitAccount] += j.Amount
		deltas[j.CreditAccount] -= j.Amount
	}

	for key, delta := range deltas {
		if !key.MustStayNonNegative() {
			continue
		}
		if bt.balances[key]+delta < 0 {
			return fmt.Errorf("account %s would go negative: %d%+d",
				key.AccountPath(), bt.balances[key], delta)
		}
	}

	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.balances[key]
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per asset (should be 0
// for the zero-sum ledger).
func (bt *BalanceTracker) ComputeGlobalBalance() map[common.Address]int64 {
	totals := make(map[common.Address]int64)

	for key, balance := range bt.balances {
		totals[key.Asset] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing and recovery)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances from a snapshot.
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}
