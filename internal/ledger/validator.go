package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies the batch is balanced and well-formed.
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateWalletNonNegative checks a wallet balance >= 0.
func (v *InvariantValidator) ValidateWalletNonNegative(wallet, asset common.Address) error {
	return v.tracker.ValidateNonNegative(NewWalletAccountKey(wallet, asset))
}

// ValidateVaultNonNegative checks the pool vault balance >= 0 for an asset.
func (v *InvariantValidator) ValidateVaultNonNegative(asset common.Address) error {
	return v.tracker.ValidateNonNegative(NewPoolVaultKey(asset))
}

// ValidateVaultMatchesReserves checks the vault account for an asset holds
// exactly the total the reserve engine believes it holds. The vault and
// the reserves are written in the same atomic call; divergence means a
// settlement path journaled one side without the other.
func (v *InvariantValidator) ValidateVaultMatchesReserves(asset common.Address, reserveTotal int64) error {
	vault := v.tracker.GetBalance(NewPoolVaultKey(asset))
	if vault != reserveTotal {
		return fmt.Errorf("vault for %s holds %d, reserves say %d", asset.Hex(), vault, reserveTotal)
	}
	return nil
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for asset, total := range totals {
		if total != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %d", asset.Hex(), total)
		}
	}

	return nil
}
