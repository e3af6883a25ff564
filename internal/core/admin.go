package core

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/instruction"
	"DexSettle/internal/ledger"
	"DexSettle/internal/reject"
	"DexSettle/internal/state"
)

// applyNonceInvalidation raises a wallet's order-nonce threshold.
func (e *SettlementEngine) applyNonceInvalidation(n *instruction.NonceInvalidation) (*ledger.Batch, error) {
	if err := e.nonces.Invalidate(n.Wallet, n.TimestampMs); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.NonceInvalidated.WithLabelValues("applied").Inc()
	}
	return e.journals.NewBatch(n.IdempotencyKey(), n.Dispatch.TimestampMs), nil
}

// applyWalletExit starts the exit timelock at the current block height.
func (e *SettlementEngine) applyWalletExit(w *instruction.WalletExit) (*ledger.Batch, error) {
	if err := e.exits.Initiate(w.Wallet, e.blocks.Height()); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.WalletExits.WithLabelValues("initiated").Inc()
	}
	return e.journals.NewBatch(w.IdempotencyKey(), w.TimestampMs), nil
}

// applyWalletExitFinalize completes an exit after the block delay.
func (e *SettlementEngine) applyWalletExitFinalize(w *instruction.WalletExitFinalize) (*ledger.Batch, error) {
	if err := e.exits.Finalize(w.Wallet, e.blocks.Height()); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.WalletExits.WithLabelValues("finalized").Inc()
	}
	return e.journals.NewBatch(w.IdempotencyKey(), w.TimestampMs), nil
}

// applyDeposit credits a wallet from the custody boundary.
func (e *SettlementEngine) applyDeposit(d *instruction.Deposit) (*ledger.Batch, error) {
	if d.Quantity <= 0 {
		return nil, reject.New(reject.ReasonInvalidInstruction, "deposit quantity %d", d.Quantity)
	}
	return e.journals.GenerateDeposit(d.Wallet, d.Asset, d.Quantity, d.IdempotencyKey(), d.TimestampMs), nil
}

// applyWithdrawal debits a wallet to the custody boundary. The wallet
// must cover the full quantity.
func (e *SettlementEngine) applyWithdrawal(w *instruction.Withdrawal) (*ledger.Batch, error) {
	if w.Quantity <= 0 {
		return nil, reject.New(reject.ReasonInvalidInstruction, "withdrawal quantity %d", w.Quantity)
	}

	batch := e.journals.GenerateWithdrawal(w.Wallet, w.Asset, w.Quantity, w.IdempotencyKey(), w.TimestampMs)
	if err := e.balances.PreviewBatch(batch); err != nil {
		return nil, reject.New(reject.ReasonInsufficientFunds, "%v", err)
	}
	return batch, nil
}

// applyAssetRegistration records a pending asset listing.
func (e *SettlementEngine) applyAssetRegistration(a *instruction.AssetRegistration) (*ledger.Batch, error) {
	if err := e.assets.Register(a.Asset, a.Symbol, a.Decimals); err != nil {
		return nil, err
	}
	return e.journals.NewBatch(a.IdempotencyKey(), a.TimestampMs), nil
}

// applyAssetConfirmation promotes a pending listing to confirmed.
func (e *SettlementEngine) applyAssetConfirmation(a *instruction.AssetConfirmation) (*ledger.Batch, error) {
	if err := e.assets.Confirm(a.Asset, a.Symbol, a.Decimals); err != nil {
		return nil, err
	}
	return e.journals.NewBatch(a.IdempotencyKey(), a.TimestampMs), nil
}

// applyPoolPromotion creates a reserve pair. Both assets must already be
// confirmed.
func (e *SettlementEngine) applyPoolPromotion(p *instruction.PoolPromotion) (*ledger.Batch, error) {
	if err := e.requireConfirmed(p.BaseAsset); err != nil {
		return nil, err
	}
	if err := e.requireConfirmed(p.QuoteAsset); err != nil {
		return nil, err
	}
	if err := e.pools.Promote(p.BaseAsset, p.QuoteAsset, p.PairToken); err != nil {
		return nil, err
	}
	return e.journals.NewBatch(p.IdempotencyKey(), p.TimestampMs), nil
}

func (e *SettlementEngine) requireConfirmed(addr common.Address) error {
	asset, ok := e.assets.Get(addr)
	if !ok || asset.Status != state.AssetConfirmed {
		return reject.New(reject.ReasonAssetNotRegistered, "asset %s not confirmed", addr.Hex())
	}
	return nil
}

// applyUpgradeInitiate starts the timelock for a role upgrade.
func (e *SettlementEngine) applyUpgradeInitiate(u *instruction.UpgradeInitiate) (*ledger.Batch, error) {
	if err := e.upgrades.Initiate(u.Role, u.NewAddress, e.blocks.Height()); err != nil {
		return nil, err
	}
	return e.journals.NewBatch(u.IdempotencyKey(), u.TimestampMs), nil
}

// applyUpgradeCancel abandons a pending upgrade.
func (e *SettlementEngine) applyUpgradeCancel(u *instruction.UpgradeCancel) (*ledger.Batch, error) {
	if err := e.upgrades.Cancel(u.Role); err != nil {
		return nil, err
	}
	return e.journals.NewBatch(u.IdempotencyKey(), u.TimestampMs), nil
}

// applyUpgradeFinalize commits a pending upgrade once the threshold is
// reached.
func (e *SettlementEngine) applyUpgradeFinalize(u *instruction.UpgradeFinalize) (*ledger.Batch, error) {
	if err := e.upgrades.Finalize(u.Role, u.NewAddress, e.blocks.Height()); err != nil {
		return nil, err
	}
	return e.journals.NewBatch(u.IdempotencyKey(), u.TimestampMs), nil
}

// applyBlockHeight advances the core's view of the chain.
func (e *SettlementEngine) applyBlockHeight(b *instruction.BlockHeight) (*ledger.Batch, error) {
	if err := e.blocks.Advance(b.Height); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.CoreBlockHeight.Set(float64(b.Height))
	}
	return e.journals.NewBatch(b.IdempotencyKey(), b.TimestampMs), nil
}
