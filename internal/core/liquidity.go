package core

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/instruction"
	"DexSettle/internal/ledger"
	"DexSettle/internal/pip"
	"DexSettle/internal/reject"
	"DexSettle/internal/sighash"
	"DexSettle/internal/state"
)

// resolveLiquidityIntent runs the checks shared by both liquidity
// settlement paths: kind, deadline, signature or initiation marker, the
// one-shot execution marker, the exit gate and pool orientation. It
// returns the intent hash and the pool.
func (e *SettlementEngine) resolveLiquidityIntent(
	in *instruction.LiquidityIntent,
	sig instruction.Signature,
	origination instruction.Origination,
	ex *instruction.LiquidityExecution,
	kind instruction.LiquidityIntentKind,
	dispatchTsMs int64,
) (common.Hash, *state.Pool, error) {
	if in.Kind != kind {
		return common.Hash{}, nil, reject.New(reject.ReasonInvalidInstruction,
			"intent kind %d", in.Kind)
	}
	if in.AssetA == in.AssetB {
		return common.Hash{}, nil, reject.New(reject.ReasonAssetsMustBeDifferent,
			"asset %s", in.AssetA.Hex())
	}
	if dispatchTsMs > in.DeadlineMs {
		return common.Hash{}, nil, reject.New(reject.ReasonExpired,
			"deadline %d, dispatched %d", in.DeadlineMs, dispatchTsMs)
	}

	// Off-chain intents prove authorization by signature; on-chain intents
	// proved it at initiation (caller == wallet).
	var hash common.Hash
	var err error
	if origination == instruction.OriginationOffChain {
		hash, err = sighash.VerifyIntent(in, sig)
		if err != nil {
			return common.Hash{}, nil, err
		}
	} else {
		if in.SigHashVersion != sighash.SupportedVersion {
			return common.Hash{}, nil, reject.New(reject.ReasonSigHashVersionInvalid,
				"intent hash version %d", in.SigHashVersion)
		}
		hash = sighash.IntentHash(in)
	}

	if err := e.intents.CheckExecutable(hash, origination); err != nil {
		return common.Hash{}, nil, err
	}
	if e.exits.IsFinalized(in.Wallet) {
		return common.Hash{}, nil, reject.New(reject.ReasonWalletExitFinalized,
			"wallet %s", in.Wallet.Hex())
	}

	pool, err := e.pools.Get(in.AssetA, in.AssetB)
	if err != nil {
		return common.Hash{}, nil, err
	}
	if ex.BaseAsset != pool.BaseAsset || ex.QuoteAsset != pool.QuoteAsset {
		return common.Hash{}, nil, reject.New(reject.ReasonAssetAddressMismatch,
			"pool %s/%s", pool.BaseAsset.Hex(), pool.QuoteAsset.Hex())
	}

	return hash, pool, nil
}

// liquiditySides maps the execution's base/quote amounts back onto the
// intent's A/B ordering so bound violations name the right side.
func liquiditySides(in *instruction.LiquidityIntent, pool *state.Pool, base, quote int64) (a, b int64) {
	if in.AssetA == pool.BaseAsset {
		return base, quote
	}
	return quote, base
}

// applyAddLiquidity settles a liquidity addition: reserves grow by the
// net amounts and the recipient is minted pair tokens.
func (e *SettlementEngine) applyAddLiquidity(al *instruction.AddLiquidity) (*ledger.Batch, error) {
	in := &al.Intent
	ex := &al.Execution

	hash, pool, err := e.resolveLiquidityIntent(in, al.Signature, al.Origination, ex,
		instruction.LiquidityAddition, al.TimestampMs)
	if err != nil {
		return nil, err
	}

	if ex.GrossBaseQty <= 0 {
		return nil, reject.New(reject.ReasonBaseQtyNotPositive, "gross base %d", ex.GrossBaseQty)
	}
	if ex.GrossQuoteQty <= 0 {
		return nil, reject.New(reject.ReasonQuoteQtyNotPositive, "gross quote %d", ex.GrossQuoteQty)
	}

	// Desired bounds cap what the wallet surrenders; min bounds floor what
	// reaches the reserves.
	grossA, grossB := liquiditySides(in, pool, ex.GrossBaseQty, ex.GrossQuoteQty)
	netA, netB := liquiditySides(in, pool, ex.NetBaseQty, ex.NetQuoteQty)
	if netA <= 0 || netA > grossA || grossA > in.AmountADesired || netA < in.AmountAMin {
		return nil, reject.New(reject.ReasonInvalidAmountA,
			"gross %d net %d desired %d min %d", grossA, netA, in.AmountADesired, in.AmountAMin)
	}
	if netB <= 0 || netB > grossB || grossB > in.AmountBDesired || netB < in.AmountBMin {
		return nil, reject.New(reject.ReasonInvalidAmountB,
			"gross %d net %d desired %d min %d", grossB, netB, in.AmountBDesired, in.AmountBMin)
	}
	if err := e.feePolicy.CheckLiquidityFees(grossA-netA, grossA, grossB-netB, grossB); err != nil {
		return nil, err
	}

	// Pair tokens minted must equal the share the net contribution buys:
	// sqrt of the product on first provision, the proportional minimum
	// afterwards.
	var expected int64
	if pool.PairTokenSupply == 0 {
		expected = pip.Sqrt128(ex.NetBaseQty, ex.NetQuoteQty)
	} else {
		byBase := pip.MulDiv(ex.NetBaseQty, pool.PairTokenSupply, pool.BaseReserves, pip.RoundDown)
		byQuote := pip.MulDiv(ex.NetQuoteQty, pool.PairTokenSupply, pool.QuoteReserves, pip.RoundDown)
		expected = byBase
		if byQuote < byBase {
			expected = byQuote
		}
	}
	if ex.Liquidity <= 0 || ex.Liquidity != expected {
		return nil, reject.New(reject.ReasonInvalidLiquidity,
			"minting %d, contribution is worth %d", ex.Liquidity, expected)
	}

	flow := ledger.LiquidityFlow{
		Wallet:     in.Wallet,
		To:         in.To,
		ToLedger:   in.To == in.Wallet,
		Base:       pool.BaseAsset,
		Quote:      pool.QuoteAsset,
		PairToken:  pool.PairToken,
		GrossBase:  ex.GrossBaseQty,
		GrossQuote: ex.GrossQuoteQty,
		NetBase:    ex.NetBaseQty,
		NetQuote:   ex.NetQuoteQty,
		FeeBase:    ex.GrossBaseQty - ex.NetBaseQty,
		FeeQuote:   ex.GrossQuoteQty - ex.NetQuoteQty,
		Liquidity:  ex.Liquidity,
	}
	batch := e.journals.GenerateLiquidityAdd(flow, al.IdempotencyKey(), al.TimestampMs)
	if err := e.balances.PreviewBatch(batch); err != nil {
		return nil, reject.New(reject.ReasonInsufficientFunds, "%v", err)
	}

	e.intents.MarkExecuted(hash)
	e.pools.SetReserves(pool, pool.BaseReserves+ex.NetBaseQty, pool.QuoteReserves+ex.NetQuoteQty)
	e.pools.Mint(pool, ex.Liquidity)

	if e.metrics != nil {
		e.metrics.LiquidityOps.WithLabelValues("add", originationLabel(al.Origination)).Inc()
	}

	return batch, nil
}

// applyRemoveLiquidity settles a liquidity removal: pair tokens burn and
// the reserves pay out the proportional share.
func (e *SettlementEngine) applyRemoveLiquidity(rl *instruction.RemoveLiquidity) (*ledger.Batch, error) {
	in := &rl.Intent
	ex := &rl.Execution

	hash, pool, err := e.resolveLiquidityIntent(in, rl.Signature, rl.Origination, ex,
		instruction.LiquidityRemoval, rl.TimestampMs)
	if err != nil {
		return nil, err
	}

	if ex.Liquidity <= 0 || ex.Liquidity != in.Liquidity {
		return nil, reject.New(reject.ReasonInvalidLiquidityBurned,
			"burning %d, intent says %d", ex.Liquidity, in.Liquidity)
	}
	if pool.PairTokenSupply <= 0 || ex.Liquidity > pool.PairTokenSupply {
		return nil, reject.New(reject.ReasonInvalidLiquidityBurned,
			"burning %d of supply %d", ex.Liquidity, pool.PairTokenSupply)
	}

	// Gross payouts are the exact proportional share of each reserve.
	expectedBase := pip.MulDiv(ex.Liquidity, pool.BaseReserves, pool.PairTokenSupply, pip.RoundDown)
	expectedQuote := pip.MulDiv(ex.Liquidity, pool.QuoteReserves, pool.PairTokenSupply, pip.RoundDown)
	aIsBase := in.AssetA == pool.BaseAsset
	if ex.GrossBaseQty != expectedBase {
		return nil, rejectAmountSide(aIsBase, "gross base %d, share is %d", ex.GrossBaseQty, expectedBase)
	}
	if ex.GrossQuoteQty != expectedQuote {
		return nil, rejectAmountSide(!aIsBase, "gross quote %d, share is %d", ex.GrossQuoteQty, expectedQuote)
	}

	grossA, grossB := liquiditySides(in, pool, ex.GrossBaseQty, ex.GrossQuoteQty)
	netA, netB := liquiditySides(in, pool, ex.NetBaseQty, ex.NetQuoteQty)
	if netA <= 0 || netA > grossA || netA < in.AmountAMin {
		return nil, reject.New(reject.ReasonInvalidAmountA,
			"gross %d net %d min %d", grossA, netA, in.AmountAMin)
	}
	if netB <= 0 || netB > grossB || netB < in.AmountBMin {
		return nil, reject.New(reject.ReasonInvalidAmountB,
			"gross %d net %d min %d", grossB, netB, in.AmountBMin)
	}
	if err := e.feePolicy.CheckLiquidityFees(grossA-netA, grossA, grossB-netB, grossB); err != nil {
		return nil, err
	}

	newBase := pool.BaseReserves - ex.GrossBaseQty
	newQuote := pool.QuoteReserves - ex.GrossQuoteQty
	if err := e.pools.ValidateRemoval(pool, newBase, newQuote); err != nil {
		return nil, err
	}

	flow := ledger.LiquidityFlow{
		Wallet:     in.Wallet,
		To:         in.To,
		ToLedger:   in.To == in.Wallet,
		Base:       pool.BaseAsset,
		Quote:      pool.QuoteAsset,
		PairToken:  pool.PairToken,
		GrossBase:  ex.GrossBaseQty,
		GrossQuote: ex.GrossQuoteQty,
		NetBase:    ex.NetBaseQty,
		NetQuote:   ex.NetQuoteQty,
		FeeBase:    ex.GrossBaseQty - ex.NetBaseQty,
		FeeQuote:   ex.GrossQuoteQty - ex.NetQuoteQty,
		Liquidity:  ex.Liquidity,
	}
	batch := e.journals.GenerateLiquidityRemove(flow, rl.IdempotencyKey(), rl.TimestampMs)
	if err := e.balances.PreviewBatch(batch); err != nil {
		return nil, reject.New(reject.ReasonInsufficientFunds, "%v", err)
	}

	e.intents.MarkExecuted(hash)
	e.pools.SetReserves(pool, newBase, newQuote)
	e.pools.Burn(pool, ex.Liquidity)

	if e.metrics != nil {
		e.metrics.LiquidityOps.WithLabelValues("remove", originationLabel(rl.Origination)).Inc()
	}

	return batch, nil
}

// applyInitiateLiquidity records an on-chain intent initiation. The
// wallet itself must be the caller; no balances move.
func (e *SettlementEngine) applyInitiateLiquidity(
	d instruction.Dispatch,
	caller common.Address,
	in *instruction.LiquidityIntent,
	kind instruction.LiquidityIntentKind,
) (*ledger.Batch, error) {
	if caller != in.Wallet {
		return nil, reject.New(reject.ReasonUnauthorizedCaller,
			"caller %s, intent wallet %s", caller.Hex(), in.Wallet.Hex())
	}
	if in.Kind != kind {
		return nil, reject.New(reject.ReasonInvalidInstruction, "intent kind %d", in.Kind)
	}
	if in.SigHashVersion != sighash.SupportedVersion {
		return nil, reject.New(reject.ReasonSigHashVersionInvalid,
			"intent hash version %d", in.SigHashVersion)
	}
	if e.exits.IsFinalized(in.Wallet) {
		return nil, reject.New(reject.ReasonWalletExitFinalized, "wallet %s", in.Wallet.Hex())
	}

	if err := e.intents.Initiate(sighash.IntentHash(in)); err != nil {
		return nil, err
	}

	return e.journals.NewBatch(d.IdempotencyKey(), d.TimestampMs), nil
}

func rejectAmountSide(sideA bool, format string, args ...interface{}) error {
	if sideA {
		return reject.New(reject.ReasonInvalidAmountA, format, args...)
	}
	return reject.New(reject.ReasonInvalidAmountB, format, args...)
}

func originationLabel(o instruction.Origination) string {
	if o == instruction.OriginationOnChain {
		return "onchain"
	}
	return "offchain"
}
