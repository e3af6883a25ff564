package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/instruction"
	"DexSettle/internal/ledger"
	"DexSettle/internal/pip"
	"DexSettle/internal/reject"
	"DexSettle/internal/sighash"
	"DexSettle/internal/state"
)

// splitMarket splits a "BASE-QUOTE" market symbol.
func splitMarket(market string) (string, string, error) {
	base, quote, ok := strings.Cut(market, "-")
	if !ok || base == "" || quote == "" {
		return "", "", reject.New(reject.ReasonInvalidInstruction, "malformed market %q", market)
	}
	return base, quote, nil
}

// resolveTradeAssets checks that the instruction's asset addresses agree
// with the confirmed registry entries for the market's symbols.
func (e *SettlementEngine) resolveTradeAssets(market string, base, quote common.Address) error {
	baseSym, quoteSym, err := splitMarket(market)
	if err != nil {
		return err
	}
	if base == quote {
		return reject.New(reject.ReasonAssetsMustBeDifferent, "asset %s", base.Hex())
	}
	if err := e.assets.VerifySymbol(baseSym, base); err != nil {
		return err
	}
	return e.assets.VerifySymbol(quoteSym, quote)
}

// verifyTradeOrder runs the order-level checks shared by every trade
// shape: quote-quantity rule, hash version, signature, nonce threshold,
// and the wallet exit gate.
func (e *SettlementEngine) verifyTradeOrder(o *instruction.Order, sig instruction.Signature) (common.Hash, error) {
	if o.QuantityInQuote && o.Type != instruction.OrderTypeMarket {
		return common.Hash{}, reject.New(reject.ReasonQuoteQtyNonMarketOrder,
			"%s order", o.Type)
	}

	hash, err := sighash.VerifyOrder(o, sig)
	if err != nil {
		return common.Hash{}, err
	}

	nonceTs, ok := o.NonceTimestampMs()
	if !ok {
		return common.Hash{}, reject.New(reject.ReasonInvalidNonce,
			"nonce is not time-ordered (version %d)", o.Nonce.Version())
	}
	if err := e.nonces.CheckOrderNonce(o.Wallet, nonceTs); err != nil {
		return common.Hash{}, err
	}

	if e.exits.IsFinalized(o.Wallet) {
		if o.Side == instruction.SideBuy {
			return common.Hash{}, reject.New(reject.ReasonBuyWalletExit, "wallet %s", o.Wallet.Hex())
		}
		return common.Hash{}, reject.New(reject.ReasonSellWalletExit, "wallet %s", o.Wallet.Hex())
	}

	return hash, nil
}

// priceViolatesLimit compares the effective price grossQuote/grossBase
// against a limit price exactly, via cross-multiplication. A buy violates
// when paying more than the limit, a sell when receiving less.
func priceViolatesLimit(grossBase, grossQuote, limit int64, isBuy bool) bool {
	lhs := pip.Multiply128(grossQuote, pip.Scale)
	rhs := pip.Multiply128(limit, grossBase)
	cmp := lhs.Cmp(rhs)
	pip.Release(lhs)
	pip.Release(rhs)

	if isBuy {
		return cmp > 0
	}
	return cmp < 0
}

// orderFillQty returns the quantity a settlement consumes from an order's
// budget, in the asset the order's Quantity is denominated in.
func orderFillQty(o *instruction.Order, grossBase, grossQuote int64) int64 {
	if o.QuantityInQuote {
		return grossQuote
	}
	return grossBase
}

// checkBookLeg validates the order-book leg shared by order-book and
// hybrid settlements and returns the journal-ready leg.
func (e *SettlementEngine) checkBookLeg(buy, sell *instruction.Order, f *instruction.Fill) (ledger.TradeLeg, error) {
	var leg ledger.TradeLeg

	if f.GrossBaseQty <= 0 {
		return leg, reject.New(reject.ReasonBaseQtyNotPositive, "gross base %d", f.GrossBaseQty)
	}
	if f.GrossQuoteQty <= 0 {
		return leg, reject.New(reject.ReasonQuoteQtyNotPositive, "gross quote %d", f.GrossQuoteQty)
	}
	if f.MakerFeeQty < 0 || f.TakerFeeQty < 0 || f.TakerGasFeeQty < 0 {
		return leg, reject.New(reject.ReasonInvalidInstruction, "negative fee")
	}

	base, quote := f.BaseAsset, f.QuoteAsset
	if (f.MakerFeeAsset != base && f.MakerFeeAsset != quote) ||
		(f.TakerFeeAsset != base && f.TakerFeeAsset != quote) ||
		f.MakerFeeAsset == f.TakerFeeAsset {
		return leg, reject.Of(reject.ReasonFeeAssetsMismatch)
	}

	// Fee conservation per asset: net + fees + gas == gross. The gas fee
	// is denominated in the asset the taker receives.
	takerReceivesBase := f.MakerSide == instruction.SideSell

	var feeBase, feeQuote int64
	if f.MakerFeeAsset == base {
		feeBase += f.MakerFeeQty
	} else {
		feeQuote += f.MakerFeeQty
	}
	if f.TakerFeeAsset == base {
		feeBase += f.TakerFeeQty
	} else {
		feeQuote += f.TakerFeeQty
	}

	var gasBase, gasQuote int64
	if takerReceivesBase {
		gasBase = f.TakerGasFeeQty
	} else {
		gasQuote = f.TakerGasFeeQty
	}

	if f.NetBaseQty+feeBase+gasBase != f.GrossBaseQty {
		return leg, reject.New(reject.ReasonBaseFeesUnbalanced,
			"net %d + fees %d != gross %d", f.NetBaseQty, feeBase+gasBase, f.GrossBaseQty)
	}
	if f.NetQuoteQty+feeQuote+gasQuote != f.GrossQuoteQty {
		return leg, reject.New(reject.ReasonQuoteFeesUnbalanced,
			"net %d + fees %d != gross %d", f.NetQuoteQty, feeQuote+gasQuote, f.GrossQuoteQty)
	}

	// Fee bounds against the gross quantity of each fee's denomination.
	makerRef := f.GrossQuoteQty
	if f.MakerFeeAsset == base {
		makerRef = f.GrossBaseQty
	}
	if err := e.feePolicy.CheckMakerFee(f.MakerFeeQty, makerRef); err != nil {
		return leg, err
	}
	takerRef := f.GrossQuoteQty
	if f.TakerFeeAsset == base {
		takerRef = f.GrossBaseQty
	}
	if err := e.feePolicy.CheckTakerFee(f.TakerFeeQty, takerRef); err != nil {
		return leg, err
	}
	gasRef := f.GrossQuoteQty
	if takerReceivesBase {
		gasRef = f.GrossBaseQty
	}
	if err := e.feePolicy.CheckGasFee(f.TakerGasFeeQty, gasRef); err != nil {
		return leg, err
	}

	// Limit prices, compared exactly against the executed ratio.
	if buy.Type.HasLimitPrice() && priceViolatesLimit(f.GrossBaseQty, f.GrossQuoteQty, buy.LimitPrice, true) {
		return leg, reject.New(reject.ReasonBuyLimitPriceExceeded,
			"fill %d/%d above limit %d", f.GrossQuoteQty, f.GrossBaseQty, buy.LimitPrice)
	}
	if sell.Type.HasLimitPrice() && priceViolatesLimit(f.GrossBaseQty, f.GrossQuoteQty, sell.LimitPrice, false) {
		return leg, reject.New(reject.ReasonSellLimitPriceExceeded,
			"fill %d/%d below limit %d", f.GrossQuoteQty, f.GrossBaseQty, sell.LimitPrice)
	}

	return ledger.TradeLeg{
		Buyer:       buy.Wallet,
		Seller:      sell.Wallet,
		Base:        base,
		Quote:       quote,
		GrossBase:   f.GrossBaseQty,
		GrossQuote:  f.GrossQuoteQty,
		NetBase:     f.NetBaseQty,
		NetQuote:    f.NetQuoteQty,
		FeeBase:     feeBase,
		FeeQuote:    feeQuote,
		GasFeeBase:  gasBase,
		GasFeeQuote: gasQuote,
	}, nil
}

// applyOrderBookTrade settles a pre-matched maker/taker pair.
func (e *SettlementEngine) applyOrderBookTrade(t *instruction.OrderBookTrade) (*ledger.Batch, error) {
	buy, sell := &t.BuyOrder, &t.SellOrder
	f := &t.Fill

	if buy.Side != instruction.SideBuy || sell.Side != instruction.SideSell {
		return nil, reject.New(reject.ReasonInvalidInstruction, "order sides do not face")
	}
	if buy.Market != sell.Market {
		return nil, reject.New(reject.ReasonMismatchedTradeAssets,
			"%s vs %s", buy.Market, sell.Market)
	}
	if buy.Wallet == sell.Wallet {
		return nil, reject.New(reject.ReasonSelfTrading, "wallet %s", buy.Wallet.Hex())
	}
	if err := e.resolveTradeAssets(buy.Market, f.BaseAsset, f.QuoteAsset); err != nil {
		return nil, err
	}

	buyHash, err := e.verifyTradeOrder(buy, t.BuySignature)
	if err != nil {
		return nil, err
	}
	sellHash, err := e.verifyTradeOrder(sell, t.SellSignature)
	if err != nil {
		return nil, err
	}

	leg, err := e.checkBookLeg(buy, sell, f)
	if err != nil {
		return nil, err
	}

	// Fill budgets. Market orders settle exactly once.
	buyQty := orderFillQty(buy, f.GrossBaseQty, f.GrossQuoteQty)
	if err := e.fills.Check(buyHash, buyQty, buy.Quantity, buy.Type != instruction.OrderTypeMarket); err != nil {
		return nil, err
	}
	sellQty := orderFillQty(sell, f.GrossBaseQty, f.GrossQuoteQty)
	if err := e.fills.Check(sellHash, sellQty, sell.Quantity, sell.Type != instruction.OrderTypeMarket); err != nil {
		return nil, err
	}

	batch := e.journals.GenerateOrderBookTrade(leg, t.IdempotencyKey(), t.TimestampMs)
	if err := e.balances.PreviewBatch(batch); err != nil {
		return nil, reject.New(reject.ReasonInsufficientFunds, "%v", err)
	}

	e.fills.Record(buyHash, buyQty)
	e.fills.Record(sellHash, sellQty)

	if e.metrics != nil {
		e.metrics.TradesSettled.WithLabelValues(buy.Market, "book").Inc()
		e.metrics.TradeVolumeBase.WithLabelValues(buy.Market).Add(float64(f.GrossBaseQty))
	}

	return batch, nil
}

// checkPoolLeg validates an AMM leg against the pool's reserves and
// returns the journal-ready flow plus the post-swap reserve values.
// hybrid marks a leg paired with an order-book fill: gas moves to the
// book leg there, and only that path may carry a price correction.
func (e *SettlementEngine) checkPoolLeg(taker *instruction.Order, leg *instruction.PoolLeg, pool *state.Pool, hybrid bool) (ledger.PoolFlow, int64, int64, error) {
	var flow ledger.PoolFlow

	if leg.GrossBaseQty <= 0 {
		return flow, 0, 0, reject.New(reject.ReasonBaseQtyNotPositive, "gross base %d", leg.GrossBaseQty)
	}
	if leg.GrossQuoteQty <= 0 {
		return flow, 0, 0, reject.New(reject.ReasonQuoteQtyNotPositive, "gross quote %d", leg.GrossQuoteQty)
	}
	if leg.TakerPoolFeeQty < 0 || leg.TakerProtocolFeeQty < 0 {
		return flow, 0, 0, reject.Of(reject.ReasonInputFeesUnbalanced)
	}
	if leg.TakerGasFeeQty < 0 || leg.TakerPriceCorrectionFeeQty < 0 {
		return flow, 0, 0, reject.New(reject.ReasonInvalidInstruction, "negative output fee")
	}
	if hybrid && leg.TakerGasFeeQty != 0 {
		return flow, 0, 0, reject.New(reject.ReasonNonZeroPoolGasFee, "gas %d", leg.TakerGasFeeQty)
	}
	if pool.BaseAsset != leg.BaseAsset || pool.QuoteAsset != leg.QuoteAsset {
		return flow, 0, 0, reject.New(reject.ReasonAssetAddressMismatch,
			"pool %s/%s", pool.BaseAsset.Hex(), pool.QuoteAsset.Hex())
	}

	isBuy := taker.Side == instruction.SideBuy

	// Price correction exists to honor a limit price on a base-denominated
	// payout when a fill is split across maker and pool; it is never
	// charged on a pure pool swap, quote output, or a limitless order.
	if leg.TakerPriceCorrectionFeeQty > 0 {
		if !isBuy {
			return flow, 0, 0, reject.Of(reject.ReasonQuoteOutWithPriceCorrection)
		}
		if !hybrid || !taker.Type.HasLimitPrice() {
			return flow, 0, 0, reject.Of(reject.ReasonPriceCorrectionNotAllowed)
		}
	}

	var grossIn, netIn, grossOut, netOut int64
	if isBuy {
		grossIn, netIn = leg.GrossQuoteQty, leg.NetQuoteQty
		grossOut, netOut = leg.GrossBaseQty, leg.NetBaseQty
		if netIn+leg.TakerPoolFeeQty+leg.TakerProtocolFeeQty != grossIn {
			return flow, 0, 0, reject.New(reject.ReasonQuoteFeesUnbalanced,
				"net %d + pool %d + protocol %d != gross %d",
				netIn, leg.TakerPoolFeeQty, leg.TakerProtocolFeeQty, grossIn)
		}
		if netOut+leg.TakerGasFeeQty+leg.TakerPriceCorrectionFeeQty != grossOut {
			return flow, 0, 0, reject.New(reject.ReasonBaseFeesUnbalanced,
				"net %d + output fees %d != gross %d",
				netOut, leg.TakerGasFeeQty+leg.TakerPriceCorrectionFeeQty, grossOut)
		}
	} else {
		grossIn, netIn = leg.GrossBaseQty, leg.NetBaseQty
		grossOut, netOut = leg.GrossQuoteQty, leg.NetQuoteQty
		if netIn+leg.TakerPoolFeeQty+leg.TakerProtocolFeeQty != grossIn {
			return flow, 0, 0, reject.New(reject.ReasonBaseFeesUnbalanced,
				"net %d + pool %d + protocol %d != gross %d",
				netIn, leg.TakerPoolFeeQty, leg.TakerProtocolFeeQty, grossIn)
		}
		if netOut+leg.TakerGasFeeQty != grossOut {
			return flow, 0, 0, reject.New(reject.ReasonQuoteFeesUnbalanced,
				"net %d + gas %d != gross %d", netOut, leg.TakerGasFeeQty, grossOut)
		}
	}

	if err := e.feePolicy.CheckPoolInputFee(leg.TakerPoolFeeQty, leg.TakerProtocolFeeQty, grossIn); err != nil {
		return flow, 0, 0, err
	}
	if err := e.feePolicy.CheckGasFee(leg.TakerGasFeeQty, grossOut); err != nil {
		return flow, 0, 0, err
	}
	if err := e.feePolicy.CheckPriceCorrection(leg.TakerPriceCorrectionFeeQty, grossOut); err != nil {
		return flow, 0, 0, err
	}

	// The settled gross output may deviate from the constant-product
	// expectation only within the adjustment bound.
	var expectedOut int64
	if isBuy {
		expectedOut = pip.OutputForInput(pool.QuoteReserves, pool.BaseReserves, netIn)
	} else {
		expectedOut = pip.OutputForInput(pool.BaseReserves, pool.QuoteReserves, netIn)
	}
	if err := e.feePolicy.CheckOutputAdjustment(grossOut, expectedOut); err != nil {
		return flow, 0, 0, err
	}

	var newBase, newQuote int64
	if isBuy {
		newBase = pool.BaseReserves - leg.GrossBaseQty
		newQuote = pool.QuoteReserves + leg.NetQuoteQty + leg.TakerPoolFeeQty
	} else {
		newBase = pool.BaseReserves + leg.NetBaseQty + leg.TakerPoolFeeQty
		newQuote = pool.QuoteReserves - leg.GrossQuoteQty
	}
	if err := e.pools.ValidateSwap(pool, newBase, newQuote); err != nil {
		return flow, 0, 0, err
	}

	return ledger.PoolFlow{
		Taker:           taker.Wallet,
		Base:            leg.BaseAsset,
		Quote:           leg.QuoteAsset,
		IsBuy:           isBuy,
		GrossBase:       leg.GrossBaseQty,
		GrossQuote:      leg.GrossQuoteQty,
		NetBase:         leg.NetBaseQty,
		NetQuote:        leg.NetQuoteQty,
		PoolFee:         leg.TakerPoolFeeQty,
		ProtocolFee:     leg.TakerProtocolFeeQty,
		GasFee:          leg.TakerGasFeeQty,
		PriceCorrection: leg.TakerPriceCorrectionFeeQty,
	}, newBase, newQuote, nil
}

// applyPoolTrade settles a taker order against the reserves.
func (e *SettlementEngine) applyPoolTrade(t *instruction.PoolTrade) (*ledger.Batch, error) {
	o := &t.Order
	leg := &t.PoolLeg

	if err := e.resolveTradeAssets(o.Market, leg.BaseAsset, leg.QuoteAsset); err != nil {
		return nil, err
	}
	pool, err := e.pools.Get(leg.BaseAsset, leg.QuoteAsset)
	if err != nil {
		return nil, err
	}

	hash, err := e.verifyTradeOrder(o, t.Signature)
	if err != nil {
		return nil, err
	}

	flow, newBase, newQuote, err := e.checkPoolLeg(o, leg, pool, false)
	if err != nil {
		return nil, err
	}

	if o.Type.HasLimitPrice() && priceViolatesLimit(leg.GrossBaseQty, leg.GrossQuoteQty, o.LimitPrice, flow.IsBuy) {
		if flow.IsBuy {
			return nil, reject.New(reject.ReasonBuyLimitPriceExceeded,
				"fill %d/%d above limit %d", leg.GrossQuoteQty, leg.GrossBaseQty, o.LimitPrice)
		}
		return nil, reject.New(reject.ReasonSellLimitPriceExceeded,
			"fill %d/%d below limit %d", leg.GrossQuoteQty, leg.GrossBaseQty, o.LimitPrice)
	}

	qty := orderFillQty(o, leg.GrossBaseQty, leg.GrossQuoteQty)
	if err := e.fills.Check(hash, qty, o.Quantity, o.Type != instruction.OrderTypeMarket); err != nil {
		return nil, err
	}

	batch := e.journals.GeneratePoolTrade(flow, t.IdempotencyKey(), t.TimestampMs)
	if err := e.balances.PreviewBatch(batch); err != nil {
		return nil, reject.New(reject.ReasonInsufficientFunds, "%v", err)
	}

	e.fills.Record(hash, qty)
	e.pools.SetReserves(pool, newBase, newQuote)

	if e.metrics != nil {
		e.metrics.TradesSettled.WithLabelValues(o.Market, "pool").Inc()
		e.metrics.TradeVolumeBase.WithLabelValues(o.Market).Add(float64(leg.GrossBaseQty))
	}

	return batch, nil
}

// applyHybridTrade settles a taker order split across a resting maker and
// the pool in one atomic batch.
func (e *SettlementEngine) applyHybridTrade(t *instruction.HybridTrade) (*ledger.Batch, error) {
	buy, sell := &t.BuyOrder, &t.SellOrder
	taker, maker := t.TakerOrder(), t.MakerOrder()
	f := &t.Fill
	leg := &t.PoolLeg

	if buy.Side != instruction.SideBuy || sell.Side != instruction.SideSell {
		return nil, reject.New(reject.ReasonInvalidInstruction, "order sides do not face")
	}
	if buy.Market != sell.Market {
		return nil, reject.New(reject.ReasonMismatchedTradeAssets,
			"%s vs %s", buy.Market, sell.Market)
	}
	if buy.Wallet == sell.Wallet {
		return nil, reject.New(reject.ReasonSelfTrading, "wallet %s", buy.Wallet.Hex())
	}
	if f.BaseAsset != leg.BaseAsset || f.QuoteAsset != leg.QuoteAsset {
		return nil, reject.Of(reject.ReasonMismatchedTradeAssets)
	}
	if err := e.resolveTradeAssets(buy.Market, f.BaseAsset, f.QuoteAsset); err != nil {
		return nil, err
	}
	pool, err := e.pools.Get(leg.BaseAsset, leg.QuoteAsset)
	if err != nil {
		return nil, err
	}

	buyHash, err := e.verifyTradeOrder(buy, t.BuySignature)
	if err != nil {
		return nil, err
	}
	sellHash, err := e.verifyTradeOrder(sell, t.SellSignature)
	if err != nil {
		return nil, err
	}

	bookLeg, err := e.checkBookLeg(buy, sell, f)
	if err != nil {
		return nil, err
	}

	// Gas is charged once, on the order-book leg.
	flow, newBase, newQuote, err := e.checkPoolLeg(taker, leg, pool, true)
	if err != nil {
		return nil, err
	}

	// The taker's limit binds the marginal price the pool is left at, not
	// just the average execution price.
	if taker.Type.HasLimitPrice() {
		if taker.Side == instruction.SideBuy && priceViolatesLimit(newBase, newQuote, taker.LimitPrice, true) {
			return nil, reject.New(reject.ReasonMarginalBuyPriceExceeded,
				"marginal %d/%d above limit %d", newQuote, newBase, taker.LimitPrice)
		}
		if taker.Side == instruction.SideSell && priceViolatesLimit(newBase, newQuote, taker.LimitPrice, false) {
			return nil, reject.New(reject.ReasonMarginalSellPriceExceeded,
				"marginal %d/%d below limit %d", newQuote, newBase, taker.LimitPrice)
		}
	}

	takerHash, makerHash := buyHash, sellHash
	if taker == sell {
		takerHash, makerHash = sellHash, buyHash
	}

	takerQty := orderFillQty(taker, f.GrossBaseQty+leg.GrossBaseQty, f.GrossQuoteQty+leg.GrossQuoteQty)
	if err := e.fills.Check(takerHash, takerQty, taker.Quantity, taker.Type != instruction.OrderTypeMarket); err != nil {
		return nil, err
	}
	makerQty := orderFillQty(maker, f.GrossBaseQty, f.GrossQuoteQty)
	if err := e.fills.Check(makerHash, makerQty, maker.Quantity, maker.Type != instruction.OrderTypeMarket); err != nil {
		return nil, err
	}

	batch := e.journals.NewBatch(t.IdempotencyKey(), t.TimestampMs)
	e.journals.AppendOrderBookTrade(batch, bookLeg)
	e.journals.AppendPoolTrade(batch, flow)
	if err := e.balances.PreviewBatch(batch); err != nil {
		return nil, reject.New(reject.ReasonInsufficientFunds, "%v", err)
	}

	e.fills.Record(takerHash, takerQty)
	e.fills.Record(makerHash, makerQty)
	e.pools.SetReserves(pool, newBase, newQuote)

	if e.metrics != nil {
		e.metrics.TradesSettled.WithLabelValues(buy.Market, "hybrid").Inc()
		e.metrics.TradeVolumeBase.WithLabelValues(buy.Market).Add(float64(f.GrossBaseQty + leg.GrossBaseQty))
	}

	return batch, nil
}
