package core_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"DexSettle/internal/core"
	"DexSettle/internal/instruction"
	"DexSettle/internal/ledger"
	"DexSettle/internal/pip"
	"DexSettle/internal/reject"
	"DexSettle/internal/sighash"
	"DexSettle/internal/testutil"
)

// --- Test fixtures ---

const (
	market = "ETH-USDC"
	baseTs = int64(1_700_000_000_000)

	// Version-1 UUIDs: the embedded timestamps are far in the past
	// relative to baseTs, so fresh wallets always accept them.
	nonceA = "1ec9414c-232a-11eb-b378-0242ac130002"
	nonceB = "2ec9414c-232a-11eb-b378-0242ac130002"

	// Pool seeded by fundPool: 10 ETH against 40 USDC, price 4.
	poolBaseReserve   = int64(1_000_000_000)
	poolQuoteReserve  = int64(4_000_000_000)
	poolInitialSupply = int64(2_000_000_000) // sqrt(base * quote), exact
)

var (
	ethAsset  = testutil.AddrFromByte(0xE1)
	usdcAsset = testutil.AddrFromByte(0x5C)
	ethUsdcLP = testutil.AddrFromByte(0x99)
)

// harness drives one engine with buffered channels, no DB checker and no
// metrics, assigning dispatcher sequences per partition.
type harness struct {
	t         *testing.T
	engine    *core.SettlementEngine
	persistCh chan core.CoreOutput
	projCh    chan core.CoreOutput
	seqs      map[string]int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	params := core.DefaultParams()
	params.ExchangeAddress = testutil.AddrFromByte(0xE0)
	params.GovernanceAddress = testutil.AddrFromByte(0x60)

	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1024)
	return &harness{
		t:         t,
		engine:    core.NewSettlementEngine(params, 0, persistCh, projCh, nil, nil),
		persistCh: persistCh,
		projCh:    projCh,
		seqs:      make(map[string]int64),
	}
}

// disp assigns the next source sequence for a partition. Pass "" for
// global instructions and the market symbol for trades.
func (h *harness) disp(mkt string) instruction.Dispatch {
	key := "global"
	if mkt != "" {
		key = "market:" + mkt
	}
	seq := h.seqs[key]
	h.seqs[key]++
	return instruction.Dispatch{DispatchID: uuid.New(), Sequence: seq, TimestampMs: baseTs}
}

func (h *harness) drain() []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-h.persistCh:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// apply processes an instruction and requires it to settle as applied.
func (h *harness) apply(ins instruction.Instruction) core.CoreOutput {
	h.t.Helper()
	if err := h.engine.Process(ins); err != nil {
		h.t.Fatalf("process %s: %v", ins.InstructionType(), err)
	}
	outputs := h.drain()
	if len(outputs) != 1 {
		h.t.Fatalf("%s: expected 1 output, got %d", ins.InstructionType(), len(outputs))
	}
	rec := outputs[0].Record
	if rec.Status != instruction.StatusApplied {
		h.t.Fatalf("%s rejected: %s (%s)", ins.InstructionType(), rec.RejectReason, rec.RejectDetail)
	}
	return outputs[0]
}

// rejected processes an instruction and requires a rejection record with
// the given reason.
func (h *harness) rejected(ins instruction.Instruction, reason reject.Reason) *instruction.Record {
	h.t.Helper()
	if err := h.engine.Process(ins); err != nil {
		h.t.Fatalf("process %s: %v", ins.InstructionType(), err)
	}
	outputs := h.drain()
	if len(outputs) != 1 {
		h.t.Fatalf("%s: expected 1 output, got %d", ins.InstructionType(), len(outputs))
	}
	rec := outputs[0].Record
	if rec.Status != instruction.StatusRejected {
		h.t.Fatalf("%s: expected rejection %s, got applied", ins.InstructionType(), reason)
	}
	if rec.RejectReason != string(reason) {
		h.t.Errorf("%s: reject reason got %s, want %s (%s)",
			ins.InstructionType(), rec.RejectReason, reason, rec.RejectDetail)
	}
	return rec
}

func (h *harness) confirmAsset(asset common.Address, symbol string, decimals uint8) {
	h.t.Helper()
	h.apply(&instruction.AssetRegistration{Dispatch: h.disp(""), Asset: asset, Symbol: symbol, Decimals: decimals})
	h.apply(&instruction.AssetConfirmation{Dispatch: h.disp(""), Asset: asset, Symbol: symbol, Decimals: decimals})
}

func (h *harness) setupMarketAssets() {
	h.t.Helper()
	h.confirmAsset(ethAsset, "ETH", 18)
	h.confirmAsset(usdcAsset, "USDC", 6)
}

func (h *harness) deposit(wallet, asset common.Address, qty int64) {
	h.t.Helper()
	h.apply(&instruction.Deposit{Dispatch: h.disp(""), Wallet: wallet, Asset: asset, Quantity: qty})
}

func (h *harness) withdraw(wallet, asset common.Address, qty int64) *instruction.Withdrawal {
	return &instruction.Withdrawal{Dispatch: h.disp(""), Wallet: wallet, Asset: asset, Quantity: qty}
}

func addIntent(lp *testutil.Wallet, baseQty, quoteQty int64) *instruction.LiquidityIntent {
	return &instruction.LiquidityIntent{
		Kind:           instruction.LiquidityAddition,
		Nonce:          uuid.MustParse(nonceA),
		Wallet:         lp.Addr,
		AssetA:         ethAsset,
		AssetB:         usdcAsset,
		AmountADesired: baseQty,
		AmountBDesired: quoteQty,
		AmountAMin:     baseQty,
		AmountBMin:     quoteQty,
		To:             lp.Addr,
		DeadlineMs:     baseTs + 60_000,
		SigHashVersion: sighash.SupportedVersion,
	}
}

// fundPool promotes the ETH/USDC pair and seeds it with the fixture
// reserves through a signed off-chain liquidity addition.
func (h *harness) fundPool(lp *testutil.Wallet) {
	h.t.Helper()
	h.deposit(lp.Addr, ethAsset, poolBaseReserve)
	h.deposit(lp.Addr, usdcAsset, poolQuoteReserve)
	h.apply(&instruction.PoolPromotion{
		Dispatch: h.disp(""), BaseAsset: ethAsset, QuoteAsset: usdcAsset, PairToken: ethUsdcLP,
	})

	intent := addIntent(lp, poolBaseReserve, poolQuoteReserve)
	h.apply(&instruction.AddLiquidity{
		Dispatch:    h.disp(""),
		Intent:      *intent,
		Signature:   lp.SignHash(h.t, sighash.IntentHash(intent)),
		Origination: instruction.OriginationOffChain,
		Execution: instruction.LiquidityExecution{
			BaseAsset:     ethAsset,
			QuoteAsset:    usdcAsset,
			Liquidity:     poolInitialSupply,
			GrossBaseQty:  poolBaseReserve,
			GrossQuoteQty: poolQuoteReserve,
			NetBaseQty:    poolBaseReserve,
			NetQuoteQty:   poolQuoteReserve,
		},
	})
}

func signedOrder(t *testing.T, w *testutil.Wallet, nonce string, side instruction.OrderSide, typ instruction.OrderType, qty, limit int64) (instruction.Order, instruction.Signature) {
	t.Helper()
	o := instruction.Order{
		Nonce:          uuid.MustParse(nonce),
		Wallet:         w.Addr,
		Market:         market,
		Type:           typ,
		Side:           side,
		Quantity:       qty,
		LimitPrice:     limit,
		SigHashVersion: sighash.SupportedVersion,
	}
	return o, w.SignHash(t, sighash.OrderHash(&o))
}

// bookFill is a 0.5 ETH fill at price 4, maker on the sell side. The
// taker receives base, so the gas fee is base-denominated.
func bookFill() instruction.Fill {
	return instruction.Fill{
		BaseAsset:      ethAsset,
		QuoteAsset:     usdcAsset,
		GrossBaseQty:   50_000_000,
		GrossQuoteQty:  200_000_000,
		NetBaseQty:     49_700_000,
		NetQuoteQty:    199_000_000,
		MakerFeeAsset:  usdcAsset,
		TakerFeeAsset:  ethAsset,
		MakerFeeQty:    1_000_000,
		TakerFeeQty:    200_000,
		TakerGasFeeQty: 100_000,
		Price:          4 * pip.Scale,
		MakerSide:      instruction.SideSell,
	}
}

// poolLegBuy spends 1.01 USDC gross against the fixture reserves. The
// net input of 1.0 USDC yields exactly the constant-product output.
func poolLegBuy() instruction.PoolLeg {
	return instruction.PoolLeg{
		BaseAsset:           ethAsset,
		QuoteAsset:          usdcAsset,
		GrossBaseQty:        24_390_243,
		GrossQuoteQty:       101_000_000,
		NetBaseQty:          24_390_243,
		NetQuoteQty:         100_000_000,
		TakerPoolFeeQty:     800_000,
		TakerProtocolFeeQty: 200_000,
	}
}

// bookTrade pairs a funded buyer and seller at the fixture fill.
func (h *harness) bookTrade(buyer, seller *testutil.Wallet) *instruction.OrderBookTrade {
	h.t.Helper()
	buy, buySig := signedOrder(h.t, buyer, nonceA, instruction.SideBuy, instruction.OrderTypeLimit, 50_000_000, 4*pip.Scale)
	sell, sellSig := signedOrder(h.t, seller, nonceA, instruction.SideSell, instruction.OrderTypeLimit, 50_000_000, 4*pip.Scale)
	return &instruction.OrderBookTrade{
		Dispatch:      h.disp(market),
		BuyOrder:      buy,
		BuySignature:  buySig,
		SellOrder:     sell,
		SellSignature: sellSig,
		Fill:          bookFill(),
	}
}

// ============================================================================
// Test: Deposit / Withdrawal
// ============================================================================

func TestDeposit_CreditsWallet(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	out := h.apply(&instruction.Deposit{Dispatch: h.disp(""), Wallet: w.Addr, Asset: usdcAsset, Quantity: 1_000_000})

	if out.Record.Sequence != 0 {
		t.Errorf("sequence: got %d, want 0", out.Record.Sequence)
	}
	if out.Record.Market != nil {
		t.Errorf("deposit should have no market, got %v", *out.Record.Market)
	}
	if len(out.Batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(out.Batch.Journals))
	}
	j := out.Batch.Journals[0]
	if j.JournalType != ledger.JournalTypeDeposit {
		t.Errorf("journal type: got %d, want deposit", j.JournalType)
	}
	if j.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", j.Amount)
	}
	if j.DebitAccount != ledger.NewWalletAccountKey(w.Addr, usdcAsset) {
		t.Errorf("debit account: got %s", j.DebitAccount.AccountPath())
	}
}

func TestDeposit_NonPositiveQuantityRejected(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	h.rejected(&instruction.Deposit{Dispatch: h.disp(""), Wallet: w.Addr, Asset: usdcAsset, Quantity: 0},
		reject.ReasonInvalidInstruction)
}

func TestWithdrawal_FullBalanceRoundTrip(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	h.deposit(w.Addr, usdcAsset, 500)
	h.apply(h.withdraw(w.Addr, usdcAsset, 500))
	h.rejected(h.withdraw(w.Addr, usdcAsset, 1), reject.ReasonInsufficientFunds)
}

func TestWithdrawal_RejectionMutatesNothing(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	h.deposit(w.Addr, usdcAsset, 100)
	h.rejected(h.withdraw(w.Addr, usdcAsset, 101), reject.ReasonInsufficientFunds)

	// The full original balance is still withdrawable.
	h.apply(h.withdraw(w.Addr, usdcAsset, 100))
}

// ============================================================================
// Test: Hash chain and sequencing
// ============================================================================

func TestHashChain_RejectionsChainLikeApplies(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	out1 := h.apply(&instruction.Deposit{Dispatch: h.disp(""), Wallet: w.Addr, Asset: usdcAsset, Quantity: 100})
	rec2 := h.rejected(h.withdraw(w.Addr, usdcAsset, 101), reject.ReasonInsufficientFunds)
	out3 := h.apply(h.withdraw(w.Addr, usdcAsset, 100))

	if rec2.Sequence != 1 || out3.Record.Sequence != 2 {
		t.Errorf("sequences: got %d and %d, want 1 and 2", rec2.Sequence, out3.Record.Sequence)
	}
	if rec2.PrevHash != out1.Record.StateHash {
		t.Error("rejection must chain off the previous state hash")
	}
	if out3.Record.PrevHash != rec2.StateHash {
		t.Error("the record after a rejection must chain off the rejection hash")
	}
}

func TestDuplicateInstruction_Skipped(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	dep := &instruction.Deposit{Dispatch: h.disp(""), Wallet: w.Addr, Asset: usdcAsset, Quantity: 100}
	h.apply(dep)

	if err := h.engine.Process(dep); err != nil {
		t.Fatalf("duplicate should not error: %v", err)
	}
	if outputs := h.drain(); len(outputs) != 0 {
		t.Errorf("duplicate produced %d outputs, want 0", len(outputs))
	}
	if got := h.engine.GetSequence(); got != 1 {
		t.Errorf("sequence after duplicate: got %d, want 1", got)
	}
}

func TestSequenceGap_ReturnsError(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	dep := &instruction.Deposit{
		Dispatch: instruction.Dispatch{DispatchID: uuid.New(), Sequence: 5, TimestampMs: baseTs},
		Wallet:   w.Addr, Asset: usdcAsset, Quantity: 100,
	}
	if err := h.engine.Process(dep); err == nil {
		t.Fatal("expected sequence gap error, got nil")
	}
	if outputs := h.drain(); len(outputs) != 0 {
		t.Errorf("gapped instruction produced %d outputs, want 0", len(outputs))
	}
}

func TestOutOfOrder_NewInstructionReturnsError(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	h.deposit(w.Addr, usdcAsset, 100)

	// A different instruction reusing the consumed sequence is an
	// ordering violation, not a duplicate.
	stale := &instruction.Deposit{
		Dispatch: instruction.Dispatch{DispatchID: uuid.New(), Sequence: 0, TimestampMs: baseTs},
		Wallet:   w.Addr, Asset: usdcAsset, Quantity: 100,
	}
	if err := h.engine.Process(stale); err == nil {
		t.Fatal("expected out-of-order error, got nil")
	}
}

// ============================================================================
// Test: Asset registry and pool promotion
// ============================================================================

func TestPoolPromotion_RequiresConfirmedAssets(t *testing.T) {
	h := newHarness(t)

	// Registered but never confirmed.
	h.apply(&instruction.AssetRegistration{Dispatch: h.disp(""), Asset: ethAsset, Symbol: "ETH", Decimals: 18})

	h.rejected(&instruction.PoolPromotion{
		Dispatch: h.disp(""), BaseAsset: ethAsset, QuoteAsset: usdcAsset, PairToken: ethUsdcLP,
	}, reject.ReasonAssetNotRegistered)
}

// ============================================================================
// Test: Order-book trades
// ============================================================================

func TestOrderBookTrade_Settles(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	out := h.apply(h.bookTrade(buyer, seller))

	if out.Record.Market == nil || *out.Record.Market != market {
		t.Errorf("record market: got %v, want %s", out.Record.Market, market)
	}
	// Net base, taker fee, gas fee, net quote, maker fee. The zero quote
	// gas fee produces no entry.
	if len(out.Batch.Journals) != 5 {
		t.Fatalf("expected 5 journals, got %d", len(out.Batch.Journals))
	}

	// The buyer holds exactly the net base, the seller exactly the net
	// quote; one pip more is an overdraft.
	h.apply(h.withdraw(buyer.Addr, ethAsset, 49_700_000))
	h.rejected(h.withdraw(buyer.Addr, ethAsset, 1), reject.ReasonInsufficientFunds)
	h.apply(h.withdraw(seller.Addr, usdcAsset, 199_000_000))
	h.rejected(h.withdraw(seller.Addr, usdcAsset, 1), reject.ReasonInsufficientFunds)
}

func TestOrderBookTrade_SelfTradeRejected(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	h.setupMarketAssets()
	h.rejected(h.bookTrade(w, w), reject.ReasonSelfTrading)
}

func TestOrderBookTrade_TamperedOrderRejected(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	trade := h.bookTrade(buyer, seller)
	trade.BuyOrder.Quantity++

	h.rejected(trade, reject.ReasonInvalidSignature)
}

func TestOrderBookTrade_OverfillRejected(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	// Orders with budget left after the fixture fill.
	trade := func() *instruction.OrderBookTrade {
		buy, buySig := signedOrder(t, buyer, nonceA, instruction.SideBuy, instruction.OrderTypeLimit, 80_000_000, 4*pip.Scale)
		sell, sellSig := signedOrder(t, seller, nonceA, instruction.SideSell, instruction.OrderTypeLimit, 80_000_000, 4*pip.Scale)
		return &instruction.OrderBookTrade{
			Dispatch: h.disp(market),
			BuyOrder: buy, BuySignature: buySig,
			SellOrder: sell, SellSignature: sellSig,
			Fill: bookFill(),
		}
	}

	h.apply(trade())

	// A second 0.5 ETH fill would push both orders past their 0.8 ETH
	// quantity.
	h.rejected(trade(), reject.ReasonOrderOverfill)
}

func TestOrderBookTrade_ExhaustedOrdersDoubleFillRejected(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	h.apply(h.bookTrade(buyer, seller))

	// The same orders arrive again under a fresh dispatch with both
	// budgets already filled to capacity.
	h.rejected(h.bookTrade(buyer, seller), reject.ReasonOrderDoubleFilled)
}

func TestOrderBookTrade_SameFeeAssetRejected(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	// Both fees in quote, conservation intact per asset.
	trade := h.bookTrade(buyer, seller)
	trade.Fill.TakerFeeAsset = usdcAsset
	trade.Fill.TakerFeeQty = 800_000
	trade.Fill.NetBaseQty = 49_900_000
	trade.Fill.NetQuoteQty = 198_200_000

	h.rejected(trade, reject.ReasonFeeAssetsMismatch)
}

func TestMarketOrder_SettlesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 400_000_000)
	h.deposit(seller.Addr, ethAsset, 100_000_000)

	trade := func() *instruction.OrderBookTrade {
		buy, buySig := signedOrder(t, buyer, nonceA, instruction.SideBuy, instruction.OrderTypeMarket, 50_000_000, 0)
		sell, sellSig := signedOrder(t, seller, nonceB, instruction.SideSell, instruction.OrderTypeLimit, 100_000_000, 4*pip.Scale)
		return &instruction.OrderBookTrade{
			Dispatch: h.disp(market),
			BuyOrder: buy, BuySignature: buySig,
			SellOrder: sell, SellSignature: sellSig,
			Fill: bookFill(),
		}
	}

	h.apply(trade())

	// The market order is one-shot: the sell order still has budget, but
	// the buy side must not reappear.
	h.rejected(trade(), reject.ReasonOrderDoubleFilled)
}

// ============================================================================
// Test: Nonce invalidation
// ============================================================================

func TestNonceInvalidation_BlocksStaleOrders(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	// Threshold far above the fixture nonce timestamps.
	h.apply(&instruction.NonceInvalidation{
		Dispatch: h.disp(""), Wallet: buyer.Addr, TimestampMs: baseTs - 20_000,
	})

	h.rejected(h.bookTrade(buyer, seller), reject.ReasonNonceTooLow)
}

func TestNonceInvalidation_MinGapEnforced(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	h.apply(&instruction.NonceInvalidation{
		Dispatch: h.disp(""), Wallet: w.Addr, TimestampMs: baseTs - 20_000,
	})

	// The next threshold must advance the current one by the full gap.
	h.rejected(&instruction.NonceInvalidation{
		Dispatch: h.disp(""), Wallet: w.Addr, TimestampMs: baseTs - 15_000,
	}, reject.ReasonNonceTooLow)

	h.apply(&instruction.NonceInvalidation{
		Dispatch: h.disp(""), Wallet: w.Addr, TimestampMs: baseTs - 10_000,
	})
}

// ============================================================================
// Test: Pool trades
// ============================================================================

func TestPoolTrade_MovesReserves(t *testing.T) {
	h := newHarness(t)
	lp, taker := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(taker.Addr, usdcAsset, 101_000_000)

	order, sig := signedOrder(t, taker, nonceA, instruction.SideBuy, instruction.OrderTypeMarket, 24_390_243, 0)
	out := h.apply(&instruction.PoolTrade{
		Dispatch: h.disp(market), Order: order, Signature: sig, PoolLeg: poolLegBuy(),
	})

	if len(out.Pools) != 1 {
		t.Fatalf("expected 1 touched pool, got %d", len(out.Pools))
	}
	pool := out.Pools[0]
	if pool.BaseReserves != 975_609_757 {
		t.Errorf("base reserves: got %d, want 975_609_757", pool.BaseReserves)
	}
	// Net input plus the pool fee stays in the reserves.
	if pool.QuoteReserves != 4_100_800_000 {
		t.Errorf("quote reserves: got %d, want 4_100_800_000", pool.QuoteReserves)
	}

	h.apply(h.withdraw(taker.Addr, ethAsset, 24_390_243))
	h.rejected(h.withdraw(taker.Addr, usdcAsset, 1), reject.ReasonInsufficientFunds)
}

func TestPoolTrade_ExcessiveOutputRejected(t *testing.T) {
	h := newHarness(t)
	lp, taker := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(taker.Addr, usdcAsset, 101_000_000)

	leg := poolLegBuy()
	leg.GrossBaseQty = 24_700_000 // more than 1% above the constant-product output
	leg.NetBaseQty = 24_700_000

	order, sig := signedOrder(t, taker, nonceA, instruction.SideBuy, instruction.OrderTypeMarket, 24_700_000, 0)
	h.rejected(&instruction.PoolTrade{
		Dispatch: h.disp(market), Order: order, Signature: sig, PoolLeg: leg,
	}, reject.ReasonExcessivePoolOutputAdjust)
}

func TestPoolTrade_PriceCorrectionRejected(t *testing.T) {
	h := newHarness(t)
	lp, taker := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(taker.Addr, usdcAsset, 101_000_000)

	// A correction fee belongs on the pool leg of a hybrid settlement,
	// never on a pure pool swap.
	leg := poolLegBuy()
	leg.TakerPriceCorrectionFeeQty = 100_000
	leg.NetBaseQty = leg.GrossBaseQty - 100_000

	order, sig := signedOrder(t, taker, nonceA, instruction.SideBuy, instruction.OrderTypeLimit, 24_390_243, 5*pip.Scale)
	h.rejected(&instruction.PoolTrade{
		Dispatch: h.disp(market), Order: order, Signature: sig, PoolLeg: leg,
	}, reject.ReasonPriceCorrectionNotAllowed)
}

func TestPoolTrade_RequiresPromotedPool(t *testing.T) {
	h := newHarness(t)
	taker := testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(taker.Addr, usdcAsset, 101_000_000)

	order, sig := signedOrder(t, taker, nonceA, instruction.SideBuy, instruction.OrderTypeMarket, 24_390_243, 0)
	h.rejected(&instruction.PoolTrade{
		Dispatch: h.disp(market), Order: order, Signature: sig, PoolLeg: poolLegBuy(),
	}, reject.ReasonPoolDoesNotExist)
}

// ============================================================================
// Test: Hybrid trades
// ============================================================================

// hybridTrade builds the fixture hybrid settlement: the book leg from
// bookFill plus the pool leg from poolLegBuy, taker on the buy side.
func (h *harness) hybridTrade(buyer, seller *testutil.Wallet, buyLimit int64, poolLeg instruction.PoolLeg) *instruction.HybridTrade {
	h.t.Helper()
	buy, buySig := signedOrder(h.t, buyer, nonceA, instruction.SideBuy, instruction.OrderTypeLimit, 74_390_243, buyLimit)
	sell, sellSig := signedOrder(h.t, seller, nonceA, instruction.SideSell, instruction.OrderTypeLimit, 50_000_000, 4*pip.Scale)
	return &instruction.HybridTrade{
		Dispatch: h.disp(market),
		BuyOrder: buy, BuySignature: buySig,
		SellOrder: sell, SellSignature: sellSig,
		Fill:    bookFill(),
		PoolLeg: poolLeg,
	}
}

func TestHybridTrade_SettlesBothLegsAtomically(t *testing.T) {
	h := newHarness(t)
	lp, buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(buyer.Addr, usdcAsset, 301_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	out := h.apply(h.hybridTrade(buyer, seller, 5*pip.Scale, poolLegBuy()))

	// Five book-leg journals plus three pool-leg journals in one batch.
	if len(out.Batch.Journals) != 8 {
		t.Fatalf("expected 8 journals, got %d", len(out.Batch.Journals))
	}
	if len(out.Pools) != 1 || out.Pools[0].BaseReserves != 975_609_757 {
		t.Errorf("pool leg reserves not applied: %+v", out.Pools)
	}

	// Buyer receives net base from both legs.
	h.apply(h.withdraw(buyer.Addr, ethAsset, 49_700_000+24_390_243))
	h.rejected(h.withdraw(buyer.Addr, ethAsset, 1), reject.ReasonInsufficientFunds)
}

func TestHybridTrade_GasOnPoolLegRejected(t *testing.T) {
	h := newHarness(t)
	lp, buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(buyer.Addr, usdcAsset, 301_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	leg := poolLegBuy()
	leg.TakerGasFeeQty = 100_000
	leg.NetBaseQty = leg.GrossBaseQty - 100_000

	h.rejected(h.hybridTrade(buyer, seller, 5*pip.Scale, leg), reject.ReasonNonZeroPoolGasFee)
}

func TestHybridTrade_PriceCorrectionOnPoolLeg(t *testing.T) {
	h := newHarness(t)
	lp, buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(buyer.Addr, usdcAsset, 301_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	leg := poolLegBuy()
	leg.TakerPriceCorrectionFeeQty = 100_000
	leg.NetBaseQty = leg.GrossBaseQty - 100_000

	h.apply(h.hybridTrade(buyer, seller, 5*pip.Scale, leg))

	// The correction comes out of the taker's base payout.
	h.apply(h.withdraw(buyer.Addr, ethAsset, 49_700_000+24_290_243))
	h.rejected(h.withdraw(buyer.Addr, ethAsset, 1), reject.ReasonInsufficientFunds)
}

func TestHybridTrade_TakerLimitBindsMarginalPrice(t *testing.T) {
	h := newHarness(t)
	lp, buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(buyer.Addr, usdcAsset, 301_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	// Both legs execute at or below 4.1, but the pool is left at a
	// marginal price above 4. The taker's limit binds the latter.
	h.rejected(h.hybridTrade(buyer, seller, 4*pip.Scale, poolLegBuy()), reject.ReasonMarginalBuyPriceExceeded)
}

// ============================================================================
// Test: Liquidity
// ============================================================================

func TestAddLiquidity_MintsProportionalShare(t *testing.T) {
	h := newHarness(t)
	lp, lp2 := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(lp2.Addr, ethAsset, 100_000_000)
	h.deposit(lp2.Addr, usdcAsset, 400_000_000)

	// A 10% contribution mints 10% of the outstanding supply.
	intent := addIntent(lp2, 100_000_000, 400_000_000)
	out := h.apply(&instruction.AddLiquidity{
		Dispatch:    h.disp(""),
		Intent:      *intent,
		Signature:   lp2.SignHash(t, sighash.IntentHash(intent)),
		Origination: instruction.OriginationOffChain,
		Execution: instruction.LiquidityExecution{
			BaseAsset:     ethAsset,
			QuoteAsset:    usdcAsset,
			Liquidity:     200_000_000,
			GrossBaseQty:  100_000_000,
			GrossQuoteQty: 400_000_000,
			NetBaseQty:    100_000_000,
			NetQuoteQty:   400_000_000,
		},
	})

	pool := out.Pools[0]
	if pool.PairTokenSupply != poolInitialSupply+200_000_000 {
		t.Errorf("supply: got %d, want %d", pool.PairTokenSupply, poolInitialSupply+200_000_000)
	}
	if pool.BaseReserves != poolBaseReserve+100_000_000 || pool.QuoteReserves != poolQuoteReserve+400_000_000 {
		t.Errorf("reserves: got (%d, %d)", pool.BaseReserves, pool.QuoteReserves)
	}

	// The minted pair tokens live in the provider's ledger account.
	h.apply(h.withdraw(lp2.Addr, ethUsdcLP, 200_000_000))
}

func TestAddLiquidity_WrongMintRejected(t *testing.T) {
	h := newHarness(t)
	lp, lp2 := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)
	h.deposit(lp2.Addr, ethAsset, 100_000_000)
	h.deposit(lp2.Addr, usdcAsset, 400_000_000)

	intent := addIntent(lp2, 100_000_000, 400_000_000)
	h.rejected(&instruction.AddLiquidity{
		Dispatch:    h.disp(""),
		Intent:      *intent,
		Signature:   lp2.SignHash(t, sighash.IntentHash(intent)),
		Origination: instruction.OriginationOffChain,
		Execution: instruction.LiquidityExecution{
			BaseAsset:     ethAsset,
			QuoteAsset:    usdcAsset,
			Liquidity:     200_000_001, // one pip more than the contribution is worth
			GrossBaseQty:  100_000_000,
			GrossQuoteQty: 400_000_000,
			NetBaseQty:    100_000_000,
			NetQuoteQty:   400_000_000,
		},
	}, reject.ReasonInvalidLiquidity)
}

func TestAddLiquidity_IntentReplayRejected(t *testing.T) {
	h := newHarness(t)
	lp := testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)

	// The same signed intent under a fresh dispatch ID is not a
	// transport duplicate, but the intent itself is spent.
	intent := addIntent(lp, poolBaseReserve, poolQuoteReserve)
	h.rejected(&instruction.AddLiquidity{
		Dispatch:    h.disp(""),
		Intent:      *intent,
		Signature:   lp.SignHash(t, sighash.IntentHash(intent)),
		Origination: instruction.OriginationOffChain,
		Execution: instruction.LiquidityExecution{
			BaseAsset:     ethAsset,
			QuoteAsset:    usdcAsset,
			Liquidity:     poolInitialSupply,
			GrossBaseQty:  poolBaseReserve,
			GrossQuoteQty: poolQuoteReserve,
			NetBaseQty:    poolBaseReserve,
			NetQuoteQty:   poolQuoteReserve,
		},
	}, reject.ReasonIntentAlreadyExecuted)
}

func TestRemoveLiquidity_PaysProportionalShare(t *testing.T) {
	h := newHarness(t)
	lp := testutil.NewWallet(t)

	h.setupMarketAssets()
	h.fundPool(lp)

	intent := &instruction.LiquidityIntent{
		Kind:           instruction.LiquidityRemoval,
		Nonce:          uuid.MustParse(nonceB),
		Wallet:         lp.Addr,
		AssetA:         ethAsset,
		AssetB:         usdcAsset,
		AmountAMin:     poolBaseReserve / 2,
		AmountBMin:     poolQuoteReserve / 2,
		Liquidity:      poolInitialSupply / 2,
		To:             lp.Addr,
		DeadlineMs:     baseTs + 60_000,
		SigHashVersion: sighash.SupportedVersion,
	}
	out := h.apply(&instruction.RemoveLiquidity{
		Dispatch:    h.disp(""),
		Intent:      *intent,
		Signature:   lp.SignHash(t, sighash.IntentHash(intent)),
		Origination: instruction.OriginationOffChain,
		Execution: instruction.LiquidityExecution{
			BaseAsset:     ethAsset,
			QuoteAsset:    usdcAsset,
			Liquidity:     poolInitialSupply / 2,
			GrossBaseQty:  poolBaseReserve / 2,
			GrossQuoteQty: poolQuoteReserve / 2,
			NetBaseQty:    poolBaseReserve / 2,
			NetQuoteQty:   poolQuoteReserve / 2,
		},
	})

	pool := out.Pools[0]
	if pool.BaseReserves != poolBaseReserve/2 || pool.QuoteReserves != poolQuoteReserve/2 {
		t.Errorf("reserves after removal: got (%d, %d)", pool.BaseReserves, pool.QuoteReserves)
	}
	if pool.PairTokenSupply != poolInitialSupply/2 {
		t.Errorf("supply after burn: got %d, want %d", pool.PairTokenSupply, poolInitialSupply/2)
	}

	h.apply(h.withdraw(lp.Addr, ethAsset, poolBaseReserve/2))
	h.apply(h.withdraw(lp.Addr, usdcAsset, poolQuoteReserve/2))
}

func TestOnChainLiquidity_InitiateThenExecute(t *testing.T) {
	h := newHarness(t)
	lp := testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(lp.Addr, ethAsset, poolBaseReserve)
	h.deposit(lp.Addr, usdcAsset, poolQuoteReserve)
	h.apply(&instruction.PoolPromotion{
		Dispatch: h.disp(""), BaseAsset: ethAsset, QuoteAsset: usdcAsset, PairToken: ethUsdcLP,
	})

	intent := addIntent(lp, poolBaseReserve, poolQuoteReserve)
	execution := instruction.LiquidityExecution{
		BaseAsset:     ethAsset,
		QuoteAsset:    usdcAsset,
		Liquidity:     poolInitialSupply,
		GrossBaseQty:  poolBaseReserve,
		GrossQuoteQty: poolQuoteReserve,
		NetBaseQty:    poolBaseReserve,
		NetQuoteQty:   poolQuoteReserve,
	}

	// Execution before initiation must fail; no signature accompanies an
	// on-chain intent.
	h.rejected(&instruction.AddLiquidity{
		Dispatch: h.disp(""), Intent: *intent,
		Origination: instruction.OriginationOnChain, Execution: execution,
	}, reject.ReasonNotExecutableFromOnChain)

	// Only the intent's wallet may initiate.
	imposter := testutil.NewWallet(t)
	h.rejected(&instruction.InitiateAddLiquidity{
		Dispatch: h.disp(""), Caller: imposter.Addr, Intent: *intent,
	}, reject.ReasonUnauthorizedCaller)

	h.apply(&instruction.InitiateAddLiquidity{
		Dispatch: h.disp(""), Caller: lp.Addr, Intent: *intent,
	})
	h.apply(&instruction.AddLiquidity{
		Dispatch: h.disp(""), Intent: *intent,
		Origination: instruction.OriginationOnChain, Execution: execution,
	})
}

// ============================================================================
// Test: Wallet exit timelock
// ============================================================================

func TestWalletExit_TimelockGatesFinalize(t *testing.T) {
	h := newHarness(t)
	buyer, seller := testutil.NewWallet(t), testutil.NewWallet(t)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)

	h.apply(&instruction.WalletExit{Dispatch: h.disp(""), Wallet: seller.Addr})
	h.rejected(&instruction.WalletExitFinalize{Dispatch: h.disp(""), Wallet: seller.Addr},
		reject.ReasonExitDelayNotElapsed)

	h.apply(&instruction.BlockHeight{Dispatch: h.disp(""), Height: 40_320})
	h.apply(&instruction.WalletExitFinalize{Dispatch: h.disp(""), Wallet: seller.Addr})

	// The exited wallet can no longer trade.
	h.rejected(h.bookTrade(buyer, seller), reject.ReasonSellWalletExit)
}

func TestWalletExitFinalize_WithoutInitiateRejected(t *testing.T) {
	h := newHarness(t)
	w := testutil.NewWallet(t)

	h.rejected(&instruction.WalletExitFinalize{Dispatch: h.disp(""), Wallet: w.Addr},
		reject.ReasonWalletExitNotStarted)
}

// ============================================================================
// Test: Role upgrades
// ============================================================================

func TestUpgrade_TimelockTwoPhase(t *testing.T) {
	h := newHarness(t)
	newExchange := testutil.AddrFromByte(0xE2)

	h.apply(&instruction.UpgradeInitiate{Dispatch: h.disp(""), Role: instruction.RoleExchange, NewAddress: newExchange})
	h.rejected(&instruction.UpgradeFinalize{Dispatch: h.disp(""), Role: instruction.RoleExchange, NewAddress: newExchange},
		reject.ReasonBlockThresholdNotReached)

	h.apply(&instruction.BlockHeight{Dispatch: h.disp(""), Height: 40_320})
	h.apply(&instruction.UpgradeFinalize{Dispatch: h.disp(""), Role: instruction.RoleExchange, NewAddress: newExchange})

	// The role now points at the new address.
	h.rejected(&instruction.UpgradeInitiate{Dispatch: h.disp(""), Role: instruction.RoleExchange, NewAddress: newExchange},
		reject.ReasonMustBeDifferent)
}

func TestUpgradeCancel_AbandonsPending(t *testing.T) {
	h := newHarness(t)
	newGov := testutil.AddrFromByte(0x61)

	h.apply(&instruction.UpgradeInitiate{Dispatch: h.disp(""), Role: instruction.RoleGovernance, NewAddress: newGov})
	h.apply(&instruction.UpgradeCancel{Dispatch: h.disp(""), Role: instruction.RoleGovernance})

	h.apply(&instruction.BlockHeight{Dispatch: h.disp(""), Height: 40_320})
	h.rejected(&instruction.UpgradeFinalize{Dispatch: h.disp(""), Role: instruction.RoleGovernance, NewAddress: newGov},
		reject.ReasonNoUpgradeInProgress)
}

func TestBlockHeight_NeverMovesBackwards(t *testing.T) {
	h := newHarness(t)

	h.apply(&instruction.BlockHeight{Dispatch: h.disp(""), Height: 100})
	h.rejected(&instruction.BlockHeight{Dispatch: h.disp(""), Height: 99}, reject.ReasonInvalidInstruction)
	h.apply(&instruction.BlockHeight{Dispatch: h.disp(""), Height: 100}) // equal height is a no-op re-observation
}

// ============================================================================
// Test: Determinism and snapshots
// ============================================================================

func TestStateHashChain_DeterministicReplay(t *testing.T) {
	run := func() [32]byte {
		h := newHarness(t)
		buyer := testutil.WalletFromSeed(t, 0x11)
		seller := testutil.WalletFromSeed(t, 0x22)

		h.setupMarketAssets()
		h.deposit(buyer.Addr, usdcAsset, 200_000_000)
		h.deposit(seller.Addr, ethAsset, 50_000_000)
		h.apply(h.bookTrade(buyer, seller))
		h.rejected(h.withdraw(buyer.Addr, ethAsset, 50_000_000), reject.ReasonInsufficientFunds)

		return h.engine.GetStateHash()
	}

	if run() != run() {
		t.Error("identical instruction streams must converge on the same state hash")
	}
}

func TestSnapshot_RestoreResumesChain(t *testing.T) {
	h := newHarness(t)
	buyer := testutil.WalletFromSeed(t, 0x11)
	seller := testutil.WalletFromSeed(t, 0x22)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)
	h.apply(h.bookTrade(buyer, seller))

	snap := h.engine.CreateSnapshotState()

	h2 := newHarness(t)
	h2.engine.RestoreFromSnapshot(snap)
	h2.seqs = h.seqs

	if got, want := h2.engine.GetSequence(), h.engine.GetSequence(); got != want {
		t.Errorf("restored sequence: got %d, want %d", got, want)
	}
	if h2.engine.GetStateHash() != h.engine.GetStateHash() {
		t.Error("restored state hash must equal the snapshot chain tip")
	}

	// The restored engine continues the chain and the restored balances.
	out := h2.apply(h2.withdraw(buyer.Addr, ethAsset, 49_700_000))
	if out.Record.PrevHash != snap.StateHash {
		t.Error("first record after restore must chain off the snapshot hash")
	}
	h2.rejected(h2.withdraw(buyer.Addr, ethAsset, 1), reject.ReasonInsufficientFunds)
}

func TestSnapshot_RestoredOrderBudgetsSurvive(t *testing.T) {
	h := newHarness(t)
	buyer := testutil.WalletFromSeed(t, 0x11)
	seller := testutil.WalletFromSeed(t, 0x22)

	h.setupMarketAssets()
	h.deposit(buyer.Addr, usdcAsset, 200_000_000)
	h.deposit(seller.Addr, ethAsset, 50_000_000)
	h.apply(h.bookTrade(buyer, seller))

	h2 := newHarness(t)
	h2.engine.RestoreFromSnapshot(h.engine.CreateSnapshotState())
	h2.seqs = h.seqs

	// The fill tracker came back with the snapshot: the exhausted orders
	// must still be exhausted.
	h2.rejected(h2.bookTrade(buyer, seller), reject.ReasonOrderDoubleFilled)
}

// ============================================================================
// Test: Output fan-out
// ============================================================================

func TestProjectionChannel_DropsWhenFull(t *testing.T) {
	params := core.DefaultParams()
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1) // fills after the first output
	engine := core.NewSettlementEngine(params, 0, persistCh, projCh, nil, nil)

	w := testutil.NewWallet(t)
	for i := int64(0); i < 5; i++ {
		dep := &instruction.Deposit{
			Dispatch: instruction.Dispatch{DispatchID: uuid.New(), Sequence: i, TimestampMs: baseTs},
			Wallet:   w.Addr, Asset: usdcAsset, Quantity: 100,
		}
		if err := engine.Process(dep); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	if got := len(persistCh); got != 5 {
		t.Errorf("persist outputs: got %d, want 5", got)
	}
	if got := len(projCh); got != 1 {
		t.Errorf("projection outputs: got %d, want 1 (rest dropped)", got)
	}
}
