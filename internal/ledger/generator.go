package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from validated
// settlement flows. It never checks business rules; callers validate
// first, then generate, then apply.
type JournalGenerator struct {
	sequence int64
}

func NewJournalGenerator(startSequence int64) *JournalGenerator {
	return &JournalGenerator{sequence: startSequence}
}

// SetSequence aligns the generator after snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// NewBatch starts an empty batch for one settlement. Hybrid settlements
// append both their legs into a single batch so the two commit atomically.
func (jg *JournalGenerator) NewBatch(instructionRef string, timestampMs int64) *Batch {
	batch := &Batch{
		BatchID:        uuid.New(),
		InstructionRef: instructionRef,
		Sequence:       jg.sequence,
		TimestampMs:    timestampMs,
	}
	jg.sequence++
	return batch
}

// add appends one journal entry. Zero amounts are skipped so a fee of
// zero produces no entry.
func (jg *JournalGenerator) add(b *Batch, debit, credit AccountKey, asset common.Address, amount int64, jt JournalType) {
	if amount == 0 {
		return
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:      uuid.New(),
		BatchID:        b.BatchID,
		InstructionRef: b.InstructionRef,
		Sequence:       b.Sequence,
		DebitAccount:   debit,
		CreditAccount:  credit,
		Asset:          asset,
		Amount:         amount,
		JournalType:    jt,
		TimestampMs:    b.TimestampMs,
	})
}

// GenerateDeposit credits a wallet from the custody boundary.
func (jg *JournalGenerator) GenerateDeposit(wallet, asset common.Address, qty int64, ref string, tsMs int64) *Batch {
	b := jg.NewBatch(ref, tsMs)
	jg.add(b, NewWalletAccountKey(wallet, asset), NewCustodyKey(asset), asset, qty, JournalTypeDeposit)
	return b
}

// GenerateWithdrawal debits a wallet to the custody boundary.
func (jg *JournalGenerator) GenerateWithdrawal(wallet, asset common.Address, qty int64, ref string, tsMs int64) *Batch {
	b := jg.NewBatch(ref, tsMs)
	jg.add(b, NewCustodyKey(asset), NewWalletAccountKey(wallet, asset), asset, qty, JournalTypeWithdrawal)
	return b
}

// TradeLeg is a validated order-book leg ready for journaling. Net
// quantities are what each receiver ends up with after every fee; FeeBase
// and FeeQuote carry the maker/taker fees by denomination and the GasFee
// fields carry the taker gas fee in the asset the taker receives, so
// Net + Fee + GasFee == Gross holds per asset.
type TradeLeg struct {
	Buyer  common.Address
	Seller common.Address
	Base   common.Address
	Quote  common.Address

	GrossBase  int64
	GrossQuote int64
	NetBase    int64
	NetQuote   int64
	FeeBase    int64
	FeeQuote   int64

	GasFeeBase  int64
	GasFeeQuote int64
}

// AppendOrderBookTrade journals one maker/taker leg:
// the seller surrenders gross base (net to the buyer, fees to the
// collector), the buyer surrenders gross quote symmetrically.
func (jg *JournalGenerator) AppendOrderBookTrade(b *Batch, leg TradeLeg) {
	buyerBase := NewWalletAccountKey(leg.Buyer, leg.Base)
	sellerBase := NewWalletAccountKey(leg.Seller, leg.Base)
	buyerQuote := NewWalletAccountKey(leg.Buyer, leg.Quote)
	sellerQuote := NewWalletAccountKey(leg.Seller, leg.Quote)
	feesBase := NewFeeCollectorKey(leg.Base)
	feesQuote := NewFeeCollectorKey(leg.Quote)

	jg.add(b, buyerBase, sellerBase, leg.Base, leg.NetBase, JournalTypeTradeBase)
	jg.add(b, feesBase, sellerBase, leg.Base, leg.FeeBase, JournalTypeTradeFee)
	jg.add(b, feesBase, sellerBase, leg.Base, leg.GasFeeBase, JournalTypeGasFee)

	jg.add(b, sellerQuote, buyerQuote, leg.Quote, leg.NetQuote, JournalTypeTradeQuote)
	jg.add(b, feesQuote, buyerQuote, leg.Quote, leg.FeeQuote, JournalTypeTradeFee)
	jg.add(b, feesQuote, buyerQuote, leg.Quote, leg.GasFeeQuote, JournalTypeGasFee)
}

// GenerateOrderBookTrade wraps a single order-book leg in its own batch.
func (jg *JournalGenerator) GenerateOrderBookTrade(leg TradeLeg, ref string, tsMs int64) *Batch {
	b := jg.NewBatch(ref, tsMs)
	jg.AppendOrderBookTrade(b, leg)
	return b
}

// PoolFlow is a validated AMM leg ready for journaling.
type PoolFlow struct {
	Taker common.Address
	Base  common.Address
	Quote common.Address
	IsBuy bool

	GrossBase  int64
	GrossQuote int64
	NetBase    int64
	NetQuote   int64

	PoolFee         int64 // stays in the reserves, input asset
	ProtocolFee     int64 // collected, input asset
	GasFee          int64 // collected, output asset
	PriceCorrection int64 // collected, output asset
}

// AppendPoolTrade journals one AMM leg. On a buy the taker's gross quote
// splits into reserves (net + pool fee) and the collector (protocol fee);
// the vault pays out gross base as taker net plus output fees. Sells
// mirror the directions.
func (jg *JournalGenerator) AppendPoolTrade(b *Batch, flow PoolFlow) {
	takerBase := NewWalletAccountKey(flow.Taker, flow.Base)
	takerQuote := NewWalletAccountKey(flow.Taker, flow.Quote)
	vaultBase := NewPoolVaultKey(flow.Base)
	vaultQuote := NewPoolVaultKey(flow.Quote)
	feesBase := NewFeeCollectorKey(flow.Base)
	feesQuote := NewFeeCollectorKey(flow.Quote)

	if flow.IsBuy {
		// Input: quote
		jg.add(b, vaultQuote, takerQuote, flow.Quote, flow.NetQuote+flow.PoolFee, JournalTypePoolInput)
		jg.add(b, feesQuote, takerQuote, flow.Quote, flow.ProtocolFee, JournalTypePoolProtocolFee)

		// Output: base
		jg.add(b, takerBase, vaultBase, flow.Base, flow.NetBase, JournalTypePoolOutput)
		jg.add(b, feesBase, vaultBase, flow.Base, flow.GasFee, JournalTypeGasFee)
		jg.add(b, feesBase, vaultBase, flow.Base, flow.PriceCorrection, JournalTypePriceCorrectionFee)
		return
	}

	// Input: base
	jg.add(b, vaultBase, takerBase, flow.Base, flow.NetBase+flow.PoolFee, JournalTypePoolInput)
	jg.add(b, feesBase, takerBase, flow.Base, flow.ProtocolFee, JournalTypePoolProtocolFee)

	// Output: quote
	jg.add(b, takerQuote, vaultQuote, flow.Quote, flow.NetQuote, JournalTypePoolOutput)
	jg.add(b, feesQuote, vaultQuote, flow.Quote, flow.GasFee, JournalTypeGasFee)
}

// GeneratePoolTrade wraps a single AMM leg in its own batch.
func (jg *JournalGenerator) GeneratePoolTrade(flow PoolFlow, ref string, tsMs int64) *Batch {
	b := jg.NewBatch(ref, tsMs)
	jg.AppendPoolTrade(b, flow)
	return b
}

// LiquidityFlow is a validated liquidity addition or removal ready for
// journaling.
type LiquidityFlow struct {
	Wallet    common.Address
	To        common.Address
	ToLedger  bool // proceeds stay in the ledger vs. custody boundary
	Base      common.Address
	Quote     common.Address
	PairToken common.Address

	GrossBase  int64
	GrossQuote int64
	NetBase    int64
	NetQuote   int64
	FeeBase    int64
	FeeQuote   int64
	Liquidity  int64
}

// GenerateLiquidityAdd journals an addition: the wallet surrenders gross
// amounts (net to the vault, fees to the collector) and the recipient is
// minted pair tokens against the issuance account.
func (jg *JournalGenerator) GenerateLiquidityAdd(flow LiquidityFlow, ref string, tsMs int64) *Batch {
	b := jg.NewBatch(ref, tsMs)

	walletBase := NewWalletAccountKey(flow.Wallet, flow.Base)
	walletQuote := NewWalletAccountKey(flow.Wallet, flow.Quote)

	jg.add(b, NewPoolVaultKey(flow.Base), walletBase, flow.Base, flow.NetBase, JournalTypeLiquidityDeposit)
	jg.add(b, NewFeeCollectorKey(flow.Base), walletBase, flow.Base, flow.FeeBase, JournalTypeLiquidityFee)
	jg.add(b, NewPoolVaultKey(flow.Quote), walletQuote, flow.Quote, flow.NetQuote, JournalTypeLiquidityDeposit)
	jg.add(b, NewFeeCollectorKey(flow.Quote), walletQuote, flow.Quote, flow.FeeQuote, JournalTypeLiquidityFee)

	recipient := NewWalletAccountKey(flow.To, flow.PairToken)
	if !flow.ToLedger {
		recipient = NewCustodyKey(flow.PairToken)
	}
	jg.add(b, recipient, NewIssuanceKey(flow.PairToken), flow.PairToken, flow.Liquidity, JournalTypePairTokenMint)

	return b
}

// GenerateLiquidityRemove journals a removal: pair tokens burn back to the
// issuance account and the vault pays out gross amounts (net to the
// recipient, fees to the collector).
func (jg *JournalGenerator) GenerateLiquidityRemove(flow LiquidityFlow, ref string, tsMs int64) *Batch {
	b := jg.NewBatch(ref, tsMs)

	jg.add(b, NewIssuanceKey(flow.PairToken), NewWalletAccountKey(flow.Wallet, flow.PairToken),
		flow.PairToken, flow.Liquidity, JournalTypePairTokenBurn)

	recipientBase := NewWalletAccountKey(flow.To, flow.Base)
	recipientQuote := NewWalletAccountKey(flow.To, flow.Quote)
	if !flow.ToLedger {
		recipientBase = NewCustodyKey(flow.Base)
		recipientQuote = NewCustodyKey(flow.Quote)
	}

	jg.add(b, recipientBase, NewPoolVaultKey(flow.Base), flow.Base, flow.NetBase, JournalTypeLiquidityWithdrawal)
	jg.add(b, NewFeeCollectorKey(flow.Base), NewPoolVaultKey(flow.Base), flow.Base, flow.FeeBase, JournalTypeLiquidityFee)
	jg.add(b, recipientQuote, NewPoolVaultKey(flow.Quote), flow.Quote, flow.NetQuote, JournalTypeLiquidityWithdrawal)
	jg.add(b, NewFeeCollectorKey(flow.Quote), NewPoolVaultKey(flow.Quote), flow.Quote, flow.FeeQuote, JournalTypeLiquidityFee)

	return b
}
