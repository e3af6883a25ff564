package instruction

import (
	"github.com/ethereum/go-ethereum/common"
)

// Fill describes the order-book leg of a settlement: gross quantities
// moved, net quantities received, and the maker/taker fee split. Fills are
// ephemeral; they exist only within one settlement call.
type Fill struct {
	BaseAsset  common.Address
	QuoteAsset common.Address

	GrossBaseQty  int64
	GrossQuoteQty int64
	NetBaseQty    int64
	NetQuoteQty   int64

	MakerFeeAsset common.Address
	TakerFeeAsset common.Address
	MakerFeeQty   int64
	TakerFeeQty   int64

	// TakerGasFeeQty is charged once per settlement, on the order-book leg,
	// in the asset the taker receives.
	TakerGasFeeQty int64

	// Price in pips of quote per whole base unit.
	Price int64

	// MakerSide identifies which order rested on the book; the other is
	// the taker.
	MakerSide OrderSide
}

// PoolLeg describes the AMM leg of a settlement. Direction follows the
// taker order's side: a buy removes base from the reserves and adds quote,
// a sell adds base and removes quote.
type PoolLeg struct {
	BaseAsset  common.Address
	QuoteAsset common.Address

	GrossBaseQty  int64
	GrossQuoteQty int64
	NetBaseQty    int64
	NetQuoteQty   int64

	// Input-side fees, taken from the taker's gross input quantity. The
	// pool fee remains in the reserves; the protocol fee is collected.
	TakerPoolFeeQty     int64
	TakerProtocolFeeQty int64

	// Output-side fees, taken from the taker's gross output quantity.
	TakerGasFeeQty             int64
	TakerPriceCorrectionFeeQty int64
}

// OrderBookTrade settles one pre-matched maker/taker order pair.
type OrderBookTrade struct {
	Dispatch

	BuyOrder      Order
	BuySignature  Signature
	SellOrder     Order
	SellSignature Signature
	Fill          Fill
}

func (t *OrderBookTrade) InstructionType() Type { return TypeOrderBookTrade }

func (t *OrderBookTrade) Market() *string {
	m := t.BuyOrder.Market
	return &m
}

// PoolTrade settles one taker order against the liquidity pool reserves.
type PoolTrade struct {
	Dispatch

	Order     Order
	Signature Signature
	PoolLeg   PoolLeg
}

func (t *PoolTrade) InstructionType() Type { return TypePoolTrade }

func (t *PoolTrade) Market() *string {
	m := t.Order.Market
	return &m
}

// HybridTrade splits a single taker order's fill across a resting maker
// order and the pool in one atomic settlement.
type HybridTrade struct {
	Dispatch

	BuyOrder      Order
	BuySignature  Signature
	SellOrder     Order
	SellSignature Signature
	Fill          Fill
	PoolLeg       PoolLeg
}

func (t *HybridTrade) InstructionType() Type { return TypeHybridTrade }

func (t *HybridTrade) Market() *string {
	m := t.BuyOrder.Market
	return &m
}

// TakerOrder returns the aggressing order of a hybrid trade (the side
// opposite the maker).
func (t *HybridTrade) TakerOrder() *Order {
	if t.Fill.MakerSide == SideSell {
		return &t.BuyOrder
	}
	return &t.SellOrder
}

// MakerOrder returns the resting order of a hybrid trade.
func (t *HybridTrade) MakerOrder() *Order {
	if t.Fill.MakerSide == SideSell {
		return &t.SellOrder
	}
	return &t.BuyOrder
}
