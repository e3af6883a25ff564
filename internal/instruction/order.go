package instruction

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// OrderSide represents trade direction
type OrderSide int32

const (
	SideBuy OrderSide = iota
	SideSell
)

func (s OrderSide) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// OrderType discriminates the order variants the matching engine emits.
type OrderType int32

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
	OrderTypeStopLoss
	OrderTypeStopLossLimit
	OrderTypeTakeProfit
	OrderTypeTakeProfitLimit
)

// HasLimitPrice reports whether the type carries an enforceable limit.
func (t OrderType) HasLimitPrice() bool {
	switch t {
	case OrderTypeLimit, OrderTypeStopLossLimit, OrderTypeTakeProfitLimit:
		return true
	}
	return false
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	case OrderTypeStopLoss:
		return "stopLoss"
	case OrderTypeStopLossLimit:
		return "stopLossLimit"
	case OrderTypeTakeProfit:
		return "takeProfit"
	case OrderTypeTakeProfitLimit:
		return "takeProfitLimit"
	default:
		return "unknown"
	}
}

// Signature is a 65-byte secp256k1 signature (R || S || V).
type Signature []byte

// Order is a signed, immutable trade intent. Its existence is implicit;
// only the cumulative fill at its hash and the wallet's nonce threshold
// are tracked by the core.
type Order struct {
	// Nonce is a time-ordered UUID (version 1). The embedded timestamp is
	// the ordering key checked against the wallet's invalidation threshold.
	Nonce uuid.UUID

	Wallet common.Address

	// Market is the "BASE-QUOTE" symbol pair, e.g. "ETH-USDC".
	Market string

	Type OrderType
	Side OrderSide

	// Quantity in pips. Denominated in the base asset unless
	// QuantityInQuote is set (Market orders only).
	Quantity        int64
	QuantityInQuote bool

	// LimitPrice in pips of quote per whole base unit. Zero for pure
	// market orders.
	LimitPrice int64

	// SigHashVersion pins the canonical hashing scheme the wallet signed.
	SigHashVersion uint8
}

// NonceTimestampMs returns the millisecond timestamp embedded in the
// version-1 nonce UUID, or false if the nonce is not time-ordered.
func (o *Order) NonceTimestampMs() (int64, bool) {
	if o.Nonce.Version() != 1 {
		return 0, false
	}
	sec, nsec := o.Nonce.Time().UnixTime()
	return sec*1000 + nsec/1_000_000, true
}
