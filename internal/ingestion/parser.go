package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"DexSettle/internal/instruction"
)

// ParseRawInstruction converts a RawInstruction (JSON bytes + instruction
// type string) into a typed instruction.Instruction. The ingestion shell
// validates and converts raw messages before sending to the deterministic
// core; a parse failure here NAKs the message without touching the core.
func ParseRawInstruction(raw RawInstruction, instructionType string) (instruction.Instruction, error) {
	switch instructionType {
	case "OrderBookTrade":
		return parseOrderBookTrade(raw.Data)
	case "PoolTrade":
		return parsePoolTrade(raw.Data)
	case "HybridTrade":
		return parseHybridTrade(raw.Data)
	case "AddLiquidity":
		return parseAddLiquidity(raw.Data)
	case "RemoveLiquidity":
		return parseRemoveLiquidity(raw.Data)
	case "InitiateAddLiquidity":
		return parseInitiateAddLiquidity(raw.Data)
	case "InitiateRemoveLiquidity":
		return parseInitiateRemoveLiquidity(raw.Data)
	case "NonceInvalidation":
		return parseNonceInvalidation(raw.Data)
	case "WalletExit":
		return parseWalletExit(raw.Data)
	case "WalletExitFinalize":
		return parseWalletExitFinalize(raw.Data)
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdrawal":
		return parseWithdrawal(raw.Data)
	case "AssetRegistration":
		return parseAssetRegistration(raw.Data)
	case "AssetConfirmation":
		return parseAssetConfirmation(raw.Data)
	case "PoolPromotion":
		return parsePoolPromotion(raw.Data)
	case "UpgradeInitiate":
		return parseUpgradeInitiate(raw.Data)
	case "UpgradeCancel":
		return parseUpgradeCancel(raw.Data)
	case "UpgradeFinalize":
		return parseUpgradeFinalize(raw.Data)
	case "BlockHeight":
		return parseBlockHeight(raw.Data)
	default:
		return nil, fmt.Errorf("unknown instruction type: %s", instructionType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match the dispatcher.

type dispatchJSON struct {
	DispatchID  string `json:"dispatch_id"`
	Sequence    int64  `json:"sequence"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseDispatch(j dispatchJSON) (instruction.Dispatch, error) {
	id, err := uuid.Parse(j.DispatchID)
	if err != nil {
		return instruction.Dispatch{}, fmt.Errorf("parse dispatch_id: %w", err)
	}
	return instruction.Dispatch{
		DispatchID:  id,
		Sequence:    j.Sequence,
		TimestampMs: j.TimestampMs,
	}, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("parse %s: %q is not a hex address", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseSignature(value string) (instruction.Signature, error) {
	sig := common.FromHex(value)
	if len(sig) == 0 {
		return nil, fmt.Errorf("parse signature: empty or malformed hex")
	}
	return instruction.Signature(sig), nil
}

type orderJSON struct {
	Nonce           string `json:"nonce"`
	Wallet          string `json:"wallet"`
	Market          string `json:"market"`
	Type            string `json:"type"`
	Side            string `json:"side"`
	Quantity        int64  `json:"quantity"`
	QuantityInQuote bool   `json:"quantity_in_quote"`
	LimitPrice      int64  `json:"limit_price"`
	SigHashVersion  uint8  `json:"sig_hash_version"`
}

var orderTypeNames = map[string]instruction.OrderType{
	"limit":             instruction.OrderTypeLimit,
	"market":            instruction.OrderTypeMarket,
	"stop_loss":         instruction.OrderTypeStopLoss,
	"stop_loss_limit":   instruction.OrderTypeStopLossLimit,
	"take_profit":       instruction.OrderTypeTakeProfit,
	"take_profit_limit": instruction.OrderTypeTakeProfitLimit,
}

func parseOrder(j orderJSON) (instruction.Order, error) {
	var o instruction.Order

	nonce, err := uuid.Parse(j.Nonce)
	if err != nil {
		return o, fmt.Errorf("parse nonce: %w", err)
	}
	wallet, err := parseAddress("wallet", j.Wallet)
	if err != nil {
		return o, err
	}
	orderType, ok := orderTypeNames[j.Type]
	if !ok {
		return o, fmt.Errorf("unknown order type: %s", j.Type)
	}

	side := instruction.SideBuy
	switch j.Side {
	case "buy":
	case "sell":
		side = instruction.SideSell
	default:
		return o, fmt.Errorf("unknown order side: %s", j.Side)
	}

	return instruction.Order{
		Nonce:           nonce,
		Wallet:          wallet,
		Market:          j.Market,
		Type:            orderType,
		Side:            side,
		Quantity:        j.Quantity,
		QuantityInQuote: j.QuantityInQuote,
		LimitPrice:      j.LimitPrice,
		SigHashVersion:  j.SigHashVersion,
	}, nil
}

type fillJSON struct {
	BaseAsset      string `json:"base_asset"`
	QuoteAsset     string `json:"quote_asset"`
	GrossBaseQty   int64  `json:"gross_base_qty"`
	GrossQuoteQty  int64  `json:"gross_quote_qty"`
	NetBaseQty     int64  `json:"net_base_qty"`
	NetQuoteQty    int64  `json:"net_quote_qty"`
	MakerFeeAsset  string `json:"maker_fee_asset"`
	TakerFeeAsset  string `json:"taker_fee_asset"`
	MakerFeeQty    int64  `json:"maker_fee_qty"`
	TakerFeeQty    int64  `json:"taker_fee_qty"`
	TakerGasFeeQty int64  `json:"taker_gas_fee_qty"`
	Price          int64  `json:"price"`
	MakerSide      string `json:"maker_side"`
}

func parseFill(j fillJSON) (instruction.Fill, error) {
	var f instruction.Fill

	base, err := parseAddress("base_asset", j.BaseAsset)
	if err != nil {
		return f, err
	}
	quote, err := parseAddress("quote_asset", j.QuoteAsset)
	if err != nil {
		return f, err
	}
	makerFeeAsset, err := parseAddress("maker_fee_asset", j.MakerFeeAsset)
	if err != nil {
		return f, err
	}
	takerFeeAsset, err := parseAddress("taker_fee_asset", j.TakerFeeAsset)
	if err != nil {
		return f, err
	}

	makerSide := instruction.SideBuy
	switch j.MakerSide {
	case "buy":
	case "sell":
		makerSide = instruction.SideSell
	default:
		return f, fmt.Errorf("unknown maker side: %s", j.MakerSide)
	}

	return instruction.Fill{
		BaseAsset:      base,
		QuoteAsset:     quote,
		GrossBaseQty:   j.GrossBaseQty,
		GrossQuoteQty:  j.GrossQuoteQty,
		NetBaseQty:     j.NetBaseQty,
		NetQuoteQty:    j.NetQuoteQty,
		MakerFeeAsset:  makerFeeAsset,
		TakerFeeAsset:  takerFeeAsset,
		MakerFeeQty:    j.MakerFeeQty,
		TakerFeeQty:    j.TakerFeeQty,
		TakerGasFeeQty: j.TakerGasFeeQty,
		Price:          j.Price,
		MakerSide:      makerSide,
	}, nil
}

type poolLegJSON struct {
	BaseAsset                  string `json:"base_asset"`
	QuoteAsset                 string `json:"quote_asset"`
	GrossBaseQty               int64  `json:"gross_base_qty"`
	GrossQuoteQty              int64  `json:"gross_quote_qty"`
	NetBaseQty                 int64  `json:"net_base_qty"`
	NetQuoteQty                int64  `json:"net_quote_qty"`
	TakerPoolFeeQty            int64  `json:"taker_pool_fee_qty"`
	TakerProtocolFeeQty        int64  `json:"taker_protocol_fee_qty"`
	TakerGasFeeQty             int64  `json:"taker_gas_fee_qty"`
	TakerPriceCorrectionFeeQty int64  `json:"taker_price_correction_fee_qty"`
}

func parsePoolLeg(j poolLegJSON) (instruction.PoolLeg, error) {
	var l instruction.PoolLeg

	base, err := parseAddress("base_asset", j.BaseAsset)
	if err != nil {
		return l, err
	}
	quote, err := parseAddress("quote_asset", j.QuoteAsset)
	if err != nil {
		return l, err
	}

	return instruction.PoolLeg{
		BaseAsset:                  base,
		QuoteAsset:                 quote,
		GrossBaseQty:               j.GrossBaseQty,
		GrossQuoteQty:              j.GrossQuoteQty,
		NetBaseQty:                 j.NetBaseQty,
		NetQuoteQty:                j.NetQuoteQty,
		TakerPoolFeeQty:            j.TakerPoolFeeQty,
		TakerProtocolFeeQty:        j.TakerProtocolFeeQty,
		TakerGasFeeQty:             j.TakerGasFeeQty,
		TakerPriceCorrectionFeeQty: j.TakerPriceCorrectionFeeQty,
	}, nil
}

type orderBookTradeJSON struct {
	dispatchJSON
	BuyOrder      orderJSON `json:"buy_order"`
	BuySignature  string    `json:"buy_signature"`
	SellOrder     orderJSON `json:"sell_order"`
	SellSignature string    `json:"sell_signature"`
	Fill          fillJSON  `json:"fill"`
}

func parseOrderBookTrade(data []byte) (*instruction.OrderBookTrade, error) {
	var j orderBookTradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderBookTrade: %w", err)
	}

	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	buy, err := parseOrder(j.BuyOrder)
	if err != nil {
		return nil, fmt.Errorf("buy order: %w", err)
	}
	buySig, err := parseSignature(j.BuySignature)
	if err != nil {
		return nil, fmt.Errorf("buy order: %w", err)
	}
	sell, err := parseOrder(j.SellOrder)
	if err != nil {
		return nil, fmt.Errorf("sell order: %w", err)
	}
	sellSig, err := parseSignature(j.SellSignature)
	if err != nil {
		return nil, fmt.Errorf("sell order: %w", err)
	}
	fill, err := parseFill(j.Fill)
	if err != nil {
		return nil, fmt.Errorf("fill: %w", err)
	}

	return &instruction.OrderBookTrade{
		Dispatch:      d,
		BuyOrder:      buy,
		BuySignature:  buySig,
		SellOrder:     sell,
		SellSignature: sellSig,
		Fill:          fill,
	}, nil
}

type poolTradeJSON struct {
	dispatchJSON
	Order     orderJSON   `json:"order"`
	Signature string      `json:"signature"`
	PoolLeg   poolLegJSON `json:"pool_leg"`
}

func parsePoolTrade(data []byte) (*instruction.PoolTrade, error) {
	var j poolTradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolTrade: %w", err)
	}

	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	order, err := parseOrder(j.Order)
	if err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}
	sig, err := parseSignature(j.Signature)
	if err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}
	leg, err := parsePoolLeg(j.PoolLeg)
	if err != nil {
		return nil, fmt.Errorf("pool leg: %w", err)
	}

	return &instruction.PoolTrade{
		Dispatch:  d,
		Order:     order,
		Signature: sig,
		PoolLeg:   leg,
	}, nil
}

type hybridTradeJSON struct {
	dispatchJSON
	BuyOrder      orderJSON   `json:"buy_order"`
	BuySignature  string      `json:"buy_signature"`
	SellOrder     orderJSON   `json:"sell_order"`
	SellSignature string      `json:"sell_signature"`
	Fill          fillJSON    `json:"fill"`
	PoolLeg       poolLegJSON `json:"pool_leg"`
}

func parseHybridTrade(data []byte) (*instruction.HybridTrade, error) {
	var j hybridTradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse HybridTrade: %w", err)
	}

	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	buy, err := parseOrder(j.BuyOrder)
	if err != nil {
		return nil, fmt.Errorf("buy order: %w", err)
	}
	buySig, err := parseSignature(j.BuySignature)
	if err != nil {
		return nil, fmt.Errorf("buy order: %w", err)
	}
	sell, err := parseOrder(j.SellOrder)
	if err != nil {
		return nil, fmt.Errorf("sell order: %w", err)
	}
	sellSig, err := parseSignature(j.SellSignature)
	if err != nil {
		return nil, fmt.Errorf("sell order: %w", err)
	}
	fill, err := parseFill(j.Fill)
	if err != nil {
		return nil, fmt.Errorf("fill: %w", err)
	}
	leg, err := parsePoolLeg(j.PoolLeg)
	if err != nil {
		return nil, fmt.Errorf("pool leg: %w", err)
	}

	return &instruction.HybridTrade{
		Dispatch:      d,
		BuyOrder:      buy,
		BuySignature:  buySig,
		SellOrder:     sell,
		SellSignature: sellSig,
		Fill:          fill,
		PoolLeg:       leg,
	}, nil
}

type liquidityIntentJSON struct {
	Kind           string `json:"kind"`
	Nonce          string `json:"nonce"`
	Wallet         string `json:"wallet"`
	AssetA         string `json:"asset_a"`
	AssetB         string `json:"asset_b"`
	AmountADesired int64  `json:"amount_a_desired"`
	AmountBDesired int64  `json:"amount_b_desired"`
	AmountAMin     int64  `json:"amount_a_min"`
	AmountBMin     int64  `json:"amount_b_min"`
	Liquidity      int64  `json:"liquidity"`
	To             string `json:"to"`
	DeadlineMs     int64  `json:"deadline_ms"`
	SigHashVersion uint8  `json:"sig_hash_version"`
}

func parseLiquidityIntent(j liquidityIntentJSON) (instruction.LiquidityIntent, error) {
	var li instruction.LiquidityIntent

	kind := instruction.LiquidityAddition
	switch j.Kind {
	case "add":
	case "remove":
		kind = instruction.LiquidityRemoval
	default:
		return li, fmt.Errorf("unknown intent kind: %s", j.Kind)
	}

	nonce, err := uuid.Parse(j.Nonce)
	if err != nil {
		return li, fmt.Errorf("parse nonce: %w", err)
	}
	wallet, err := parseAddress("wallet", j.Wallet)
	if err != nil {
		return li, err
	}
	assetA, err := parseAddress("asset_a", j.AssetA)
	if err != nil {
		return li, err
	}
	assetB, err := parseAddress("asset_b", j.AssetB)
	if err != nil {
		return li, err
	}
	to, err := parseAddress("to", j.To)
	if err != nil {
		return li, err
	}

	return instruction.LiquidityIntent{
		Kind:           kind,
		Nonce:          nonce,
		Wallet:         wallet,
		AssetA:         assetA,
		AssetB:         assetB,
		AmountADesired: j.AmountADesired,
		AmountBDesired: j.AmountBDesired,
		AmountAMin:     j.AmountAMin,
		AmountBMin:     j.AmountBMin,
		Liquidity:      j.Liquidity,
		To:             to,
		DeadlineMs:     j.DeadlineMs,
		SigHashVersion: j.SigHashVersion,
	}, nil
}

type liquidityExecutionJSON struct {
	BaseAsset     string `json:"base_asset"`
	QuoteAsset    string `json:"quote_asset"`
	Liquidity     int64  `json:"liquidity"`
	GrossBaseQty  int64  `json:"gross_base_qty"`
	GrossQuoteQty int64  `json:"gross_quote_qty"`
	NetBaseQty    int64  `json:"net_base_qty"`
	NetQuoteQty   int64  `json:"net_quote_qty"`
}

func parseLiquidityExecution(j liquidityExecutionJSON) (instruction.LiquidityExecution, error) {
	var ex instruction.LiquidityExecution

	base, err := parseAddress("base_asset", j.BaseAsset)
	if err != nil {
		return ex, err
	}
	quote, err := parseAddress("quote_asset", j.QuoteAsset)
	if err != nil {
		return ex, err
	}

	return instruction.LiquidityExecution{
		BaseAsset:     base,
		QuoteAsset:    quote,
		Liquidity:     j.Liquidity,
		GrossBaseQty:  j.GrossBaseQty,
		GrossQuoteQty: j.GrossQuoteQty,
		NetBaseQty:    j.NetBaseQty,
		NetQuoteQty:   j.NetQuoteQty,
	}, nil
}

type liquiditySettleJSON struct {
	dispatchJSON
	Intent      liquidityIntentJSON    `json:"intent"`
	Signature   string                 `json:"signature,omitempty"`
	Origination string                 `json:"origination"`
	Execution   liquidityExecutionJSON `json:"execution"`
}

func parseLiquiditySettle(data []byte, what string) (instruction.Dispatch, instruction.LiquidityIntent, instruction.Signature, instruction.Origination, instruction.LiquidityExecution, error) {
	var j liquiditySettleJSON
	var d instruction.Dispatch
	var li instruction.LiquidityIntent
	var ex instruction.LiquidityExecution

	if err := json.Unmarshal(data, &j); err != nil {
		return d, li, nil, 0, ex, fmt.Errorf("parse %s: %w", what, err)
	}

	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return d, li, nil, 0, ex, err
	}
	li, err = parseLiquidityIntent(j.Intent)
	if err != nil {
		return d, li, nil, 0, ex, fmt.Errorf("intent: %w", err)
	}
	ex, err = parseLiquidityExecution(j.Execution)
	if err != nil {
		return d, li, nil, 0, ex, fmt.Errorf("execution: %w", err)
	}

	origination := instruction.OriginationOffChain
	var sig instruction.Signature
	switch j.Origination {
	case "offchain":
		sig, err = parseSignature(j.Signature)
		if err != nil {
			return d, li, nil, 0, ex, fmt.Errorf("intent: %w", err)
		}
	case "onchain":
		origination = instruction.OriginationOnChain
	default:
		return d, li, nil, 0, ex, fmt.Errorf("unknown origination: %s", j.Origination)
	}

	return d, li, sig, origination, ex, nil
}

func parseAddLiquidity(data []byte) (*instruction.AddLiquidity, error) {
	d, li, sig, origination, ex, err := parseLiquiditySettle(data, "AddLiquidity")
	if err != nil {
		return nil, err
	}
	return &instruction.AddLiquidity{
		Dispatch:    d,
		Intent:      li,
		Signature:   sig,
		Origination: origination,
		Execution:   ex,
	}, nil
}

func parseRemoveLiquidity(data []byte) (*instruction.RemoveLiquidity, error) {
	d, li, sig, origination, ex, err := parseLiquiditySettle(data, "RemoveLiquidity")
	if err != nil {
		return nil, err
	}
	return &instruction.RemoveLiquidity{
		Dispatch:    d,
		Intent:      li,
		Signature:   sig,
		Origination: origination,
		Execution:   ex,
	}, nil
}

type initiateLiquidityJSON struct {
	dispatchJSON
	Caller string              `json:"caller"`
	Intent liquidityIntentJSON `json:"intent"`
}

func parseInitiateLiquidity(data []byte, what string) (instruction.Dispatch, common.Address, instruction.LiquidityIntent, error) {
	var j initiateLiquidityJSON
	var d instruction.Dispatch
	var li instruction.LiquidityIntent

	if err := json.Unmarshal(data, &j); err != nil {
		return d, common.Address{}, li, fmt.Errorf("parse %s: %w", what, err)
	}

	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return d, common.Address{}, li, err
	}
	caller, err := parseAddress("caller", j.Caller)
	if err != nil {
		return d, common.Address{}, li, err
	}
	li, err = parseLiquidityIntent(j.Intent)
	if err != nil {
		return d, common.Address{}, li, fmt.Errorf("intent: %w", err)
	}

	return d, caller, li, nil
}

func parseInitiateAddLiquidity(data []byte) (*instruction.InitiateAddLiquidity, error) {
	d, caller, li, err := parseInitiateLiquidity(data, "InitiateAddLiquidity")
	if err != nil {
		return nil, err
	}
	return &instruction.InitiateAddLiquidity{Dispatch: d, Caller: caller, Intent: li}, nil
}

func parseInitiateRemoveLiquidity(data []byte) (*instruction.InitiateRemoveLiquidity, error) {
	d, caller, li, err := parseInitiateLiquidity(data, "InitiateRemoveLiquidity")
	if err != nil {
		return nil, err
	}
	return &instruction.InitiateRemoveLiquidity{Dispatch: d, Caller: caller, Intent: li}, nil
}

type nonceInvalidationJSON struct {
	dispatchJSON
	Wallet           string `json:"wallet"`
	NonceTimestampMs int64  `json:"nonce_timestamp_ms"`
}

func parseNonceInvalidation(data []byte) (*instruction.NonceInvalidation, error) {
	var j nonceInvalidationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NonceInvalidation: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("wallet", j.Wallet)
	if err != nil {
		return nil, err
	}
	return &instruction.NonceInvalidation{
		Dispatch:    d,
		Wallet:      wallet,
		TimestampMs: j.NonceTimestampMs,
	}, nil
}

type walletJSON struct {
	dispatchJSON
	Wallet string `json:"wallet"`
}

func parseWalletExit(data []byte) (*instruction.WalletExit, error) {
	var j walletJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WalletExit: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("wallet", j.Wallet)
	if err != nil {
		return nil, err
	}
	return &instruction.WalletExit{Dispatch: d, Wallet: wallet}, nil
}

func parseWalletExitFinalize(data []byte) (*instruction.WalletExitFinalize, error) {
	var j walletJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WalletExitFinalize: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("wallet", j.Wallet)
	if err != nil {
		return nil, err
	}
	return &instruction.WalletExitFinalize{Dispatch: d, Wallet: wallet}, nil
}

type fundsJSON struct {
	dispatchJSON
	Wallet   string `json:"wallet"`
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
}

func parseDeposit(data []byte) (*instruction.Deposit, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("wallet", j.Wallet)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", j.Asset)
	if err != nil {
		return nil, err
	}
	return &instruction.Deposit{Dispatch: d, Wallet: wallet, Asset: asset, Quantity: j.Quantity}, nil
}

func parseWithdrawal(data []byte) (*instruction.Withdrawal, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("wallet", j.Wallet)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", j.Asset)
	if err != nil {
		return nil, err
	}
	return &instruction.Withdrawal{Dispatch: d, Wallet: wallet, Asset: asset, Quantity: j.Quantity}, nil
}

type assetJSON struct {
	dispatchJSON
	Asset    string `json:"asset"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func parseAssetRegistration(data []byte) (*instruction.AssetRegistration, error) {
	var j assetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AssetRegistration: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", j.Asset)
	if err != nil {
		return nil, err
	}
	return &instruction.AssetRegistration{Dispatch: d, Asset: asset, Symbol: j.Symbol, Decimals: j.Decimals}, nil
}

func parseAssetConfirmation(data []byte) (*instruction.AssetConfirmation, error) {
	var j assetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AssetConfirmation: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", j.Asset)
	if err != nil {
		return nil, err
	}
	return &instruction.AssetConfirmation{Dispatch: d, Asset: asset, Symbol: j.Symbol, Decimals: j.Decimals}, nil
}

type poolPromotionJSON struct {
	dispatchJSON
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	PairToken  string `json:"pair_token"`
}

func parsePoolPromotion(data []byte) (*instruction.PoolPromotion, error) {
	var j poolPromotionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolPromotion: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	base, err := parseAddress("base_asset", j.BaseAsset)
	if err != nil {
		return nil, err
	}
	quote, err := parseAddress("quote_asset", j.QuoteAsset)
	if err != nil {
		return nil, err
	}
	pairToken, err := parseAddress("pair_token", j.PairToken)
	if err != nil {
		return nil, err
	}
	return &instruction.PoolPromotion{Dispatch: d, BaseAsset: base, QuoteAsset: quote, PairToken: pairToken}, nil
}

type upgradeJSON struct {
	dispatchJSON
	Role       string `json:"role"`
	NewAddress string `json:"new_address,omitempty"`
}

func parseUpgradeRole(value string) (instruction.UpgradeRole, error) {
	switch value {
	case "exchange":
		return instruction.RoleExchange, nil
	case "governance":
		return instruction.RoleGovernance, nil
	default:
		return 0, fmt.Errorf("unknown upgrade role: %s", value)
	}
}

func parseUpgradeInitiate(data []byte) (*instruction.UpgradeInitiate, error) {
	var j upgradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpgradeInitiate: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	role, err := parseUpgradeRole(j.Role)
	if err != nil {
		return nil, err
	}
	newAddr, err := parseAddress("new_address", j.NewAddress)
	if err != nil {
		return nil, err
	}
	return &instruction.UpgradeInitiate{Dispatch: d, Role: role, NewAddress: newAddr}, nil
}

func parseUpgradeCancel(data []byte) (*instruction.UpgradeCancel, error) {
	var j upgradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpgradeCancel: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	role, err := parseUpgradeRole(j.Role)
	if err != nil {
		return nil, err
	}
	return &instruction.UpgradeCancel{Dispatch: d, Role: role}, nil
}

func parseUpgradeFinalize(data []byte) (*instruction.UpgradeFinalize, error) {
	var j upgradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpgradeFinalize: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	role, err := parseUpgradeRole(j.Role)
	if err != nil {
		return nil, err
	}
	newAddr, err := parseAddress("new_address", j.NewAddress)
	if err != nil {
		return nil, err
	}
	return &instruction.UpgradeFinalize{Dispatch: d, Role: role, NewAddress: newAddr}, nil
}

type blockHeightJSON struct {
	dispatchJSON
	Height int64 `json:"height"`
}

func parseBlockHeight(data []byte) (*instruction.BlockHeight, error) {
	var j blockHeightJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BlockHeight: %w", err)
	}
	d, err := parseDispatch(j.dispatchJSON)
	if err != nil {
		return nil, err
	}
	return &instruction.BlockHeight{Dispatch: d, Height: j.Height}, nil
}
