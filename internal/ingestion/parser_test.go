package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/ingestion"
	"DexSettle/internal/instruction"
)

const (
	dispatchID = "550e8400-e29b-41d4-a716-446655440000"
	orderNonce = "1ec9414c-232a-11eb-b378-0242ac130002"

	walletHex = "0x1111111111111111111111111111111111111111"
	ethHex    = "0xe1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1"
	usdcHex   = "0x5c5c5c5c5c5c5c5c5c5c5c5c5c5c5c5c5c5c5c5c"

	// 65 bytes of 0xab; the parser checks shape, not validity.
	sigHex = "0xababababababababababababababababababababababababababababababababababababababababababababababababababababababababababababababababab"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawInstruction {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawInstruction{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func dispatchPayload() map[string]interface{} {
	return map[string]interface{}{
		"dispatch_id":  dispatchID,
		"sequence":     int64(42),
		"timestamp_ms": int64(1_700_000_000_000),
	}
}

func orderPayload() map[string]interface{} {
	return map[string]interface{}{
		"nonce":            orderNonce,
		"wallet":           walletHex,
		"market":           "ETH-USDC",
		"type":             "limit",
		"side":             "buy",
		"quantity":         int64(50_000_000),
		"limit_price":      int64(400_000_000),
		"sig_hash_version": 1,
	}
}

func TestParseOrderBookTrade(t *testing.T) {
	payload := dispatchPayload()
	payload["buy_order"] = orderPayload()
	payload["buy_signature"] = sigHex
	sellOrder := orderPayload()
	sellOrder["side"] = "sell"
	sellOrder["wallet"] = "0x2222222222222222222222222222222222222222"
	payload["sell_order"] = sellOrder
	payload["sell_signature"] = sigHex
	payload["fill"] = map[string]interface{}{
		"base_asset":        ethHex,
		"quote_asset":       usdcHex,
		"gross_base_qty":    int64(50_000_000),
		"gross_quote_qty":   int64(200_000_000),
		"net_base_qty":      int64(49_700_000),
		"net_quote_qty":     int64(199_000_000),
		"maker_fee_asset":   usdcHex,
		"taker_fee_asset":   ethHex,
		"maker_fee_qty":     int64(1_000_000),
		"taker_fee_qty":     int64(200_000),
		"taker_gas_fee_qty": int64(100_000),
		"price":             int64(400_000_000),
		"maker_side":        "sell",
	}

	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "OrderBookTrade")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	trade, ok := ins.(*instruction.OrderBookTrade)
	if !ok {
		t.Fatalf("expected *instruction.OrderBookTrade, got %T", ins)
	}

	if trade.IdempotencyKey() != dispatchID {
		t.Errorf("idempotency key: got %s, want %s", trade.IdempotencyKey(), dispatchID)
	}
	if trade.SourceSequence() != 42 {
		t.Errorf("source sequence: got %d, want 42", trade.SourceSequence())
	}
	if trade.BuyOrder.Wallet != common.HexToAddress(walletHex) {
		t.Errorf("buy wallet: got %s", trade.BuyOrder.Wallet.Hex())
	}
	if trade.BuyOrder.Side != instruction.SideBuy || trade.SellOrder.Side != instruction.SideSell {
		t.Error("order sides not mapped")
	}
	if trade.BuyOrder.Type != instruction.OrderTypeLimit {
		t.Errorf("order type: got %d, want limit", trade.BuyOrder.Type)
	}
	if trade.Fill.MakerSide != instruction.SideSell {
		t.Error("maker side not mapped")
	}
	if trade.Fill.BaseAsset != common.HexToAddress(ethHex) {
		t.Errorf("fill base asset: got %s", trade.Fill.BaseAsset.Hex())
	}
	if trade.Fill.NetQuoteQty != 199_000_000 {
		t.Errorf("net quote qty: got %d, want 199_000_000", trade.Fill.NetQuoteQty)
	}
	if len(trade.BuySignature) != 65 || len(trade.SellSignature) != 65 {
		t.Errorf("signature lengths: got %d and %d, want 65", len(trade.BuySignature), len(trade.SellSignature))
	}
}

func TestParsePoolTrade(t *testing.T) {
	payload := dispatchPayload()
	order := orderPayload()
	order["type"] = "market"
	order["quantity_in_quote"] = true
	order["quantity"] = int64(100_000_000)
	delete(order, "limit_price")
	payload["order"] = order
	payload["signature"] = sigHex
	payload["pool_leg"] = map[string]interface{}{
		"base_asset":             ethHex,
		"quote_asset":            usdcHex,
		"gross_base_qty":         int64(24_390_243),
		"gross_quote_qty":        int64(101_000_000),
		"net_base_qty":           int64(24_390_243),
		"net_quote_qty":          int64(100_000_000),
		"taker_pool_fee_qty":     int64(800_000),
		"taker_protocol_fee_qty": int64(200_000),
	}

	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "PoolTrade")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	trade, ok := ins.(*instruction.PoolTrade)
	if !ok {
		t.Fatalf("expected *instruction.PoolTrade, got %T", ins)
	}
	if trade.Order.Type != instruction.OrderTypeMarket {
		t.Errorf("order type: got %d, want market", trade.Order.Type)
	}
	if !trade.Order.QuantityInQuote {
		t.Error("quantity_in_quote not mapped")
	}
	if trade.PoolLeg.TakerPoolFeeQty != 800_000 || trade.PoolLeg.TakerProtocolFeeQty != 200_000 {
		t.Errorf("pool leg fees: got (%d, %d)", trade.PoolLeg.TakerPoolFeeQty, trade.PoolLeg.TakerProtocolFeeQty)
	}
	if mkt := trade.Market(); mkt == nil || *mkt != "ETH-USDC" {
		t.Errorf("market: got %v, want ETH-USDC", mkt)
	}
}

func TestParseDeposit(t *testing.T) {
	payload := dispatchPayload()
	payload["wallet"] = walletHex
	payload["asset"] = usdcHex
	payload["quantity"] = int64(1_000_000)

	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := ins.(*instruction.Deposit)
	if !ok {
		t.Fatalf("expected *instruction.Deposit, got %T", ins)
	}
	if dep.Asset != common.HexToAddress(usdcHex) || dep.Quantity != 1_000_000 {
		t.Errorf("deposit fields: asset %s, quantity %d", dep.Asset.Hex(), dep.Quantity)
	}
}

func liquidityPayload(origination string) map[string]interface{} {
	payload := dispatchPayload()
	payload["intent"] = map[string]interface{}{
		"kind":             "add",
		"nonce":            orderNonce,
		"wallet":           walletHex,
		"asset_a":          ethHex,
		"asset_b":          usdcHex,
		"amount_a_desired": int64(1_000_000_000),
		"amount_b_desired": int64(4_000_000_000),
		"amount_a_min":     int64(990_000_000),
		"amount_b_min":     int64(3_960_000_000),
		"to":               walletHex,
		"deadline_ms":      int64(1_700_000_060_000),
		"sig_hash_version": 1,
	}
	payload["origination"] = origination
	payload["execution"] = map[string]interface{}{
		"base_asset":      ethHex,
		"quote_asset":     usdcHex,
		"liquidity":       int64(2_000_000_000),
		"gross_base_qty":  int64(1_000_000_000),
		"gross_quote_qty": int64(4_000_000_000),
		"net_base_qty":    int64(1_000_000_000),
		"net_quote_qty":   int64(4_000_000_000),
	}
	return payload
}

func TestParseAddLiquidity_OffChainRequiresSignature(t *testing.T) {
	payload := liquidityPayload("offchain")
	payload["signature"] = sigHex

	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "AddLiquidity")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	al, ok := ins.(*instruction.AddLiquidity)
	if !ok {
		t.Fatalf("expected *instruction.AddLiquidity, got %T", ins)
	}
	if al.Origination != instruction.OriginationOffChain {
		t.Error("origination not mapped to off-chain")
	}
	if al.Intent.Kind != instruction.LiquidityAddition {
		t.Error("intent kind not mapped")
	}
	if al.Execution.Liquidity != 2_000_000_000 {
		t.Errorf("execution liquidity: got %d", al.Execution.Liquidity)
	}

	if _, err := ingestion.ParseRawInstruction(rawFromJSON(t, liquidityPayload("offchain")), "AddLiquidity"); err == nil {
		t.Error("off-chain intent without signature should fail to parse")
	}
}

func TestParseAddLiquidity_OnChainOmitsSignature(t *testing.T) {
	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, liquidityPayload("onchain")), "AddLiquidity")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	al := ins.(*instruction.AddLiquidity)
	if al.Origination != instruction.OriginationOnChain {
		t.Error("origination not mapped to on-chain")
	}
	if len(al.Signature) != 0 {
		t.Error("on-chain intent should carry no signature")
	}
}

func TestParseAddLiquidity_UnknownOrigination(t *testing.T) {
	if _, err := ingestion.ParseRawInstruction(rawFromJSON(t, liquidityPayload("sidechain")), "AddLiquidity"); err == nil {
		t.Error("unknown origination should fail to parse")
	}
}

func TestParseInitiateAddLiquidity(t *testing.T) {
	payload := liquidityPayload("onchain")
	delete(payload, "origination")
	delete(payload, "execution")
	payload["caller"] = walletHex

	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "InitiateAddLiquidity")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ial, ok := ins.(*instruction.InitiateAddLiquidity)
	if !ok {
		t.Fatalf("expected *instruction.InitiateAddLiquidity, got %T", ins)
	}
	if ial.Caller != common.HexToAddress(walletHex) {
		t.Errorf("caller: got %s", ial.Caller.Hex())
	}
}

func TestParseNonceInvalidation(t *testing.T) {
	payload := dispatchPayload()
	payload["wallet"] = walletHex
	payload["nonce_timestamp_ms"] = int64(1_699_999_000_000)

	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "NonceInvalidation")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ni := ins.(*instruction.NonceInvalidation)
	if ni.TimestampMs != 1_699_999_000_000 {
		t.Errorf("nonce timestamp: got %d", ni.TimestampMs)
	}
	// The invalidation threshold is distinct from the dispatch timestamp.
	if ni.DispatchTimestampMs() != 1_700_000_000_000 {
		t.Errorf("dispatch timestamp: got %d", ni.DispatchTimestampMs())
	}
}

func TestParseUpgradeInitiate_RoleMapping(t *testing.T) {
	for _, tc := range []struct {
		role string
		want instruction.UpgradeRole
	}{
		{"exchange", instruction.RoleExchange},
		{"governance", instruction.RoleGovernance},
	} {
		payload := dispatchPayload()
		payload["role"] = tc.role
		payload["new_address"] = walletHex

		ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "UpgradeInitiate")
		if err != nil {
			t.Fatalf("parse %s: %v", tc.role, err)
		}
		if got := ins.(*instruction.UpgradeInitiate).Role; got != tc.want {
			t.Errorf("role %s: got %d, want %d", tc.role, got, tc.want)
		}
	}

	payload := dispatchPayload()
	payload["role"] = "treasury"
	payload["new_address"] = walletHex
	if _, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "UpgradeInitiate"); err == nil {
		t.Error("unknown role should fail to parse")
	}
}

func TestParseBlockHeight(t *testing.T) {
	payload := dispatchPayload()
	payload["height"] = int64(123_456)

	ins, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "BlockHeight")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := ins.(*instruction.BlockHeight).Height; got != 123_456 {
		t.Errorf("height: got %d, want 123_456", got)
	}
}

func TestParseMalformedWallet_Fails(t *testing.T) {
	payload := dispatchPayload()
	payload["wallet"] = "not-an-address"
	payload["asset"] = usdcHex
	payload["quantity"] = int64(1)
	if _, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "Deposit"); err == nil {
		t.Error("malformed wallet should fail to parse")
	}
}

func TestParseMalformedDispatchID_Fails(t *testing.T) {
	payload := dispatchPayload()
	payload["dispatch_id"] = "not-a-uuid"
	payload["height"] = int64(1)
	if _, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "BlockHeight"); err == nil {
		t.Error("malformed dispatch_id should fail to parse")
	}
}

func TestParseUnknownOrderType_Fails(t *testing.T) {
	payload := dispatchPayload()
	order := orderPayload()
	order["type"] = "iceberg"
	payload["order"] = order
	payload["signature"] = sigHex
	payload["pool_leg"] = map[string]interface{}{
		"base_asset":  ethHex,
		"quote_asset": usdcHex,
	}
	if _, err := ingestion.ParseRawInstruction(rawFromJSON(t, payload), "PoolTrade"); err == nil {
		t.Error("unknown order type should fail to parse")
	}
}

func TestParseUnknownInstructionType_Fails(t *testing.T) {
	if _, err := ingestion.ParseRawInstruction(rawFromJSON(t, dispatchPayload()), "OracleUpdate"); err == nil {
		t.Error("unknown instruction type should fail to parse")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawInstruction{Data: []byte(`{invalid json`)}
	if _, err := ingestion.ParseRawInstruction(raw, "Deposit"); err == nil {
		t.Error("invalid JSON should fail to parse")
	}
}
