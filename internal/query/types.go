package query

// BalanceEntry represents one wallet balance for API queries.
type BalanceEntry struct {
	Wallet       string `json:"wallet"`
	Asset        string `json:"asset"`
	Symbol       string `json:"symbol,omitempty"`
	Balance      int64  `json:"balance"`
	Display      string `json:"display"` // decimal string, pip scale
	AsOfSequence int64  `json:"as_of_sequence"`
}

// PoolResponse represents pool reserves for API queries.
type PoolResponse struct {
	BaseAsset       string `json:"base_asset"`
	QuoteAsset      string `json:"quote_asset"`
	PairToken       string `json:"pair_token"`
	BaseReserves    int64  `json:"base_reserves"`
	QuoteReserves   int64  `json:"quote_reserves"`
	PairTokenSupply int64  `json:"pair_token_supply"`
	MidPrice        string `json:"mid_price"` // quote per base, decimal string
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// SettlementResponse represents a settlement record for API queries.
type SettlementResponse struct {
	Sequence        int64  `json:"sequence"`
	InstructionType string `json:"instruction_type"`
	Market          string `json:"market,omitempty"`
	Status          string `json:"status"`
	RejectReason    string `json:"reject_reason,omitempty"`
	RejectDetail    string `json:"reject_detail,omitempty"`
	StateHash       string `json:"state_hash"`
	TimestampMs     int64  `json:"timestamp_ms"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID      string `json:"journal_id"`
	BatchID        string `json:"batch_id"`
	InstructionRef string `json:"instruction_ref"`
	Sequence       int64  `json:"sequence"`
	DebitAccount   string `json:"debit_account"`
	CreditAccount  string `json:"credit_account"`
	Asset          string `json:"asset"`
	Amount         int64  `json:"amount"`
	JournalType    int32  `json:"journal_type"`
	TimestampMs    int64  `json:"timestamp_ms"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	Asset     string `json:"asset"`
	Imbalance int64  `json:"imbalance"`
}
