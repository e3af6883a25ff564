package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeTradeBase
	JournalTypeTradeQuote
	JournalTypeTradeFee
	JournalTypePoolInput
	JournalTypePoolOutput
	JournalTypePoolProtocolFee
	JournalTypeGasFee
	JournalTypePriceCorrectionFee
	JournalTypeLiquidityDeposit
	JournalTypeLiquidityWithdrawal
	JournalTypeLiquidityFee
	JournalTypePairTokenMint
	JournalTypePairTokenBurn
)

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID      uuid.UUID      // Unique identifier
	BatchID        uuid.UUID      // Groups the entries of one settlement
	InstructionRef string         // Idempotency key of the source instruction
	Sequence       int64          // Global settlement sequence
	DebitAccount   AccountKey     // Account receiving debit (balance increases)
	CreditAccount  AccountKey     // Account receiving credit (balance decreases)
	Asset          common.Address // Asset being transferred
	Amount         int64          // Pips (ALWAYS positive)
	JournalType    JournalType    // Entry type
	TimestampMs    int64          // Versioned input timestamp (epoch milliseconds)
}

// Batch represents the balanced set of journal entries produced by one
// applied instruction. A batch commits in full or not at all.
type Batch struct {
	BatchID        uuid.UUID
	InstructionRef string
	Sequence       int64
	TimestampMs    int64
	Journals       []Journal
}

// Validate ensures the batch is well-formed. Each journal entry is a
// balanced transfer by construction (a single positive amount moves from
// credit account to debit account), so Σ debits == Σ credits holds
// per-entry; multi-leg settlements use multiple entries under one batch_id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.Asset != j.Asset || j.CreditAccount.Asset != j.Asset {
			return fmt.Errorf("journal %s moves asset %s between mismatched accounts",
				j.JournalID, j.Asset.Hex())
		}
	}

	return nil
}
