package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"DexSettle/internal/instruction"
	"DexSettle/internal/ledger"
)

// SettlementLogWriter writes settlement records and journals to Postgres
// using batch inserts. Multi-row INSERT is used as a portable alternative
// to the COPY protocol; switch to pgx CopyFrom for production-grade
// throughput.
type SettlementLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// RecordRow represents a row in settlement_log.records. Payload holds the
// serialized instruction so the log can be replayed during recovery.
type RecordRow struct {
	Sequence        int64
	InstructionType string
	IdempotencyKey  string
	Market          *string
	Status          string
	RejectReason    *string
	RejectDetail    *string
	Payload         []byte
	StateHash       []byte
	PrevHash        []byte
	TimestampMs     int64
	SourceSequence  int64
}

// JournalRow represents a row in settlement_log.journal
type JournalRow struct {
	JournalID      string
	BatchID        string
	InstructionRef string
	Sequence       int64
	DebitAccount   string
	CreditAccount  string
	Asset          string
	Amount         int64
	JournalType    int32
	TimestampMs    int64
}

// BuildRecordRow converts a core settlement record into its storage row.
// payload is the serialized source instruction, kept for replay.
func BuildRecordRow(r *instruction.Record, payload []byte) RecordRow {
	row := RecordRow{
		Sequence:        r.Sequence,
		InstructionType: r.Type.String(),
		IdempotencyKey:  r.IdempotencyKey,
		Market:          r.Market,
		Status:          r.Status.String(),
		Payload:         payload,
		StateHash:       append([]byte(nil), r.StateHash[:]...),
		PrevHash:        append([]byte(nil), r.PrevHash[:]...),
		TimestampMs:     r.TimestampMs,
		SourceSequence:  r.SourceSequence,
	}
	if r.RejectReason != "" {
		reason := r.RejectReason
		row.RejectReason = &reason
	}
	if r.RejectDetail != "" {
		detail := r.RejectDetail
		row.RejectDetail = &detail
	}
	return row
}

// BuildJournalRows converts a committed batch into its storage rows.
func BuildJournalRows(b *ledger.Batch) []JournalRow {
	if b == nil {
		return nil
	}
	rows := make([]JournalRow, 0, len(b.Journals))
	for _, j := range b.Journals {
		rows = append(rows, JournalRow{
			JournalID:      j.JournalID.String(),
			BatchID:        j.BatchID.String(),
			InstructionRef: j.InstructionRef,
			Sequence:       j.Sequence,
			DebitAccount:   j.DebitAccount.AccountPath(),
			CreditAccount:  j.CreditAccount.AccountPath(),
			Asset:          j.Asset.Hex(),
			Amount:         j.Amount,
			JournalType:    int32(j.JournalType),
			TimestampMs:    j.TimestampMs,
		})
	}
	return rows
}

func NewSettlementLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *SettlementLogWriter {
	return &SettlementLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// execContext is satisfied by both *sql.DB and *sql.Tx.
type execContext interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteRecordBatch writes settlement records using a multi-row INSERT.
// Conflicting sequences are skipped so replays after a crash are
// idempotent.
func (w *SettlementLogWriter) WriteRecordBatch(ctx context.Context, ec execContext, records []RecordRow) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO settlement_log.records
		(sequence, instruction_type, idempotency_key, market, status, reject_reason, reject_detail, payload, state_hash, prev_hash, timestamp_ms, source_sequence)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*12)

	for i, r := range records {
		base := i * 12
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11, base+12,
		))
		args = append(args,
			r.Sequence, r.InstructionType, r.IdempotencyKey, r.Market, r.Status,
			r.RejectReason, r.RejectDetail, r.Payload, r.StateHash, r.PrevHash, r.TimestampMs, r.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ec.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes journal entries to settlement_log.journal.
func (w *SettlementLogWriter) WriteJournalBatch(ctx context.Context, ec execContext, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO settlement_log.journal
		(journal_id, batch_id, instruction_ref, sequence, debit_account, credit_account, asset, amount, journal_type, timestamp_ms)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*10)

	for i, j := range journals {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.InstructionRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount,
			j.JournalType, j.TimestampMs,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := ec.ExecContext(ctx, query, args...)
	return err
}
