package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence        int64
	InstructionType string
	Market          *string
	Status          string
	RejectReason    string
	JournalEntries  []JournalEntry
	PoolUpdates     []PoolUpdate
	TimestampMs     int64
}

// PoolUpdate carries post-settlement pool reserves for the read side.
type PoolUpdate struct {
	BaseAsset       string
	QuoteAsset      string
	PairToken       string
	BaseReserves    int64
	QuoteReserves   int64
	PairTokenSupply int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        int64
	JournalType   int32
}

// ProjectionWorker updates projection tables from settled instructions.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the settlement log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue; projections are eventually consistent
				// and can be rebuilt from the settlement log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Update balance projections from journal entries
	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	// Mirror pool reserves for read-side queries
	for _, p := range output.PoolUpdates {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.pool_reserves
				(base_asset, quote_asset, pair_token, base_reserves, quote_reserves, pair_token_supply, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (base_asset, quote_asset)
			DO UPDATE SET pair_token = $3, base_reserves = $4, quote_reserves = $5,
			              pair_token_supply = $6, last_sequence = $7
		`, p.BaseAsset, p.QuoteAsset, p.PairToken, p.BaseReserves, p.QuoteReserves, p.PairTokenSupply, output.Sequence); err != nil {
			return fmt.Errorf("pool reserves projection: %w", err)
		}
	}

	// Append to settlement history
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.settlements (sequence, instruction_type, market, status, reject_reason, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence) DO NOTHING
	`, output.Sequence, output.InstructionType, output.Market, output.Status, output.RejectReason, output.TimestampMs); err != nil {
		return fmt.Errorf("settlement history: %w", err)
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	// Debit account: increase balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.Asset, j.Amount, seq); err != nil {
		return err
	}

	// Credit account: decrease balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.Asset, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

// RebuildProjections rebuilds all projection tables from the settlement
// log.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	// Truncate all projection tables
	// pool_reserves is not rebuilt here: per-pool splits are not
	// recoverable from the journal. The worker repopulates each pool on
	// its next settlement, and a core snapshot restore refreshes them all.
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.settlements`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild from journal entries: debits increase, credits decrease
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM settlement_log.journal
		GROUP BY debit_account, asset
		ON CONFLICT (account_path, asset) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM settlement_log.journal
		GROUP BY credit_account, asset
		ON CONFLICT (account_path, asset) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.settlements (sequence, instruction_type, market, status, reject_reason, timestamp_ms)
		SELECT sequence, instruction_type, market, status, COALESCE(reject_reason, ''), timestamp_ms
		FROM settlement_log.records
		ON CONFLICT (sequence) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("rebuild settlement history: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
