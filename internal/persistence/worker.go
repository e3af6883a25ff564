package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"DexSettle/internal/observability"
)

// CoreOutput mirrors core.CoreOutput in storage-row form. The orchestrator
// (cmd/main.go) bridges between the core's output and this.
type CoreOutput struct {
	RecordRow   RecordRow
	JournalRows []JournalRow
}

// PersistenceWorker drains the persist channel and batch-writes to
// Postgres. This goroutine runs independently from the deterministic
// core. The persist channel uses BLOCKING sends from the core, so if this
// worker falls behind, the core stalls, guaranteeing no settlement is
// lost.
type PersistenceWorker struct {
	writer       *SettlementLogWriter
	inputChan    <-chan CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewSettlementLogWriter(db, batchSize, flushTimeout),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	recordBatch := make([]RecordRow, 0, pw.batchSize)
	journalBatch := make([]JournalRow, 0, pw.batchSize*4) // ~4 journals per settlement avg

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(recordBatch) > 0 {
				if err := pw.flush(context.Background(), recordBatch, journalBatch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				// Channel closed, flush and exit
				if len(recordBatch) > 0 {
					if err := pw.flush(context.Background(), recordBatch, journalBatch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			recordBatch = append(recordBatch, output.RecordRow)
			journalBatch = append(journalBatch, output.JournalRows...)

			// Flush if batch is full
			if len(recordBatch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, recordBatch, journalBatch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				recordBatch = recordBatch[:0]
				journalBatch = journalBatch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			// Flush timeout, write whatever we have
			if len(recordBatch) > 0 {
				if err := pw.flushWithRetry(ctx, recordBatch, journalBatch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				recordBatch = recordBatch[:0]
				journalBatch = journalBatch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// NEVER drops settlements; it retries until the write succeeds or the
// context is cancelled (graceful shutdown).
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, records []RecordRow, journals []JournalRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, records=%d)",
				attempt, backoff, len(records))
			select {
			case <-ctx.Done():
				// Graceful shutdown: attempt one final flush with background
				// context to avoid losing the batch.
				finalErr := pw.flush(context.Background(), records, journals)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, records, journals)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistRetry.Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, records []RecordRow, journals []JournalRow) error {
	start := time.Now()

	// Write records and journals in a single transaction
	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteRecordBatch(ctx, tx, records); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_records").Inc()
		}
		return err
	}

	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	// Record metrics on success
	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(records)))
		pw.metrics.PersistRecordsWritten.Add(float64(len(records)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		if len(records) > 0 {
			pw.metrics.PersistLastSequence.Set(float64(records[len(records)-1].Sequence))
		}
	}

	return nil
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *SettlementLogWriter {
	return pw.writer
}
