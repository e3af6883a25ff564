package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for
// recovery. Snapshots contain balances, the asset registry, pool
// reserves, nonce thresholds, fill totals, intent markers, exit and
// upgrade state, the idempotency LRU, sequence counters, and the last
// state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
type SnapshotData struct {
	Sequence        int64                   `json:"sequence"`
	StateHash       []byte                  `json:"state_hash"`
	Balances        map[string]int64        `json:"balances"` // AccountPath -> balance
	Assets          []AssetSnapshot         `json:"assets"`
	Pools           []PoolSnapshot          `json:"pools"`
	NonceThresholds map[string]int64        `json:"nonce_thresholds"` // wallet hex -> threshold ms
	Fills           map[string]int64        `json:"fills"`            // order hash hex -> filled qty
	Intents         map[string]IntentSnap   `json:"intents"`          // intent hash hex -> markers
	Exits           []ExitSnapshot          `json:"exits"`
	Roles           map[string]RoleSnapshot `json:"roles"` // role name -> state
	BlockHeight     int64                   `json:"block_height"`
	SequenceState   map[string]int64        `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string                `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time               `json:"created_at"`
}

// AssetSnapshot is a serializable asset registry entry.
type AssetSnapshot struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Status   int32  `json:"status"`
}

// PoolSnapshot is a serializable pool.
type PoolSnapshot struct {
	BaseAsset       string `json:"base_asset"`
	QuoteAsset      string `json:"quote_asset"`
	PairToken       string `json:"pair_token"`
	BaseReserves    int64  `json:"base_reserves"`
	QuoteReserves   int64  `json:"quote_reserves"`
	PairTokenSupply int64  `json:"pair_token_supply"`
}

// IntentSnap is a serializable liquidity intent marker.
type IntentSnap struct {
	Initiated bool `json:"initiated"`
	Executed  bool `json:"executed"`
}

// ExitSnapshot is a serializable wallet exit record.
type ExitSnapshot struct {
	Wallet           string `json:"wallet"`
	InitiatedAtBlock int64  `json:"initiated_at_block"`
	Finalized        bool   `json:"finalized"`
}

// RoleSnapshot is a serializable privileged-role state.
type RoleSnapshot struct {
	Current        string `json:"current"`
	PendingAddress string `json:"pending_address,omitempty"`
	PendingAtBlock int64  `json:"pending_at_block,omitempty"`
	HasPending     bool   `json:"has_pending"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying the settlement log from the
// snapshot sequence forward.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO settlement_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, load the latest snapshot then replay the settlement log from
// snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM settlement_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot, cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE settlement_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadRecordsFrom loads settlement records from a given sequence for
// replay. Used for warm restart (replay from snapshot) and cold restart
// (replay all).
func (sm *SnapshotManager) LoadRecordsFrom(ctx context.Context, fromSequence int64, limit int) ([]RecordRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, instruction_type, idempotency_key, market, status,
		       reject_reason, reject_detail, payload, state_hash, prev_hash, timestamp_ms, source_sequence
		FROM settlement_log.records
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(
			&r.Sequence, &r.InstructionType, &r.IdempotencyKey, &r.Market, &r.Status,
			&r.RejectReason, &r.RejectDetail, &r.Payload, &r.StateHash, &r.PrevHash, &r.TimestampMs, &r.SourceSequence,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// GetLatestSequence returns the highest sequence in the settlement log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM settlement_log.records
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty settlement log
	}
	return seq.Int64, nil
}
