package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// QueryService provides read-only access to the projection tables and
// the settlement log. All responses carry as_of_sequence so callers can
// reason about freshness relative to the settlement stream.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalances returns a wallet's projected balances across all assets.
func (qs *QueryService) GetBalances(ctx context.Context, wallet common.Address) ([]BalanceEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	prefix := fmt.Sprintf("wallet:%s:%%", strings.ToLower(wallet.Hex()))
	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, asset, balance
		FROM projections.balances
		WHERE account_path LIKE $1
		ORDER BY asset
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []BalanceEntry
	for rows.Next() {
		var path, asset string
		var balance int64
		if err := rows.Scan(&path, &asset, &balance); err != nil {
			return nil, err
		}
		entries = append(entries, BalanceEntry{
			Wallet:       strings.ToLower(wallet.Hex()),
			Asset:        asset,
			Balance:      balance,
			Display:      FormatPip(balance),
			AsOfSequence: asOfSeq,
		})
	}

	return entries, rows.Err()
}

// GetBalance returns a wallet's projected balance for one asset.
func (qs *QueryService) GetBalance(ctx context.Context, wallet, asset common.Address) (*BalanceEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	path := fmt.Sprintf("wallet:%s:%s", strings.ToLower(wallet.Hex()), strings.ToLower(asset.Hex()))
	balance, err := qs.getProjectedBalance(ctx, path)
	if err != nil {
		return nil, err
	}

	return &BalanceEntry{
		Wallet:       strings.ToLower(wallet.Hex()),
		Asset:        asset.Hex(),
		Balance:      balance,
		Display:      FormatPip(balance),
		AsOfSequence: asOfSeq,
	}, nil
}

// GetPools returns projected reserves for all promoted pools.
func (qs *QueryService) GetPools(ctx context.Context) ([]PoolResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT base_asset, quote_asset, pair_token, base_reserves, quote_reserves, pair_token_supply, last_sequence
		FROM projections.pool_reserves
		ORDER BY base_asset, quote_asset
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []PoolResponse
	for rows.Next() {
		var p PoolResponse
		if err := rows.Scan(
			&p.BaseAsset, &p.QuoteAsset, &p.PairToken,
			&p.BaseReserves, &p.QuoteReserves, &p.PairTokenSupply, &p.AsOfSequence,
		); err != nil {
			return nil, err
		}
		p.MidPrice = FormatPrice(p.QuoteReserves, p.BaseReserves)
		pools = append(pools, p)
	}

	return pools, rows.Err()
}

// GetSettlements returns settlement records with cursor pagination,
// newest first. beforeSequence narrows to records older than the cursor.
func (qs *QueryService) GetSettlements(
	ctx context.Context,
	market *string,
	limit int,
	beforeSequence *int64,
) ([]SettlementResponse, error) {
	query := `
		SELECT sequence, instruction_type, COALESCE(market, ''), status,
		       COALESCE(reject_reason, ''), COALESCE(reject_detail, ''), state_hash, timestamp_ms
		FROM settlement_log.records
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if market != nil {
		query += fmt.Sprintf(" AND market = $%d", argIdx)
		args = append(args, *market)
		argIdx++
	}

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SettlementResponse
	for rows.Next() {
		var r SettlementResponse
		var stateHash []byte
		if err := rows.Scan(
			&r.Sequence, &r.InstructionType, &r.Market, &r.Status,
			&r.RejectReason, &r.RejectDetail, &stateHash, &r.TimestampMs,
		); err != nil {
			return nil, err
		}
		r.StateHash = hex.EncodeToString(stateHash)
		results = append(results, r)
	}

	return results, rows.Err()
}

// GetJournalHistory returns journal entries touching a wallet's accounts,
// newest first, with cursor pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	wallet common.Address,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("wallet:%s:%%", strings.ToLower(wallet.Hex()))

	query := `
		SELECT journal_id, batch_id, instruction_ref, sequence,
		       debit_account, credit_account, asset, amount, journal_type, timestamp_ms
		FROM settlement_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.InstructionRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Asset, &e.Amount,
			&e.JournalType, &e.TimestampMs,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the zero-sum balance
// invariant across all accounts per asset.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT r1.sequence
		FROM settlement_log.records r1
		LEFT JOIN settlement_log.records r2 ON r2.sequence = r1.sequence - 1
		WHERE r1.sequence > 0 AND r1.prev_hash != COALESCE(r2.state_hash, r1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var asset string
		var total int64
		if err := balanceRows.Scan(&asset, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			Asset:     asset,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
