package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/fee"
	"DexSettle/internal/instruction"
	"DexSettle/internal/ledger"
	"DexSettle/internal/observability"
	"DexSettle/internal/reject"
	"DexSettle/internal/state"
)

// SettlementEngine is the single-threaded instruction processor. All
// validation and mutation happens here; the surrounding workers only move
// bytes in and out.
type SettlementEngine struct {
	sequence int64
	params   Params

	hasher     *StateHasher
	balances   *ledger.BalanceTracker
	journals   *ledger.JournalGenerator
	validator  *ledger.InvariantValidator
	assets     *state.AssetRegistry
	pools      *state.PoolManager
	nonces     *state.NonceTracker
	fills      *state.FillTracker
	intents    *state.IntentTracker
	exits      *state.ExitTracker
	upgrades   *state.UpgradeManager
	blocks     *state.BlockCounter
	feePolicy  fee.Policy

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is the engine's fan-out unit: the settlement record plus the
// journal batch it committed (nil journals for state-only instructions
// and rejections). Source is the instruction itself; the persistence
// worker stores its serialized form so the log can be replayed.
type CoreOutput struct {
	Record     *instruction.Record
	Batch      *ledger.Batch
	Source     instruction.Instruction
	Pools      []state.Pool // post-apply reserves of pools this instruction touched
	StateDelta []byte
}

func NewSettlementEngine(
	params Params,
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *SettlementEngine {
	balances := ledger.NewBalanceTracker()

	return &SettlementEngine{
		sequence:          startSequence,
		params:            params,
		hasher:            NewStateHasher(),
		balances:          balances,
		journals:          ledger.NewJournalGenerator(startSequence),
		validator:         ledger.NewInvariantValidator(balances),
		assets:            state.NewAssetRegistry(),
		pools:             state.NewPoolManager(params.MinReserve),
		nonces:            state.NewNonceTracker(params.NonceInvalidationMinGapMs),
		fills:             state.NewFillTracker(),
		intents:           state.NewIntentTracker(),
		exits:             state.NewExitTracker(params.ExitDelayBlocks),
		upgrades:          state.NewUpgradeManager(params.ExchangeAddress, params.GovernanceAddress, params.UpgradeDelayBlocks),
		blocks:            state.NewBlockCounter(),
		feePolicy:         params.FeePolicy,
		idempotency:       NewIdempotencyChecker(params.IdempotencyCapacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// Process is the main pipeline. Rejections are a settled outcome: the
// record is emitted with the rejection reason and no state is mutated.
// A returned error means infrastructure failure (ordering violation,
// unparseable instruction) and the caller must not ack the message.
func (e *SettlementEngine) Process(ins instruction.Instruction) error {
	start := time.Now()
	insType := ins.InstructionType().String()
	idempotencyKey := ins.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := e.idempotency.IsDuplicate(insType, idempotencyKey)

	// Step 2: Sequence validation
	partition := e.getPartition(ins)
	if err := e.sequenceValidator.ValidateSequence(partition, ins.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	// If duplicate, skip processing
	if isDuplicate {
		if e.metrics != nil {
			e.metrics.CoreInstructionsRejected.WithLabelValues(insType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch. Validate everything, then mutate. The journal
	// generator follows the record sequence so batch and record line up.
	e.journals.SetSequence(e.sequence)
	batch, err := e.dispatch(ins)
	if err != nil {
		reason := reject.ReasonOf(err)
		if reason == "" {
			return fmt.Errorf("dispatch failed: %w", err)
		}
		e.emitRejection(ins, err)
		if e.metrics != nil {
			e.metrics.CoreInstructionsRejected.WithLabelValues(insType, string(reason)).Inc()
		}
		return nil
	}

	// Step 4: Validate and apply the batch. State-only instructions
	// return an empty batch but still produce a record.
	if batch != nil && len(batch.Journals) > 0 {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := e.balances.ApplyBatch(batch); err != nil {
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 5: Post-checks
	if err := e.postCheckInvariants(ins); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 6: State hash chain
	stateDigest := e.computeStateDigest(batch)
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)

	record := &instruction.Record{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		Type:           ins.InstructionType(),
		Market:         ins.Market(),
		TimestampMs:    e.getTimestamp(ins),
		SourceSequence: ins.SourceSequence(),
		Status:         instruction.StatusApplied,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	e.sequence++

	var touchedPools []state.Pool
	if assets := e.poolAssetsOf(ins); len(assets) == 2 {
		if p, err := e.pools.Get(assets[0], assets[1]); err == nil {
			touchedPools = append(touchedPools, *p)
		}
	}

	e.emit(CoreOutput{Record: record, Batch: batch, Source: ins, Pools: touchedPools, StateDelta: stateDigest})

	// Step 7: Mark as processed (add to LRU)
	e.idempotency.MarkProcessed(insType, idempotencyKey)

	if e.metrics != nil {
		e.metrics.CoreInstructionsApplied.WithLabelValues(insType).Inc()
		e.metrics.CoreInstructionDuration.WithLabelValues(insType).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}

	return nil
}

// emitRejection records a rejected instruction. The rejection enters the
// settlement log and the hash chain so replays reproduce it, but no
// balances, reserves, or trackers move.
func (e *SettlementEngine) emitRejection(ins instruction.Instruction, cause error) {
	var detail string
	var rej *reject.Error
	if errors.As(cause, &rej) {
		detail = rej.Detail
	}

	stateDigest := e.computeStateDigest(nil)
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)

	record := &instruction.Record{
		Sequence:       e.sequence,
		IdempotencyKey: ins.IdempotencyKey(),
		Type:           ins.InstructionType(),
		Market:         ins.Market(),
		TimestampMs:    e.getTimestamp(ins),
		SourceSequence: ins.SourceSequence(),
		Status:         instruction.StatusRejected,
		RejectReason:   string(reject.ReasonOf(cause)),
		RejectDetail:   detail,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	e.sequence++

	e.emit(CoreOutput{Record: record, Source: ins, StateDelta: stateDigest})
	e.idempotency.MarkProcessed(ins.InstructionType().String(), ins.IdempotencyKey())
}

// emit fans one output out to the workers. The persist channel blocks
// (backpressure, no output is ever lost); the projection channel drops
// when full and rebuilds from the settlement log.
func (e *SettlementEngine) emit(output CoreOutput) {
	e.persistChan <- output

	select {
	case e.projectionChan <- output:
	default:
	}
}

// getPartition determines partition key for sequence validation
func (e *SettlementEngine) getPartition(ins instruction.Instruction) string {
	if market := ins.Market(); market != nil {
		return fmt.Sprintf("market:%s", *market)
	}
	return "global"
}

// getTimestamp extracts the versioned dispatch timestamp. The core never
// reads the wall clock for settlement state.
func (e *SettlementEngine) getTimestamp(ins instruction.Instruction) int64 {
	type timestamped interface{ DispatchTimestampMs() int64 }
	if t, ok := ins.(timestamped); ok {
		return t.DispatchTimestampMs()
	}
	panic(fmt.Sprintf("FATAL: instruction %T carries no dispatch timestamp", ins))
}

// computeStateDigest creates canonical bytes for the state hash: the
// post-apply balances of every account the batch touched, sorted by
// account path.
func (e *SettlementEngine) computeStateDigest(batch *ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := e.balances.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates cross-module invariants after apply.
func (e *SettlementEngine) postCheckInvariants(ins instruction.Instruction) error {
	// Pool-touching instructions must leave the vault accounts exactly
	// mirroring the reserve engine's totals.
	for _, asset := range e.poolAssetsOf(ins) {
		if err := e.validator.ValidateVaultMatchesReserves(asset, e.pools.AssetReserveTotal(asset)); err != nil {
			return fmt.Errorf("post-check vault/reserves: %w", err)
		}
		if err := e.validator.ValidateVaultNonNegative(asset); err != nil {
			return fmt.Errorf("post-check vault: %w", err)
		}
	}

	// Periodic global zero-sum check.
	if e.sequence > 0 && e.sequence%1000 == 0 {
		if err := e.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check global balance (at seq %d): %w", e.sequence, err)
		}
	}

	return nil
}

// poolAssetsOf returns the reserve assets an instruction can move.
func (e *SettlementEngine) poolAssetsOf(ins instruction.Instruction) []common.Address {
	switch i := ins.(type) {
	case *instruction.PoolTrade:
		return []common.Address{i.PoolLeg.BaseAsset, i.PoolLeg.QuoteAsset}
	case *instruction.HybridTrade:
		return []common.Address{i.PoolLeg.BaseAsset, i.PoolLeg.QuoteAsset}
	case *instruction.AddLiquidity:
		return []common.Address{i.Execution.BaseAsset, i.Execution.QuoteAsset}
	case *instruction.RemoveLiquidity:
		return []common.Address{i.Execution.BaseAsset, i.Execution.QuoteAsset}
	case *instruction.PoolPromotion:
		return []common.Address{i.BaseAsset, i.QuoteAsset}
	}
	return nil
}

func (e *SettlementEngine) dispatch(ins instruction.Instruction) (*ledger.Batch, error) {
	switch i := ins.(type) {
	case *instruction.OrderBookTrade:
		return e.applyOrderBookTrade(i)
	case *instruction.PoolTrade:
		return e.applyPoolTrade(i)
	case *instruction.HybridTrade:
		return e.applyHybridTrade(i)
	case *instruction.AddLiquidity:
		return e.applyAddLiquidity(i)
	case *instruction.RemoveLiquidity:
		return e.applyRemoveLiquidity(i)
	case *instruction.InitiateAddLiquidity:
		return e.applyInitiateLiquidity(i.Dispatch, i.Caller, &i.Intent, instruction.LiquidityAddition)
	case *instruction.InitiateRemoveLiquidity:
		return e.applyInitiateLiquidity(i.Dispatch, i.Caller, &i.Intent, instruction.LiquidityRemoval)
	case *instruction.NonceInvalidation:
		return e.applyNonceInvalidation(i)
	case *instruction.WalletExit:
		return e.applyWalletExit(i)
	case *instruction.WalletExitFinalize:
		return e.applyWalletExitFinalize(i)
	case *instruction.Deposit:
		return e.applyDeposit(i)
	case *instruction.Withdrawal:
		return e.applyWithdrawal(i)
	case *instruction.AssetRegistration:
		return e.applyAssetRegistration(i)
	case *instruction.AssetConfirmation:
		return e.applyAssetConfirmation(i)
	case *instruction.PoolPromotion:
		return e.applyPoolPromotion(i)
	case *instruction.UpgradeInitiate:
		return e.applyUpgradeInitiate(i)
	case *instruction.UpgradeCancel:
		return e.applyUpgradeCancel(i)
	case *instruction.UpgradeFinalize:
		return e.applyUpgradeFinalize(i)
	case *instruction.BlockHeight:
		return e.applyBlockHeight(i)
	default:
		return nil, fmt.Errorf("unknown instruction type: %T", ins)
	}
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Assets          []*state.Asset
	Pools           []*state.Pool
	NonceThresholds map[common.Address]int64
	Fills           map[common.Hash]int64
	Intents         map[common.Hash]state.IntentState
	Exits           []*state.ExitState
	Roles           map[instruction.UpgradeRole]state.RoleState
	BlockHeight     int64
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the engine's in-memory state. On warm
// restart the latest snapshot is loaded and the settlement log replayed
// from its sequence.
func (e *SettlementEngine) RestoreFromSnapshot(snap *SnapshotState) {
	e.sequence = snap.Sequence + 1 // Next sequence to assign
	e.hasher.SetPrevHash(snap.StateHash)
	e.balances.Restore(snap.Balances)

	for _, a := range snap.Assets {
		e.assets.RestoreAsset(a)
	}
	for _, p := range snap.Pools {
		e.pools.RestorePool(p)
	}
	for wallet, threshold := range snap.NonceThresholds {
		e.nonces.RestoreThreshold(wallet, threshold)
	}
	for hash, qty := range snap.Fills {
		e.fills.RestoreFill(hash, qty)
	}
	for hash, st := range snap.Intents {
		e.intents.RestoreIntent(hash, st)
	}
	for _, ex := range snap.Exits {
		e.exits.RestoreExit(ex)
	}
	for role, st := range snap.Roles {
		e.upgrades.RestoreRole(role, st)
	}
	e.blocks.Restore(snap.BlockHeight)

	for partition, nextSeq := range snap.SequenceState {
		e.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	e.journals.SetSequence(e.sequence)
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (e *SettlementEngine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        e.sequence - 1, // Last processed sequence
		StateHash:       e.hasher.GetPrevHash(),
		Balances:        e.balances.Snapshot(),
		Assets:          e.assets.AllAssets(),
		Pools:           e.pools.AllPools(),
		NonceThresholds: e.nonces.AllThresholds(),
		Fills:           e.fills.AllFills(),
		Intents:         e.intents.AllIntents(),
		Exits:           e.exits.AllExits(),
		Roles:           e.upgrades.RoleStates(),
		BlockHeight:     e.blocks.Height(),
		SequenceState:   e.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: e.idempotency.lru.GetAllKeys(),
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (e *SettlementEngine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (e *SettlementEngine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (e *SettlementEngine) GetStateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// GetBlockHeight returns the latest observed chain height.
func (e *SettlementEngine) GetBlockHeight() int64 {
	return e.blocks.Height()
}

// GetPools returns the current pool states. Only safe to call from the
// goroutine driving Process.
func (e *SettlementEngine) GetPools() []*state.Pool {
	return e.pools.AllPools()
}
