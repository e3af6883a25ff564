package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement service.
type Metrics struct {
	// --- Core Processing ---
	CoreInstructionsApplied  *prometheus.CounterVec
	CoreInstructionsRejected *prometheus.CounterVec
	CoreInstructionDuration  *prometheus.HistogramVec
	CoreJournals             *prometheus.CounterVec
	CoreStateHashDur         prometheus.Histogram
	CoreSequence             prometheus.Gauge
	CoreBlockHeight          prometheus.Gauge

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	ApplyToPersist      prometheus.Histogram
	QueryFreshnessLag   *prometheus.HistogramVec
	NATSPullLatency     *prometheus.HistogramVec
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	SequenceGap           *prometheus.CounterVec
	OutOfOrder            *prometheus.CounterVec

	// --- Settlement ---
	TradesSettled    *prometheus.CounterVec
	TradeVolumeBase  *prometheus.CounterVec
	FeesCollected    *prometheus.CounterVec
	PoolReserves     *prometheus.GaugeVec
	PairTokenSupply  *prometheus.GaugeVec
	LiquidityOps     *prometheus.CounterVec
	NonceInvalidated *prometheus.CounterVec
	WalletExits      *prometheus.CounterVec

	// --- Persistence ---
	PersistRecordsWritten  prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayRecords     prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core Processing
		CoreInstructionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_core_instructions_applied_total",
			Help: "Instructions successfully applied by core",
		}, []string{"instruction_type"}),

		CoreInstructionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_core_instructions_rejected_total",
			Help: "Instructions rejected (dedup, gap, validation)",
		}, []string{"instruction_type", "reason"}),

		CoreInstructionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_core_instruction_apply_duration_seconds",
			Help:    "Time to apply a single instruction in core",
			Buckets: latencyBuckets,
		}, []string{"instruction_type"}),

		CoreJournals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_core_sequence",
			Help: "Current global sequence number",
		}),

		CoreBlockHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_core_block_height",
			Help: "Latest observed chain height",
		}),

		// Latency
		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"instruction_type"}),

		ApplyToPersist: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_apply_to_persist_seconds",
			Help:    "Core emit to Postgres commit",
			Buckets: latencyBuckets,
		}),

		QueryFreshnessLag: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_query_freshness_lag_seconds",
			Help:    "Core sequence minus projection sequence (in time)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0},
		}, []string{"endpoint"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dex_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dex_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dex_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_publish_drops_total",
			Help: "Outputs dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"instruction_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		SequenceGap: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"partition"}),

		OutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"partition"}),

		// Settlement
		TradesSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_trades_settled_total",
			Help: "Trades settled by shape",
		}, []string{"market", "shape"}),

		TradeVolumeBase: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_trade_volume_base_pips",
			Help: "Settled base volume in pips",
		}, []string{"market"}),

		FeesCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_fees_collected_pips",
			Help: "Fees journaled to the collector in pips",
		}, []string{"fee_type"}),

		PoolReserves: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dex_pool_reserves_pips",
			Help: "Pool reserves per pair and side",
		}, []string{"pair", "side"}),

		PairTokenSupply: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dex_pair_token_supply_pips",
			Help: "Outstanding pair tokens per pool",
		}, []string{"pair"}),

		LiquidityOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_liquidity_operations_total",
			Help: "Liquidity additions and removals",
		}, []string{"kind", "origination"}),

		NonceInvalidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_nonce_invalidations_total",
			Help: "Nonce threshold advances",
		}, []string{"outcome"}),

		WalletExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_wallet_exits_total",
			Help: "Wallet exit transitions",
		}, []string{"stage"}),

		// Persistence
		PersistRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_persist_records_written_total",
			Help: "Settlement records written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_persist_batch_size",
			Help:    "Records per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dex_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dex_replay_records_total",
			Help: "Records replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dex_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
