package projection

import (
	"sync"
)

// TradeHistoryEntry represents one settled trade for read-side queries.
type TradeHistoryEntry struct {
	Sequence    int64
	Market      string
	Shape       string // "book", "pool", "hybrid"
	BaseQty     int64
	QuoteQty    int64
	TakerSide   string
	TimestampMs int64
}

// TradeHistoryProjection maintains a queryable in-memory trade history
// per market. Entries beyond the cap are evicted oldest-first.
type TradeHistoryProjection struct {
	mu       sync.RWMutex
	entries  []TradeHistoryEntry
	capacity int
}

func NewTradeHistoryProjection(capacity int) *TradeHistoryProjection {
	if capacity <= 0 {
		capacity = 10000
	}
	return &TradeHistoryProjection{
		entries:  make([]TradeHistoryEntry, 0, capacity),
		capacity: capacity,
	}
}

// AddEntry records a settled trade
func (p *TradeHistoryProjection) AddEntry(entry TradeHistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, entry)
	if len(p.entries) > p.capacity {
		p.entries = p.entries[len(p.entries)-p.capacity:]
	}
}

// QueryByMarket returns the most recent trades for a market
func (p *TradeHistoryProjection) QueryByMarket(market string, limit int) []TradeHistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]TradeHistoryEntry, 0)
	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Market == market {
			result = append(result, p.entries[i])
		}
	}
	return result
}
