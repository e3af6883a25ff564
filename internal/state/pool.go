package state

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/pip"
	"DexSettle/internal/reject"
)

// PairKey identifies a pool by its unordered asset pair. Assets are stored
// in byte order so (A,B) and (B,A) resolve to the same pool.
type PairKey struct {
	Lo common.Address
	Hi common.Address
}

func pairKeyOf(a, b common.Address) PairKey {
	if bytes.Compare(a.Bytes(), b.Bytes()) <= 0 {
		return PairKey{Lo: a, Hi: b}
	}
	return PairKey{Lo: b, Hi: a}
}

// Pool holds the reserves and pair-token supply of one constant-product
// pool. BaseAsset/QuoteAsset preserve the orientation fixed at promotion.
type Pool struct {
	BaseAsset       common.Address
	QuoteAsset      common.Address
	PairToken       common.Address
	BaseReserves    int64
	QuoteReserves   int64
	PairTokenSupply int64
}

// PoolManager is the reserve engine: per-pool reserves, pair-token supply
// and the constant-product and floor invariants. The ledger's vault
// accounts mirror these totals per asset.
type PoolManager struct {
	pools       map[PairKey]*Pool
	byPairToken map[common.Address]PairKey
	minReserve  int64
}

func NewPoolManager(minReserve int64) *PoolManager {
	return &PoolManager{
		pools:       make(map[PairKey]*Pool),
		byPairToken: make(map[common.Address]PairKey),
		minReserve:  minReserve,
	}
}

// Promote creates an empty pool for a hybrid market.
func (pm *PoolManager) Promote(base, quote, pairToken common.Address) error {
	if base == quote {
		return reject.New(reject.ReasonAssetsMustBeDifferent, "asset %s", base.Hex())
	}

	key := pairKeyOf(base, quote)
	if _, exists := pm.pools[key]; exists {
		return reject.New(reject.ReasonPoolAlreadyExists, "pair %s/%s", base.Hex(), quote.Hex())
	}
	if _, exists := pm.byPairToken[pairToken]; exists {
		return reject.New(reject.ReasonPoolAlreadyExists, "pair token %s", pairToken.Hex())
	}

	pm.pools[key] = &Pool{
		BaseAsset:  base,
		QuoteAsset: quote,
		PairToken:  pairToken,
	}
	pm.byPairToken[pairToken] = key
	return nil
}

// Get resolves the pool for an unordered asset pair.
func (pm *PoolManager) Get(a, b common.Address) (*Pool, error) {
	pool, ok := pm.pools[pairKeyOf(a, b)]
	if !ok {
		return nil, reject.New(reject.ReasonPoolDoesNotExist, "pair %s/%s", a.Hex(), b.Hex())
	}
	return pool, nil
}

// Exists reports whether a pool is promoted for the pair.
func (pm *PoolManager) Exists(a, b common.Address) bool {
	_, ok := pm.pools[pairKeyOf(a, b)]
	return ok
}

// ValidateSwap checks the reserve invariants for a proposed post-swap
// state: the constant product must not decrease and both reserves must
// stay at or above the floor.
func (pm *PoolManager) ValidateSwap(pool *Pool, newBase, newQuote int64) error {
	if newBase < pm.minReserve {
		return reject.New(reject.ReasonBaseReservesBelowMin, "%d < %d", newBase, pm.minReserve)
	}
	if newQuote < pm.minReserve {
		return reject.New(reject.ReasonQuoteReservesBelowMin, "%d < %d", newQuote, pm.minReserve)
	}

	before := pip.ConstantProduct(pool.BaseReserves, pool.QuoteReserves)
	after := pip.ConstantProduct(newBase, newQuote)
	decreased := after.Cmp(before) < 0
	pip.Release(before)
	pip.Release(after)

	if decreased {
		return reject.New(reject.ReasonConstantProductDecrease,
			"(%d,%d) -> (%d,%d)", pool.BaseReserves, pool.QuoteReserves, newBase, newQuote)
	}
	return nil
}

// ValidateRemoval checks the floors for a proposed post-removal state.
// The constant product shrinks on removal, so only the floors apply.
func (pm *PoolManager) ValidateRemoval(pool *Pool, newBase, newQuote int64) error {
	if newBase < pm.minReserve {
		return reject.New(reject.ReasonBaseReservesBelowMin, "%d < %d", newBase, pm.minReserve)
	}
	if newQuote < pm.minReserve {
		return reject.New(reject.ReasonQuoteReservesBelowMin, "%d < %d", newQuote, pm.minReserve)
	}
	return nil
}

// SetReserves writes validated reserve values. Callers run ValidateSwap
// or ValidateRemoval first.
func (pm *PoolManager) SetReserves(pool *Pool, base, quote int64) {
	pool.BaseReserves = base
	pool.QuoteReserves = quote
}

// Mint increases the pair-token supply after a liquidity addition.
func (pm *PoolManager) Mint(pool *Pool, liquidity int64) {
	pool.PairTokenSupply += liquidity
}

// Burn decreases the pair-token supply after a liquidity removal.
func (pm *PoolManager) Burn(pool *Pool, liquidity int64) {
	pool.PairTokenSupply -= liquidity
}

// AssetReserveTotal sums one asset's reserves across all pools. The
// ledger's vault account for the asset must hold exactly this total.
func (pm *PoolManager) AssetReserveTotal(asset common.Address) int64 {
	var total int64
	for _, pool := range pm.pools {
		if pool.BaseAsset == asset {
			total += pool.BaseReserves
		}
		if pool.QuoteAsset == asset {
			total += pool.QuoteReserves
		}
	}
	return total
}

// AllPools returns every pool (for snapshot creation).
func (pm *PoolManager) AllPools() []*Pool {
	result := make([]*Pool, 0, len(pm.pools))
	for _, pool := range pm.pools {
		result = append(result, pool)
	}
	return result
}

// RestorePool directly sets a pool (used for snapshot restore).
func (pm *PoolManager) RestorePool(pool *Pool) {
	key := pairKeyOf(pool.BaseAsset, pool.QuoteAsset)
	pm.pools[key] = pool
	pm.byPairToken[pool.PairToken] = key
}
