package state

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/reject"
)

// AssetStatus tracks an asset through the two-step listing flow.
type AssetStatus int32

const (
	AssetPending AssetStatus = iota
	AssetConfirmed
)

// Asset is a listed ERC-20 style asset identified by contract address.
type Asset struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Status   AssetStatus
}

// AssetRegistry maintains the pending/confirmed asset set. Symbols resolve
// only to confirmed assets; a later confirmation for the same symbol
// supersedes the earlier mapping.
type AssetRegistry struct {
	byAddress map[common.Address]*Asset
	bySymbol  map[string]common.Address
}

func NewAssetRegistry() *AssetRegistry {
	return &AssetRegistry{
		byAddress: make(map[common.Address]*Asset),
		bySymbol:  make(map[string]common.Address),
	}
}

// Register records a pending asset listing. Re-registering a pending asset
// with identical fields is idempotent.
func (r *AssetRegistry) Register(addr common.Address, symbol string, decimals uint8) error {
	existing := r.byAddress[addr]
	if existing == nil {
		r.byAddress[addr] = &Asset{
			Address:  addr,
			Symbol:   symbol,
			Decimals: decimals,
			Status:   AssetPending,
		}
		return nil
	}

	if existing.Status == AssetConfirmed {
		return reject.New(reject.ReasonAssetAlreadyConfirmed, "asset %s", addr.Hex())
	}
	if existing.Symbol != symbol || existing.Decimals != decimals {
		return reject.New(reject.ReasonAssetRegistrationMismatch,
			"asset %s registered as %s/%d", addr.Hex(), existing.Symbol, existing.Decimals)
	}
	return nil
}

// Confirm promotes a pending registration. The confirmation must repeat
// the registered fields exactly.
func (r *AssetRegistry) Confirm(addr common.Address, symbol string, decimals uint8) error {
	existing := r.byAddress[addr]
	if existing == nil {
		return reject.New(reject.ReasonAssetNotRegistered, "asset %s", addr.Hex())
	}
	if existing.Status == AssetConfirmed {
		return reject.New(reject.ReasonAssetAlreadyConfirmed, "asset %s", addr.Hex())
	}
	if existing.Symbol != symbol || existing.Decimals != decimals {
		return reject.New(reject.ReasonAssetRegistrationMismatch,
			"asset %s registered as %s/%d", addr.Hex(), existing.Symbol, existing.Decimals)
	}

	existing.Status = AssetConfirmed
	r.bySymbol[symbol] = addr
	return nil
}

// Get returns the asset at an address regardless of status.
func (r *AssetRegistry) Get(addr common.Address) (*Asset, bool) {
	a, ok := r.byAddress[addr]
	return a, ok
}

// ConfirmedBySymbol resolves a market symbol to its confirmed asset.
func (r *AssetRegistry) ConfirmedBySymbol(symbol string) (*Asset, error) {
	addr, ok := r.bySymbol[symbol]
	if !ok {
		return nil, reject.New(reject.ReasonNoConfirmedAsset, "symbol %s", symbol)
	}
	return r.byAddress[addr], nil
}

// VerifySymbol checks that a symbol resolves to the given address. Trade
// instructions carry both and they must agree.
func (r *AssetRegistry) VerifySymbol(symbol string, addr common.Address) error {
	asset, err := r.ConfirmedBySymbol(symbol)
	if err != nil {
		return err
	}
	if asset.Address != addr {
		return reject.New(reject.ReasonSymbolAddressMismatch,
			"symbol %s is %s, instruction says %s", symbol, asset.Address.Hex(), addr.Hex())
	}
	return nil
}

// AllAssets returns every registered asset (for snapshot creation).
func (r *AssetRegistry) AllAssets() []*Asset {
	result := make([]*Asset, 0, len(r.byAddress))
	for _, a := range r.byAddress {
		result = append(result, a)
	}
	return result
}

// RestoreAsset directly sets an asset (used for snapshot restore).
func (r *AssetRegistry) RestoreAsset(a *Asset) {
	r.byAddress[a.Address] = a
	if a.Status == AssetConfirmed {
		r.bySymbol[a.Symbol] = a.Address
	}
}
