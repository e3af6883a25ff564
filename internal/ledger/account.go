package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// ScopeWallet holds a wallet's spendable funds. Never negative.
	ScopeWallet AccountScope = iota

	// ScopePoolVault mirrors the liquidity reserves per asset. Never
	// negative; the per-pool split lives in the reserve engine.
	ScopePoolVault

	// ScopeFeeCollector accumulates trade, gas and protocol fees.
	ScopeFeeCollector

	// ScopeCustody is the boundary with the custody collaborator. Goes
	// negative as deposits flow in, which keeps the ledger zero-sum.
	ScopeCustody

	// ScopeIssuance is the pair-token mint/burn counterpart account.
	ScopeIssuance
)

// AccountKey is the in-memory key for balance tracking.
type AccountKey struct {
	Scope  AccountScope
	Wallet common.Address // zero for non-wallet scopes
	Asset  common.Address
}

// NewWalletAccountKey creates a key for a wallet's balance in one asset.
func NewWalletAccountKey(wallet, asset common.Address) AccountKey {
	return AccountKey{Scope: ScopeWallet, Wallet: wallet, Asset: asset}
}

// NewPoolVaultKey creates a key for the reserve vault in one asset.
func NewPoolVaultKey(asset common.Address) AccountKey {
	return AccountKey{Scope: ScopePoolVault, Asset: asset}
}

// NewFeeCollectorKey creates a key for the fee collector in one asset.
func NewFeeCollectorKey(asset common.Address) AccountKey {
	return AccountKey{Scope: ScopeFeeCollector, Asset: asset}
}

// NewCustodyKey creates a key for the custody boundary in one asset.
func NewCustodyKey(asset common.Address) AccountKey {
	return AccountKey{Scope: ScopeCustody, Asset: asset}
}

// NewIssuanceKey creates a key for pair-token issuance in one asset.
func NewIssuanceKey(asset common.Address) AccountKey {
	return AccountKey{Scope: ScopeIssuance, Asset: asset}
}

// MustStayNonNegative reports whether the scope carries the never-negative
// invariant. Boundary scopes (custody, issuance) absorb the offsetting
// negative side of the zero-sum ledger.
func (k AccountKey) MustStayNonNegative() bool {
	return k.Scope == ScopeWallet || k.Scope == ScopePoolVault || k.Scope == ScopeFeeCollector
}

func (k AccountKey) scopeName() string {
	switch k.Scope {
	case ScopeWallet:
		return "wallet"
	case ScopePoolVault:
		return "vault"
	case ScopeFeeCollector:
		return "fees"
	case ScopeCustody:
		return "custody"
	case ScopeIssuance:
		return "issuance"
	}
	return "unknown"
}

// AccountPath returns the string representation for storage/logging.
func (k AccountKey) AccountPath() string {
	if k.Scope == ScopeWallet {
		return fmt.Sprintf("wallet:%s:%s", strings.ToLower(k.Wallet.Hex()), strings.ToLower(k.Asset.Hex()))
	}
	return fmt.Sprintf("%s:%s", k.scopeName(), strings.ToLower(k.Asset.Hex()))
}

// ParseAccountPath reverses AccountPath. Used during snapshot restore.
func ParseAccountPath(path string) AccountKey {
	parts := strings.Split(path, ":")

	if len(parts) == 3 && parts[0] == "wallet" {
		return AccountKey{
			Scope:  ScopeWallet,
			Wallet: common.HexToAddress(parts[1]),
			Asset:  common.HexToAddress(parts[2]),
		}
	}

	if len(parts) != 2 {
		return AccountKey{}
	}

	key := AccountKey{Asset: common.HexToAddress(parts[1])}
	switch parts[0] {
	case "vault":
		key.Scope = ScopePoolVault
	case "fees":
		key.Scope = ScopeFeeCollector
	case "custody":
		key.Scope = ScopeCustody
	case "issuance":
		key.Scope = ScopeIssuance
	}
	return key
}
