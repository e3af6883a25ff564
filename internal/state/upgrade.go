package state

import (
	"github.com/ethereum/go-ethereum/common"

	"DexSettle/internal/instruction"
	"DexSettle/internal/reject"
)

// PendingUpgrade is an initiated but not yet finalized address change.
type PendingUpgrade struct {
	NewAddress       common.Address
	InitiatedAtBlock int64
}

// RoleState holds the active address and any pending upgrade for one
// privileged role.
type RoleState struct {
	Current common.Address
	Pending *PendingUpgrade
}

// UpgradeManager runs the two-phase timelocked upgrade flow for the
// exchange and governance roles. An upgrade initiates, waits out the
// block delay, then finalizes with the same address; at most one upgrade
// per role is in flight.
type UpgradeManager struct {
	roles       map[instruction.UpgradeRole]*RoleState
	delayBlocks int64
}

func NewUpgradeManager(exchange, governance common.Address, delayBlocks int64) *UpgradeManager {
	return &UpgradeManager{
		roles: map[instruction.UpgradeRole]*RoleState{
			instruction.RoleExchange:   {Current: exchange},
			instruction.RoleGovernance: {Current: governance},
		},
		delayBlocks: delayBlocks,
	}
}

// CurrentAddress returns the active address for a role.
func (um *UpgradeManager) CurrentAddress(role instruction.UpgradeRole) common.Address {
	return um.roles[role].Current
}

// Initiate starts the timelock for a role upgrade.
func (um *UpgradeManager) Initiate(role instruction.UpgradeRole, newAddress common.Address, blockHeight int64) error {
	st := um.roles[role]
	if st.Pending != nil {
		return reject.New(reject.ReasonUpgradeInProgress, "role %s", role)
	}
	if newAddress == st.Current {
		return reject.New(reject.ReasonMustBeDifferent, "role %s already at %s", role, newAddress.Hex())
	}

	st.Pending = &PendingUpgrade{
		NewAddress:       newAddress,
		InitiatedAtBlock: blockHeight,
	}
	return nil
}

// Cancel abandons an in-flight upgrade.
func (um *UpgradeManager) Cancel(role instruction.UpgradeRole) error {
	st := um.roles[role]
	if st.Pending == nil {
		return reject.New(reject.ReasonNoUpgradeInProgress, "role %s", role)
	}

	st.Pending = nil
	return nil
}

// Finalize commits an upgrade once the delay has elapsed. The finalize
// instruction repeats the new address and it must match the initiation.
func (um *UpgradeManager) Finalize(role instruction.UpgradeRole, newAddress common.Address, blockHeight int64) error {
	st := um.roles[role]
	if st.Pending == nil {
		return reject.New(reject.ReasonNoUpgradeInProgress, "role %s", role)
	}
	if newAddress != st.Pending.NewAddress {
		return reject.New(reject.ReasonAddressMismatch,
			"role %s pending %s, finalize says %s", role, st.Pending.NewAddress.Hex(), newAddress.Hex())
	}
	if blockHeight < st.Pending.InitiatedAtBlock+um.delayBlocks {
		return reject.New(reject.ReasonBlockThresholdNotReached,
			"block %d < %d", blockHeight, st.Pending.InitiatedAtBlock+um.delayBlocks)
	}

	st.Current = st.Pending.NewAddress
	st.Pending = nil
	return nil
}

// RoleStates returns the state of every role (for snapshot creation).
func (um *UpgradeManager) RoleStates() map[instruction.UpgradeRole]RoleState {
	result := make(map[instruction.UpgradeRole]RoleState, len(um.roles))
	for role, st := range um.roles {
		copied := *st
		if st.Pending != nil {
			pending := *st.Pending
			copied.Pending = &pending
		}
		result[role] = copied
	}
	return result
}

// RestoreRole directly sets a role state (used for snapshot restore).
func (um *UpgradeManager) RestoreRole(role instruction.UpgradeRole, st RoleState) {
	copied := st
	um.roles[role] = &copied
}
