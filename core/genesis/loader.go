package genesis

import (
	"fmt"

	"warpledger/core/state"
)

// Apply writes the spec into state unless the contract is already
// initialised. Params, treasury funds and allocations commit together. It
// reports whether anything was written.
func Apply(spec *GenesisSpec, manager *state.Manager) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return false, fmt.Errorf("state manager must not be nil")
	}
	existing, ok, err := manager.WarpParams()
	if err != nil {
		return false, fmt.Errorf("read params: %w", err)
	}
	if ok {
		if existing.Privileged != spec.privileged {
			return false, fmt.Errorf("state already initialised with a different privileged account")
		}
		return false, nil
	}

	if err := manager.Begin(); err != nil {
		return false, err
	}
	if err := manager.SetStateVersion(state.StateVersion); err != nil {
		manager.Rollback()
		return false, fmt.Errorf("write state version: %w", err)
	}
	params := spec.Params()
	if err := manager.WarpSetParams(&params); err != nil {
		manager.Rollback()
		return false, fmt.Errorf("write params: %w", err)
	}
	if err := manager.AddBalance(spec.treasury, spec.funds); err != nil {
		manager.Rollback()
		return false, fmt.Errorf("fund treasury: %w", err)
	}
	for _, entry := range spec.alloc {
		if err := manager.AddBalance(entry.account, entry.amount); err != nil {
			manager.Rollback()
			return false, fmt.Errorf("alloc: %w", err)
		}
	}
	if err := manager.Commit(); err != nil {
		return false, fmt.Errorf("commit genesis: %w", err)
	}
	return true, nil
}
