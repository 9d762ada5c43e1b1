package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"warpledger/core/state"
	"warpledger/crypto"
)

// ErrInsufficientFunds is returned when the treasury cannot cover a transfer.
var ErrInsufficientFunds = errors.New("bank: insufficient treasury balance")

// Treasury pays fees and redemptions out of a single funding account. It
// writes through the state manager, so transfers made inside an open state
// transaction commit or roll back with it.
type Treasury struct {
	manager *state.Manager
	source  [20]byte
}

// NewTreasury binds a treasury to the funding account source.
func NewTreasury(manager *state.Manager, source [20]byte) *Treasury {
	return &Treasury{manager: manager, source: source}
}

// Source returns the funding account.
func (t *Treasury) Source() [20]byte { return t.source }

// Balance returns the funding account's balance.
func (t *Treasury) Balance() (*big.Int, error) {
	if t == nil || t.manager == nil {
		return nil, fmt.Errorf("bank: state manager required")
	}
	return t.manager.Balance(t.source)
}

// Fund credits amount to the funding account. Used when loading genesis.
func (t *Treasury) Fund(amount *big.Int) error {
	if t == nil || t.manager == nil {
		return fmt.Errorf("bank: state manager required")
	}
	return t.manager.AddBalance(t.source, amount)
}

// Transfer moves amount from the funding account to to.
func (t *Treasury) Transfer(ctx context.Context, to [20]byte, amount *big.Int) error {
	if t == nil || t.manager == nil {
		return fmt.Errorf("bank: state manager required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if to == t.source {
		return fmt.Errorf("bank: transfer to treasury account %s", crypto.AccountString(to))
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return fmt.Errorf("bank: amount %s overflows 256 bits", amount)
	}
	balance, err := t.manager.Balance(t.source)
	if err != nil {
		return err
	}
	have, _ := uint256.FromBig(balance)
	remaining, underflow := new(uint256.Int).SubOverflow(have, value)
	if underflow {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, balance, amount)
	}
	if err := t.manager.SetBalance(t.source, remaining.ToBig()); err != nil {
		return err
	}
	return t.manager.AddBalance(to, amount)
}
