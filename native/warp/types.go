package warp

import (
	"errors"
	"math/big"
)

var (
	// ErrInactiveContract is returned when an operation is attempted while the
	// contract is deactivated.
	ErrInactiveContract = errors.New("warp: contract is not active")
	// ErrUnauthorized is returned when a non-privileged caller invokes a
	// privileged operation.
	ErrUnauthorized = errors.New("warp: caller is not the privileged account")
	// ErrInsufficientGhostBalance is returned when a redemption exceeds the
	// receiver's ghost balance.
	ErrInsufficientGhostBalance = errors.New("warp: insufficient ghost balance")
	// ErrTransferFailed wraps failures reported by the account store. Any
	// ledger mutation applied in the same call has been rolled back.
	ErrTransferFailed = errors.New("warp: value transfer failed")

	ErrInvalidAmount     = errors.New("warp: amount must be non-negative")
	ErrInvalidMultiplier = errors.New("warp: fee multiplier must be at least 1")
	ErrInvalidAccount    = errors.New("warp: account must not be empty")
)

// Transaction is a deferred transfer held in the pending ledger. Sender,
// Receiver, Amount and Timestamp never change once recorded. Outstanding
// tracks the part of Amount whose ghost credit has not been redeemed yet.
type Transaction struct {
	Sender      [20]byte
	Receiver    [20]byte
	Amount      *big.Int
	Timestamp   int64
	Outstanding *big.Int
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Amount = cloneBigInt(t.Amount)
	clone.Outstanding = cloneBigInt(t.Outstanding)
	return &clone
}

// Age returns how long the transaction has been pending at now. A clock
// reading earlier than the timestamp yields zero.
func (t *Transaction) Age(now int64) int64 {
	if t == nil || now <= t.Timestamp {
		return 0
	}
	return now - t.Timestamp
}

// Params holds the contract-wide scalars persisted alongside the ledgers.
// Privileged is fixed at initialisation.
type Params struct {
	FeeMultiplier Multiplier
	Privileged    [20]byte
	Active        bool
}

// Outcome reports what ProcessTransaction did with a transfer.
type Outcome struct {
	Deferred bool
	Reason   Reason
	Fee      *big.Int
	Pending  *Transaction
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
