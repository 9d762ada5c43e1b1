package warp

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
)

// ledgerState is the raw storage surface both ledgers are built on.
type ledgerState interface {
	WarpPendingGet(sender [20]byte) (*Transaction, bool, error)
	WarpPendingPut(tx *Transaction) error
	WarpPendingDelete(sender [20]byte) error
	WarpPendingCount() (uint64, error)
	WarpSetPendingCount(count uint64) error
	WarpReceiverIndex(receiver [20]byte) ([][20]byte, error)
	WarpSetReceiverIndex(receiver [20]byte, senders [][20]byte) error
	WarpGhostBalance(account [20]byte) (*big.Int, error)
	WarpSetGhostBalance(account [20]byte, amount *big.Int) error
}

// PendingLedger maps each sender to the single transaction it is currently
// escrowing. A receiver index links entries to the account holding their
// ghost credit so redemption can clear them.
type PendingLedger struct {
	state ledgerState
}

// NewPendingLedger binds a pending ledger to the supplied state.
func NewPendingLedger(state ledgerState) *PendingLedger {
	return &PendingLedger{state: state}
}

// Get returns a copy of the sender's pending entry.
func (l *PendingLedger) Get(sender [20]byte) (*Transaction, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	return l.state.WarpPendingGet(sender)
}

// Len returns the number of pending entries.
func (l *PendingLedger) Len() (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.WarpPendingCount()
}

// Insert records tx for its sender. An existing entry for the same sender is
// replaced and returned.
func (l *PendingLedger) Insert(tx *Transaction) (*Transaction, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if tx == nil {
		return nil, fmt.Errorf("warp: nil pending transaction")
	}
	prev, exists, err := l.state.WarpPendingGet(tx.Sender)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := l.unindex(prev.Receiver, prev.Sender); err != nil {
			return nil, err
		}
	} else {
		count, err := l.state.WarpPendingCount()
		if err != nil {
			return nil, err
		}
		if err := l.state.WarpSetPendingCount(count + 1); err != nil {
			return nil, err
		}
	}
	if err := l.state.WarpPendingPut(tx); err != nil {
		return nil, err
	}
	if err := l.index(tx.Receiver, tx.Sender); err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return prev, nil
}

// Remove deletes the sender's entry. Removing an absent entry is a no-op.
func (l *PendingLedger) Remove(sender [20]byte) (*Transaction, bool, error) {
	if l == nil || l.state == nil {
		return nil, false, errNilState
	}
	prev, exists, err := l.state.WarpPendingGet(sender)
	if err != nil || !exists {
		return nil, false, err
	}
	if err := l.state.WarpPendingDelete(sender); err != nil {
		return nil, false, err
	}
	if err := l.unindex(prev.Receiver, sender); err != nil {
		return nil, false, err
	}
	count, err := l.state.WarpPendingCount()
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		count--
	}
	if err := l.state.WarpSetPendingCount(count); err != nil {
		return nil, false, err
	}
	return prev, true, nil
}

// ByReceiver returns the entries crediting receiver, oldest first. Ties are
// broken by sender bytes so the order is deterministic.
func (l *PendingLedger) ByReceiver(receiver [20]byte) ([]*Transaction, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	senders, err := l.state.WarpReceiverIndex(receiver)
	if err != nil {
		return nil, err
	}
	entries := make([]*Transaction, 0, len(senders))
	for _, sender := range senders {
		tx, ok, err := l.state.WarpPendingGet(sender)
		if err != nil {
			return nil, err
		}
		if !ok || tx.Receiver != receiver {
			continue
		}
		entries = append(entries, tx)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return bytes.Compare(entries[i].Sender[:], entries[j].Sender[:]) < 0
	})
	return entries, nil
}

// Consume applies a redemption of amount against the receiver's entries and
// returns the entries whose outstanding credit reached zero. Those entries
// are removed from the ledger. Credit not attributable to any entry (for
// example from an entry that was replaced or cancelled) is ignored.
func (l *PendingLedger) Consume(receiver [20]byte, amount *big.Int) ([]*Transaction, error) {
	entries, err := l.ByReceiver(receiver)
	if err != nil {
		return nil, err
	}
	remaining := cloneBigInt(amount)
	cleared := make([]*Transaction, 0)
	for _, entry := range entries {
		if remaining.Sign() <= 0 {
			break
		}
		outstanding := cloneBigInt(entry.Outstanding)
		take := outstanding
		if remaining.Cmp(outstanding) < 0 {
			take = remaining
		}
		outstanding = new(big.Int).Sub(outstanding, take)
		remaining = new(big.Int).Sub(remaining, take)
		entry.Outstanding = outstanding
		if outstanding.Sign() == 0 {
			if _, _, err := l.Remove(entry.Sender); err != nil {
				return nil, err
			}
			cleared = append(cleared, entry)
			continue
		}
		if err := l.state.WarpPendingPut(entry); err != nil {
			return nil, err
		}
	}
	return cleared, nil
}

func (l *PendingLedger) index(receiver, sender [20]byte) error {
	senders, err := l.state.WarpReceiverIndex(receiver)
	if err != nil {
		return err
	}
	for _, existing := range senders {
		if existing == sender {
			return nil
		}
	}
	return l.state.WarpSetReceiverIndex(receiver, append(senders, sender))
}

func (l *PendingLedger) unindex(receiver, sender [20]byte) error {
	senders, err := l.state.WarpReceiverIndex(receiver)
	if err != nil {
		return err
	}
	filtered := senders[:0]
	for _, existing := range senders {
		if existing != sender {
			filtered = append(filtered, existing)
		}
	}
	return l.state.WarpSetReceiverIndex(receiver, filtered)
}

// GhostLedger maps accounts to their redeemable placeholder balance.
type GhostLedger struct {
	state ledgerState
}

// NewGhostLedger binds a ghost ledger to the supplied state.
func NewGhostLedger(state ledgerState) *GhostLedger {
	return &GhostLedger{state: state}
}

// Balance returns the account's ghost balance (zero when absent).
func (g *GhostLedger) Balance(account [20]byte) (*big.Int, error) {
	if g == nil || g.state == nil {
		return nil, errNilState
	}
	balance, err := g.state.WarpGhostBalance(account)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(balance), nil
}

// Credit increases the account's ghost balance and returns the new value.
func (g *GhostLedger) Credit(account [20]byte, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	balance, err := g.Balance(account)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(balance, amount)
	if err := g.state.WarpSetGhostBalance(account, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Debit decreases the account's ghost balance. The balance never goes
// negative: a debit larger than the balance fails without mutation.
func (g *GhostLedger) Debit(account [20]byte, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	balance, err := g.Balance(account)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientGhostBalance, balance, amount)
	}
	next := new(big.Int).Sub(balance, amount)
	if err := g.state.WarpSetGhostBalance(account, next); err != nil {
		return nil, err
	}
	return next, nil
}
