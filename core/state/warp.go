package state

import (
	"fmt"
	"math/big"

	"warpledger/native/warp"
)

var (
	warpPendingPrefix   = []byte("warp/pending/")
	warpPendingCountKey = []byte("warp/pending-count")
	warpReceiverPrefix  = []byte("warp/receiver/")
	warpGhostPrefix     = []byte("warp/ghost/")
	warpParamsKey       = []byte("warp/params")
)

type storedWarpTransaction struct {
	Sender      [20]byte
	Receiver    [20]byte
	Amount      *big.Int
	Outstanding *big.Int
	Timestamp   uint64
}

type storedWarpParams struct {
	MultiplierNum uint64
	MultiplierDen uint64
	Privileged    [20]byte
	Active        bool
}

func warpPendingKey(sender [20]byte) []byte { return prefixedKey(warpPendingPrefix, sender[:]) }
func warpReceiverKey(receiver [20]byte) []byte { return prefixedKey(warpReceiverPrefix, receiver[:]) }
func warpGhostKey(account [20]byte) []byte { return prefixedKey(warpGhostPrefix, account[:]) }

// WarpPendingGet loads the sender's pending transaction.
func (m *Manager) WarpPendingGet(sender [20]byte) (*warp.Transaction, bool, error) {
	var stored storedWarpTransaction
	ok, err := m.KVGet(warpPendingKey(sender), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &warp.Transaction{
		Sender:      stored.Sender,
		Receiver:    stored.Receiver,
		Amount:      nonNil(stored.Amount),
		Outstanding: nonNil(stored.Outstanding),
		Timestamp:   int64(stored.Timestamp),
	}, true, nil
}

// WarpPendingPut stores tx under its sender, overwriting any previous entry.
func (m *Manager) WarpPendingPut(tx *warp.Transaction) error {
	if tx == nil {
		return fmt.Errorf("warp state: nil transaction")
	}
	if tx.Timestamp < 0 {
		return fmt.Errorf("warp state: negative timestamp %d", tx.Timestamp)
	}
	amount, outstanding := nonNil(tx.Amount), nonNil(tx.Outstanding)
	if amount.Sign() < 0 || outstanding.Sign() < 0 {
		return fmt.Errorf("warp state: negative amount")
	}
	stored := storedWarpTransaction{
		Sender:      tx.Sender,
		Receiver:    tx.Receiver,
		Amount:      amount,
		Outstanding: outstanding,
		Timestamp:   uint64(tx.Timestamp),
	}
	return m.KVPut(warpPendingKey(tx.Sender), &stored)
}

// WarpPendingDelete removes the sender's pending transaction.
func (m *Manager) WarpPendingDelete(sender [20]byte) error {
	return m.KVDelete(warpPendingKey(sender))
}

// WarpPendingCount returns the number of pending entries.
func (m *Manager) WarpPendingCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(warpPendingCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// WarpSetPendingCount overwrites the pending entry count.
func (m *Manager) WarpSetPendingCount(count uint64) error {
	return m.KVPut(warpPendingCountKey, count)
}

// WarpReceiverIndex returns the senders whose pending entry credits receiver.
func (m *Manager) WarpReceiverIndex(receiver [20]byte) ([][20]byte, error) {
	var senders [][20]byte
	if _, err := m.KVGet(warpReceiverKey(receiver), &senders); err != nil {
		return nil, err
	}
	return senders, nil
}

// WarpSetReceiverIndex replaces the receiver's sender index. An empty index
// removes the key.
func (m *Manager) WarpSetReceiverIndex(receiver [20]byte, senders [][20]byte) error {
	if len(senders) == 0 {
		return m.KVDelete(warpReceiverKey(receiver))
	}
	return m.KVPut(warpReceiverKey(receiver), senders)
}

// WarpGhostBalance returns the account's ghost balance, zero when absent.
func (m *Manager) WarpGhostBalance(account [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(warpGhostKey(account), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// WarpSetGhostBalance stores the account's ghost balance. Zero balances are
// deleted rather than stored.
func (m *Manager) WarpSetGhostBalance(account [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(warpGhostKey(account))
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("warp state: negative ghost balance %s", amount)
	}
	return m.KVPut(warpGhostKey(account), amount)
}

// WarpParams loads the contract scalars.
func (m *Manager) WarpParams() (*warp.Params, bool, error) {
	var stored storedWarpParams
	ok, err := m.KVGet(warpParamsKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &warp.Params{
		FeeMultiplier: warp.Multiplier{Num: stored.MultiplierNum, Den: stored.MultiplierDen},
		Privileged:    stored.Privileged,
		Active:        stored.Active,
	}, true, nil
}

// WarpSetParams stores the contract scalars.
func (m *Manager) WarpSetParams(params *warp.Params) error {
	if params == nil {
		return fmt.Errorf("warp state: nil params")
	}
	stored := storedWarpParams{
		MultiplierNum: params.FeeMultiplier.Num,
		MultiplierDen: params.FeeMultiplier.Den,
		Privileged:    params.Privileged,
		Active:        params.Active,
	}
	return m.KVPut(warpParamsKey, &stored)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
