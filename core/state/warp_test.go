package state

import (
	"math/big"
	"testing"

	"warpledger/native/warp"
)

func account(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestWarpPendingRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t)

	tx := &warp.Transaction{
		Sender:      account(1),
		Receiver:    account(2),
		Amount:      big.NewInt(100),
		Outstanding: big.NewInt(100),
		Timestamp:   1_700_000_000,
	}
	if err := manager.WarpPendingPut(tx); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := manager.WarpPendingGet(account(1))
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Receiver != tx.Receiver || got.Amount.Cmp(tx.Amount) != 0 || got.Timestamp != tx.Timestamp {
		t.Fatalf("unexpected pending entry: %+v", got)
	}
	if err := manager.WarpPendingDelete(account(1)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := manager.WarpPendingGet(account(1)); ok {
		t.Fatalf("expected entry to be removed")
	}
}

func TestWarpPendingRejectsNegativeTimestamp(t *testing.T) {
	manager, _ := newTestManager(t)
	err := manager.WarpPendingPut(&warp.Transaction{Sender: account(1), Amount: big.NewInt(1), Timestamp: -1})
	if err == nil {
		t.Fatalf("expected negative timestamp to be rejected")
	}
}

func TestWarpCountAndIndex(t *testing.T) {
	manager, _ := newTestManager(t)

	count, err := manager.WarpPendingCount()
	if err != nil || count != 0 {
		t.Fatalf("expected zero count, got %d err=%v", count, err)
	}
	if err := manager.WarpSetPendingCount(3); err != nil {
		t.Fatalf("set count: %v", err)
	}
	if count, _ = manager.WarpPendingCount(); count != 3 {
		t.Fatalf("unexpected count: %d", count)
	}

	senders := [][20]byte{account(1), account(3)}
	if err := manager.WarpSetReceiverIndex(account(9), senders); err != nil {
		t.Fatalf("set index: %v", err)
	}
	got, err := manager.WarpReceiverIndex(account(9))
	if err != nil || len(got) != 2 || got[1] != account(3) {
		t.Fatalf("unexpected index: %v err=%v", got, err)
	}
	if err := manager.WarpSetReceiverIndex(account(9), nil); err != nil {
		t.Fatalf("clear index: %v", err)
	}
	if got, _ = manager.WarpReceiverIndex(account(9)); len(got) != 0 {
		t.Fatalf("expected empty index, got %v", got)
	}
}

func TestWarpGhostBalanceZeroDeletes(t *testing.T) {
	manager, _ := newTestManager(t)

	if err := manager.WarpSetGhostBalance(account(4), big.NewInt(150)); err != nil {
		t.Fatalf("set: %v", err)
	}
	balance, _ := manager.WarpGhostBalance(account(4))
	if balance.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected balance: %s", balance)
	}
	if err := manager.WarpSetGhostBalance(account(4), big.NewInt(0)); err != nil {
		t.Fatalf("zero: %v", err)
	}
	if ok, _ := manager.KVGet(warpGhostKey(account(4)), nil); ok {
		t.Fatalf("zero balance should not be stored")
	}
	if err := manager.WarpSetGhostBalance(account(4), big.NewInt(-5)); err == nil {
		t.Fatalf("expected negative balance error")
	}
}

func TestWarpParamsRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, ok, _ := manager.WarpParams(); ok {
		t.Fatalf("expected params to be absent")
	}
	params := &warp.Params{FeeMultiplier: warp.Multiplier{Num: 7, Den: 4}, Privileged: account(8), Active: true}
	if err := manager.WarpSetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	got, ok, err := manager.WarpParams()
	if err != nil || !ok {
		t.Fatalf("get params: ok=%v err=%v", ok, err)
	}
	if got.FeeMultiplier != params.FeeMultiplier || got.Privileged != params.Privileged || !got.Active {
		t.Fatalf("unexpected params: %+v", got)
	}
}
