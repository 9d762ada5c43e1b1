package state

import (
	"errors"
	"math/big"
	"testing"

	"warpledger/storage"
)

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	return NewManager(db), db
}

func TestKVRoundTripOutsideTransaction(t *testing.T) {
	manager, _ := newTestManager(t)

	if err := manager.KVPut([]byte("counter"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got uint64
	ok, err := manager.KVGet([]byte("counter"), &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != 7 {
		t.Fatalf("unexpected value: %d", got)
	}
	if err := manager.KVDelete([]byte("counter")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := manager.KVGet([]byte("counter"), &got); ok {
		t.Fatalf("expected key to be removed")
	}
}

func TestKVRejectsEmptyKey(t *testing.T) {
	manager, _ := newTestManager(t)
	if err := manager.KVPut(nil, uint64(1)); !errors.Is(err, errEmptyKey) {
		t.Fatalf("expected empty key error, got %v", err)
	}
}

func TestCommitAppliesJournal(t *testing.T) {
	manager, db := newTestManager(t)

	if err := manager.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := manager.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if has, _ := db.Has(kvKey([]byte("a"))); has {
		t.Fatalf("journaled write reached the database before commit")
	}
	var got uint64
	if ok, _ := manager.KVGet([]byte("a"), &got); !ok || got != 1 {
		t.Fatalf("expected read-your-writes inside transaction, got ok=%v value=%d", ok, got)
	}
	if err := manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if manager.InTransaction() {
		t.Fatalf("transaction still open after commit")
	}
	if has, _ := db.Has(kvKey([]byte("a"))); !has {
		t.Fatalf("commit did not persist write")
	}
}

func TestRollbackDiscardsJournal(t *testing.T) {
	manager, _ := newTestManager(t)

	if err := manager.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := manager.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := manager.KVDelete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := manager.KVPut([]byte("b"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	manager.Rollback()

	var got uint64
	if ok, _ := manager.KVGet([]byte("a"), &got); !ok || got != 1 {
		t.Fatalf("rollback lost seeded value")
	}
	if ok, _ := manager.KVGet([]byte("b"), &got); ok {
		t.Fatalf("rollback kept journaled write")
	}
}

func TestNestedBeginRejected(t *testing.T) {
	manager, _ := newTestManager(t)
	if err := manager.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := manager.Begin(); !errors.Is(err, errTxOpen) {
		t.Fatalf("expected nested begin error, got %v", err)
	}
	if err := manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := manager.Commit(); !errors.Is(err, errNoTx) {
		t.Fatalf("expected commit without transaction to fail, got %v", err)
	}
}

func TestBalanceCredit(t *testing.T) {
	manager, _ := newTestManager(t)
	var addr [20]byte
	addr[0] = 0x11

	balance, err := manager.Balance(addr)
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("expected empty balance, got %v err=%v", balance, err)
	}
	if err := manager.AddBalance(addr, big.NewInt(40)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := manager.AddBalance(addr, big.NewInt(2)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balance, _ = manager.Balance(addr)
	if balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected balance: %s", balance)
	}
}

func TestBalanceOverflowRejected(t *testing.T) {
	manager, _ := newTestManager(t)
	var addr [20]byte
	ceiling := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := manager.SetBalance(addr, ceiling); err != nil {
		t.Fatalf("set max balance: %v", err)
	}
	if err := manager.AddBalance(addr, big.NewInt(1)); err == nil {
		t.Fatalf("expected overflow error")
	}
	if err := manager.SetBalance(addr, big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance error")
	}
}
