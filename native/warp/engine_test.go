package warp

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"warpledger/core/events"
)

type transfer struct {
	to     [20]byte
	amount *big.Int
}

type mockStore struct {
	transfers []transfer
	fail      error
}

func (s *mockStore) Transfer(_ context.Context, to [20]byte, amount *big.Int) error {
	if s.fail != nil {
		return s.fail
	}
	s.transfers = append(s.transfers, transfer{to: to, amount: new(big.Int).Set(amount)})
	return nil
}

var admin = addr(0xad)

type engineFixture struct {
	engine   *Engine
	state    *mockState
	store    *mockStore
	recorder *events.Recorder
	now      int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{state: newMockState(), store: &mockStore{}, recorder: &events.Recorder{}, now: 1_700_000_000}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetAccountStore(f.store)
	f.engine.SetEmitter(f.recorder)
	f.engine.SetNowFunc(func() int64 { return f.now })
	if err := f.engine.Init(Params{FeeMultiplier: DefaultMultiplier, Privileged: admin, Active: true}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return f
}

// fill seeds n pending entries from senders that do not collide with addr(1..9).
func (f *engineFixture) fill(t *testing.T, n int) {
	t.Helper()
	ledger := NewPendingLedger(f.state)
	for i := 0; i < n; i++ {
		var sender [20]byte
		sender[0] = 0xf0
		sender[1] = byte(i >> 8)
		sender[2] = byte(i)
		tx := &Transaction{Sender: sender, Receiver: addr(0xee), Amount: big.NewInt(1), Outstanding: big.NewInt(1), Timestamp: f.now}
		if _, err := ledger.Insert(tx); err != nil {
			t.Fatalf("seed pending: %v", err)
		}
	}
}

func TestProcessTransactionPassthrough(t *testing.T) {
	f := newEngineFixture(t)
	f.fill(t, 100)

	outcome, err := f.engine.ProcessTransaction(context.Background(), addr(1), addr(2), big.NewInt(100))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Deferred {
		t.Fatalf("expected passthrough at capacity, got %+v", outcome)
	}
	if _, ok := f.state.pending[addr(1)]; ok {
		t.Fatalf("passthrough must not record a pending entry")
	}
	if len(f.store.transfers) != 0 {
		t.Fatalf("passthrough must not move value")
	}
	if types := f.recorder.Types(); len(types) != 1 || types[0] != EventTypePassthrough {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestProcessTransactionDefersUnderLoad(t *testing.T) {
	f := newEngineFixture(t)
	f.fill(t, 101)

	outcome, err := f.engine.ProcessTransaction(context.Background(), addr(1), addr(2), big.NewInt(100))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !outcome.Deferred || outcome.Reason != ReasonLoad {
		t.Fatalf("expected load deferral, got %+v", outcome)
	}
	if outcome.Fee.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected fee: %s", outcome.Fee)
	}
	balance, _ := f.engine.GhostBalance(addr(2))
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected ghost balance: %s", balance)
	}
	tx, ok, _ := f.engine.Pending(addr(1))
	if !ok || tx.Receiver != addr(2) || tx.Amount.Cmp(big.NewInt(100)) != 0 || tx.Timestamp != f.now {
		t.Fatalf("unexpected pending entry: %+v", tx)
	}
	if len(f.store.transfers) != 1 || f.store.transfers[0].to != addr(2) || f.store.transfers[0].amount.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected fee transfer to receiver, got %+v", f.store.transfers)
	}
	status, _ := f.engine.Status()
	if status.PendingCount != 102 {
		t.Fatalf("unexpected pending count: %d", status.PendingCount)
	}
	evt := f.recorder.Events()[0]
	if evt.Type != EventTypeDeferred || evt.Attributes["reason"] != "load" || evt.Attributes["fee"] != "150" {
		t.Fatalf("unexpected deferred event: %+v", evt)
	}
}

func TestProcessTransactionAlreadyPendingAndTimeout(t *testing.T) {
	f := newEngineFixture(t)
	f.fill(t, 101)
	ctx := context.Background()

	if _, err := f.engine.ProcessTransaction(ctx, addr(1), addr(2), big.NewInt(10)); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Drain the load so only the sender's own entry matters.
	f.state.count = 1
	f.now += 60
	outcome, err := f.engine.ProcessTransaction(ctx, addr(1), addr(3), big.NewInt(20))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if outcome.Reason != ReasonAlreadyPending {
		t.Fatalf("expected already_pending, got %+v", outcome)
	}
	f.now += DefaultTimeout + 1
	outcome, err = f.engine.ProcessTransaction(ctx, addr(1), addr(3), big.NewInt(5))
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if outcome.Reason != ReasonTimeout {
		t.Fatalf("expected timeout, got %+v", outcome)
	}
	if n := f.state.count; n != 1 {
		t.Fatalf("replacement must not grow the ledger, got %d", n)
	}
}

func TestProcessTransactionRollsBackOnTransferFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.fill(t, 101)
	f.store.fail = errors.New("treasury offline")

	_, err := f.engine.ProcessTransaction(context.Background(), addr(1), addr(2), big.NewInt(100))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if _, ok, _ := f.engine.Pending(addr(1)); ok {
		t.Fatalf("pending entry survived failed call")
	}
	if balance, _ := f.engine.GhostBalance(addr(2)); balance.Sign() != 0 {
		t.Fatalf("ghost credit survived failed call: %s", balance)
	}
	if f.state.count != 101 {
		t.Fatalf("pending count changed: %d", f.state.count)
	}
	if len(f.recorder.Events()) != 0 {
		t.Fatalf("events emitted for failed call")
	}
}

func TestProcessTransactionRejectsNegativeAmount(t *testing.T) {
	f := newEngineFixture(t)
	if _, err := f.engine.ProcessTransaction(context.Background(), addr(1), addr(2), big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRedeemGhostBalance(t *testing.T) {
	f := newEngineFixture(t)
	f.fill(t, 101)
	ctx := context.Background()
	if _, err := f.engine.ProcessTransaction(ctx, addr(1), addr(2), big.NewInt(150)); err != nil {
		t.Fatalf("process: %v", err)
	}
	f.store.transfers = nil

	if err := f.engine.RedeemGhostBalance(ctx, addr(2), big.NewInt(151)); !errors.Is(err, ErrInsufficientGhostBalance) {
		t.Fatalf("expected insufficient ghost balance, got %v", err)
	}
	if err := f.engine.RedeemGhostBalance(ctx, addr(2), big.NewInt(150)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if balance, _ := f.engine.GhostBalance(addr(2)); balance.Sign() != 0 {
		t.Fatalf("expected empty ghost balance, got %s", balance)
	}
	if _, ok, _ := f.engine.Pending(addr(1)); ok {
		t.Fatalf("redeemed entry must be cleared")
	}
	if len(f.store.transfers) != 1 || f.store.transfers[0].amount.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected transfers: %+v", f.store.transfers)
	}
	types := f.recorder.Types()
	if types[len(types)-2] != EventTypeRedeemed || types[len(types)-1] != EventTypePendingCleared {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestRedeemRollsBackOnTransferFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.fill(t, 101)
	ctx := context.Background()
	if _, err := f.engine.ProcessTransaction(ctx, addr(1), addr(2), big.NewInt(80)); err != nil {
		t.Fatalf("process: %v", err)
	}
	f.store.fail = errors.New("boom")

	if err := f.engine.RedeemGhostBalance(ctx, addr(2), big.NewInt(80)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if balance, _ := f.engine.GhostBalance(addr(2)); balance.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("ghost balance not restored: %s", balance)
	}
	if _, ok, _ := f.engine.Pending(addr(1)); !ok {
		t.Fatalf("pending entry not restored")
	}
}

func TestRedeemRejectsNonPositiveAmount(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.engine.RedeemGhostBalance(context.Background(), addr(2), big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCancelPending(t *testing.T) {
	f := newEngineFixture(t)
	f.fill(t, 101)
	ctx := context.Background()
	if _, err := f.engine.ProcessTransaction(ctx, addr(1), addr(2), big.NewInt(10)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := f.engine.CancelPending(ctx, addr(1), addr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.CancelPending(ctx, admin, addr(1)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.engine.CancelPending(ctx, admin, addr(1)); err != nil {
		t.Fatalf("second cancel should succeed: %v", err)
	}
	if _, ok, _ := f.engine.Pending(addr(1)); ok {
		t.Fatalf("entry not cancelled")
	}
	if balance, _ := f.engine.GhostBalance(addr(2)); balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("cancel must not touch ghost balance, got %s", balance)
	}
	if f.state.count != 101 {
		t.Fatalf("unexpected pending count: %d", f.state.count)
	}
}

func TestActivationToggle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.Deactivate(ctx, addr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.Deactivate(ctx, admin); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if f.engine.IsActive() {
		t.Fatalf("expected inactive contract")
	}
	if _, err := f.engine.ProcessTransaction(ctx, addr(1), addr(2), big.NewInt(1)); !errors.Is(err, ErrInactiveContract) {
		t.Fatalf("expected ErrInactiveContract, got %v", err)
	}
	if err := f.engine.RedeemGhostBalance(ctx, addr(2), big.NewInt(1)); !errors.Is(err, ErrInactiveContract) {
		t.Fatalf("expected ErrInactiveContract, got %v", err)
	}
	if err := f.engine.CancelPending(ctx, admin, addr(1)); !errors.Is(err, ErrInactiveContract) {
		t.Fatalf("expected ErrInactiveContract, got %v", err)
	}
	if err := f.engine.Activate(ctx, admin); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := f.engine.ProcessTransaction(ctx, addr(1), addr(2), big.NewInt(1)); err != nil {
		t.Fatalf("process after reactivation: %v", err)
	}
}

func TestSetFeeMultiplier(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.SetFeeMultiplier(ctx, addr(1), Multiplier{Num: 2, Den: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.SetFeeMultiplier(ctx, admin, Multiplier{Num: 1, Den: 2}); !errors.Is(err, ErrInvalidMultiplier) {
		t.Fatalf("expected ErrInvalidMultiplier, got %v", err)
	}
	if err := f.engine.SetFeeMultiplier(ctx, admin, Multiplier{Num: 2, Den: 1}); err != nil {
		t.Fatalf("set multiplier: %v", err)
	}
	f.fill(t, 101)
	outcome, err := f.engine.ProcessTransaction(ctx, addr(1), addr(2), big.NewInt(100))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Fee.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected fee after update: %s", outcome.Fee)
	}
}

func TestInitRejectsDifferentPrivilegedAccount(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.engine.Init(Params{FeeMultiplier: DefaultMultiplier, Privileged: admin, Active: true}); err != nil {
		t.Fatalf("re-init with same account: %v", err)
	}
	if err := f.engine.Init(Params{FeeMultiplier: DefaultMultiplier, Privileged: addr(1), Active: true}); err == nil {
		t.Fatalf("expected re-init with a different account to fail")
	}
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.ProcessTransaction(context.Background(), addr(1), addr(2), big.NewInt(1)); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
}
