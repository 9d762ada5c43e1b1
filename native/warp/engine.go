package warp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"warpledger/core/events"
	"warpledger/core/types"
	"warpledger/crypto"
)

var (
	errNilState        = errors.New("warp engine: state not configured")
	errNilAccountStore = errors.New("warp engine: account store not configured")
	errNotInitialised  = errors.New("warp engine: contract not initialised")
)

type engineState interface {
	ledgerState
	Begin() error
	Commit() error
	Rollback()
	WarpParams() (*Params, bool, error)
	WarpSetParams(params *Params) error
}

// AccountStore moves real value out of the contract's funds. Implementations
// may fail; the engine then rolls back the enclosing call.
type AccountStore interface {
	Transfer(ctx context.Context, to [20]byte, amount *big.Int) error
}

// Metrics receives engine outcomes after each committed call.
type Metrics interface {
	RecordDeferral(reason string, fee *big.Int)
	RecordPassthrough()
	RecordRedemption(amount *big.Int, cleared int)
	RecordCancellation(existed bool)
	RecordFailure(operation, reason string)
	SetPending(count uint64)
}

type noopMetrics struct{}

func (noopMetrics) RecordDeferral(string, *big.Int) {}
func (noopMetrics) RecordPassthrough() {}
func (noopMetrics) RecordRedemption(*big.Int, int) {}
func (noopMetrics) RecordCancellation(bool) {}
func (noopMetrics) RecordFailure(string, string) {}
func (noopMetrics) SetPending(uint64) {}

type warpEvent struct {
	evt *types.Event
}

func (e warpEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e warpEvent) Event() *types.Event { return e.evt }

// Status is a point-in-time view of the contract scalars.
type Status struct {
	Active        bool
	FeeMultiplier Multiplier
	Privileged    [20]byte
	PendingCount  uint64
}

// Engine owns the pending and ghost ledgers and serialises every call
// against them. Each call runs inside a state transaction so a failure
// leaves state exactly as it was.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	store   AccountStore
	emitter events.Emitter
	metrics Metrics
	logger  *slog.Logger
	policy  Policy
	nowFn   func() int64
}

// NewEngine creates an engine with the default deferral policy, a no-op
// emitter and the wall clock in unix seconds.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		metrics: noopMetrics{},
		logger:  slog.Default(),
		policy:  DefaultPolicy(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAccountStore configures the capability used to pay fees and redemptions.
func (e *Engine) SetAccountStore(store AccountStore) { e.store = store }

// SetPolicy overrides the deferral thresholds.
func (e *Engine) SetPolicy(policy Policy) { e.policy = policy }

// SetNowFunc overrides the logical clock. Passing nil restores wall-clock
// seconds.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMetrics configures the metrics sink. Passing nil disables metrics.
func (e *Engine) SetMetrics(metrics Metrics) {
	if metrics == nil {
		e.metrics = noopMetrics{}
		return
	}
	e.metrics = metrics
}

// SetLogger configures the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("component", "warp"))
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// call collects the ledgers and side effects of a single engine call.
// Events and commit hooks only fire once the state transaction commits.
type call struct {
	ctx      context.Context
	pending  *PendingLedger
	ghost    *GhostLedger
	events   []*types.Event
	onCommit []func()
}

func (c *call) emit(evt *types.Event) { c.events = append(c.events, evt) }

func (c *call) after(fn func()) { c.onCommit = append(c.onCommit, fn) }

func (e *Engine) run(ctx context.Context, op string, fn func(c *call) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.state.Begin(); err != nil {
		return err
	}
	c := &call{ctx: ctx, pending: NewPendingLedger(e.state), ghost: NewGhostLedger(e.state)}
	if err := fn(c); err != nil {
		e.state.Rollback()
		e.metrics.RecordFailure(op, failureReason(err))
		e.logger.Warn("warp call rolled back", slog.String("operation", op), slog.String("error", err.Error()))
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.metrics.RecordFailure(op, "commit")
		return fmt.Errorf("warp: commit %s: %w", op, err)
	}
	for _, hook := range c.onCommit {
		hook()
	}
	for _, evt := range c.events {
		e.emitter.Emit(warpEvent{evt: evt})
	}
	if count, err := e.state.WarpPendingCount(); err == nil {
		e.metrics.SetPending(count)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInactiveContract):
		return "inactive"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientGhostBalance):
		return "insufficient_ghost_balance"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrInvalidMultiplier), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidAccount):
		return "invalid_argument"
	default:
		return "internal"
	}
}

func (e *Engine) loadParams() (*Params, error) {
	params, ok, err := e.state.WarpParams()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialised
	}
	return params, nil
}

func (e *Engine) activeParams() (*Params, error) {
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if !params.Active {
		return nil, ErrInactiveContract
	}
	return params, nil
}

func (e *Engine) privilegedParams(caller [20]byte) (*Params, error) {
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if caller != params.Privileged {
		return nil, ErrUnauthorized
	}
	return params, nil
}

func (e *Engine) transfer(ctx context.Context, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if e.store == nil {
		return errNilAccountStore
	}
	if err := e.store.Transfer(ctx, to, amount); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrTransferFailed, amount, crypto.AccountString(to), err)
	}
	return nil
}

// Init persists the contract scalars on first start. Re-initialising with
// the same privileged account is a no-op; a different one is rejected.
func (e *Engine) Init(params Params) error {
	if params.Privileged == ([20]byte{}) {
		return fmt.Errorf("%w: privileged account", ErrInvalidAccount)
	}
	if err := params.FeeMultiplier.Validate(); err != nil {
		return err
	}
	return e.run(context.Background(), "init", func(c *call) error {
		existing, ok, err := e.state.WarpParams()
		if err != nil {
			return err
		}
		if ok {
			if existing.Privileged != params.Privileged {
				return fmt.Errorf("warp: already initialised with privileged account %s", crypto.AccountString(existing.Privileged))
			}
			return nil
		}
		stored := params
		return e.state.WarpSetParams(&stored)
	})
}

// ProcessTransaction evaluates the deferral policy for a transfer. When it
// defers, the receiver is credited ghost balance, the transfer is recorded
// as the sender's pending entry and the escrow fee is paid to the receiver.
// Otherwise nothing is mutated and the caller must settle directly.
func (e *Engine) ProcessTransaction(ctx context.Context, sender, receiver [20]byte, amount *big.Int) (*Outcome, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if sender == ([20]byte{}) || receiver == ([20]byte{}) {
		return nil, ErrInvalidAccount
	}
	var outcome *Outcome
	err := e.run(ctx, "process_transaction", func(c *call) error {
		params, err := e.activeParams()
		if err != nil {
			return err
		}
		now := e.now()
		decision, err := e.policy.Evaluate(sender, now, c.pending)
		if err != nil {
			return err
		}
		if !decision.Defer {
			outcome = &Outcome{Fee: big.NewInt(0)}
			c.emit(NewPassthroughEvent(sender, receiver, amount, now))
			c.after(e.metrics.RecordPassthrough)
			return nil
		}
		tx := &Transaction{
			Sender:      sender,
			Receiver:    receiver,
			Amount:      cloneBigInt(amount),
			Timestamp:   now,
			Outstanding: cloneBigInt(amount),
		}
		if _, err := c.ghost.Credit(receiver, amount); err != nil {
			return err
		}
		replaced, err := c.pending.Insert(tx)
		if err != nil {
			return err
		}
		fee := params.FeeMultiplier.FeeFor(amount)
		if err := e.transfer(c.ctx, receiver, fee); err != nil {
			return err
		}
		if replaced != nil {
			e.logger.Debug("replaced pending entry",
				slog.String("sender", crypto.AccountString(sender)),
				slog.String("previous_receiver", crypto.AccountString(replaced.Receiver)),
				slog.String("previous_outstanding", cloneBigInt(replaced.Outstanding).String()))
		}
		outcome = &Outcome{Deferred: true, Reason: decision.Reason, Fee: fee, Pending: tx.Clone()}
		c.emit(NewDeferredEvent(tx, decision.Reason, fee))
		c.after(func() { e.metrics.RecordDeferral(string(decision.Reason), fee) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// RedeemGhostBalance converts amount of the receiver's ghost balance into a
// real transfer. Pending entries crediting the receiver are consumed oldest
// first and cleared once fully redeemed.
func (e *Engine) RedeemGhostBalance(ctx context.Context, receiver [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: redemption must be positive", ErrInvalidAmount)
	}
	return e.run(ctx, "redeem_ghost_balance", func(c *call) error {
		if _, err := e.activeParams(); err != nil {
			return err
		}
		remaining, err := c.ghost.Debit(receiver, amount)
		if err != nil {
			return err
		}
		cleared, err := c.pending.Consume(receiver, amount)
		if err != nil {
			return err
		}
		if err := e.transfer(c.ctx, receiver, amount); err != nil {
			return err
		}
		c.emit(NewRedeemedEvent(receiver, amount, remaining))
		for _, tx := range cleared {
			c.emit(NewPendingClearedEvent(tx))
		}
		redeemed := cloneBigInt(amount)
		c.after(func() { e.metrics.RecordRedemption(redeemed, len(cleared)) })
		return nil
	})
}

// CancelPending removes the sender's pending entry. Only the privileged
// account may cancel. Ghost balances already credited are left untouched,
// and cancelling an absent entry succeeds.
func (e *Engine) CancelPending(ctx context.Context, caller, sender [20]byte) error {
	return e.run(ctx, "cancel_pending", func(c *call) error {
		params, err := e.activeParams()
		if err != nil {
			return err
		}
		if caller != params.Privileged {
			return ErrUnauthorized
		}
		removed, existed, err := c.pending.Remove(sender)
		if err != nil {
			return err
		}
		if existed {
			c.emit(NewPendingCancelledEvent(removed))
		}
		c.after(func() { e.metrics.RecordCancellation(existed) })
		return nil
	})
}

// Activate enables the contract. Restricted to the privileged account.
func (e *Engine) Activate(ctx context.Context, caller [20]byte) error {
	return e.setActive(ctx, caller, true)
}

// Deactivate disables the contract. Restricted to the privileged account.
func (e *Engine) Deactivate(ctx context.Context, caller [20]byte) error {
	return e.setActive(ctx, caller, false)
}

func (e *Engine) setActive(ctx context.Context, caller [20]byte, active bool) error {
	op := "deactivate"
	if active {
		op = "activate"
	}
	return e.run(ctx, op, func(c *call) error {
		params, err := e.privilegedParams(caller)
		if err != nil {
			return err
		}
		if params.Active == active {
			return nil
		}
		params.Active = active
		if err := e.state.WarpSetParams(params); err != nil {
			return err
		}
		c.emit(NewActivationEvent(active, caller))
		return nil
	})
}

// SetFeeMultiplier replaces the escrow surcharge. Restricted to the
// privileged account; multipliers below 1 are rejected.
func (e *Engine) SetFeeMultiplier(ctx context.Context, caller [20]byte, multiplier Multiplier) error {
	if err := multiplier.Validate(); err != nil {
		return err
	}
	return e.run(ctx, "set_fee_multiplier", func(c *call) error {
		params, err := e.privilegedParams(caller)
		if err != nil {
			return err
		}
		previous := params.FeeMultiplier
		params.FeeMultiplier = multiplier
		if err := e.state.WarpSetParams(params); err != nil {
			return err
		}
		c.emit(NewMultiplierUpdatedEvent(previous, multiplier, caller))
		return nil
	})
}

// IsActive reports whether the contract accepts calls. An uninitialised or
// unreadable contract reports false.
func (e *Engine) IsActive() bool {
	status, err := e.Status()
	if err != nil {
		return false
	}
	return status.Active
}

// Status returns the contract scalars and the pending ledger size.
func (e *Engine) Status() (*Status, error) {
	var status *Status
	err := e.read(func() error {
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		count, err := e.state.WarpPendingCount()
		if err != nil {
			return err
		}
		status = &Status{
			Active:        params.Active,
			FeeMultiplier: params.FeeMultiplier,
			Privileged:    params.Privileged,
			PendingCount:  count,
		}
		return nil
	})
	return status, err
}

// GhostBalance returns the account's redeemable placeholder balance.
func (e *Engine) GhostBalance(account [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := e.read(func() error {
		var err error
		balance, err = NewGhostLedger(e.state).Balance(account)
		return err
	})
	return balance, err
}

// Pending returns the sender's pending entry, if any.
func (e *Engine) Pending(sender [20]byte) (*Transaction, bool, error) {
	var (
		tx *Transaction
		ok bool
	)
	err := e.read(func() error {
		var err error
		tx, ok, err = NewPendingLedger(e.state).Get(sender)
		return err
	})
	return tx, ok, err
}

func (e *Engine) read(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}
