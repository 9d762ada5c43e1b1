package warp

import "time"

const (
	// DefaultTimeout is the pending age beyond which a sender's transfers
	// are deferred, in logical seconds.
	DefaultTimeout = int64(3 * time.Hour / time.Second)
	// DefaultCapacity is the pending ledger size above which every transfer
	// is deferred.
	DefaultCapacity = uint64(100)
)

// Reason names the trigger behind a deferral decision.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonTimeout        Reason = "timeout"
	ReasonLoad           Reason = "load"
	ReasonAlreadyPending Reason = "already_pending"
)

// Decision is the result of evaluating the deferral policy.
type Decision struct {
	Defer  bool
	Reason Reason
}

// PendingView is the read-only slice of the pending ledger the policy
// inspects.
type PendingView interface {
	Get(sender [20]byte) (*Transaction, bool, error)
	Len() (uint64, error)
}

// Policy decides whether a transfer is escrowed instead of settled
// directly. The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	Timeout  int64
	Capacity uint64
}

// DefaultPolicy returns the policy with the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{Timeout: DefaultTimeout, Capacity: DefaultCapacity}
}

// Decide applies the three triggers to pre-mutation state. entry is the
// sender's pending transaction or nil.
func (p Policy) Decide(now int64, entry *Transaction, queueLength uint64) Decision {
	// A missing entry has age zero, so the timeout trigger cannot fire
	// for a sender without history.
	if entry != nil && entry.Age(now) > p.Timeout {
		return Decision{Defer: true, Reason: ReasonTimeout}
	}
	if queueLength > p.Capacity {
		return Decision{Defer: true, Reason: ReasonLoad}
	}
	if entry != nil {
		return Decision{Defer: true, Reason: ReasonAlreadyPending}
	}
	return Decision{}
}

// Evaluate looks up the sender's entry and the queue length and decides.
func (p Policy) Evaluate(sender [20]byte, now int64, pending PendingView) (Decision, error) {
	entry, _, err := pending.Get(sender)
	if err != nil {
		return Decision{}, err
	}
	queueLength, err := pending.Len()
	if err != nil {
		return Decision{}, err
	}
	return p.Decide(now, entry, queueLength), nil
}

// ShouldDefer reports only the boolean outcome of Evaluate.
func (p Policy) ShouldDefer(sender [20]byte, now int64, pending PendingView) (bool, error) {
	decision, err := p.Evaluate(sender, now, pending)
	if err != nil {
		return false, err
	}
	return decision.Defer, nil
}
