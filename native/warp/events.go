package warp

import (
	"math/big"
	"strconv"

	"warpledger/core/types"
	"warpledger/crypto"
)

const (
	EventTypeDeferred          = "warp.deferred"
	EventTypePassthrough       = "warp.passthrough"
	EventTypeRedeemed          = "warp.redeemed"
	EventTypePendingCleared    = "warp.pending.cleared"
	EventTypePendingCancelled  = "warp.pending.cancelled"
	EventTypeActivated         = "warp.activated"
	EventTypeDeactivated       = "warp.deactivated"
	EventTypeMultiplierUpdated = "warp.fee_multiplier.updated"
)

// NewDeferredEvent describes a transfer that was escrowed and the fee paid
// to its receiver.
func NewDeferredEvent(tx *Transaction, reason Reason, fee *big.Int) *types.Event {
	evt := newTransactionEvent(EventTypeDeferred, tx)
	evt.Attributes["reason"] = string(reason)
	evt.Attributes["fee"] = cloneBigInt(fee).String()
	return evt
}

// NewPassthroughEvent tells the integrator that the transfer must settle
// directly.
func NewPassthroughEvent(sender, receiver [20]byte, amount *big.Int, now int64) *types.Event {
	return newTransactionEvent(EventTypePassthrough, &Transaction{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: now,
	})
}

// NewRedeemedEvent records a ghost balance redemption.
func NewRedeemedEvent(receiver [20]byte, amount, remaining *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRedeemed,
		Attributes: map[string]string{
			"receiver":  crypto.AccountString(receiver),
			"amount":    cloneBigInt(amount).String(),
			"remaining": cloneBigInt(remaining).String(),
		},
	}
}

// NewPendingClearedEvent marks a pending entry removed by full redemption.
func NewPendingClearedEvent(tx *Transaction) *types.Event {
	return newTransactionEvent(EventTypePendingCleared, tx)
}

// NewPendingCancelledEvent marks a pending entry removed by the privileged
// account.
func NewPendingCancelledEvent(tx *Transaction) *types.Event {
	return newTransactionEvent(EventTypePendingCancelled, tx)
}

func NewActivationEvent(active bool, caller [20]byte) *types.Event {
	typ := EventTypeDeactivated
	if active {
		typ = EventTypeActivated
	}
	return &types.Event{
		Type:       typ,
		Attributes: map[string]string{"caller": crypto.AccountString(caller)},
	}
}

func NewMultiplierUpdatedEvent(previous, next Multiplier, caller [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeMultiplierUpdated,
		Attributes: map[string]string{
			"caller":   crypto.AccountString(caller),
			"previous": previous.String(),
			"current":  next.String(),
		},
	}
}

func newTransactionEvent(eventType string, tx *Transaction) *types.Event {
	attrs := map[string]string{}
	if tx != nil {
		attrs["sender"] = crypto.AccountString(tx.Sender)
		attrs["receiver"] = crypto.AccountString(tx.Receiver)
		attrs["amount"] = cloneBigInt(tx.Amount).String()
		attrs["timestamp"] = strconv.FormatInt(tx.Timestamp, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
