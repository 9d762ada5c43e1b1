package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"warpledger/crypto"
	"warpledger/native/warp"
)

// TransactionRequest submits a transfer from the authenticated caller.
type TransactionRequest struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

// RedeemRequest converts part of the caller's ghost balance.
type RedeemRequest struct {
	Amount string `json:"amount"`
}

// MultiplierRequest replaces the fee multiplier. Accepts "1.5" or "3/2".
type MultiplierRequest struct {
	Multiplier string `json:"multiplier"`
}

// PendingResult is the JSON form of a pending ledger entry.
type PendingResult struct {
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Amount      string `json:"amount"`
	Outstanding string `json:"outstanding"`
	Timestamp   int64  `json:"timestamp"`
}

// OutcomeResult reports what happened to a submitted transfer.
type OutcomeResult struct {
	Deferred bool           `json:"deferred"`
	Reason   string         `json:"reason,omitempty"`
	Fee      string         `json:"fee"`
	Pending  *PendingResult `json:"pending,omitempty"`
}

// GhostBalanceResult is the JSON form of an account's ghost balance.
type GhostBalanceResult struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// StatusResult mirrors warp.Status.
type StatusResult struct {
	Active        bool   `json:"active"`
	FeeMultiplier string `json:"feeMultiplier"`
	Privileged    string `json:"privileged"`
	PendingCount  uint64 `json:"pendingCount"`
}

func pendingResult(tx *warp.Transaction) *PendingResult {
	if tx == nil {
		return nil
	}
	outstanding := "0"
	if tx.Outstanding != nil {
		outstanding = tx.Outstanding.String()
	}
	return &PendingResult{
		Sender:      crypto.AccountString(tx.Sender),
		Receiver:    crypto.AccountString(tx.Receiver),
		Amount:      tx.Amount.String(),
		Outstanding: outstanding,
		Timestamp:   tx.Timestamp,
	}
}

func outcomeResult(outcome *warp.Outcome) OutcomeResult {
	fee := "0"
	if outcome.Fee != nil {
		fee = outcome.Fee.String()
	}
	return OutcomeResult{
		Deferred: outcome.Deferred,
		Reason:   string(outcome.Reason),
		Fee:      fee,
		Pending:  pendingResult(outcome.Pending),
	}
}

// parseAmount accepts a non-negative base-10 integer.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
