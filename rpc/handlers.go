package rpc

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"warpledger/crypto"
	"warpledger/native/warp"
)

func (s *Server) handleProcessTransaction(w http.ResponseWriter, r *http.Request) {
	sender, _ := CallerFrom(r.Context())
	var req TransactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err)
		return
	}
	receiver, err := crypto.ParseAccount(req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid receiver", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	outcome, err := s.engine.ProcessTransaction(r.Context(), sender, receiver, amount)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResult(outcome))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	receiver, _ := CallerFrom(r.Context())
	var req RedeemRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	if err := s.engine.RedeemGhostBalance(r.Context(), receiver, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeGhostBalance(w, r, receiver)
}

func (s *Server) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	sender, err := crypto.ParseAccount(chi.URLParam(r, "sender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sender", err)
		return
	}
	if err := s.engine.CancelPending(r.Context(), caller, sender); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPending(w http.ResponseWriter, r *http.Request) {
	sender, err := crypto.ParseAccount(chi.URLParam(r, "sender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sender", err)
		return
	}
	tx, ok, err := s.engine.Pending(sender)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no pending transaction", nil)
		return
	}
	writeJSON(w, http.StatusOK, pendingResult(tx))
}

func (s *Server) handleGhostBalance(w http.ResponseWriter, r *http.Request) {
	account, err := crypto.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account", err)
		return
	}
	s.writeGhostBalance(w, r, account)
}

func (s *Server) writeGhostBalance(w http.ResponseWriter, r *http.Request, account [20]byte) {
	balance, err := s.engine.GhostBalance(account)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GhostBalanceResult{Account: crypto.AccountString(account), Balance: balance.String()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResult{
		Active:        status.Active,
		FeeMultiplier: status.FeeMultiplier.String(),
		Privileged:    crypto.AccountString(status.Privileged),
		PendingCount:  status.PendingCount,
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if err := s.engine.Activate(r.Context(), caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if err := s.engine.Deactivate(r.Context(), caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleSetFeeMultiplier(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req MultiplierRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err)
		return
	}
	multiplier, err := warp.ParseMultiplier(req.Multiplier)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid multiplier", err)
		return
	}
	if err := s.engine.SetFeeMultiplier(r.Context(), caller, multiplier); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "event journal disabled", nil)
		return
	}
	query := r.URL.Query()
	var (
		after int64
		limit int
		err   error
	)
	if raw := query.Get("after"); raw != "" {
		if after, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid after", err)
			return
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
	}
	events, err := s.journal.ListEvents(r.Context(), query.Get("type"), after, limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
