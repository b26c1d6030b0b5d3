package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	"github.com/pairbook/pairbook/pkg/clob"
	"github.com/pairbook/pairbook/pkg/delegation"
	"github.com/pairbook/pairbook/pkg/venue"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses, carrying the stable
// numeric code for typed ledger errors.
func writeError(w http.ResponseWriter, err error) {
	var lerr *clob.Error
	if errors.As(err, &lerr) {
		status := http.StatusBadRequest
		switch lerr.Code {
		case clob.CodeOrderNotFound, clob.CodeUserNotFound:
			status = http.StatusNotFound
		case clob.CodeOrderbookFull, clob.CodeTooManyUsers:
			status = http.StatusConflict
		case clob.CodeNotOrderOwner:
			status = http.StatusForbidden
		}
		writeJSON(w, status, errorResponse{Error: lerr.Msg, Code: uint32(lerr.Code)})
		return
	}

	switch {
	case errors.Is(err, venue.ErrLedgerNotFound), errors.Is(err, delegation.ErrNoHandoff):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, venue.ErrLedgerExists), errors.Is(err, venue.ErrNotWritable),
		errors.Is(err, delegation.ErrWrongLifecycle):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, delegation.ErrNotAuthority):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
}

func ledgerID(r *http.Request) (clob.ID, error) {
	raw := mux.Vars(r)["id"]
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return clob.ID{}, errors.New("invalid ledger id")
	}
	return common.BytesToHash(b), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createLedgerRequest struct {
	BaseAsset     common.Address `json:"baseAsset"`
	QuoteAsset    common.Address `json:"quoteAsset"`
	BaseDecimals  uint8          `json:"baseDecimals"`
	QuoteDecimals uint8          `json:"quoteDecimals"`
	Authority     common.Address `json:"authority"`
}

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req createLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	l, err := s.base.Initialize(req.BaseAsset, req.QuoteAsset, req.BaseDecimals, req.QuoteDecimals, req.Authority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": l.ID().Hex(), "ledger": l})
}

func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers := s.target(r).List()
	out := make([]map[string]any, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, map[string]any{
			"id":         l.ID().Hex(),
			"baseAsset":  l.BaseAsset.Hex(),
			"quoteAsset": l.QuoteAsset.Hex(),
			"status":     l.Status.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := ledgerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	l, ok := s.target(r).Ledger(id)
	if !ok {
		writeError(w, venue.ErrLedgerNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     l.ID().Hex(),
		"ledger": l,
		"status": l.Status.String(),
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := ledgerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	l, ok := s.target(r).Ledger(id)
	if !ok {
		writeError(w, venue.ErrLedgerNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bids":   l.Bids,
		"asks":   l.Asks,
		"status": l.Status.String(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := ledgerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	l, ok := s.target(r).Ledger(id)
	if !ok {
		writeError(w, venue.ErrLedgerNotFound)
		return
	}
	owner := common.HexToAddress(mux.Vars(r)["owner"])
	base, quote := l.GetBalance(owner)
	writeJSON(w, http.StatusOK, map[string]any{
		"owner": owner.Hex(), "baseAmount": base, "quoteAmount": quote,
	})
}

type createOrderRequest struct {
	Owner  common.Address `json:"owner"`
	Side   uint8          `json:"side"` // 0 = buy, 1 = sell
	Price  uint64         `json:"price"`
	Amount uint64         `json:"amount"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := ledgerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	orderID, err := s.target(r).CreateOrder(id, req.Owner, clob.Side(req.Side), req.Price, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"orderId": orderID})
}

type matchOrderRequest struct {
	Owner   common.Address `json:"owner"`
	OrderID uint64         `json:"orderId"`
}

func (s *Server) handleMatchOrder(w http.ResponseWriter, r *http.Request) {
	id, err := ledgerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req matchOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	fills, err := s.target(r).MatchOrder(id, req.Owner, req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(fills) > 0 {
		s.hub.BroadcastFills(id, fills)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": fills})
}

type depositRequest struct {
	Owner       common.Address `json:"owner"`
	QuoteAmount uint64         `json:"quoteAmount"`
	BaseAmount  uint64         `json:"baseAmount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := ledgerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.target(r).DepositBalance(id, req.Owner, req.QuoteAmount, req.BaseAmount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type withdrawRequest struct {
	Owner       common.Address `json:"owner"`
	BaseAmount  uint64         `json:"baseAmount"`
	QuoteAmount uint64         `json:"quoteAmount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := ledgerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.target(r).WithdrawFunds(id, req.Owner, req.BaseAmount, req.QuoteAmount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) pair(r *http.Request) (common.Address, common.Address, error) {
	id, err := ledgerID(r)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	l, ok := s.base.Ledger(id)
	if !ok {
		return common.Address{}, common.Address{}, venue.ErrLedgerNotFound
	}
	return l.BaseAsset, l.QuoteAsset, nil
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	base, quote, err := s.pair(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.mgr.Delegate(base, quote)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUndelegate(w http.ResponseWriter, r *http.Request) {
	base, quote, err := s.pair(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.mgr.Undelegate(base, quote); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "undelegating"})
}

type forceStatusRequest struct {
	Caller common.Address `json:"caller"`
	Status string         `json:"status"`
}

func parseStatus(s string) (clob.Status, error) {
	for _, st := range []clob.Status{
		clob.StatusLocal, clob.StatusDelegating, clob.StatusRemote,
		clob.StatusUndelegating, clob.StatusReconciling,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, errors.New("unknown lifecycle status: " + s)
}

// handleForceStatus is the operator escape hatch for wedged handoffs; the
// delegation manager checks that the caller is the ledger authority.
func (s *Server) handleForceStatus(w http.ResponseWriter, r *http.Request) {
	base, quote, err := s.pair(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req forceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.mgr.ForceStatus(req.Caller, base, quote, status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

type processUndelegationRequest struct {
	AccountSeeds []hexutil.Bytes `json:"accountSeeds"`
}

func (s *Server) handleProcessUndelegation(w http.ResponseWriter, r *http.Request) {
	var req processUndelegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	seeds := make([][]byte, len(req.AccountSeeds))
	for i, s := range req.AccountSeeds {
		seeds[i] = s
	}
	if err := s.mgr.ProcessUndelegation(seeds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}
