package http

import (
	"net/http"
	"time"

	"finledger/internal/core"
)

type transactionRequest struct {
	AccountID  string    `json:"account_id"`
	CategoryID string    `json:"category_id,omitempty"`
	Amount     int64     `json:"amount"` // milli-units
	Payee      string    `json:"payee"`
	Notes      string    `json:"notes,omitempty"`
	Date       time.Time `json:"date"`
}

func (req transactionRequest) toDomain() core.Transaction {
	return core.Transaction{
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Payee:      req.Payee,
		Notes:      req.Notes,
		Date:       req.Date,
	}
}

type transactionResponse struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	CategoryID string    `json:"category_id,omitempty"`
	Amount     int64     `json:"amount"`
	Payee      string    `json:"payee"`
	Notes      string    `json:"notes,omitempty"`
	Date       time.Time `json:"date"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:         t.ID,
		AccountID:  t.AccountID,
		CategoryID: t.CategoryID,
		Amount:     t.Amount,
		Payee:      t.Payee,
		Notes:      t.Notes,
		Date:       t.Date,
	}
}

func toTransactionResponses(ts []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(ts))
	for i, t := range ts {
		out[i] = toTransactionResponse(t)
	}
	return out
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDateRange(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	ts, err := s.store.ListTransactions(r.Context(), ownerID(r), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponses(ts))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTransaction(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := s.ledger.CreateTransaction(r.Context(), ownerID(r), req.toDomain())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := s.ledger.UpdateTransaction(r.Context(), ownerID(r), r.PathValue("id"), req.toDomain())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkCreateTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transactions []transactionRequest `json:"transactions"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	ts := make([]core.Transaction, len(req.Transactions))
	for i, tr := range req.Transactions {
		ts[i] = tr.toDomain()
	}
	created, err := s.ledger.BulkCreate(r.Context(), ownerID(r), ts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponses(created))
}

func (s *Server) handleBulkDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	deleted, err := s.ledger.BulkDelete(r.Context(), ownerID(r), req.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromAccountID string    `json:"from_account_id"`
		ToAccountID   string    `json:"to_account_id"`
		Amount        int64     `json:"amount"`
		Date          time.Time `json:"date"`
		Notes         string    `json:"notes,omitempty"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	withdrawal, deposit, err := s.ledger.Transfer(r.Context(), ownerID(r), core.TransferRequest{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Date:          req.Date,
		Notes:         req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]transactionResponse{
		"withdrawal": toTransactionResponse(withdrawal),
		"deposit":    toTransactionResponse(deposit),
	})
}
