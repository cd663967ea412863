package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"time"

	"finledger/internal/billing"
	"finledger/internal/csvimport"
)

// handleCSVImport parses the uploaded statement and reconciles it into the
// account named by the account_id query parameter. The first row must be a
// header naming at least date, payee and amount columns.
func (s *Server) handleCSVImport(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, r, http.StatusBadRequest, "account_id query parameter is required")
		return
	}
	if _, err := s.store.GetAccount(r.Context(), ownerID(r), accountID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	body := io.LimitReader(r.Body, 10<<20)
	header, rest, err := peekHeader(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mapping, err := csvimport.DetectMapping(header)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	candidates, err := csvimport.Parse(rest, accountID, csvimport.Options{
		Mapping:    mapping,
		DateLayout: r.URL.Query().Get("date_layout"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := s.reconciler.Reconcile(r.Context(), ownerID(r), candidates)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inserted": res.Inserted,
		"dropped":  res.Dropped,
	})
}

// peekHeader splits the first CSV record off the stream and returns a
// reader over the remaining rows.
func peekHeader(r io.Reader) ([]string, io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	cr := csv.NewReader(bytes.NewReader(data))
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("empty or malformed CSV")
	}
	offset := cr.InputOffset()
	return header, bytes.NewReader(data[offset:]), nil
}

func (s *Server) handleBankLink(w http.ResponseWriter, r *http.Request) {
	if s.banksync == nil {
		writeError(w, r, http.StatusServiceUnavailable, "bank sync is not configured")
		return
	}
	if !s.requireEntitled(w, r) {
		return
	}
	var req struct {
		PublicToken string `json:"public_token"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.PublicToken == "" {
		writeError(w, r, http.StatusBadRequest, "public_token is required")
		return
	}
	res, err := s.banksync.Link(r.Context(), ownerID(r), req.PublicToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"inserted": res.Inserted,
		"dropped":  res.Dropped,
	})
}

func (s *Server) handleBankUnlink(w http.ResponseWriter, r *http.Request) {
	if s.banksync == nil {
		writeError(w, r, http.StatusServiceUnavailable, "bank sync is not configured")
		return
	}
	if err := s.banksync.Unlink(r.Context(), ownerID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBankSync triggers a re-import. With a queue configured the work
// happens in the worker and the call returns 202; otherwise it runs inline.
func (s *Server) handleBankSync(w http.ResponseWriter, r *http.Request) {
	if s.banksync == nil {
		writeError(w, r, http.StatusServiceUnavailable, "bank sync is not configured")
		return
	}
	if !s.requireEntitled(w, r) {
		return
	}
	if s.queue != nil {
		if err := s.queue.PublishSyncRequest(r.Context(), ownerID(r)); err != nil {
			writeError(w, r, http.StatusInternalServerError, "failed to enqueue sync request")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	res, err := s.banksync.Sync(r.Context(), ownerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inserted": res.Inserted,
		"dropped":  res.Dropped,
	})
}

func (s *Server) handleBillingEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type           string `json:"type"`
		OwnerID        string `json:"owner_id"`
		SubscriptionID string `json:"subscription_id"`
		CustomerID     string `json:"customer_id"`
		Status         string `json:"status"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	err := s.billing.ApplyEvent(r.Context(), billing.Event{
		Type:           req.Type,
		OwnerID:        req.OwnerID,
		SubscriptionID: req.SubscriptionID,
		CustomerID:     req.CustomerID,
		Status:         req.Status,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	if s.advice == nil {
		writeError(w, r, http.StatusServiceUnavailable, "advice is not configured")
		return
	}
	filter, err := parseDateRange(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	from, to := filter.From, filter.To
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	text, err := s.advice.Budget(r.Context(), ownerID(r), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"advice": text})
}

func (s *Server) requireEntitled(w http.ResponseWriter, r *http.Request) bool {
	ok, err := s.billing.IsEntitled(r.Context(), ownerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return false
	}
	if !ok {
		writeServiceError(w, r, billing.ErrNotEntitled)
		return false
	}
	return true
}
