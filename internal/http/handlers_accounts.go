package http

import (
	"net/http"

	"finledger/internal/core"
)

type accountResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
	Balance    int64  `json:"balance"` // milli-units
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{ID: a.ID, Name: a.Name, ExternalID: a.ExternalID, Balance: a.Balance}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context(), ownerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAccount(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Balance int64  `json:"balance"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a, err := s.ledger.CreateAccount(r.Context(), ownerID(r), req.Name, req.Balance)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(a))
}

func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.ledger.RenameAccount(r.Context(), ownerID(r), r.PathValue("id"), req.Name); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": r.PathValue("id"), "name": req.Name})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.ledger.DeleteAccounts(r.Context(), ownerID(r), []string{r.PathValue("id")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(deleted) == 0 {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkDeleteAccounts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	deleted, err := s.ledger.DeleteAccounts(r.Context(), ownerID(r), req.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
