package http

import (
	"net/http"
	"time"

	"finledger/internal/plans"
)

type planRequest struct {
	AccountID string    `json:"account_id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"` // milli-units
	Month     time.Time `json:"month"`
}

func (pr planRequest) toPlan() plans.Plan {
	return plans.Plan{AccountID: pr.AccountID, Type: pr.Type, Amount: pr.Amount, Month: pr.Month}
}

type planResponse struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	AccountName string    `json:"account_name,omitempty"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Month       time.Time `json:"month"`
}

func toPlanResponse(p plans.Plan) planResponse {
	return planResponse{ID: p.ID, AccountID: p.AccountID, Type: p.Type, Amount: p.Amount, Month: p.Month}
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	views, err := s.plans.List(r.Context(), ownerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]planResponse, len(views))
	for i, v := range views {
		out[i] = toPlanResponse(v.Plan)
		out[i].AccountName = v.AccountName
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.plans.Create(r.Context(), ownerID(r), req.toPlan())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanResponse(p))
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.plans.Update(r.Context(), ownerID(r), r.PathValue("id"), req.toPlan())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanResponse(p))
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.plans.Delete(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
