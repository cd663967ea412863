package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"finledger/internal/billing"
	"finledger/internal/core"
	"finledger/internal/ledger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "status", status, "error", msg)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Partial
// failures are a success with a warning attached, not an error status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if pf, ok := core.AsPartialFailure(err); ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"warning":  pf.Warning,
			"inserted": pf.Inserted,
			"dropped":  pf.Dropped,
		})
		return
	}
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflicting concurrent modification, retry")
	case errors.Is(err, billing.ErrNotEntitled):
		writeError(w, r, http.StatusForbidden, "active subscription required")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", core.ErrInvalidArgument, err)
	}
	return nil
}

// parseDateRange reads optional from/to query parameters in YYYY-MM-DD.
func parseDateRange(r *http.Request) (ledger.TransactionFilter, error) {
	var f ledger.TransactionFilter
	f.AccountID = strings.TrimSpace(r.URL.Query().Get("account_id"))

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid 'from' date %q", core.ErrInvalidArgument, v)
		}
		f.From = t
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid 'to' date %q", core.ErrInvalidArgument, v)
		}
		f.To = t
	}
	return f, nil
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
