// Package http exposes the ledger over a JSON API: accounts, categories,
// transactions, transfers, plans, CSV import, bank sync and billing events.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"finledger/internal/advice"
	"finledger/internal/banksync"
	"finledger/internal/billing"
	"finledger/internal/importer"
	"finledger/internal/ledger"
	applog "finledger/internal/log"
	"finledger/internal/plans"
)

// SyncQueue enqueues background bank-sync requests. Satisfied by
// amqp.Client; nil means sync runs inline.
type SyncQueue interface {
	PublishSyncRequest(ctx context.Context, ownerID string) error
}

type Server struct {
	http.Server

	ledger     *ledger.Service
	store      ledger.Store
	reconciler *importer.Reconciler
	billing    *billing.Service
	banksync   *banksync.Service
	advice     *advice.Service
	plans      *plans.Service
	queue      SyncQueue
	auth       Authenticator
	logger     *applog.Logger
}

type Deps struct {
	Ledger     *ledger.Service
	Store      ledger.Store
	Reconciler *importer.Reconciler
	Billing    *billing.Service
	Banksync   *banksync.Service // nil disables bank endpoints
	Advice     *advice.Service   // nil disables the advice endpoint
	Plans      *plans.Service
	Queue      SyncQueue // nil runs syncs inline
	Auth       Authenticator
	Logger     *applog.Logger
}

func NewServer(port string, deps Deps) *Server {
	s := &Server{
		ledger:     deps.Ledger,
		store:      deps.Store,
		reconciler: deps.Reconciler,
		billing:    deps.Billing,
		banksync:   deps.Banksync,
		advice:     deps.Advice,
		plans:      deps.Plans,
		queue:      deps.Queue,
		auth:       deps.Auth,
		logger:     deps.Logger.WithComponent(applog.ComponentHTTP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Billing events arrive from the payments provider, already verified
	// upstream, so they bypass the bearer middleware.
	mux.HandleFunc("POST /api/billing/events", s.handleBillingEvent)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/accounts", s.handleListAccounts)
	api.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	api.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	api.HandleFunc("PATCH /api/accounts/{id}", s.handleRenameAccount)
	api.HandleFunc("DELETE /api/accounts/{id}", s.handleDeleteAccount)
	api.HandleFunc("POST /api/accounts/bulk-delete", s.handleBulkDeleteAccounts)

	api.HandleFunc("GET /api/categories", s.handleListCategories)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)
	api.HandleFunc("GET /api/categories/{id}", s.handleGetCategory)
	api.HandleFunc("PATCH /api/categories/{id}", s.handleRenameCategory)
	api.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	api.HandleFunc("POST /api/categories/bulk-delete", s.handleBulkDeleteCategories)

	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	api.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api.HandleFunc("POST /api/transactions/bulk-create", s.handleBulkCreateTransactions)
	api.HandleFunc("POST /api/transactions/bulk-delete", s.handleBulkDeleteTransactions)

	api.HandleFunc("POST /api/transfers", s.handleTransfer)
	api.HandleFunc("POST /api/import/csv", s.handleCSVImport)

	api.HandleFunc("POST /api/bank/link", s.handleBankLink)
	api.HandleFunc("DELETE /api/bank/link", s.handleBankUnlink)
	api.HandleFunc("POST /api/bank/sync", s.handleBankSync)

	api.HandleFunc("GET /api/plans", s.handleListPlans)
	api.HandleFunc("POST /api/plans", s.handleCreatePlan)
	api.HandleFunc("PATCH /api/plans/{id}", s.handleUpdatePlan)
	api.HandleFunc("DELETE /api/plans/{id}", s.handleDeletePlan)

	api.HandleFunc("GET /api/advice", s.handleAdvice)

	mux.Handle("/api/", s.requireAuth(api))

	s.Server = http.Server{
		Addr:              ":" + port,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		requestID := generateRequestID()

		next.ServeHTTP(rec, r)

		s.logger.InfoContext(r.Context(), "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rec.status,
			applog.FieldDuration, time.Since(start).Milliseconds())
	})
}
