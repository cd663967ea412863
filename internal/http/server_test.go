package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/advice"
	"finledger/internal/banksync"
	"finledger/internal/billing"
	httpapi "finledger/internal/http"
	"finledger/internal/importer"
	"finledger/internal/ledger"
	applog "finledger/internal/log"
	"finledger/internal/plans"
	"finledger/internal/storage/memory"
)

const (
	ownerToken = "token-1"
	owner      = "user-1"
)

type fakeProvider struct{}

func (fakeProvider) ExchangeToken(_ context.Context, publicToken string) (string, error) {
	return "access-" + publicToken, nil
}

func (fakeProvider) FetchSnapshot(context.Context, string) (banksync.Snapshot, error) {
	return banksync.Snapshot{
		Accounts: []banksync.ExternalAccount{{ID: "ext-a", Name: "Checking"}},
		Transactions: []banksync.ExternalTransaction{
			{AccountID: "ext-a", Amount: decimal.RequireFromString("100"), Payee: "Employer",
				Date: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)},
		},
	}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(context.Context, string) (string, error) {
	return "Save more.", nil
}

type fakeQueue struct {
	published []string
}

func (q *fakeQueue) PublishSyncRequest(_ context.Context, ownerID string) error {
	q.published = append(q.published, ownerID)
	return nil
}

type testEnv struct {
	ts    *httptest.Server
	store *memory.Store
	queue *fakeQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	reconciler := importer.New(store, 0)
	billingSvc := billing.NewService(store)
	queue := &fakeQueue{}
	srv := httpapi.NewServer("0", httpapi.Deps{
		Ledger:     ledger.NewService(store),
		Store:      store,
		Reconciler: reconciler,
		Billing:    billingSvc,
		Banksync:   banksync.NewService(fakeProvider{}, store, store, reconciler),
		Advice:     advice.NewService(store, billingSvc, fakeGenerator{}),
		Plans:      plans.NewService(store, store, billingSvc),
		Queue:      queue,
		Auth:       httpapi.TokenAuthenticator{ownerToken: owner, "token-2": "user-2"},
		Logger:     applog.New(applog.DefaultConfig()),
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: store, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*stdhttp.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func (e *testEnv) createAccount(t *testing.T, name string, balance int64) string {
	t.Helper()
	resp, body := e.do(t, "POST", "/api/accounts", ownerToken,
		map[string]any{"name": name, "balance": balance})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, string(body))
	var got struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	return got.ID
}

func (e *testEnv) activateSubscription(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, "POST", "/api/billing/events", "", map[string]any{
		"type":            "checkout.completed",
		"owner_id":        owner,
		"subscription_id": "sub-1",
		"customer_id":     "cus-1",
	})
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode, string(body))
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, "GET", "/api/accounts", "", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, "GET", "/api/accounts", "wrong-token", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode, "healthz is public")
}

func TestTransactionLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	accountID := e.createAccount(t, "Checking", 0)

	resp, body := e.do(t, "POST", "/api/transactions", ownerToken, map[string]any{
		"account_id": accountID,
		"amount":     125000,
		"payee":      "Employer",
		"date":       "2025-08-01T00:00:00Z",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body = e.do(t, "GET", "/api/accounts/"+accountID, ownerToken, nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	var acct struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &acct))
	assert.Equal(t, int64(125000), acct.Balance)

	resp, _ = e.do(t, "DELETE", "/api/transactions/"+created.ID, ownerToken, nil)
	require.Equal(t, stdhttp.StatusNoContent, resp.StatusCode)

	_, body = e.do(t, "GET", "/api/accounts/"+accountID, ownerToken, nil)
	require.NoError(t, json.Unmarshal(body, &acct))
	assert.Equal(t, int64(0), acct.Balance)
}

func TestOwnershipMapsToNotFound(t *testing.T) {
	e := newTestEnv(t)
	accountID := e.createAccount(t, "Checking", 0)

	resp, _ := e.do(t, "GET", "/api/accounts/"+accountID, "token-2", nil)
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode, "foreign resources look absent")
}

func TestTransferEndpoint(t *testing.T) {
	e := newTestEnv(t)
	from := e.createAccount(t, "Checking", 1000000)
	to := e.createAccount(t, "Savings", 0)

	resp, body := e.do(t, "POST", "/api/transfers", ownerToken, map[string]any{
		"from_account_id": from,
		"to_account_id":   to,
		"amount":          300000,
		"date":            "2025-08-15T00:00:00Z",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, string(body))
	var legs struct {
		Withdrawal struct {
			Amount int64 `json:"amount"`
		} `json:"withdrawal"`
		Deposit struct {
			Amount int64 `json:"amount"`
		} `json:"deposit"`
	}
	require.NoError(t, json.Unmarshal(body, &legs))
	assert.Equal(t, int64(-300000), legs.Withdrawal.Amount)
	assert.Equal(t, int64(300000), legs.Deposit.Amount)

	resp, _ = e.do(t, "POST", "/api/transfers", ownerToken, map[string]any{
		"from_account_id": from,
		"to_account_id":   from,
		"amount":          100,
		"date":            "2025-08-15T00:00:00Z",
	})
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}

func TestCSVImportEndpoint(t *testing.T) {
	e := newTestEnv(t)
	accountID := e.createAccount(t, "Checking", 0)

	csvBody := "Date,Payee,Amount\n2025-08-01,Shop,-10.00\n2025-08-02,Employer,2000.00\n"
	resp, body := e.do(t, "POST", "/api/import/csv?account_id="+accountID, ownerToken, csvBody)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode, string(body))
	var res struct {
		Inserted int `json:"inserted"`
		Dropped  int `json:"dropped"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Dropped)

	_, body = e.do(t, "GET", "/api/accounts/"+accountID, ownerToken, nil)
	var acct struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &acct))
	assert.Equal(t, int64(1990000), acct.Balance)
}

func TestBankEndpointsArePremium(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, "POST", "/api/bank/link", ownerToken, map[string]any{"public_token": "pt"})
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	e.activateSubscription(t)

	resp, body := e.do(t, "POST", "/api/bank/link", ownerToken, map[string]any{"public_token": "pt"})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, string(body))
	var res struct {
		Inserted int `json:"inserted"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 1, res.Inserted)

	resp, _ = e.do(t, "POST", "/api/bank/sync", ownerToken, nil)
	assert.Equal(t, stdhttp.StatusAccepted, resp.StatusCode, "queued when a queue is configured")
	assert.Equal(t, []string{owner}, e.queue.published)
}

func TestAdviceEndpoint(t *testing.T) {
	e := newTestEnv(t)
	accountID := e.createAccount(t, "Checking", 0)

	resp, _ := e.do(t, "GET", "/api/advice", ownerToken, nil)
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	e.activateSubscription(t)
	_, _ = e.do(t, "POST", "/api/transactions", ownerToken, map[string]any{
		"account_id": accountID,
		"amount":     -50000,
		"payee":      "Bistro",
		"date":       time.Now().UTC().Format(time.RFC3339),
	})

	resp, body := e.do(t, "GET", "/api/advice", ownerToken, nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode, string(body))
	var res struct {
		Advice string `json:"advice"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "Save more.", res.Advice)
}

func TestPlanEndpoints(t *testing.T) {
	e := newTestEnv(t)
	accountID := e.createAccount(t, "Checking", 0)

	planBody := map[string]any{
		"account_id": accountID,
		"type":       "savings",
		"amount":     500000,
		"month":      "2025-09-01T00:00:00Z",
	}
	resp, _ := e.do(t, "POST", "/api/plans", ownerToken, planBody)
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode, "plans are premium")

	e.activateSubscription(t)

	resp, body := e.do(t, "POST", "/api/plans", ownerToken, planBody)
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body = e.do(t, "GET", "/api/plans", ownerToken, nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode, string(body))
	var listed []struct {
		ID          string `json:"id"`
		AccountName string `json:"account_name"`
		Amount      int64  `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	assert.Equal(t, "Checking", listed[0].AccountName)
	assert.Equal(t, int64(500000), listed[0].Amount)

	planBody["amount"] = 750000
	resp, body = e.do(t, "PATCH", "/api/plans/"+created.ID, ownerToken, planBody)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode, string(body))

	resp, _ = e.do(t, "DELETE", "/api/plans/"+created.ID, "token-2", nil)
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode, "other owner has no subscription")

	resp, _ = e.do(t, "DELETE", "/api/plans/"+created.ID, ownerToken, nil)
	assert.Equal(t, stdhttp.StatusNoContent, resp.StatusCode)

	resp, _ = e.do(t, "DELETE", "/api/plans/"+created.ID, ownerToken, nil)
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
}

func TestBulkEndpoints(t *testing.T) {
	e := newTestEnv(t)
	accountID := e.createAccount(t, "Checking", 0)

	entries := make([]map[string]any, 3)
	for i := range entries {
		entries[i] = map[string]any{
			"account_id": accountID,
			"amount":     100000,
			"payee":      fmt.Sprintf("Payee %d", i),
			"date":       "2025-08-01T00:00:00Z",
		}
	}
	resp, body := e.do(t, "POST", "/api/transactions/bulk-create", ownerToken,
		map[string]any{"transactions": entries})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, string(body))
	var created []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.Len(t, created, 3)

	ids := []string{created[0].ID, created[1].ID, "not-a-real-id"}
	resp, body = e.do(t, "POST", "/api/transactions/bulk-delete", ownerToken,
		map[string]any{"ids": ids})
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode, string(body))
	var res struct {
		Deleted []string `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Len(t, res.Deleted, 2, "only owned existing rows are deleted")

	_, body = e.do(t, "GET", "/api/accounts/"+accountID, ownerToken, nil)
	var acct struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &acct))
	assert.Equal(t, int64(100000), acct.Balance)
}
