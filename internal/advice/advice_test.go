package advice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/billing"
	"finledger/internal/core"
	"finledger/internal/ledger"
	"finledger/internal/storage/memory"
)

type fakeEntitlements bool

func (f fakeEntitlements) IsEntitled(context.Context, string) (bool, error) {
	return bool(f), nil
}

type fakeGenerator struct {
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return "Spend less on dining out.", nil
}

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	err := store.RunInTx(ctx, func(tx ledger.Tx) error {
		if err := tx.CreateAccount(ctx, core.Account{ID: "a1", OwnerID: "user-1", Name: "Checking"}); err != nil {
			return err
		}
		if err := tx.CreateCategory(ctx, core.Category{ID: "c1", OwnerID: "user-1", Name: "Dining"}); err != nil {
			return err
		}
		return tx.InsertTransactions(ctx, []core.Transaction{
			{ID: "t1", AccountID: "a1", CategoryID: "c1", Amount: -42500, Payee: "Bistro",
				Date: time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)},
			{ID: "t2", AccountID: "a1", Amount: 1500000, Payee: "Employer",
				Date: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)},
		})
	})
	require.NoError(t, err)
}

func period() (time.Time, time.Time) {
	return time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)
}

func TestBudgetSummarizesPerCategory(t *testing.T) {
	store := memory.New()
	seed(t, store)
	gen := &fakeGenerator{}
	svc := NewService(store, fakeEntitlements(true), gen)

	from, to := period()
	text, err := svc.Budget(context.Background(), "user-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, "Spend less on dining out.", text)

	assert.Contains(t, gen.prompt, "Dining: -42.50")
	assert.Contains(t, gen.prompt, "Uncategorized: 1500.00")
	assert.NotContains(t, gen.prompt, "Bistro", "payees must not leave the system")
	assert.NotContains(t, gen.prompt, "Employer")
}

func TestBudgetRequiresEntitlement(t *testing.T) {
	store := memory.New()
	seed(t, store)
	svc := NewService(store, fakeEntitlements(false), &fakeGenerator{})

	from, to := period()
	_, err := svc.Budget(context.Background(), "user-1", from, to)
	assert.ErrorIs(t, err, billing.ErrNotEntitled)
}

func TestBudgetEmptyPeriod(t *testing.T) {
	store := memory.New()
	seed(t, store)
	svc := NewService(store, fakeEntitlements(true), &fakeGenerator{})

	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Budget(context.Background(), "user-1", from, from.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestBuildPromptStableOrder(t *testing.T) {
	ts := []core.Transaction{
		{CategoryID: "c2", Amount: -1000},
		{CategoryID: "c1", Amount: -2000},
	}
	cats := []core.Category{
		{ID: "c1", Name: "Groceries"},
		{ID: "c2", Name: "Fuel"},
	}
	from, to := period()
	p := buildPrompt(ts, cats, from, to)
	if !ordered(p, "Fuel", "Groceries") {
		t.Errorf("categories not sorted in prompt:\n%s", p)
	}
}

func ordered(s string, first, second string) bool {
	i, j := strings.Index(s, first), strings.Index(s, second)
	return i >= 0 && j >= 0 && i < j
}
