package plans_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/billing"
	"finledger/internal/core"
	"finledger/internal/ledger"
	"finledger/internal/plans"
	"finledger/internal/storage/memory"
)

type fakeEntitlements bool

func (f fakeEntitlements) IsEntitled(context.Context, string) (bool, error) {
	return bool(f), nil
}

func seedAccount(t *testing.T, store *memory.Store, ownerID, id, name string) {
	t.Helper()
	ctx := context.Background()
	err := store.RunInTx(ctx, func(tx ledger.Tx) error {
		return tx.CreateAccount(ctx, core.Account{ID: id, OwnerID: ownerID, Name: name})
	})
	require.NoError(t, err)
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestCreateAndListPlans(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "user-1", "a1", "Checking")
	svc := plans.NewService(store, store, fakeEntitlements(true))
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", plans.Plan{
		AccountID: "a1", Type: plans.TypeSavings, Amount: 500000, Month: month(2025, 9),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	views, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Checking", views[0].AccountName)
	assert.Equal(t, plans.TypeSavings, views[0].Type)
	assert.Equal(t, int64(500000), views[0].Amount)
}

func TestPlansRequireEntitlement(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "user-1", "a1", "Checking")
	svc := plans.NewService(store, store, fakeEntitlements(false))
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", plans.Plan{
		AccountID: "a1", Type: plans.TypeSpending, Amount: 100000, Month: month(2025, 9),
	})
	assert.ErrorIs(t, err, billing.ErrNotEntitled)

	_, err = svc.List(ctx, "user-1")
	assert.ErrorIs(t, err, billing.ErrNotEntitled)
}

func TestCreatePlanValidation(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "user-1", "a1", "Checking")
	svc := plans.NewService(store, store, fakeEntitlements(true))
	ctx := context.Background()

	cases := map[string]plans.Plan{
		"bad type":        {AccountID: "a1", Type: "hoarding", Amount: 1000, Month: month(2025, 9)},
		"zero amount":     {AccountID: "a1", Type: plans.TypeSavings, Amount: 0, Month: month(2025, 9)},
		"missing month":   {AccountID: "a1", Type: plans.TypeSavings, Amount: 1000},
		"missing account": {Type: plans.TypeSavings, Amount: 1000, Month: month(2025, 9)},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, "user-1", p)
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
		})
	}
}

func TestPlanOwnershipIsolation(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "user-1", "a1", "Mine")
	seedAccount(t, store, "user-2", "a2", "Theirs")
	svc := plans.NewService(store, store, fakeEntitlements(true))
	ctx := context.Background()

	// A plan against someone else's account is indistinguishable from a
	// plan against a missing one.
	_, err := svc.Create(ctx, "user-1", plans.Plan{
		AccountID: "a2", Type: plans.TypeSavings, Amount: 1000, Month: month(2025, 9),
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	theirs, err := svc.Create(ctx, "user-2", plans.Plan{
		AccountID: "a2", Type: plans.TypeSpending, Amount: 2000, Month: month(2025, 9),
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "user-1", theirs.ID, plans.Plan{
		AccountID: "a1", Type: plans.TypeSpending, Amount: 9999, Month: month(2025, 9),
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = svc.Delete(ctx, "user-1", theirs.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	views, err := svc.List(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(2000), views[0].Amount)
}

func TestUpdateAndDeletePlan(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "user-1", "a1", "Checking")
	seedAccount(t, store, "user-1", "a2", "Savings")
	svc := plans.NewService(store, store, fakeEntitlements(true))
	ctx := context.Background()

	p, err := svc.Create(ctx, "user-1", plans.Plan{
		AccountID: "a1", Type: plans.TypeSpending, Amount: 300000, Month: month(2025, 9),
	})
	require.NoError(t, err)

	upd, err := svc.Update(ctx, "user-1", p.ID, plans.Plan{
		AccountID: "a2", Type: plans.TypeSavings, Amount: 450000, Month: month(2025, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, upd.ID)

	views, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Savings", views[0].AccountName)
	assert.Equal(t, int64(450000), views[0].Amount)

	require.NoError(t, svc.Delete(ctx, "user-1", p.ID))
	views, err = svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDeletingAccountRemovesItsPlans(t *testing.T) {
	store := memory.New()
	seedAccount(t, store, "user-1", "a1", "Doomed")
	seedAccount(t, store, "user-1", "a2", "Keep")
	svc := plans.NewService(store, store, fakeEntitlements(true))
	lsvc := ledger.NewService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", plans.Plan{
		AccountID: "a1", Type: plans.TypeSavings, Amount: 1000, Month: month(2025, 9),
	})
	require.NoError(t, err)
	keep, err := svc.Create(ctx, "user-1", plans.Plan{
		AccountID: "a2", Type: plans.TypeSavings, Amount: 2000, Month: month(2025, 9),
	})
	require.NoError(t, err)

	_, err = lsvc.DeleteAccounts(ctx, "user-1", []string{"a1"})
	require.NoError(t, err)

	views, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, keep.ID, views[0].ID)
}
