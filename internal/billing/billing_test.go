package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/billing"
	"finledger/internal/storage/memory"
)

func TestCheckoutCompletedGrantsEntitlement(t *testing.T) {
	store := memory.New()
	svc := billing.NewService(store)
	ctx := context.Background()

	ok, err := svc.IsEntitled(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok, "no subscription yet")

	err = svc.ApplyEvent(ctx, billing.Event{
		Type:           "checkout.completed",
		OwnerID:        "user-1",
		SubscriptionID: "sub-1",
		CustomerID:     "cus-1",
	})
	require.NoError(t, err)

	ok, err = svc.IsEntitled(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// A replayed checkout event is a no-op.
	err = svc.ApplyEvent(ctx, billing.Event{
		Type:           "checkout.completed",
		OwnerID:        "user-1",
		SubscriptionID: "sub-1",
	})
	require.NoError(t, err)
}

func TestSubscriptionLifecycleEvents(t *testing.T) {
	store := memory.New()
	svc := billing.NewService(store)
	ctx := context.Background()

	require.NoError(t, svc.ApplyEvent(ctx, billing.Event{
		Type:           "checkout.completed",
		OwnerID:        "user-1",
		SubscriptionID: "sub-1",
	}))

	require.NoError(t, svc.ApplyEvent(ctx, billing.Event{
		Type:           "subscription.updated",
		SubscriptionID: "sub-1",
		Status:         billing.StatusPastDue,
	}))
	ok, err := svc.IsEntitled(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok, "past_due is not entitled")

	require.NoError(t, svc.ApplyEvent(ctx, billing.Event{
		Type:           "subscription.updated",
		SubscriptionID: "sub-1",
		Status:         billing.StatusActive,
	}))
	ok, err = svc.IsEntitled(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.ApplyEvent(ctx, billing.Event{
		Type:           "subscription.deleted",
		SubscriptionID: "sub-1",
	}))
	ok, err = svc.IsEntitled(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownEventsAreIgnored(t *testing.T) {
	store := memory.New()
	svc := billing.NewService(store)
	ctx := context.Background()

	assert.NoError(t, svc.ApplyEvent(ctx, billing.Event{Type: "invoice.paid"}))
	assert.NoError(t, svc.ApplyEvent(ctx, billing.Event{
		Type:           "subscription.updated",
		SubscriptionID: "never-seen",
		Status:         billing.StatusActive,
	}))
	assert.NoError(t, svc.ApplyEvent(ctx, billing.Event{
		Type:           "subscription.deleted",
		SubscriptionID: "never-seen",
	}))
}

func TestCheckoutEventValidation(t *testing.T) {
	svc := billing.NewService(memory.New())
	err := svc.ApplyEvent(context.Background(), billing.Event{Type: "checkout.completed"})
	assert.Error(t, err)
}
