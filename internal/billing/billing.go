// Package billing consumes subscription events from the hosted payments
// provider and answers the single question the rest of the system asks:
// is this owner entitled to premium features (bank sync, advice)?
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finledger/internal/core"
)

// ErrNotEntitled gates premium features for owners without an active
// subscription.
var ErrNotEntitled = errors.New("active subscription required")

// Subscription statuses as reported by the payments provider.
const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
	StatusPastDue  = "past_due"
)

// Subscription is the local record of an owner's provider subscription.
type Subscription struct {
	ID             string
	OwnerID        string
	SubscriptionID string
	CustomerID     string
	Status         string
}

// Event is a pre-verified provider callback. Signature verification is the
// webhook layer's job; by the time an Event reaches this package it is
// trusted.
type Event struct {
	Type           string // "checkout.completed", "subscription.updated", "subscription.deleted"
	OwnerID        string
	SubscriptionID string
	CustomerID     string
	Status         string
}

// Store persists subscription records.
type Store interface {
	GetSubscription(ctx context.Context, ownerID string) (Subscription, error)
	GetSubscriptionByProviderID(ctx context.Context, subscriptionID string) (Subscription, error)
	UpsertSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// IsEntitled reports whether the owner holds an active subscription.
// Absence of a subscription is not an error, just no entitlement.
func (s *Service) IsEntitled(ctx context.Context, ownerID string) (bool, error) {
	sub, err := s.store.GetSubscription(ctx, ownerID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get subscription: %w", err)
	}
	return sub.Status == StatusActive, nil
}

// ApplyEvent updates the local subscription record from a provider event.
func (s *Service) ApplyEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case "checkout.completed":
		if ev.OwnerID == "" || ev.SubscriptionID == "" {
			return fmt.Errorf("%w: checkout event missing owner or subscription id", core.ErrInvalidArgument)
		}
		_, err := s.store.GetSubscriptionByProviderID(ctx, ev.SubscriptionID)
		if err == nil {
			return nil // already recorded
		}
		if !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("lookup subscription: %w", err)
		}
		sub := Subscription{
			ID:             core.NewID(),
			OwnerID:        ev.OwnerID,
			SubscriptionID: ev.SubscriptionID,
			CustomerID:     ev.CustomerID,
			Status:         StatusActive,
		}
		if err := s.store.UpsertSubscription(ctx, sub); err != nil {
			return fmt.Errorf("record subscription: %w", err)
		}
		slog.InfoContext(ctx, "Subscription recorded", "owner_id", ev.OwnerID)
		return nil

	case "subscription.updated":
		sub, err := s.store.GetSubscriptionByProviderID(ctx, ev.SubscriptionID)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Update event for unknown subscription", "subscription_id", ev.SubscriptionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup subscription: %w", err)
		}
		sub.Status = ev.Status
		if err := s.store.UpsertSubscription(ctx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		slog.InfoContext(ctx, "Subscription status updated", "owner_id", sub.OwnerID, "status", ev.Status)
		return nil

	case "subscription.deleted":
		if err := s.store.DeleteSubscription(ctx, ev.SubscriptionID); err != nil && !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("delete subscription: %w", err)
		}
		slog.InfoContext(ctx, "Subscription removed", "subscription_id", ev.SubscriptionID)
		return nil

	default:
		slog.DebugContext(ctx, "Ignoring billing event", "type", ev.Type)
		return nil
	}
}
