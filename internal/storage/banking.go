package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finledger/internal/banksync"
	"finledger/internal/billing"
	"finledger/internal/core"
)

// Connected-bank and subscription persistence. These sit outside RunInTx:
// the link row and the subscription record are each a single-row write.

func (s *SQLiteStore) GetConnectedBank(ctx context.Context, ownerID string) (core.ConnectedBank, error) {
	var cb core.ConnectedBank
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, access_token FROM connected_banks WHERE owner_id = ?", ownerID).
		Scan(&cb.ID, &cb.OwnerID, &cb.AccessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ConnectedBank{}, core.ErrNotFound
	}
	if err != nil {
		return core.ConnectedBank{}, fmt.Errorf("get connected bank: %w", err)
	}
	return cb, nil
}

func (s *SQLiteStore) SaveConnectedBank(ctx context.Context, cb core.ConnectedBank) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connected_banks (id, owner_id, access_token) VALUES (?, ?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET access_token = excluded.access_token`,
		cb.ID, cb.OwnerID, cb.AccessToken)
	if err != nil {
		return fmt.Errorf("save connected bank: %w", err)
	}
	return nil
}

// UnlinkBank removes the owner's bank link together with every externally
// sourced account (transactions cascade) and category. Locally created
// accounts are untouched.
func (s *SQLiteStore) UnlinkBank(ctx context.Context, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM connected_banks WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("delete connected bank: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM accounts WHERE owner_id = ? AND external_id IS NOT NULL", ownerID); err != nil {
		return fmt.Errorf("delete external accounts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM categories WHERE owner_id = ? AND external_id IS NOT NULL", ownerID); err != nil {
		return fmt.Errorf("delete external categories: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unlink: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSubscription(ctx context.Context, ownerID string) (billing.Subscription, error) {
	return s.scanSubscription(s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, subscription_id, COALESCE(customer_id, ''), status FROM subscriptions WHERE owner_id = ?", ownerID))
}

func (s *SQLiteStore) GetSubscriptionByProviderID(ctx context.Context, subscriptionID string) (billing.Subscription, error) {
	return s.scanSubscription(s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, subscription_id, COALESCE(customer_id, ''), status FROM subscriptions WHERE subscription_id = ?", subscriptionID))
}

func (s *SQLiteStore) UpsertSubscription(ctx context.Context, sub billing.Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, owner_id, subscription_id, customer_id, status) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET
			subscription_id = excluded.subscription_id,
			customer_id = excluded.customer_id,
			status = excluded.status`,
		sub.ID, sub.OwnerID, sub.SubscriptionID, nullable(sub.CustomerID), sub.Status)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM subscriptions WHERE subscription_id = ?", subscriptionID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) scanSubscription(row rowScanner) (billing.Subscription, error) {
	var sub billing.Subscription
	err := row.Scan(&sub.ID, &sub.OwnerID, &sub.SubscriptionID, &sub.CustomerID, &sub.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Subscription{}, core.ErrNotFound
	}
	if err != nil {
		return billing.Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}
	return sub, nil
}

var (
	_ billing.Store      = (*SQLiteStore)(nil)
	_ banksync.LinkStore = (*SQLiteStore)(nil)
)
