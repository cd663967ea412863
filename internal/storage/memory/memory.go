// Package memory provides an in-memory ledger store used by tests and by
// the DATA_BACKEND=memory mode. A single mutex serializes operations and a
// map snapshot taken at transaction start provides rollback, so the store
// honors the same all-or-nothing contract as the SQLite store.
package memory

import (
	"context"
	"sort"
	"sync"

	"finledger/internal/billing"
	"finledger/internal/core"
	"finledger/internal/ledger"
	"finledger/internal/plans"
)

// Adjustment records one balance delta applied to an account. Tests use
// the trace to assert aggregation behavior.
type Adjustment struct {
	AccountID string
	Delta     int64
}

type Store struct {
	mu            sync.Mutex
	accounts      map[string]core.Account
	transactions  map[string]core.Transaction
	categories    map[string]core.Category
	banks         map[string]core.ConnectedBank   // keyed by owner id
	subscriptions map[string]billing.Subscription // keyed by owner id
	plans         map[string]plans.Plan

	adjustments []Adjustment

	// AdjustErr, when set, is consulted before every balance adjustment.
	// Tests inject failures to exercise rollback paths.
	AdjustErr func(accountID string, delta int64) error
	// InsertErr, when set, is consulted before every transaction insert.
	InsertErr func(ts []core.Transaction) error
}

func New() *Store {
	return &Store{
		accounts:      make(map[string]core.Account),
		transactions:  make(map[string]core.Transaction),
		categories:    make(map[string]core.Category),
		banks:         make(map[string]core.ConnectedBank),
		subscriptions: make(map[string]billing.Subscription),
		plans:         make(map[string]plans.Plan),
	}
}

// RunInTx serializes fn under the store mutex and rolls all maps back to
// their pre-fn state when fn fails. Memory operations cannot hit
// serialization failures, so there is no retry loop here.
func (s *Store) RunInTx(_ context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapAccounts := cloneMap(s.accounts)
	snapTransactions := cloneMap(s.transactions)
	snapCategories := cloneMap(s.categories)
	snapPlans := cloneMap(s.plans)
	snapAdjustments := len(s.adjustments)

	if err := fn((*storeTx)(s)); err != nil {
		s.accounts = snapAccounts
		s.transactions = snapTransactions
		s.categories = snapCategories
		s.plans = snapPlans
		s.adjustments = s.adjustments[:snapAdjustments]
		return err
	}
	return nil
}

// Adjustments returns the trace of applied balance deltas in order.
func (s *Store) Adjustments() []Adjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Adjustment(nil), s.adjustments...)
}

func (s *Store) GetAccount(_ context.Context, ownerID, accountID string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*storeTx)(s).accountForOwner(ownerID, accountID)
}

func (s *Store) ListAccounts(_ context.Context, ownerID string) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Account
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, ownerID, categoryID string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, ownerID, transactionID string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*storeTx)(s).transactionForOwner(ownerID, transactionID)
}

func (s *Store) ListTransactions(_ context.Context, ownerID string, f ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		a, ok := s.accounts[t.AccountID]
		if !ok || a.OwnerID != ownerID {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if !f.From.IsZero() && t.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && t.Date.After(f.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// storeTx gives the transaction callback access to the locked store. It is
// the same struct; the type split only keeps the ledger.Tx mutation surface
// out of the public Store API.
type storeTx Store

func (tx *storeTx) accountForOwner(ownerID, accountID string) (core.Account, error) {
	a, ok := tx.accounts[accountID]
	if !ok || a.OwnerID != ownerID {
		return core.Account{}, core.ErrNotFound
	}
	return a, nil
}

func (tx *storeTx) transactionForOwner(ownerID, transactionID string) (core.Transaction, error) {
	t, ok := tx.transactions[transactionID]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	a, ok := tx.accounts[t.AccountID]
	if !ok || a.OwnerID != ownerID {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

func (tx *storeTx) AccountForOwner(_ context.Context, ownerID, accountID string) (core.Account, error) {
	return tx.accountForOwner(ownerID, accountID)
}

func (tx *storeTx) CreateAccount(_ context.Context, a core.Account) error {
	tx.accounts[a.ID] = a
	return nil
}

func (tx *storeTx) RenameAccount(_ context.Context, ownerID, accountID, name string) error {
	a, err := tx.accountForOwner(ownerID, accountID)
	if err != nil {
		return err
	}
	a.Name = name
	tx.accounts[accountID] = a
	return nil
}

func (tx *storeTx) DeleteAccounts(_ context.Context, ownerID string, accountIDs []string) ([]string, error) {
	var deleted []string
	for _, id := range accountIDs {
		a, ok := tx.accounts[id]
		if !ok || a.OwnerID != ownerID {
			continue
		}
		delete(tx.accounts, id)
		for tid, t := range tx.transactions {
			if t.AccountID == id {
				delete(tx.transactions, tid)
			}
		}
		for pid, p := range tx.plans {
			if p.AccountID == id {
				delete(tx.plans, pid)
			}
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (tx *storeTx) AdjustBalance(_ context.Context, accountID string, delta int64) error {
	if tx.AdjustErr != nil {
		if err := tx.AdjustErr(accountID, delta); err != nil {
			return err
		}
	}
	a, ok := tx.accounts[accountID]
	if !ok {
		return core.ErrNotFound
	}
	a.Balance += delta
	tx.accounts[accountID] = a
	tx.adjustments = append(tx.adjustments, Adjustment{AccountID: accountID, Delta: delta})
	return nil
}

func (tx *storeTx) CategoryByName(_ context.Context, ownerID, name string) (core.Category, error) {
	for _, c := range tx.categories {
		if c.OwnerID == ownerID && c.Name == name {
			return c, nil
		}
	}
	return core.Category{}, core.ErrNotFound
}

func (tx *storeTx) CategoryForOwner(_ context.Context, ownerID, categoryID string) (core.Category, error) {
	c, ok := tx.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (tx *storeTx) CreateCategory(_ context.Context, c core.Category) error {
	for _, existing := range tx.categories {
		if existing.OwnerID == c.OwnerID && existing.Name == c.Name {
			return core.ErrConflict
		}
	}
	tx.categories[c.ID] = c
	return nil
}

func (tx *storeTx) RenameCategory(_ context.Context, ownerID, categoryID, name string) error {
	c, ok := tx.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return core.ErrNotFound
	}
	c.Name = name
	tx.categories[categoryID] = c
	return nil
}

func (tx *storeTx) DeleteCategories(_ context.Context, ownerID string, categoryIDs []string) ([]string, error) {
	var deleted []string
	for _, id := range categoryIDs {
		c, ok := tx.categories[id]
		if !ok || c.OwnerID != ownerID {
			continue
		}
		delete(tx.categories, id)
		for tid, t := range tx.transactions {
			if t.CategoryID == id {
				t.CategoryID = ""
				tx.transactions[tid] = t
			}
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (tx *storeTx) TransactionForOwner(_ context.Context, ownerID, transactionID string) (core.Transaction, error) {
	return tx.transactionForOwner(ownerID, transactionID)
}

func (tx *storeTx) TransactionsForOwner(_ context.Context, ownerID string, transactionIDs []string) ([]core.Transaction, error) {
	var owned []core.Transaction
	for _, id := range transactionIDs {
		t, err := tx.transactionForOwner(ownerID, id)
		if err != nil {
			continue
		}
		owned = append(owned, t)
	}
	return owned, nil
}

func (tx *storeTx) InsertTransactions(_ context.Context, ts []core.Transaction) error {
	if tx.InsertErr != nil {
		if err := tx.InsertErr(ts); err != nil {
			return err
		}
	}
	for _, t := range ts {
		tx.transactions[t.ID] = t
	}
	return nil
}

func (tx *storeTx) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if _, ok := tx.transactions[t.ID]; !ok {
		return core.ErrNotFound
	}
	tx.transactions[t.ID] = t
	return nil
}

func (tx *storeTx) DeleteTransactions(_ context.Context, transactionIDs []string) error {
	for _, id := range transactionIDs {
		delete(tx.transactions, id)
	}
	return nil
}

func (s *Store) GetConnectedBank(_ context.Context, ownerID string) (core.ConnectedBank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.banks[ownerID]
	if !ok {
		return core.ConnectedBank{}, core.ErrNotFound
	}
	return cb, nil
}

func (s *Store) SaveConnectedBank(_ context.Context, cb core.ConnectedBank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banks[cb.OwnerID] = cb
	return nil
}

func (s *Store) UnlinkBank(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.banks[ownerID]; !ok {
		return core.ErrNotFound
	}
	delete(s.banks, ownerID)
	for id, a := range s.accounts {
		if a.OwnerID != ownerID || a.ExternalID == "" {
			continue
		}
		delete(s.accounts, id)
		for tid, t := range s.transactions {
			if t.AccountID == id {
				delete(s.transactions, tid)
			}
		}
		for pid, p := range s.plans {
			if p.AccountID == id {
				delete(s.plans, pid)
			}
		}
	}
	for id, c := range s.categories {
		if c.OwnerID == ownerID && c.ExternalID != "" {
			delete(s.categories, id)
		}
	}
	return nil
}

func (s *Store) GetSubscription(_ context.Context, ownerID string) (billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[ownerID]
	if !ok {
		return billing.Subscription{}, core.ErrNotFound
	}
	return sub, nil
}

func (s *Store) GetSubscriptionByProviderID(_ context.Context, subscriptionID string) (billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.SubscriptionID == subscriptionID {
			return sub, nil
		}
	}
	return billing.Subscription{}, core.ErrNotFound
}

func (s *Store) UpsertSubscription(_ context.Context, sub billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.OwnerID] = sub
	return nil
}

func (s *Store) DeleteSubscription(_ context.Context, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, sub := range s.subscriptions {
		if sub.SubscriptionID == subscriptionID {
			delete(s.subscriptions, owner)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) ListPlans(_ context.Context, ownerID string) ([]plans.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []plans.View
	for _, p := range s.plans {
		if p.OwnerID != ownerID {
			continue
		}
		a, ok := s.accounts[p.AccountID]
		if !ok {
			continue
		}
		out = append(out, plans.View{Plan: p, AccountName: a.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreatePlan(_ context.Context, p plans.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
	return nil
}

func (s *Store) UpdatePlan(_ context.Context, p plans.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.plans[p.ID]
	if !ok || cur.OwnerID != p.OwnerID {
		return core.ErrNotFound
	}
	s.plans[p.ID] = p
	return nil
}

func (s *Store) DeletePlan(_ context.Context, ownerID, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok || p.OwnerID != ownerID {
		return core.ErrNotFound
	}
	delete(s.plans, planID)
	return nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	_ ledger.Store  = (*Store)(nil)
	_ billing.Store = (*Store)(nil)
	_ plans.Store   = (*Store)(nil)
)
