// Package ledger implements the balance-consistency engine: every mutation
// of transaction rows commits together with the matching delta on the owning
// account's cached balance, so that balance == sum(transaction amounts)
// holds after every operation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"finledger/internal/core"
)

// Service executes owner-scoped ledger operations against a Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store exposes the underlying store for read-only query passthrough.
func (s *Service) Store() Store {
	return s.store
}

// CreateAccount creates an account with an explicit starting balance
// (0 when the caller leaves it unset).
func (s *Service) CreateAccount(ctx context.Context, ownerID, name string, initialBalance int64) (core.Account, error) {
	a := core.Account{
		ID:      core.NewID(),
		OwnerID: ownerID,
		Name:    name,
		Balance: initialBalance,
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		return tx.CreateAccount(ctx, a)
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account created", "account_id", a.ID, "name", a.Name, "balance", a.Balance)
	return a, nil
}

func (s *Service) RenameAccount(ctx context.Context, ownerID, accountID, name string) error {
	if err := (core.Account{OwnerID: ownerID, Name: name}).Validate(); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		return tx.RenameAccount(ctx, ownerID, accountID, name)
	})
	if err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	return nil
}

// DeleteAccounts removes the owner's accounts together with all their
// transactions. No balance adjustments happen: deleting the account removes
// the invariant target entirely.
func (s *Service) DeleteAccounts(ctx context.Context, ownerID string, accountIDs []string) ([]string, error) {
	var deleted []string
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		var err error
		deleted, err = tx.DeleteAccounts(ctx, ownerID, accountIDs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete accounts: %w", err)
	}
	slog.InfoContext(ctx, "Accounts deleted", "requested", len(accountIDs), "deleted", len(deleted))
	return deleted, nil
}

// CreateTransaction inserts a single ledger entry and applies +amount to
// the owning account, both committed as one unit.
func (s *Service) CreateTransaction(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = core.NewID()
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		if _, err := tx.AccountForOwner(ctx, ownerID, t.AccountID); err != nil {
			return err
		}
		if t.CategoryID != "" {
			if _, err := tx.CategoryForOwner(ctx, ownerID, t.CategoryID); err != nil {
				return err
			}
		}
		if err := tx.InsertTransactions(ctx, []core.Transaction{t}); err != nil {
			return err
		}
		return tx.AdjustBalance(ctx, t.AccountID, t.Amount)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", t.ID, "account_id", t.AccountID, "amount", t.Amount)
	return t, nil
}

// UpdateTransaction rewrites a ledger entry. Amount changes on the same
// account apply the difference; moving the entry to another account removes
// the old amount from the old account and adds the new amount to the new
// one, all in one unit.
func (s *Service) UpdateTransaction(ctx context.Context, ownerID, transactionID string, upd core.Transaction) (core.Transaction, error) {
	if err := upd.Validate(); err != nil {
		return core.Transaction{}, err
	}
	upd.ID = transactionID
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		cur, err := tx.TransactionForOwner(ctx, ownerID, transactionID)
		if err != nil {
			return err
		}
		if upd.AccountID != cur.AccountID {
			if _, err := tx.AccountForOwner(ctx, ownerID, upd.AccountID); err != nil {
				return err
			}
		}
		if upd.CategoryID != "" {
			if _, err := tx.CategoryForOwner(ctx, ownerID, upd.CategoryID); err != nil {
				return err
			}
		}
		if err := tx.UpdateTransaction(ctx, upd); err != nil {
			return err
		}
		if upd.AccountID == cur.AccountID {
			return tx.AdjustBalance(ctx, cur.AccountID, upd.Amount-cur.Amount)
		}
		// Two adjustments, ordered by account id so concurrent movers
		// touch the rows in the same order.
		first, firstDelta := cur.AccountID, -cur.Amount
		second, secondDelta := upd.AccountID, upd.Amount
		if second < first {
			first, firstDelta, second, secondDelta = second, secondDelta, first, firstDelta
		}
		if err := tx.AdjustBalance(ctx, first, firstDelta); err != nil {
			return err
		}
		return tx.AdjustBalance(ctx, second, secondDelta)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", transactionID, "account_id", upd.AccountID, "amount", upd.Amount)
	return upd, nil
}

// DeleteTransaction removes one ledger entry and applies -amount to its
// account in the same unit.
func (s *Service) DeleteTransaction(ctx context.Context, ownerID, transactionID string) error {
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		cur, err := tx.TransactionForOwner(ctx, ownerID, transactionID)
		if err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, cur.AccountID, -cur.Amount); err != nil {
			return err
		}
		return tx.DeleteTransactions(ctx, []string{transactionID})
	})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", transactionID)
	return nil
}

// BulkCreate inserts a batch of entries and applies exactly one aggregated
// delta per distinct account: N entries against one account produce one
// balance update, not N.
func (s *Service) BulkCreate(ctx context.Context, ownerID string, ts []core.Transaction) ([]core.Transaction, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	created := make([]core.Transaction, len(ts))
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		t.ID = core.NewID()
		created[i] = t
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		deltas := aggregateByAccount(created)
		for _, accountID := range sortedKeys(deltas) {
			if _, err := tx.AccountForOwner(ctx, ownerID, accountID); err != nil {
				return err
			}
		}
		checked := make(map[string]bool)
		for _, t := range created {
			if t.CategoryID == "" || checked[t.CategoryID] {
				continue
			}
			if _, err := tx.CategoryForOwner(ctx, ownerID, t.CategoryID); err != nil {
				return err
			}
			checked[t.CategoryID] = true
		}
		if err := tx.InsertTransactions(ctx, created); err != nil {
			return err
		}
		for _, accountID := range sortedKeys(deltas) {
			if err := tx.AdjustBalance(ctx, accountID, deltas[accountID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bulk create: %w", err)
	}
	slog.InfoContext(ctx, "Transactions bulk created", "count", len(created))
	return created, nil
}

// BulkDelete removes the owner-confirmed subset of the requested entries.
// Deltas are computed strictly from the rows confirmed to belong to the
// owner; ids that are foreign or absent are silently skipped.
func (s *Service) BulkDelete(ctx context.Context, ownerID string, transactionIDs []string) ([]string, error) {
	var deleted []string
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		owned, err := tx.TransactionsForOwner(ctx, ownerID, transactionIDs)
		if err != nil {
			return err
		}
		if len(owned) == 0 {
			return nil
		}
		deltas := aggregateByAccount(owned)
		for _, accountID := range sortedKeys(deltas) {
			if err := tx.AdjustBalance(ctx, accountID, -deltas[accountID]); err != nil {
				return err
			}
		}
		ids := make([]string, len(owned))
		for i, t := range owned {
			ids[i] = t.ID
		}
		if err := tx.DeleteTransactions(ctx, ids); err != nil {
			return err
		}
		deleted = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bulk delete: %w", err)
	}
	slog.InfoContext(ctx, "Transactions bulk deleted", "requested", len(transactionIDs), "deleted", len(deleted))
	return deleted, nil
}

// Transfer moves funds between two accounts of the same owner by creating
// a balanced withdrawal/deposit pair. Both inserts and both balance deltas
// commit together or not at all.
func (s *Service) Transfer(ctx context.Context, ownerID string, req core.TransferRequest) (withdrawal, deposit core.Transaction, err error) {
	if err = req.Validate(); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		from, lookupErr := tx.AccountForOwner(ctx, ownerID, req.FromAccountID)
		if lookupErr != nil {
			return transferLookupErr(lookupErr)
		}
		to, lookupErr := tx.AccountForOwner(ctx, ownerID, req.ToAccountID)
		if lookupErr != nil {
			return transferLookupErr(lookupErr)
		}

		outCat, catErr := s.getOrCreateCategory(ctx, tx, ownerID, core.TransferOutCategory)
		if catErr != nil {
			return catErr
		}
		inCat, catErr := s.getOrCreateCategory(ctx, tx, ownerID, core.TransferInCategory)
		if catErr != nil {
			return catErr
		}

		notes := req.Notes
		if notes == "" {
			notes = "Transfer between accounts"
		}
		withdrawal = core.Transaction{
			ID:         core.NewID(),
			AccountID:  from.ID,
			CategoryID: outCat.ID,
			Amount:     -req.Amount,
			Payee:      fmt.Sprintf("Transfer to %q", to.Name),
			Notes:      notes,
			Date:       req.Date,
		}
		deposit = core.Transaction{
			ID:         core.NewID(),
			AccountID:  to.ID,
			CategoryID: inCat.ID,
			Amount:     req.Amount,
			Payee:      fmt.Sprintf("Transfer from %q", from.Name),
			Notes:      notes,
			Date:       req.Date,
		}
		if err := tx.InsertTransactions(ctx, []core.Transaction{withdrawal, deposit}); err != nil {
			return err
		}
		// Adjust in account-id order so two opposite concurrent transfers
		// cannot deadlock on the balance rows.
		first, firstDelta := from.ID, -req.Amount
		second, secondDelta := to.ID, req.Amount
		if second < first {
			first, firstDelta, second, secondDelta = second, secondDelta, first, firstDelta
		}
		if err := tx.AdjustBalance(ctx, first, firstDelta); err != nil {
			return err
		}
		return tx.AdjustBalance(ctx, second, secondDelta)
	})
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("transfer: %w", err)
	}
	slog.InfoContext(ctx, "Transfer completed",
		"withdrawal_id", withdrawal.ID, "deposit_id", deposit.ID, "amount", req.Amount)
	return withdrawal, deposit, nil
}

// CreateCategory creates a category for the owner.
func (s *Service) CreateCategory(ctx context.Context, ownerID, name string) (core.Category, error) {
	c := core.Category{ID: core.NewID(), OwnerID: ownerID, Name: name}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		return tx.CreateCategory(ctx, c)
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *Service) RenameCategory(ctx context.Context, ownerID, categoryID, name string) error {
	if err := (core.Category{OwnerID: ownerID, Name: name}).Validate(); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		return tx.RenameCategory(ctx, ownerID, categoryID, name)
	})
	if err != nil {
		return fmt.Errorf("rename category: %w", err)
	}
	return nil
}

// DeleteCategories removes categories; referencing transactions keep their
// amounts and lose only the label, so no balances change.
func (s *Service) DeleteCategories(ctx context.Context, ownerID string, categoryIDs []string) ([]string, error) {
	var deleted []string
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		var err error
		deleted, err = tx.DeleteCategories(ctx, ownerID, categoryIDs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete categories: %w", err)
	}
	return deleted, nil
}

// getOrCreateCategory provisions a per-owner category by fixed name at most
// once. The (owner, name) uniqueness constraint backs up the lookup against
// creation races.
func (s *Service) getOrCreateCategory(ctx context.Context, tx Tx, ownerID, name string) (core.Category, error) {
	c, err := tx.CategoryByName(ctx, ownerID, name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Category{}, err
	}
	c = core.Category{ID: core.NewID(), OwnerID: ownerID, Name: name}
	if err := tx.CreateCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

// transferLookupErr reports failed account lookups generically so the
// response does not reveal which of the two accounts was invalid.
func transferLookupErr(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: one or both accounts are invalid", core.ErrInvalidArgument)
	}
	return err
}

func aggregateByAccount(ts []core.Transaction) map[string]int64 {
	deltas := make(map[string]int64)
	for _, t := range ts {
		deltas[t.AccountID] += t.Amount
	}
	return deltas
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
