// Package importer reconciles externally sourced transaction batches (bank
// sync, CSV upload) into the ledger with correctly aggregated balance
// effects: however many entries a batch carries, each touched account
// receives exactly one balance delta.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"finledger/internal/core"
	"finledger/internal/ledger"
)

// DefaultBatchSize bounds the size of a single insert statement. Tunable,
// not a hard law.
const DefaultBatchSize = 100

type Reconciler struct {
	store     ledger.Store
	batchSize int
}

func New(store ledger.Store, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reconciler{store: store, batchSize: batchSize}
}

// Result summarizes a committed reconciliation.
type Result struct {
	Inserted int
	Dropped  int
	Created  []core.Transaction
}

// Reconcile validates and commits a candidate batch. Invalid candidates
// (missing account, payee or date) and candidates whose account is unknown
// to the owner are dropped with a logged reason; the rest commit in one
// storage transaction: chunked inserts plus one aggregated delta per
// distinct account.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID string, candidates []core.ImportCandidate) (Result, error) {
	var res Result

	preDropped := 0
	accepted := make([]core.Transaction, 0, len(candidates))
	for i, c := range candidates {
		if err := core.CheckCandidate(c); err != nil {
			preDropped++
			slog.WarnContext(ctx, "Dropping import candidate",
				"index", i, "reason", err, "payee", c.Payee, "account_id", c.AccountID)
			continue
		}
		accepted = append(accepted, core.Transaction{
			ID:         core.NewID(),
			AccountID:  c.AccountID,
			CategoryID: c.CategoryID,
			Amount:     c.Amount,
			Payee:      c.Payee,
			Notes:      c.Notes,
			Date:       c.Date,
		})
	}
	res.Dropped = preDropped
	if len(accepted) == 0 {
		slog.InfoContext(ctx, "Nothing to import", "candidates", len(candidates), "dropped", res.Dropped)
		return res, nil
	}

	err := r.store.RunInTx(ctx, func(tx ledger.Tx) error {
		// Resolve account ownership once per distinct account; candidates
		// pointing at foreign or missing accounts are dropped, not fatal.
		known := make(map[string]bool)
		for _, t := range accepted {
			if _, seen := known[t.AccountID]; seen {
				continue
			}
			_, lookupErr := tx.AccountForOwner(ctx, ownerID, t.AccountID)
			switch {
			case lookupErr == nil:
				known[t.AccountID] = true
			case errors.Is(lookupErr, core.ErrNotFound):
				known[t.AccountID] = false
			default:
				return lookupErr
			}
		}

		txDropped := 0
		insertable := make([]core.Transaction, 0, len(accepted))
		deltas := make(map[string]int64)
		for _, t := range accepted {
			if !known[t.AccountID] {
				txDropped++
				slog.WarnContext(ctx, "Dropping import candidate",
					"reason", "account not found", "account_id", t.AccountID, "payee", t.Payee)
				continue
			}
			insertable = append(insertable, t)
			deltas[t.AccountID] += t.Amount
		}
		res.Dropped = preDropped + txDropped
		if len(insertable) == 0 {
			return nil
		}

		for start := 0; start < len(insertable); start += r.batchSize {
			end := min(start+r.batchSize, len(insertable))
			if err := tx.InsertTransactions(ctx, insertable[start:end]); err != nil {
				return fmt.Errorf("insert chunk %d-%d: %w", start, end, err)
			}
		}

		accountIDs := make([]string, 0, len(deltas))
		for id := range deltas {
			accountIDs = append(accountIDs, id)
		}
		sort.Strings(accountIDs)
		for _, id := range accountIDs {
			if err := tx.AdjustBalance(ctx, id, deltas[id]); err != nil {
				return err
			}
		}

		res.Created = append([]core.Transaction(nil), insertable...)
		res.Inserted = len(insertable)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("reconcile import: %w", err)
	}

	slog.InfoContext(ctx, "Import reconciled",
		"candidates", len(candidates), "inserted", res.Inserted, "dropped", res.Dropped)
	return res, nil
}
