// Package banksync links a user to an external bank aggregator and pulls
// the aggregator's accounts, categories and transactions into the ledger.
// The aggregator is an opaque Provider; its wire protocol never leaks past
// this package.
package banksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/importer"
	"finledger/internal/ledger"
)

// Provider is the bank aggregator boundary. Amounts arrive in major units
// as decimals and are converted to milli-units here, never downstream.
type Provider interface {
	ExchangeToken(ctx context.Context, publicToken string) (accessToken string, err error)
	FetchSnapshot(ctx context.Context, accessToken string) (Snapshot, error)
}

// Snapshot is everything the aggregator reports for one linked institution.
type Snapshot struct {
	Accounts     []ExternalAccount     `json:"accounts"`
	Categories   []ExternalCategory    `json:"categories"`
	Transactions []ExternalTransaction `json:"transactions"`
}

type ExternalAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ExternalCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ExternalTransaction struct {
	AccountID  string          `json:"account_id"` // aggregator's account id
	CategoryID string          `json:"category_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"` // major units
	Payee      string          `json:"payee"`
	Notes      string          `json:"notes,omitempty"`
	Date       time.Time       `json:"date"`
}

// LinkStore persists the aggregator link record.
type LinkStore interface {
	GetConnectedBank(ctx context.Context, ownerID string) (core.ConnectedBank, error)
	SaveConnectedBank(ctx context.Context, cb core.ConnectedBank) error
	UnlinkBank(ctx context.Context, ownerID string) error
}

type Service struct {
	provider   Provider
	links      LinkStore
	store      ledger.Store
	reconciler *importer.Reconciler
}

func NewService(provider Provider, links LinkStore, store ledger.Store, reconciler *importer.Reconciler) *Service {
	return &Service{provider: provider, links: links, store: store, reconciler: reconciler}
}

// Link exchanges the aggregator's public token, saves the link and runs a
// first sync. When the sync fails after the link and its accounts were
// committed, Link keeps them and reports a PartialFailure so the caller
// can retry the import without re-linking.
func (s *Service) Link(ctx context.Context, ownerID, publicToken string) (importer.Result, error) {
	accessToken, err := s.provider.ExchangeToken(ctx, publicToken)
	if err != nil {
		return importer.Result{}, fmt.Errorf("exchange token: %w", err)
	}
	cb := core.ConnectedBank{ID: core.NewID(), OwnerID: ownerID, AccessToken: accessToken}
	if err := s.links.SaveConnectedBank(ctx, cb); err != nil {
		return importer.Result{}, fmt.Errorf("save bank link: %w", err)
	}
	slog.InfoContext(ctx, "Bank linked", "owner_id", ownerID)

	res, err := s.sync(ctx, ownerID, accessToken)
	if err != nil {
		return res, &core.PartialFailure{
			Warning:  "bank linked but initial import failed",
			Inserted: res.Inserted,
			Dropped:  res.Dropped,
			Err:      err,
		}
	}
	return res, nil
}

// Sync re-imports from an existing link. NotFound when no link exists.
func (s *Service) Sync(ctx context.Context, ownerID string) (importer.Result, error) {
	cb, err := s.links.GetConnectedBank(ctx, ownerID)
	if err != nil {
		return importer.Result{}, fmt.Errorf("get bank link: %w", err)
	}
	return s.sync(ctx, ownerID, cb.AccessToken)
}

// Unlink removes the link together with every externally sourced account
// and category.
func (s *Service) Unlink(ctx context.Context, ownerID string) error {
	if err := s.links.UnlinkBank(ctx, ownerID); err != nil {
		return fmt.Errorf("unlink bank: %w", err)
	}
	slog.InfoContext(ctx, "Bank unlinked", "owner_id", ownerID)
	return nil
}

func (s *Service) sync(ctx context.Context, ownerID, accessToken string) (importer.Result, error) {
	snap, err := s.provider.FetchSnapshot(ctx, accessToken)
	if err != nil {
		return importer.Result{}, fmt.Errorf("fetch snapshot: %w", err)
	}

	accountIDs, err := s.ensureAccounts(ctx, ownerID, snap.Accounts)
	if err != nil {
		return importer.Result{}, err
	}
	categoryIDs, err := s.ensureCategories(ctx, ownerID, snap.Categories)
	if err != nil {
		return importer.Result{}, err
	}

	candidates := make([]core.ImportCandidate, 0, len(snap.Transactions))
	for _, et := range snap.Transactions {
		candidates = append(candidates, core.ImportCandidate{
			// Unknown external accounts map to "", which the reconciler
			// drops with a logged reason instead of failing the batch.
			AccountID:  accountIDs[et.AccountID],
			CategoryID: categoryIDs[et.CategoryID],
			Amount:     core.MilliUnitsFromDecimal(et.Amount),
			Payee:      et.Payee,
			Notes:      et.Notes,
			Date:       et.Date,
		})
	}
	return s.reconciler.Reconcile(ctx, ownerID, candidates)
}

// ensureAccounts maps aggregator account ids to local ids, creating local
// accounts (balance zero) for aggregator accounts seen for the first time.
func (s *Service) ensureAccounts(ctx context.Context, ownerID string, external []ExternalAccount) (map[string]string, error) {
	existing, err := s.store.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	byExternal := make(map[string]string)
	for _, a := range existing {
		if a.ExternalID != "" {
			byExternal[a.ExternalID] = a.ID
		}
	}

	var missing []core.Account
	for _, ea := range external {
		if _, ok := byExternal[ea.ID]; ok {
			continue
		}
		a := core.Account{ID: core.NewID(), OwnerID: ownerID, Name: ea.Name, ExternalID: ea.ID}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("external account %q: %w", ea.ID, err)
		}
		byExternal[ea.ID] = a.ID
		missing = append(missing, a)
	}
	if len(missing) == 0 {
		return byExternal, nil
	}
	err = s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		for _, a := range missing {
			if err := tx.CreateAccount(ctx, a); err != nil {
				return fmt.Errorf("create account %q: %w", a.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "External accounts created", "owner_id", ownerID, "count", len(missing))
	return byExternal, nil
}

func (s *Service) ensureCategories(ctx context.Context, ownerID string, external []ExternalCategory) (map[string]string, error) {
	existing, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	byExternal := make(map[string]string)
	byName := make(map[string]string)
	for _, c := range existing {
		if c.ExternalID != "" {
			byExternal[c.ExternalID] = c.ID
		}
		byName[c.Name] = c.ID
	}

	var missing []core.Category
	for _, ec := range external {
		if _, ok := byExternal[ec.ID]; ok {
			continue
		}
		// An aggregator category may collide with a locally created one by
		// name; reuse it rather than tripping the unique constraint.
		if id, ok := byName[ec.Name]; ok {
			byExternal[ec.ID] = id
			continue
		}
		c := core.Category{ID: core.NewID(), OwnerID: ownerID, Name: ec.Name, ExternalID: ec.ID}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("external category %q: %w", ec.ID, err)
		}
		byExternal[ec.ID] = c.ID
		byName[ec.Name] = c.ID
		missing = append(missing, c)
	}
	if len(missing) == 0 {
		return byExternal, nil
	}
	err = s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		for _, c := range missing {
			err := tx.CreateCategory(ctx, c)
			if errors.Is(err, core.ErrConflict) {
				// Lost a race with a concurrent create; point the external
				// id at the winner instead.
				winner, lookupErr := tx.CategoryByName(ctx, ownerID, c.Name)
				if lookupErr != nil {
					return fmt.Errorf("resolve category %q: %w", c.Name, lookupErr)
				}
				byExternal[c.ExternalID] = winner.ID
				continue
			}
			if err != nil {
				return fmt.Errorf("create category %q: %w", c.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return byExternal, nil
}
