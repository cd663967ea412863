package ledger

import (
	"context"
	"time"

	"finledger/internal/core"
)

// TransactionFilter narrows transaction listings. Zero fields are ignored.
type TransactionFilter struct {
	AccountID string
	From      time.Time
	To        time.Time
}

// Store is the storage boundary of the ledger service. Every mutation of
// transaction rows and cached balances happens inside RunInTx; reads used
// by the API surface are plain queries.
type Store interface {
	// RunInTx executes fn as one all-or-nothing unit. Implementations
	// retry serialization failures a bounded number of times and surface
	// core.ErrConflict when retries are exhausted. Partial application of
	// fn's mutations must never be observable.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, ownerID, accountID string) (core.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error)
	GetCategory(ctx context.Context, ownerID, categoryID string) (core.Category, error)
	ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
	GetTransaction(ctx context.Context, ownerID, transactionID string) (core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, f TransactionFilter) ([]core.Transaction, error)
}

// Tx is the mutation set available inside one atomic unit. All lookups are
// owner-scoped and report core.ErrNotFound for foreign or absent rows.
// Balances change only through AdjustBalance, which the store applies as
// balance = balance + delta inside the same unit - never read-modify-write
// in application memory.
type Tx interface {
	AccountForOwner(ctx context.Context, ownerID, accountID string) (core.Account, error)
	CreateAccount(ctx context.Context, a core.Account) error
	RenameAccount(ctx context.Context, ownerID, accountID, name string) error
	// DeleteAccounts removes the owner's listed accounts and cascades the
	// delete to their transactions without balance adjustments: the
	// invariant target disappears with the account. Returns deleted ids.
	DeleteAccounts(ctx context.Context, ownerID string, accountIDs []string) ([]string, error)
	AdjustBalance(ctx context.Context, accountID string, delta int64) error

	CategoryByName(ctx context.Context, ownerID, name string) (core.Category, error)
	CategoryForOwner(ctx context.Context, ownerID, categoryID string) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) error
	RenameCategory(ctx context.Context, ownerID, categoryID, name string) error
	// DeleteCategories nulls CategoryID on referencing transactions.
	DeleteCategories(ctx context.Context, ownerID string, categoryIDs []string) ([]string, error)

	TransactionForOwner(ctx context.Context, ownerID, transactionID string) (core.Transaction, error)
	TransactionsForOwner(ctx context.Context, ownerID string, transactionIDs []string) ([]core.Transaction, error)
	InsertTransactions(ctx context.Context, ts []core.Transaction) error
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransactions(ctx context.Context, transactionIDs []string) error
}
