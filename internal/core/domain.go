package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reciprocal category names provisioned on first transfer, per owner.
const (
	TransferOutCategory = "Transfer out"
	TransferInCategory  = "Transfer in"
)

type (
	// Account holds a user's ledger account with its cached running balance.
	// Balance is kept in milli-units and must always equal the sum of the
	// amounts of the account's transactions.
	Account struct {
		ID         string
		OwnerID    string
		Name       string
		ExternalID string // set when the account came from a bank link
		Balance    int64  // milli-units
	}

	// Transaction is a single ledger entry tied to exactly one account.
	// Positive amounts are credits, negative amounts are debits.
	Transaction struct {
		ID         string
		AccountID  string
		CategoryID string // optional, empty when uncategorized
		Amount     int64  // milli-units
		Payee      string
		Notes      string
		Date       time.Time
	}

	// Category labels transactions and is unique per (owner, name).
	Category struct {
		ID         string
		OwnerID    string
		Name       string
		ExternalID string
	}

	// ConnectedBank records an established bank-aggregator link.
	ConnectedBank struct {
		ID          string
		OwnerID     string
		AccessToken string
	}

	// TransferRequest describes a two-sided movement of funds between two
	// accounts of the same owner. Amount is the positive magnitude moved.
	TransferRequest struct {
		FromAccountID string
		ToAccountID   string
		Amount        int64 // milli-units, > 0
		Date          time.Time
		Notes         string
	}

	// ImportCandidate is an externally-sourced transaction (bank sync or CSV
	// upload) before validation by the reconciler.
	ImportCandidate struct {
		AccountID  string
		CategoryID string
		Amount     int64 // milli-units
		Payee      string
		Notes      string
		Date       time.Time
	}
)

var (
	ErrEmptyName    = errors.New("empty name")
	ErrEmptyPayee   = errors.New("empty payee")
	ErrEmptyAccount = errors.New("missing account id")
	ErrZeroDate     = errors.New("date cannot be zero")
	ErrNameTooLong  = errors.New("name too long (max 200 characters)")
)

// NewID returns a fresh opaque entity identifier.
func NewID() string {
	return uuid.NewString()
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.OwnerID) == "" {
		return wrapInvalid(errors.New("missing owner id"))
	}
	if strings.TrimSpace(a.Name) == "" {
		return wrapInvalid(ErrEmptyName)
	}
	if len(a.Name) > 200 {
		return wrapInvalid(ErrNameTooLong)
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.AccountID) == "" {
		return wrapInvalid(ErrEmptyAccount)
	}
	if strings.TrimSpace(t.Payee) == "" {
		return wrapInvalid(ErrEmptyPayee)
	}
	if t.Date.IsZero() {
		return wrapInvalid(ErrZeroDate)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return wrapInvalid(errors.New("missing owner id"))
	}
	if strings.TrimSpace(c.Name) == "" {
		return wrapInvalid(ErrEmptyName)
	}
	if len(c.Name) > 200 {
		return wrapInvalid(ErrNameTooLong)
	}
	return nil
}

func (r TransferRequest) Validate() error {
	if strings.TrimSpace(r.FromAccountID) == "" || strings.TrimSpace(r.ToAccountID) == "" {
		return wrapInvalid(ErrEmptyAccount)
	}
	if r.FromAccountID == r.ToAccountID {
		return wrapInvalid(errors.New("source and destination accounts must differ"))
	}
	if r.Amount <= 0 {
		return wrapInvalid(errors.New("transfer amount must be positive"))
	}
	if r.Date.IsZero() {
		return wrapInvalid(ErrZeroDate)
	}
	return nil
}

// CheckCandidate reports why an import candidate must be dropped, or nil.
// The reconciler logs the reason instead of failing the whole batch.
func CheckCandidate(c ImportCandidate) error {
	if strings.TrimSpace(c.AccountID) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(c.Payee) == "" {
		return ErrEmptyPayee
	}
	if c.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}
