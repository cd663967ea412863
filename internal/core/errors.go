package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ledger operation taxonomy. Callers match with
// errors.Is; layers add context with fmt.Errorf("...: %w", err).
var (
	// ErrNotFound covers both absence and ownership failure. A caller must
	// not be able to tell whether a foreign resource exists.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument covers malformed input: equal transfer accounts,
	// non-positive transfer amounts, missing required fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is surfaced after bounded retries of a storage-level
	// serialization failure on the balance row.
	ErrConflict = errors.New("conflict")
)

func wrapInvalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
}

// PartialFailure reports an import that made forward progress before
// failing: upstream resources (accounts, categories, the bank link itself)
// were committed and are deliberately preserved. It is a warning, not a
// hard error; handlers return it with a success status.
type PartialFailure struct {
	Warning  string
	Inserted int
	Dropped  int
	Err      error
}

func (e *PartialFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Warning, e.Err)
	}
	return e.Warning
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}

// AsPartialFailure unwraps err into a PartialFailure if one is present.
func AsPartialFailure(err error) (*PartialFailure, bool) {
	var pf *PartialFailure
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
