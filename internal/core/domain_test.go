package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		AccountID: "acc-1",
		Amount:    -12500,
		Payee:     "Grocery store",
		Date:      date(2025, time.March, 10),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{AccountID: "", Payee: "p", Date: date(2025, 1, 1)},
		{AccountID: "a", Payee: "", Date: date(2025, 1, 1)},
		{AccountID: "a", Payee: "p"}, // zero date
	}
	for i, tr := range bads {
		err := tr.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("case %d expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestTransferRequestValidate(t *testing.T) {
	good := TransferRequest{
		FromAccountID: "a",
		ToAccountID:   "b",
		Amount:        300000,
		Date:          date(2025, time.June, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		req  TransferRequest
	}{
		{"same account", TransferRequest{FromAccountID: "a", ToAccountID: "a", Amount: 1, Date: good.Date}},
		{"zero amount", TransferRequest{FromAccountID: "a", ToAccountID: "b", Amount: 0, Date: good.Date}},
		{"negative amount", TransferRequest{FromAccountID: "a", ToAccountID: "b", Amount: -5, Date: good.Date}},
		{"missing account", TransferRequest{FromAccountID: "", ToAccountID: "b", Amount: 1, Date: good.Date}},
		{"zero date", TransferRequest{FromAccountID: "a", ToAccountID: "b", Amount: 1}},
	}
	for _, tc := range cases {
		if err := tc.req.Validate(); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}
}

func TestCheckCandidate(t *testing.T) {
	good := ImportCandidate{AccountID: "a", Payee: "p", Amount: 100, Date: date(2025, 1, 1)}
	if err := CheckCandidate(good); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := CheckCandidate(ImportCandidate{Payee: "p", Date: good.Date}); !errors.Is(err, ErrEmptyAccount) {
		t.Fatalf("expected ErrEmptyAccount, got %v", err)
	}
	if err := CheckCandidate(ImportCandidate{AccountID: "a", Date: good.Date}); !errors.Is(err, ErrEmptyPayee) {
		t.Fatalf("expected ErrEmptyPayee, got %v", err)
	}
	if err := CheckCandidate(ImportCandidate{AccountID: "a", Payee: "p"}); !errors.Is(err, ErrZeroDate) {
		t.Fatalf("expected ErrZeroDate, got %v", err)
	}
}

func TestPartialFailure(t *testing.T) {
	inner := errors.New("insert failed")
	pf := &PartialFailure{Warning: "bank connected but import failed", Inserted: 3, Dropped: 1, Err: inner}

	wrapped := fmt.Errorf("link bank: %w", pf)
	got, ok := AsPartialFailure(wrapped)
	if !ok {
		t.Fatal("expected AsPartialFailure to match")
	}
	if got.Inserted != 3 || got.Dropped != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("expected inner error to unwrap")
	}
}
