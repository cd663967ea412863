package csvimport

import (
	"errors"
	"strings"
	"testing"
	"time"

	"finledger/internal/core"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"Date,Payee,Amount,Notes",
		"2025-08-01,Grocery Store,-42.50,weekly shop",
		`2025-08-02,"Acme, Inc.","1200,00",salary`,
	}, "\n")

	m, err := DetectMapping([]string{"Date", "Payee", "Amount", "Notes"})
	if err != nil {
		t.Fatalf("DetectMapping: %v", err)
	}
	got, err := Parse(strings.NewReader(input), "acct-1", Options{Mapping: m, SkipHeader: true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	want := core.ImportCandidate{
		AccountID: "acct-1",
		Amount:    -42500,
		Payee:     "Grocery Store",
		Notes:     "weekly shop",
		Date:      time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	if got[0] != want {
		t.Errorf("first candidate = %+v, want %+v", got[0], want)
	}
	if got[1].Amount != 1200000 {
		t.Errorf("comma-decimal amount = %d, want 1200000", got[1].Amount)
	}
	if got[1].Payee != "Acme, Inc." {
		t.Errorf("quoted payee = %q", got[1].Payee)
	}
}

func TestParseRejectsMalformedRows(t *testing.T) {
	m := Mapping{Date: 0, Payee: 1, Amount: 2, Notes: -1}
	tests := []struct {
		name  string
		input string
	}{
		{"bad amount", "2025-08-01,Shop,abc"},
		{"bad date", "01/08/2025,Shop,10.00"},
		{"short row", "2025-08-01,Shop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), "acct-1", Options{Mapping: m})
			if !errors.Is(err, core.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestDetectMappingMissingColumn(t *testing.T) {
	_, err := DetectMapping([]string{"Date", "Notes"})
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestParseEmptyFile(t *testing.T) {
	got, err := Parse(strings.NewReader(""), "acct-1", Options{Mapping: Mapping{Date: 0, Payee: 1, Amount: 2, Notes: -1}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d candidates, want 0", len(got))
	}
}
