// Package csvimport turns uploaded CSV statements into import candidates
// for the reconciler. It only parses; validation and balance effects are
// the reconciler's job.
package csvimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"finledger/internal/core"
)

// DefaultDateLayout is used when Options.DateLayout is empty.
const DefaultDateLayout = "2006-01-02"

// Mapping names the zero-based column index of each field. Notes is
// optional; set it to -1 when the file has no notes column.
type Mapping struct {
	Date   int
	Payee  int
	Amount int
	Notes  int
}

type Options struct {
	Mapping    Mapping
	DateLayout string
	SkipHeader bool
}

// DetectMapping builds a Mapping from a header row by matching common
// column names. It returns an error when date, payee or amount cannot be
// located; notes stays optional.
func DetectMapping(header []string) (Mapping, error) {
	m := Mapping{Date: -1, Payee: -1, Amount: -1, Notes: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "transaction date":
			m.Date = i
		case "payee", "description", "merchant":
			m.Payee = i
		case "amount", "value":
			m.Amount = i
		case "notes", "memo":
			m.Notes = i
		}
	}
	if m.Date < 0 || m.Payee < 0 || m.Amount < 0 {
		return Mapping{}, fmt.Errorf("%w: header must contain date, payee and amount columns", core.ErrInvalidArgument)
	}
	return m, nil
}

// Parse reads CSV rows into import candidates targeting accountID. Amounts
// are major units (dot or comma decimals) converted to milli-units. A row
// with a malformed date or amount fails the whole parse with its row
// number; a partially imported file is worse than a rejected one.
func Parse(r io.Reader, accountID string, opts Options) ([]core.ImportCandidate, error) {
	layout := opts.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	m := opts.Mapping
	width := max(m.Date, m.Payee, m.Amount, m.Notes) + 1

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []core.ImportCandidate
	row := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", core.ErrInvalidArgument, row+1, err)
		}
		row++
		if opts.SkipHeader && row == 1 {
			continue
		}
		if len(rec) < width {
			return nil, fmt.Errorf("%w: row %d has %d columns, need %d", core.ErrInvalidArgument, row, len(rec), width)
		}

		amount, err := core.ParseAmountToMilliUnits(rec[m.Amount])
		if err != nil {
			return nil, fmt.Errorf("row %d amount %q: %w", row, rec[m.Amount], err)
		}
		date, err := time.Parse(layout, strings.TrimSpace(rec[m.Date]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d date %q does not match layout %q", core.ErrInvalidArgument, row, rec[m.Date], layout)
		}

		c := core.ImportCandidate{
			AccountID: accountID,
			Amount:    amount,
			Payee:     strings.TrimSpace(rec[m.Payee]),
			Date:      date,
		}
		if m.Notes >= 0 {
			c.Notes = strings.TrimSpace(rec[m.Notes])
		}
		out = append(out, c)
	}
	return out, nil
}
