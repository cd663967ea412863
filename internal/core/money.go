// Package core defines the domain types shared by every layer: accounts,
// transactions, categories, the milli-unit money representation and the
// error taxonomy of ledger operations.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errEmptyAmount = errors.New("empty amount")
	errNotNumeric  = errors.New("amount is not numeric")
)

// Amounts are stored as signed integers in milli-units: one thousandth of
// the display currency unit. Integer math keeps running balances exact;
// floating point never enters the ledger.
const MilliUnitsPerUnit = 1000

var milliFactor = decimal.NewFromInt(MilliUnitsPerUnit)

// MilliUnitsFromDecimal converts a major-unit amount (e.g. dollars, as
// delivered by the bank aggregator) to milli-units, rounding half away
// from zero on any sub-milli remainder.
func MilliUnitsFromDecimal(d decimal.Decimal) int64 {
	return d.Mul(milliFactor).Round(0).IntPart()
}

// DecimalFromMilliUnits converts milli-units back to a major-unit decimal
// for display and export.
func DecimalFromMilliUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(milliFactor)
}

// ParseAmountToMilliUnits parses a user-supplied major-unit amount into
// milli-units. Both dot and comma decimal separators are accepted; signed
// values are allowed (negative = debit, positive = credit).
//
// Examples:
//
//	ParseAmountToMilliUnits("12.34")  -> 12340, nil
//	ParseAmountToMilliUnits("-0,5")   -> -500, nil
func ParseAmountToMilliUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, wrapInvalid(errEmptyAmount)
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, wrapInvalid(errNotNumeric)
	}
	return MilliUnitsFromDecimal(d), nil
}
