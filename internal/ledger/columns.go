package ledger

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/dvloznov/obr-ledger/internal/money"
)

// Column indexes a ledger cell within a row.
type Column int

const (
	ColFileName Column = iota
	ColSerial
	ColDate
	ColPayee
	ColParticulars
	ColTotalAmount
	ColPayment
	ColTax
	ColBalance
	ColRemarks
)

// NumColumns is the number of cells in every row.
const NumColumns = 10

// TotalLabel marks the synthetic totals row in the File Name column.
const TotalLabel = "TOTAL"

var columnNames = [NumColumns]string{
	"File Name",
	"Serial No.",
	"Date",
	"Payee",
	"Particulars",
	"Total Amount",
	"Payment",
	"Tax",
	"Balance",
	"Remarks",
}

// Columns returns the header labels in column order.
func Columns() []string {
	out := make([]string, NumColumns)
	copy(out, columnNames[:])
	return out
}

func (c Column) String() string {
	if !c.Valid() {
		return "Column(?)"
	}
	return columnNames[c]
}

// ParseColumn accepts a column index or a header label. Labels match
// case-insensitively ignoring spaces and punctuation, so "total_amount" and
// "Total Amount" are the same column.
func ParseColumn(s string) (Column, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		c := Column(n)
		return c, c.Valid()
	}
	key := columnKey(s)
	for i, name := range columnNames {
		if columnKey(name) == key {
			return Column(i), true
		}
	}
	return 0, false
}

func columnKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

// Valid reports whether c addresses an existing column.
func (c Column) Valid() bool {
	return c >= 0 && c < NumColumns
}

// Monetary reports whether c holds an amount summed into the totals row.
func (c Column) Monetary() bool {
	switch c {
	case ColTotalAmount, ColPayment, ColTax, ColBalance:
		return true
	}
	return false
}

// Derived reports whether c is computed from other cells and closed to manual edits.
func (c Column) Derived() bool {
	for _, dep := range dependencies {
		if dep.output == c {
			return true
		}
	}
	return false
}

// dependency declares that output is recomputed whenever one of inputs changes.
type dependency struct {
	inputs  []Column
	output  Column
	compute func(r *Row) string
}

var dependencies = []dependency{
	{
		inputs:  []Column{ColTotalAmount, ColPayment, ColTax},
		output:  ColBalance,
		compute: computeBalance,
	},
}

// computeBalance is TotalAmount - Payment - Tax, non-numeric values counting as zero.
func computeBalance(r *Row) string {
	balance := money.Value(r.values[ColTotalAmount]).
		Sub(money.Value(r.values[ColPayment])).
		Sub(money.Value(r.values[ColTax]))
	return money.Format(balance)
}

// recomputeDerived evaluates every dependency of changed on r.
func recomputeDerived(r *Row, changed Column) {
	for _, dep := range dependencies {
		for _, in := range dep.inputs {
			if in == changed {
				r.values[dep.output] = dep.compute(r)
				break
			}
		}
	}
}

// recomputeAllDerived evaluates every dependency on r.
func recomputeAllDerived(r *Row) {
	for _, dep := range dependencies {
		r.values[dep.output] = dep.compute(r)
	}
}
