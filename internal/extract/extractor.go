// Package extract turns the OCR text of an obligation request into a structured record.
//
// Extraction never fails: a field that cannot be found is left empty
// (TotalAmount falls back to "0.00"). Decode and OCR failures belong to the caller.
package extract

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dvloznov/obr-ledger/internal/money"
	"github.com/shopspring/decimal"
)

// Record is the structured result for one document.
type Record struct {
	FileName    string `json:"file_name"`
	Serial      string `json:"serial"`
	Date        string `json:"date"`
	Payee       string `json:"payee"`
	Particulars string `json:"particulars"`
	TotalAmount string `json:"total_amount"`
}

// Field names a record field produced by a rule.
type Field string

const (
	FieldSerial      Field = "serial"
	FieldDate        Field = "date"
	FieldPayee       Field = "payee"
	FieldParticulars Field = "particulars"
	FieldTotalAmount Field = "total_amount"
)

// Input is what every rule sees.
type Input struct {
	Stem  string
	Text  string
	Lines []string
}

// Rule derives one field. Rules are independent of each other.
type Rule struct {
	Field Field
	Apply func(in Input) string
}

var (
	datePattern   = regexp.MustCompile(`(?i)Date\s*[:\-]?\s*([A-Za-z]+\s+\d{1,2},\s+\d{4})`)
	payeeLabel    = regexp.MustCompile(`(?i)payee`)
	payeeOnly     = regexp.MustCompile(`(?i)^payee\s*[:\-]?$`)
	totalPattern  = regexp.MustCompile(`Total\s*[:\s]*([\d,]+\.\d{2})`)
	amountPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})*\.\d{2}`)
)

// DefaultRules returns the obligation request rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Field: FieldSerial, Apply: func(in Input) string { return in.Stem }},
		{Field: FieldDate, Apply: extractDate},
		{Field: FieldPayee, Apply: func(in Input) string { return extractPayee(in.Lines) }},
		{Field: FieldParticulars, Apply: func(in Input) string { return collectParticulars(in.Lines) }},
		{Field: FieldTotalAmount, Apply: extractTotalAmount},
	}
}

// Extractor applies an ordered rule set.
type Extractor struct {
	rules []Rule
}

// New creates an extractor with DefaultRules.
func New() *Extractor {
	return NewWithRules(DefaultRules()...)
}

// NewWithRules creates an extractor with a custom rule set.
// When two rules target the same field the later one wins.
func NewWithRules(rules ...Rule) *Extractor {
	return &Extractor{rules: rules}
}

// Extract builds a record from a file name stem and OCR text.
func (e *Extractor) Extract(stem, text string) Record {
	in := Input{Stem: stem, Text: text, Lines: Normalize(text)}

	rec := Record{TotalAmount: money.Zero}
	for _, rule := range e.rules {
		value := rule.Apply(in)
		switch rule.Field {
		case FieldSerial:
			rec.Serial = value
		case FieldDate:
			rec.Date = value
		case FieldPayee:
			rec.Payee = value
		case FieldParticulars:
			rec.Particulars = value
		case FieldTotalAmount:
			rec.TotalAmount = value
		}
	}
	return rec
}

// ExtractDocument is Extract keyed by a full file name.
func (e *Extractor) ExtractDocument(fileName, text string) Record {
	rec := e.Extract(Stem(fileName), text)
	rec.FileName = fileName
	return rec
}

// Stem strips the directory and extension from a file name.
func Stem(fileName string) string {
	base := filepath.Base(fileName)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func extractDate(in Input) string {
	m := datePattern.FindStringSubmatch(in.Text)
	if m == nil {
		return ""
	}
	return strings.Join(strings.Fields(m[1]), " ")
}

// extractPayee takes the text after a "Payee" label, or the next non-empty
// line when the label stands alone.
func extractPayee(lines []string) string {
	for i, line := range lines {
		loc := payeeLabel.FindStringIndex(line)
		if loc == nil {
			continue
		}

		rest := strings.TrimSpace(line[loc[1]:])
		rest = strings.TrimSpace(strings.TrimLeft(rest, ":-"))
		if rest != "" {
			return rest
		}

		if payeeOnly.MatchString(line) {
			for _, next := range lines[i+1:] {
				if next != "" {
					return next
				}
			}
		}
	}
	return ""
}

// extractTotalAmount prefers a labelled total and otherwise sums every amount-shaped token.
func extractTotalAmount(in Input) string {
	if m := totalPattern.FindStringSubmatch(in.Text); m != nil {
		if d, ok := money.Parse(m[1]); ok {
			return money.Format(d)
		}
	}

	sum := decimal.Zero
	for _, token := range amountPattern.FindAllString(in.Text, -1) {
		sum = sum.Add(money.Value(token))
	}
	return money.Format(sum)
}
