// Package money parses and formats the monetary strings carried by ledger cells.
package money

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is the formatted zero amount.
const Zero = "0.00"

// plainDecimal rejects exponent forms such as "1e5".
var plainDecimal = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Parse converts a cell value into a decimal.
// Thousands separators are ignored and a blank value is zero.
// Only plain decimal notation is numeric.
// The second return value is false when the value is not numeric.
func Parse(s string) (decimal.Decimal, bool) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if clean == "" {
		return decimal.Zero, true
	}
	if !plainDecimal.MatchString(clean) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Value is Parse without the validity flag: invalid input counts as zero.
func Value(s string) decimal.Decimal {
	d, _ := Parse(s)
	return d
}

// Format renders d with comma thousands separators and exactly two fraction digits.
func Format(d decimal.Decimal) string {
	fixed := d.StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	whole, frac, _ := strings.Cut(fixed, ".")
	if whole == "0" && frac == "00" {
		sign = ""
	}

	var b strings.Builder
	b.Grow(len(whole) + len(whole)/3 + len(frac) + 2)
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Sum adds the parsed values; non-numeric entries are ignored.
func Sum(values ...string) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		if d, ok := Parse(v); ok {
			total = total.Add(d)
		}
	}
	return total
}
