// Package locale converts between decimal values and the exchange's
// presentation format: period as thousands separator, comma as decimal
// separator ("1.234,56").
package locale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const fractionDigits = 2

var (
	ErrBlank     = errors.New("blank numeric value")
	ErrMalformed = errors.New("malformed numeric value")
)

// ParseDecimal reads a locale-formatted number. Grouping periods are optional.
func ParseDecimal(value string) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\t':
			return -1
		}
		return r
	}, value)
	if s == "" {
		return decimal.Zero, ErrBlank
	}

	sign := ""
	switch s[0] {
	case '-', '+':
		sign, s = s[:1], s[1:]
	}
	if s == "" || strings.Count(s, ",") > 1 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformed, value)
	}

	intPart, fracPart, _ := strings.Cut(s, ",")
	if !validGrouping(intPart) || !allDigits(fracPart) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformed, value)
	}

	plain := strings.ReplaceAll(intPart, ".", "")
	if fracPart != "" {
		plain += "." + fracPart
	}
	if sign == "-" {
		plain = "-" + plain
	}
	d, err := decimal.NewFromString(plain)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	return d, nil
}

// FormatDecimal renders d rounded to two fraction digits with grouped thousands.
func FormatDecimal(d decimal.Decimal) string {
	fixed := d.StringFixed(fractionDigits)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")
	if sign == "-" && strings.Trim(intPart+fracPart, "0") == "" {
		sign = ""
	}

	var b strings.Builder
	b.Grow(len(fixed) + len(intPart)/3 + 1)
	b.WriteString(sign)
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte('.')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// validGrouping accepts "1234" or "1.234.567" but not "1.23" or "12..3".
func validGrouping(s string) bool {
	if s == "" {
		return false
	}
	groups := strings.Split(s, ".")
	if len(groups) == 1 {
		return allDigits(s)
	}
	if len(groups[0]) == 0 || len(groups[0]) > 3 || !allDigits(groups[0]) {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || !allDigits(g) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
