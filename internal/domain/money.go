package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	minDisplayDigits = 2
	maxDisplayDigits = 4
)

// FormatAmount renders a monetary value with 2 to 4 fraction digits and
// thousands separators, followed by the account currency when given.
func FormatAmount(amount decimal.Decimal, currency string) string {
	rounded := amount.Round(maxDisplayDigits)
	text := rounded.StringFixed(maxDisplayDigits)

	intPart, fracPart, _ := strings.Cut(text, ".")
	fracPart = strings.TrimRight(fracPart, "0")
	for len(fracPart) < minDisplayDigits {
		fracPart += "0"
	}

	negative := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(fracPart)

	if currency != "" {
		b.WriteByte(' ')
		b.WriteString(currency)
	}

	return b.String()
}
