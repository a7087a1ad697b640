package parser

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var indianEnglish = language.MustParse("en-IN")

// NormalizeNumber strips every non-digit from s and parses the rest as a
// base-10 integer. ok is false when no digits remain or the value overflows.
// Every extractor that reads a numeral goes through here so commas, currency
// symbols and stray punctuation are treated the same way everywhere.
func NormalizeNumber(s string) (n int64, ok bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatNumber renders n with en-IN digit grouping (38000 -> "38,000",
// 730000 -> "7,30,000").
func FormatNumber(n int64) string {
	return message.NewPrinter(indianEnglish).Sprintf("%d", n)
}
