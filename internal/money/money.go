// Package money normalizes scraped price text into decimal amounts.
// Marketplace markup is treated as hostile input: amounts arrive with
// currency symbols, non-breaking spaces, and either comma or dot decimal
// separators depending on locale.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNoAmount = errors.New("no numeric amount found")

// currencyMarkers maps textual markers found near a price to an ISO-ish code.
// Longer markers are listed first so e.g. "PLN" wins before a bare "L" could.
var currencyMarkers = []struct {
	marker string
	code   string
}{
	{"zł", "PLN"},
	{"PLN", "PLN"},
	{"EUR", "EUR"},
	{"€", "EUR"},
	{"USD", "USD"},
	{"$", "USD"},
	{"GBP", "GBP"},
	{"£", "GBP"},
	{"CZK", "CZK"},
	{"Kč", "CZK"},
}

// Currency scans raw price text for a recognizable currency marker and
// returns its code, or fallback when none is present.
func Currency(raw, fallback string) string {
	for _, m := range currencyMarkers {
		if strings.Contains(raw, m.marker) {
			return m.code
		}
	}
	return fallback
}

// Parse extracts a positive decimal amount from raw price text.
// It strips currency markers, whitespace (including NBSP variants) and
// thousands separators, then resolves the decimal separator: when both
// ',' and '.' appear, the rightmost one is decimal; a lone separator is
// decimal only if at most two digits follow it.
func Parse(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	for _, m := range currencyMarkers {
		s = strings.ReplaceAll(s, m.marker, "")
	}
	// NBSP and narrow NBSP show up as thousands separators on Polish shops.
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t', '\n':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return decimal.Zero, ErrNoAmount
	}

	// Keep only the leading signed numeric run; listings sometimes append
	// trailing text like "/szt." after the amount.
	end := 0
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' || c == ',' || c == '.' || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	s = s[:end]
	if s == "" || s == "-" {
		return decimal.Zero, ErrNoAmount
	}

	s = resolveSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparsable amount %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive amount %q", raw)
	}
	return d, nil
}

func resolveSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Rightmost separator is the decimal point, the other groups thousands.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
			// A second comma would have been a thousands separator.
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = resolveSingle(s, ",", lastComma)
	case lastDot >= 0:
		s = resolveSingle(s, ".", lastDot)
	}
	return s
}

// resolveSingle decides whether a lone separator is decimal or thousands.
func resolveSingle(s, sep string, last int) string {
	digitsAfter := len(s) - last - 1
	if strings.Count(s, sep) == 1 && digitsAfter > 0 && digitsAfter <= 2 {
		return strings.Replace(s, sep, ".", 1)
	}
	return strings.ReplaceAll(s, sep, "")
}
