// Package normalize turns extracted raw values into normalized, unit-converted
// records. Parsing is locale-aware: Brazilian sources write 1.234,56 while
// international feeds write 1,234.56, and both appear in the same catalog.
package normalize

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/anivertis/market-pipeline/internal/resilience"
)

// ParseNumeric parses a price string in either Brazilian or international
// notation. The rightmost separator decides: if a comma appears after the
// last dot, the comma is the decimal mark and dots are thousands separators.
func ParseNumeric(raw string) (float64, error) {
	cleaned := stripNonNumeric(raw)
	if cleaned == "" {
		return 0, eris.Wrapf(resilience.ErrInvalidValue, "normalize: no numeric content in %q", raw)
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	if lastComma > lastDot {
		// Brazilian: 1.234,56
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		// International: 1,234.56
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, eris.Wrapf(resilience.ErrInvalidValue, "normalize: unparseable value %q", raw)
	}
	return v, nil
}

// stripNonNumeric keeps digits, separators, and a leading minus. Currency
// symbols, unit suffixes, and whitespace are discarded.
func stripNonNumeric(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "-" || s == "." || s == "," {
		return ""
	}
	return s
}
