package util

import "strings"

// MaxSymbolLen bounds ticker length, e.g. "BRK-B" or "^GSPC".
const MaxSymbolLen = 32

// SplitSymbols splits a comma separated ticker list, upper-casing entries and
// dropping blanks and duplicates.
func SplitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ValidSymbol accepts letters, digits and the separators tickers use
// (".", "-", "^", "=").
func ValidSymbol(s string) bool {
	if s == "" || len(s) > MaxSymbolLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '=':
		default:
			return false
		}
	}
	return true
}
