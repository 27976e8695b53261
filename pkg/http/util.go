package http

import (
	"time"

	xutil "PriceBand/pkg/util"
)

// ParseDay parses a YYYY-MM-DD query value. Returns (t, true) if it worked.
func ParseDay(s string) (time.Time, bool) { return xutil.ParseDay(s) }

// ParseSymbols parses a comma separated symbol filter.
func ParseSymbols(s string) []string { return xutil.SplitSymbols(s) }

// ValidSymbol reports whether s looks like a ticker.
func ValidSymbol(s string) bool { return xutil.ValidSymbol(s) }
