package repository

import (
	"fmt"
	"strings"

	"PriceBand/internal/domain/models"
)

// SummaryMode selects which dates receive a summary table.
type SummaryMode string

const (
	ModeLatest    SummaryMode = "latest"
	ModeDaily     SummaryMode = "daily"
	ModeCustom    SummaryMode = "custom"
	ModeFrequency SummaryMode = "frequency"
)

// Frequency is the calendar step used by ModeFrequency.
type Frequency string

const (
	FreqWeekly     Frequency = "weekly"
	FreqMonthly    Frequency = "monthly"
	FreqQuarterly  Frequency = "quarterly"
	FreqSemiannual Frequency = "semiannual"
	FreqAnnual     Frequency = "annual"
)

// IsValidMode returns true if m is a supported summary mode.
func IsValidMode(m SummaryMode) bool {
	switch m {
	case ModeLatest, ModeDaily, ModeCustom, ModeFrequency:
		return true
	default:
		return false
	}
}

// IsValidFrequency returns true if f is a supported frequency key.
func IsValidFrequency(f Frequency) bool {
	switch f {
	case FreqWeekly, FreqMonthly, FreqQuarterly, FreqSemiannual, FreqAnnual:
		return true
	default:
		return false
	}
}

// DefaultMode returns the default summary mode.
func DefaultMode() SummaryMode { return ModeLatest }

// ParseMode converts a raw string to a summary mode. Empty selects the
// default; anything unrecognized is ErrConfigMode.
func ParseMode(s string) (SummaryMode, error) {
	if s == "" {
		return DefaultMode(), nil
	}
	m := SummaryMode(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidMode(m) {
		return "", fmt.Errorf("%w: mode %q", models.ErrConfigMode, s)
	}
	return m, nil
}

// ParseFrequency converts a raw string to a frequency key.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidFrequency(f) {
		return "", fmt.Errorf("%w: frequency %q", models.ErrConfigMode, s)
	}
	return f, nil
}
