package usecase

import (
	"fmt"
	"sort"
	"time"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
)

// SummaryParams select the as-of dates of a report run. Start and End bound
// the custom and frequency modes; a zero bound is open.
type SummaryParams struct {
	Mode      drepo.SummaryMode
	Frequency drepo.Frequency
	Start     time.Time
	End       time.Time
}

// UnionDates merges the date indexes of every series, sorted and unique.
func UnionDates(series map[string]*models.EnrichedSeries) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, e := range series {
		if e == nil {
			continue
		}
		for _, b := range e.Bars {
			seen[b.Date] = struct{}{}
		}
	}
	out := make([]time.Time, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// SelectSummaryDates drops the first max(horizons) dates of index, where no
// horizon has a defined return yet, and picks the summary dates from the rest.
func SelectSummaryDates(index []time.Time, horizons []int, p SummaryParams) ([]time.Time, error) {
	mode := p.Mode
	if mode == "" {
		mode = drepo.DefaultMode()
	}
	if !drepo.IsValidMode(mode) {
		return nil, fmt.Errorf("%w: mode %q", models.ErrConfigMode, p.Mode)
	}
	if mode == drepo.ModeFrequency && !drepo.IsValidFrequency(p.Frequency) {
		return nil, fmt.Errorf("%w: frequency %q", models.ErrConfigMode, p.Frequency)
	}

	maxLag := 0
	for _, h := range horizons {
		if h > maxLag {
			maxLag = h
		}
	}
	var available []time.Time
	if maxLag < len(index) {
		available = index[maxLag:]
	}

	switch mode {
	case drepo.ModeLatest:
		if len(available) == 0 {
			return nil, fmt.Errorf("%w: no date past the %d-row warm-up", models.ErrNoData, maxLag)
		}
		return []time.Time{available[len(available)-1]}, nil

	case drepo.ModeDaily:
		return append([]time.Time(nil), available...), nil

	case drepo.ModeCustom:
		var out []time.Time
		for _, d := range available {
			if inRange(d, p.Start, p.End) {
				out = append(out, d)
			}
		}
		return out, nil

	default:
		if len(available) == 0 {
			return nil, nil
		}
		start, end := p.Start, p.End
		if start.IsZero() {
			start = available[0]
		}
		if end.IsZero() {
			end = available[len(available)-1]
		}
		have := make(map[time.Time]struct{}, len(available))
		for _, d := range available {
			have[d] = struct{}{}
		}
		var out []time.Time
		for _, d := range CalendarDates(p.Frequency, models.Day(start), models.Day(end)) {
			if _, ok := have[d]; ok {
				out = append(out, d)
			}
		}
		return out, nil
	}
}

// CalendarDates generates the anchor dates of a frequency within [start, end]:
// Sundays, month ends, quarter ends, every second quarter end counted from
// the first one on or after start, or year ends.
func CalendarDates(f drepo.Frequency, start, end time.Time) []time.Time {
	switch f {
	case drepo.FreqWeekly:
		d := start
		for d.Weekday() != time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		var out []time.Time
		for ; !d.After(end); d = d.AddDate(0, 0, 7) {
			out = append(out, d)
		}
		return out
	case drepo.FreqMonthly:
		return monthEnds(start, end, 1, func(time.Month) bool { return true })
	case drepo.FreqQuarterly:
		return monthEnds(start, end, 3, isQuarterEnd)
	case drepo.FreqSemiannual:
		return monthEnds(start, end, 6, isQuarterEnd)
	case drepo.FreqAnnual:
		return monthEnds(start, end, 12, func(m time.Month) bool { return m == time.December })
	default:
		return nil
	}
}

func isQuarterEnd(m time.Month) bool { return m%3 == 0 }

func monthEnds(start, end time.Time, step int, anchor func(time.Month) bool) []time.Time {
	y, m, _ := start.Date()
	cur := monthEnd(y, m)
	for cur.Before(start) || !anchor(cur.Month()) {
		m++
		cur = monthEnd(y, m)
	}
	var out []time.Time
	for !cur.After(end) {
		out = append(out, cur)
		m += time.Month(step)
		cur = monthEnd(y, m)
	}
	return out
}

func monthEnd(y int, m time.Month) time.Time {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

func inRange(d, start, end time.Time) bool {
	if !start.IsZero() && d.Before(models.Day(start)) {
		return false
	}
	if !end.IsZero() && d.After(models.Day(end)) {
		return false
	}
	return true
}
