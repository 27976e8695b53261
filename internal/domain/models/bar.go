package models

import (
	"fmt"
	"sort"
	"time"
)

// Bar is one daily OHLCV record for an instrument.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Price column names understood by Series.Column.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

// BarColumns lists the raw bar columns in rendering order.
var BarColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Series is the date-ordered price history of one instrument.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Day truncates t to UTC midnight. All series dates are normalised this way.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewSeries sorts bars by date, normalises them to calendar days and keeps the
// last bar seen for a duplicated day.
func NewSeries(symbol string, bars []Bar) Series {
	out := make([]Bar, len(bars))
	copy(out, bars)
	for i := range out {
		out[i].Date = Day(out[i].Date)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(b.Date) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return Series{Symbol: symbol, Bars: dedup}
}

// Len returns the number of rows.
func (s Series) Len() int { return len(s.Bars) }

// Dates returns the date index.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Date
	}
	return out
}

// First and Last return the bounds of the date index; ok is false when empty.
func (s Series) First() (time.Time, bool) {
	if len(s.Bars) == 0 {
		return time.Time{}, false
	}
	return s.Bars[0].Date, true
}

func (s Series) Last() (time.Time, bool) {
	if len(s.Bars) == 0 {
		return time.Time{}, false
	}
	return s.Bars[len(s.Bars)-1].Date, true
}

// Column extracts a price column by name.
func (s Series) Column(name string) ([]float64, error) {
	pick, ok := barField(name)
	if !ok {
		return nil, fmt.Errorf("%w: column %q not found", ErrSchema, name)
	}
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = pick(b)
	}
	return out, nil
}

// FoldBar merges an intraday bar into the series: it replaces the last row
// when it falls on the same day and appends it otherwise. The receiver is not
// modified.
func (s Series) FoldBar(b Bar) Series {
	b.Date = Day(b.Date)
	bars := make([]Bar, len(s.Bars), len(s.Bars)+1)
	copy(bars, s.Bars)
	if n := len(bars); n > 0 && bars[n-1].Date.Equal(b.Date) {
		bars[n-1] = b
	} else {
		bars = append(bars, b)
	}
	return NewSeries(s.Symbol, bars)
}

func barField(name string) (func(Bar) float64, bool) {
	switch name {
	case ColOpen:
		return func(b Bar) float64 { return b.Open }, true
	case ColHigh:
		return func(b Bar) float64 { return b.High }, true
	case ColLow:
		return func(b Bar) float64 { return b.Low }, true
	case ColClose:
		return func(b Bar) float64 { return b.Close }, true
	case ColVolume:
		return func(b Bar) float64 { return b.Volume }, true
	default:
		return nil, false
	}
}
