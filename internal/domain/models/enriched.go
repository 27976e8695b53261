package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
)

// Derived column names.
const (
	ColTotal           = "Total_%"
	ColLow52           = "52_week_low"
	ColBandMinMaxPct   = "MinMax%"
	ColReach           = "Reach"
	ColReachFromLow    = "ReachFromLow"
	ColHighMax         = "HighMax"
	ColHighAvg         = "HighAvg"
	ColHighMin         = "HighMin"
	ColLowMin          = "LowMin"
	ColLowAvg          = "LowAvg"
	ColLowMax          = "LowMax"
	returnColumnPrefix = "P"
)

// ReturnColumn is the column name of the h-row lagged return.
func ReturnColumn(h int) string { return returnColumnPrefix + strconv.Itoa(h) }

// ParseReturnColumn reports the horizon of a P<h> column name.
func ParseReturnColumn(name string) (int, bool) {
	if !strings.HasPrefix(name, returnColumnPrefix) {
		return 0, false
	}
	h, err := strconv.Atoi(name[len(returnColumnPrefix):])
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}

func MaxPctColumn(h int) string    { return fmt.Sprintf("Max%%_%d", h) }
func MinPctColumn(h int) string    { return fmt.Sprintf("Min%%_%d", h) }
func MaxTargetColumn(h int) string { return fmt.Sprintf("MaxPT_%d", h) }
func MinTargetColumn(h int) string { return fmt.Sprintf("MinPT_%d", h) }

// LaggedReturnSet holds the P<h> columns and their row-wise total.
type LaggedReturnSet struct {
	Horizons []int
	Returns  map[int][]null.Float
	Total    []float64
}

// Column returns the P<h> column.
func (l *LaggedReturnSet) Column(h int) ([]null.Float, bool) {
	if l == nil {
		return nil, false
	}
	c, ok := l.Returns[h]
	return c, ok
}

// RollingExtremum is the trailing minimum of the low column.
type RollingExtremum struct {
	Window int
	Low    []float64
}

// HorizonBand is the per-horizon part of a price-target band.
type HorizonBand struct {
	Horizon   int
	MaxPct    []null.Float
	MinPct    []null.Float
	Shifted   []null.Float
	MaxTarget []null.Float
	MinTarget []null.Float
}

// PriceTargetBand is the multi-horizon band and its cross-horizon reductions.
type PriceTargetBand struct {
	Lookback      int
	Horizons      []HorizonBand
	BandMinMaxPct []null.Float
	Reach         []null.Float
	ReachFromLow  []null.Float
	HighMin       []null.Float
	HighAvg       []null.Float
	HighMax       []null.Float
	LowMin        []null.Float
	LowAvg        []null.Float
	LowMax        []null.Float
}

// EnrichedSeries is a series with the derived stage records merged in. A nil
// record means that stage has not run.
type EnrichedSeries struct {
	Series
	Returns  *LaggedReturnSet
	Extremum *RollingExtremum
	Band     *PriceTargetBand
}

// Enrich wraps a raw series.
func Enrich(s Series) *EnrichedSeries { return &EnrichedSeries{Series: s} }

// WithReturns returns a copy carrying r. Later stages are cleared because
// they depend on the replaced record.
func (e *EnrichedSeries) WithReturns(r *LaggedReturnSet) *EnrichedSeries {
	return &EnrichedSeries{Series: e.Series, Returns: r, Extremum: e.Extremum}
}

// WithExtremum returns a copy carrying x.
func (e *EnrichedSeries) WithExtremum(x *RollingExtremum) *EnrichedSeries {
	return &EnrichedSeries{Series: e.Series, Returns: e.Returns, Extremum: x}
}

// WithBand returns a copy carrying b.
func (e *EnrichedSeries) WithBand(b *PriceTargetBand) *EnrichedSeries {
	return &EnrichedSeries{Series: e.Series, Returns: e.Returns, Extremum: e.Extremum, Band: b}
}

type column struct {
	name string
	at   func(i int) null.Float
}

func nullCol(name string, vs []null.Float) column {
	return column{name: name, at: func(i int) null.Float { return vs[i] }}
}

func plainCol(name string, vs []float64) column {
	return column{name: name, at: func(i int) null.Float { return Finite(vs[i]) }}
}

// columns lists every rendered column in the stable output order.
func (e *EnrichedSeries) columns() []column {
	cols := make([]column, 0, 16)
	for _, name := range BarColumns {
		pick, _ := barField(name)
		cols = append(cols, column{name: name, at: func(i int) null.Float { return null.FloatFrom(pick(e.Bars[i])) }})
	}
	if r := e.Returns; r != nil {
		for _, h := range r.Horizons {
			cols = append(cols, nullCol(ReturnColumn(h), r.Returns[h]))
		}
		cols = append(cols, plainCol(ColTotal, r.Total))
	}
	if x := e.Extremum; x != nil {
		cols = append(cols, plainCol(ColLow52, x.Low))
	}
	if b := e.Band; b != nil {
		for _, hb := range b.Horizons {
			cols = append(cols, nullCol(MaxPctColumn(hb.Horizon), hb.MaxPct))
		}
		for _, hb := range b.Horizons {
			cols = append(cols, nullCol(MinPctColumn(hb.Horizon), hb.MinPct))
		}
		for _, hb := range b.Horizons {
			cols = append(cols, nullCol(MaxTargetColumn(hb.Horizon), hb.MaxTarget))
		}
		for _, hb := range b.Horizons {
			cols = append(cols, nullCol(MinTargetColumn(hb.Horizon), hb.MinTarget))
		}
		cols = append(cols,
			nullCol(ColBandMinMaxPct, b.BandMinMaxPct),
			nullCol(ColReach, b.Reach),
			nullCol(ColReachFromLow, b.ReachFromLow),
			nullCol(ColHighMax, b.HighMax),
			nullCol(ColHighAvg, b.HighAvg),
			nullCol(ColHighMin, b.HighMin),
			nullCol(ColLowMin, b.LowMin),
			nullCol(ColLowAvg, b.LowAvg),
			nullCol(ColLowMax, b.LowMax),
		)
	}
	return cols
}

// Row builds the i-th row without rendering the full table.
func (e *EnrichedSeries) Row(i int) Row {
	cols := e.columns()
	r := Row{Date: e.Bars[i].Date, Columns: make([]string, len(cols)), Values: make([]null.Float, len(cols))}
	for j, c := range cols {
		r.Columns[j] = c.name
		r.Values[j] = c.at(i)
	}
	return r
}

// Table renders the series and every present stage record.
func (e *EnrichedSeries) Table() *Table {
	t := NewTable(e.Dates())
	n := e.Len()
	for _, c := range e.columns() {
		vals := make([]null.Float, n)
		for i := 0; i < n; i++ {
			vals[i] = c.at(i)
		}
		// lengths always match the index
		_ = t.Set(c.name, vals)
	}
	return t
}

// RestoreSeries rebuilds an enriched series from a persisted table. Bars are
// required; the lagged returns are restored when every P<h> for horizons is
// present and the rolling low when its column is. The band is never restored.
func RestoreSeries(symbol string, t *Table, horizons []int, window int) (*EnrichedSeries, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil table for %s", ErrSchema, symbol)
	}
	if missing := t.Missing(BarColumns...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s missing columns %v", ErrSchema, symbol, missing)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	open, _ := t.Column(ColOpen)
	high, _ := t.Column(ColHigh)
	low, _ := t.Column(ColLow)
	cls, _ := t.Column(ColClose)
	vol, _ := t.Column(ColVolume)
	bars := make([]Bar, t.Len())
	for i, d := range t.Dates {
		bars[i] = Bar{
			Date:   Day(d),
			Open:   nanIfNull(open[i]),
			High:   nanIfNull(high[i]),
			Low:    nanIfNull(low[i]),
			Close:  nanIfNull(cls[i]),
			Volume: vol[i].ValueOrZero(),
		}
	}
	out := &EnrichedSeries{Series: Series{Symbol: symbol, Bars: bars}}

	names := make([]string, len(horizons))
	for i, h := range horizons {
		names[i] = ReturnColumn(h)
	}
	if len(horizons) > 0 && len(t.Missing(names...)) == 0 {
		set := &LaggedReturnSet{Horizons: append([]int(nil), horizons...), Returns: make(map[int][]null.Float, len(horizons))}
		for _, h := range horizons {
			set.Returns[h], _ = t.Column(ReturnColumn(h))
		}
		set.Total = make([]float64, t.Len())
		for i := range set.Total {
			for _, h := range horizons {
				set.Total[i] += set.Returns[h][i].ValueOrZero()
			}
		}
		out.Returns = set
	}

	if lows, ok := t.Column(ColLow52); ok {
		x := &RollingExtremum{Window: window, Low: make([]float64, t.Len())}
		for i, v := range lows {
			x.Low[i] = nanIfNull(v)
		}
		out.Extremum = x
	}
	return out, nil
}

func nanIfNull(v null.Float) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
