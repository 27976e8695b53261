package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewSeriesSortsAndDedups(t *testing.T) {
	s := NewSeries("AAPL", []Bar{
		{Date: day(2024, 1, 3), Close: 3},
		{Date: time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC), Close: 1},
		{Date: day(2024, 1, 3), Close: 4},
		{Date: day(2024, 1, 2), Close: 2},
	})

	require.Equal(t, 3, s.Len())
	assert.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)}, s.Dates())
	assert.Equal(t, 4.0, s.Bars[2].Close)

	first, ok := s.First()
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 1), first)

	_, err := s.Column("vwap")
	assert.ErrorIs(t, err, ErrSchema)
}

func TestFoldBar(t *testing.T) {
	s := NewSeries("AAPL", []Bar{{Date: day(2024, 1, 1), Close: 1}, {Date: day(2024, 1, 2), Close: 2}})

	same := s.FoldBar(Bar{Date: time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC), Close: 2.5})
	require.Equal(t, 2, same.Len())
	assert.Equal(t, 2.5, same.Bars[1].Close)
	assert.Equal(t, 2.0, s.Bars[1].Close)

	next := s.FoldBar(Bar{Date: day(2024, 1, 3), Close: 3})
	require.Equal(t, 3, next.Len())
	last, _ := next.Last()
	assert.Equal(t, day(2024, 1, 3), last)
}

func TestTableSetAndValidate(t *testing.T) {
	tbl := NewTable([]time.Time{day(2024, 1, 1), day(2024, 1, 2)})
	require.NoError(t, tbl.Set("a", []null.Float{null.FloatFrom(1), {}}))
	require.NoError(t, tbl.Set("b", []null.Float{null.FloatFrom(2), null.FloatFrom(3)}))
	require.NoError(t, tbl.Set("a", []null.Float{null.FloatFrom(9), null.FloatFrom(8)}))
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
	assert.Error(t, tbl.Set("c", []null.Float{null.FloatFrom(1)}))
	assert.Equal(t, []string{"c"}, tbl.Missing("a", "c"))
	assert.NoError(t, tbl.Validate())

	row := tbl.Row(1)
	v, ok := row.Get("a")
	require.True(t, ok)
	assert.Equal(t, 8.0, v.Float64)

	bad := NewTable([]time.Time{day(2024, 1, 2), day(2024, 1, 2)})
	assert.ErrorIs(t, bad.Validate(), ErrSchema)
}

func TestRowJSON(t *testing.T) {
	row := Row{Date: day(2024, 1, 5), Columns: []string{"close", "P5"}, Values: []null.Float{null.FloatFrom(10), {}}}
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-01-05","close":10,"P5":null}`, string(b))
}

func TestFinite(t *testing.T) {
	assert.False(t, Finite(math.NaN()).Valid)
	assert.False(t, Finite(math.Inf(1)).Valid)
	assert.Equal(t, null.FloatFrom(1.5), Finite(1.5))
}

func TestRestoreSeriesRoundTrip(t *testing.T) {
	bars := []Bar{
		{Date: day(2024, 1, 1), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Date: day(2024, 1, 2), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 11},
	}
	e := Enrich(NewSeries("AAPL", bars)).
		WithReturns(&LaggedReturnSet{
			Horizons: []int{1},
			Returns:  map[int][]null.Float{1: {{}, null.FloatFrom(33.3)}},
			Total:    []float64{0, 33.3},
		}).
		WithExtremum(&RollingExtremum{Window: 252, Low: []float64{0.5, 0.5}})

	tbl := e.Table()
	assert.Equal(t, []string{"open", "high", "low", "close", "volume", "P1", "Total_%", "52_week_low"}, tbl.Columns)

	back, err := RestoreSeries("AAPL", tbl, []int{1}, 252)
	require.NoError(t, err)
	assert.Equal(t, e.Bars, back.Bars)
	require.NotNil(t, back.Returns)
	assert.Equal(t, e.Returns.Returns[1], back.Returns.Returns[1])
	assert.Equal(t, []float64{0, 33.3}, back.Returns.Total)
	require.NotNil(t, back.Extremum)
	assert.Equal(t, []float64{0.5, 0.5}, back.Extremum.Low)
	assert.Nil(t, back.Band)

	noReturns, err := RestoreSeries("AAPL", tbl, []int{1, 5}, 252)
	require.NoError(t, err)
	assert.Nil(t, noReturns.Returns)

	_, err = RestoreSeries("AAPL", NewTable(tbl.Dates), nil, 252)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestSellFromAndRate(t *testing.T) {
	reach := null.FloatFrom(120)
	assert.Equal(t, null.FloatFrom(110), SellFrom(100, null.FloatFrom(110), reach))
	assert.Equal(t, reach, SellFrom(100, null.FloatFrom(95), reach))
	assert.False(t, SellFrom(100, null.Float{}, reach).Valid)

	assert.InDelta(t, -0.1, Rate(100, null.FloatFrom(90)).Float64, 1e-12)
	assert.False(t, Rate(100, null.Float{}).Valid)
}

func TestSummaryMatrix(t *testing.T) {
	tbl := &SummaryTable{AsOf: day(2024, 1, 5), Rows: []SummaryRow{
		{Symbol: "AAPL", Close: 10, HighMin: null.FloatFrom(11)},
		{Symbol: "MSFT", Close: 20, Low52Week: math.NaN()},
	}}
	assert.Equal(t, []string{"AAPL", "MSFT"}, tbl.Symbols())

	m := tbl.Matrix()
	require.Len(t, m, len(SummaryMetrics))
	assert.Equal(t, []null.Float{null.FloatFrom(10), null.FloatFrom(20)}, m[MetricClose])
	assert.Equal(t, null.FloatFrom(11), m[MetricHighMin][0])
	assert.False(t, m[MetricHighMin][1].Valid)
	assert.False(t, m[MetricLow52Week][1].Valid)
}

func TestStageError(t *testing.T) {
	err := NewStageError("AAPL", StageFetch, ErrFetch)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "AAPL", se.Symbol)
	assert.ErrorIs(t, err, ErrFetch)
}
