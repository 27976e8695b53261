package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
	"PriceBand/internal/services/features"
)

func projected(t *testing.T, symbol string, bars []models.Bar, horizons []int) *models.EnrichedSeries {
	t.Helper()
	e, err := features.ApplyLaggedReturns(models.Enrich(models.NewSeries(symbol, bars)), models.ColClose, horizons)
	require.NoError(t, err)
	e, err = features.ApplyRollingLow(e, models.ColLow, features.DefaultLowWindow)
	require.NoError(t, err)
	e, err = features.ApplyPriceTargets(e, models.ColClose, horizons, features.DefaultLookback)
	require.NoError(t, err)
	return e
}

func TestBuildSummaryExcludesIncompleteRows(t *testing.T) {
	full := projected(t, "AAPL", dailyBars(day(2024, 1, 1), 40), []int{5, 10})
	bare := models.Enrich(models.NewSeries("MSFT", dailyBars(day(2024, 1, 1), 40)))

	rows := LatestRows(map[string]*models.EnrichedSeries{"AAPL": full, "MSFT": bare})
	table := BuildSummary(day(2024, 2, 9), rows, nil)

	require.Len(t, table.Rows, 1)
	r := table.Rows[0]
	assert.Equal(t, "AAPL", r.Symbol)
	last := full.Len() - 1
	assert.Equal(t, full.Bars[last].Close, r.Close)
	assert.Equal(t, full.Band.HighMin[last], r.HighMin)
	assert.Equal(t, full.Band.LowMax[last], r.LowMax)
	assert.Equal(t, full.Extremum.Low[last], r.Low52Week)
	assert.Equal(t, r.LowMin, r.BuyFrom)
	assert.Equal(t, r.LowMax, r.Floor)
	assert.Equal(t, r.HighMax, r.Ceiling)
	assert.InDelta(t, r.LowMin.Float64/r.Close-1, r.Rate.Float64, 1e-12)
}

func TestSummaryRowSellFromPolicy(t *testing.T) {
	row := func(close, highMin, reach float64) models.Row {
		cols := append([]string(nil), summaryColumns...)
		cols = append(cols, models.ColReach)
		vals := make([]null.Float, len(cols))
		for i := range vals {
			vals[i] = null.FloatFrom(1)
		}
		vals[0] = null.FloatFrom(close)
		vals[1] = null.FloatFrom(highMin)
		vals[len(vals)-1] = null.FloatFrom(reach)
		return models.Row{Date: day(2024, 1, 1), Columns: cols, Values: vals}
	}

	above, err := summaryRow("X", row(100, 110, 105))
	require.NoError(t, err)
	assert.Equal(t, 110.0, above.SellFrom.Float64)

	below, err := summaryRow("X", row(100, 95, 103))
	require.NoError(t, err)
	assert.Equal(t, 103.0, below.SellFrom.Float64)
}

func TestReporterRunDaily(t *testing.T) {
	horizons := []int{5, 10}
	series := map[string]*models.EnrichedSeries{
		"AAPL": projected(t, "AAPL", dailyBars(day(2024, 1, 1), 30), horizons),
		"MSFT": projected(t, "MSFT", dailyBars(day(2024, 1, 3), 28), horizons),
	}
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("disk full")}
	r := NewReporter([]drepo.SummarySink{bad, good}, SummaryParams{Mode: drepo.ModeDaily}, horizons, nil, nil)

	tables, err := r.Run(context.Background(), series)
	require.NoError(t, err)

	// 30 union dates, 10 warm-up, plus the trailing latest table
	require.Len(t, tables, 21)
	assert.Equal(t, day(2024, 1, 11), tables[0].AsOf)
	assert.Equal(t, day(2024, 1, 30), tables[len(tables)-1].AsOf)
	assert.Len(t, good.tables, 21)
	assert.Len(t, bad.tables, 21)
	for _, tb := range tables {
		assert.Len(t, tb.Rows, 2, tb.AsOf)
	}
}

func TestReporterRunLatestOnly(t *testing.T) {
	horizons := []int{5}
	series := map[string]*models.EnrichedSeries{"AAPL": projected(t, "AAPL", dailyBars(day(2024, 1, 1), 30), horizons)}
	sink := &recordingSink{name: "mem"}
	r := NewReporter([]drepo.SummarySink{sink}, SummaryParams{Mode: drepo.ModeLatest}, horizons, nil, nil)

	tables, err := r.Run(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, day(2024, 1, 30), tables[0].AsOf)
}

func TestReporterRunErrors(t *testing.T) {
	r := NewReporter(nil, SummaryParams{Mode: drepo.ModeDaily}, []int{5}, nil, nil)
	_, err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrNoData)

	r = NewReporter(nil, SummaryParams{Mode: "monthlyish"}, []int{5}, nil, nil)
	_, err = r.Run(context.Background(), map[string]*models.EnrichedSeries{
		"AAPL": projected(t, "AAPL", dailyBars(day(2024, 1, 1), 30), []int{5}),
	})
	assert.ErrorIs(t, err, models.ErrConfigMode)
}
