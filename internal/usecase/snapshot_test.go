package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceBand/internal/domain/models"
	"PriceBand/internal/services/features"
)

func gappedSeries(t *testing.T) *models.EnrichedSeries {
	t.Helper()
	bars := []models.Bar{
		{Date: day(2024, 1, 1), Open: 10, High: 11, Low: 9, Close: 10},
		{Date: day(2024, 1, 2), Open: 10, High: 12, Low: 9, Close: 11},
		{Date: day(2024, 1, 5), Open: 11, High: 13, Low: 10, Close: 12},
		{Date: day(2024, 1, 6), Open: 12, High: 13, Low: 11, Close: 12.5},
	}
	e, err := features.ApplyLaggedReturns(models.Enrich(models.NewSeries("AAPL", bars)), models.ColClose, []int{1})
	require.NoError(t, err)
	e, err = features.ApplyRollingLow(e, models.ColLow, features.DefaultLowWindow)
	require.NoError(t, err)
	return e
}

func TestExtractSnapshotExact(t *testing.T) {
	e := gappedSeries(t)
	snap := ExtractSnapshot(map[string]*models.EnrichedSeries{"AAPL": e}, day(2024, 1, 5))

	require.Contains(t, snap, "AAPL")
	assert.Equal(t, e.Table().Row(2), snap["AAPL"])
}

func TestExtractSnapshotFallsBackToEarlierRow(t *testing.T) {
	e := gappedSeries(t)
	series := map[string]*models.EnrichedSeries{"AAPL": e}

	snap := ExtractSnapshot(series, day(2024, 1, 4))
	require.Contains(t, snap, "AAPL")
	assert.Equal(t, day(2024, 1, 2), snap["AAPL"].Date)
	cls, ok := snap["AAPL"].Get(models.ColClose)
	require.True(t, ok)
	assert.Equal(t, 11.0, cls.Float64)

	snap = ExtractSnapshot(series, day(2024, 3, 1))
	assert.Equal(t, day(2024, 1, 6), snap["AAPL"].Date)
}

func TestExtractSnapshotOmitsLaterSeries(t *testing.T) {
	early := gappedSeries(t)
	late := models.Enrich(models.NewSeries("LATE", dailyBars(day(2024, 2, 1), 5)))
	snap := ExtractSnapshot(map[string]*models.EnrichedSeries{"AAPL": early, "LATE": late}, day(2024, 1, 10))

	assert.Contains(t, snap, "AAPL")
	assert.NotContains(t, snap, "LATE")
}
