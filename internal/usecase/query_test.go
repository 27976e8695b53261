package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceBand/internal/domain/models"
)

type staticReader struct{ t *models.SummaryTable }

func (r staticReader) LatestSummary(context.Context) (*models.SummaryTable, error) {
	if r.t == nil {
		return nil, models.ErrNoData
	}
	return r.t, nil
}

func builtQuery(t *testing.T) (*BandQuery, *ForecastState) {
	t.Helper()
	symbols := []string{"AAPL", "MSFT"}
	r, state, _, _ := newTestRefresher(marketWith(symbols...), symbols)
	_, err := r.Refresh(context.Background(), ModeBuild, nil)
	require.NoError(t, err)
	return NewBandQuery(state, nil, nil), state
}

func TestBandQueryEmptyState(t *testing.T) {
	q := NewBandQuery(NewForecastState(), nil, nil)

	_, err := q.Latest(context.Background())
	assert.ErrorIs(t, err, models.ErrNoData)
	_, err = q.SummaryAt(day(2024, 1, 10))
	assert.ErrorIs(t, err, models.ErrNoData)
	_, err = q.Tail("AAPL", 10)
	assert.ErrorIs(t, err, models.ErrNoData)
	assert.Empty(t, q.Dates())
}

func TestBandQueryLatestFallsBackToReader(t *testing.T) {
	stored := &models.SummaryTable{AsOf: day(2024, 3, 1)}
	q := NewBandQuery(NewForecastState(), staticReader{t: stored}, nil)

	got, err := q.Latest(context.Background())
	require.NoError(t, err)
	assert.Same(t, stored, got)
}

func TestBandQueryLatestPrefersState(t *testing.T) {
	q, state := builtQuery(t)
	got, err := q.Latest(context.Background())
	require.NoError(t, err)
	assert.Same(t, state.Latest(), got)

	st := q.Status()
	assert.Equal(t, []string{"AAPL", "MSFT"}, st.Symbols)
	assert.Equal(t, day(2024, 4, 30), st.LatestAt)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestBandQuerySummaryAtPastDate(t *testing.T) {
	q, _ := builtQuery(t)

	got, err := q.SummaryAt(day(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, day(2024, 2, 15), got.AsOf)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "AAPL", got.Rows[0].Symbol)

	_, err = q.SummaryAt(day(2023, 6, 1))
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestBandQuerySnapshotFiltersSymbols(t *testing.T) {
	q, _ := builtQuery(t)

	rows, err := q.Snapshot(day(2024, 3, 1), []string{"MSFT", "NOPE"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Contains(t, rows, "MSFT")

	_, err = q.Snapshot(day(2024, 3, 1), []string{"NOPE"})
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestBandQueryTailAndDates(t *testing.T) {
	q, _ := builtQuery(t)

	rows, err := q.Tail("AAPL", 5)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, day(2024, 4, 30), rows[4].Date)

	all, err := q.Tail("AAPL", 10000)
	require.NoError(t, err)
	assert.Len(t, all, 121)

	dates := q.Dates()
	require.Len(t, dates, 121)
	assert.Equal(t, day(2024, 1, 1), dates[0])
}
