package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
)

func newTestRefresher(market *fakeMarket, symbols []string) (*Refresher, *ForecastState, *recordingPublisher, *recordingListener) {
	return newTestRefresherOn(newMemStore(), market, symbols)
}

func newTestRefresherOn(store *memStore, market *fakeMarket, symbols []string) (*Refresher, *ForecastState, *recordingPublisher, *recordingListener) {
	opts := testOptions()
	f := NewForecaster(market, store, NewCacheGate(store, nil, nil), nil, opts, nil)
	rep := NewReporter(nil, SummaryParams{Mode: drepo.ModeLatest}, opts.Horizons, nil, nil)
	state := NewForecastState()
	pub := &recordingPublisher{}
	r := NewRefresher(f, rep, state, pub, symbols, nil)
	l := &recordingListener{}
	r.AddListener(l)
	return r, state, pub, l
}

func TestRefresherBuildThenUpdate(t *testing.T) {
	symbols := []string{"AAPL", "MSFT"}
	market := marketWith(symbols...)
	r, state, pub, l := newTestRefresher(market, symbols)

	latest, err := r.Refresh(context.Background(), ModeBuild, nil)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 4, 30), latest.AsOf)
	assert.Len(t, latest.Rows, 2)
	assert.Equal(t, symbols, state.Symbols())
	assert.Same(t, latest, state.Latest())
	require.Len(t, pub.rows, 1)
	require.Len(t, l.tables, 1)

	for _, s := range symbols {
		market.minute[s] = models.Bar{Date: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 120}
	}
	latest, err = r.Refresh(context.Background(), ModeUpdate, nil)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 5, 1), latest.AsOf)
	e, ok := state.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 122, e.Len())
	assert.Len(t, pub.rows, 2)
	assert.Len(t, l.tables, 2)
}

func TestRefresherUpdateBuildsUnknownSymbols(t *testing.T) {
	market := marketWith("AAPL", "MSFT")
	r, state, _, _ := newTestRefresher(market, []string{"AAPL"})

	_, err := r.Refresh(context.Background(), ModeBuild, nil)
	require.NoError(t, err)

	market.minute["AAPL"] = models.Bar{Date: day(2024, 4, 30), Open: 1, High: 2, Low: 1, Close: 101}
	_, err = r.Refresh(context.Background(), ModeUpdate, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, state.Symbols())
}

func TestRefresherUpdateExtendsStoredSeriesInNewProcess(t *testing.T) {
	store := newMemStore()
	market := marketWith("AAPL")
	first, _, _, _ := newTestRefresherOn(store, market, []string{"AAPL"})
	_, err := first.Refresh(context.Background(), ModeBuild, nil)
	require.NoError(t, err)
	require.Equal(t, 1, store.Saves("AAPL"))
	require.Equal(t, 1, market.Calls("AAPL"))

	market.minute["AAPL"] = models.Bar{Date: time.Date(2024, 5, 1, 15, 59, 0, 0, time.UTC), Open: 1, High: 130, Low: 1, Close: 125}
	second, state, _, _ := newTestRefresherOn(store, market, []string{"AAPL"})
	latest, err := second.Refresh(context.Background(), ModeUpdate, nil)
	require.NoError(t, err)

	assert.Equal(t, day(2024, 5, 1), latest.AsOf)
	e, ok := state.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 122, e.Len())
	// one daily fetch from the build, one minute fetch from the update
	assert.Equal(t, 2, market.Calls("AAPL"))
	assert.Equal(t, 2, store.Saves("AAPL"))
}

func TestRefresherUpdateBuildsWhenNothingStored(t *testing.T) {
	market := marketWith("AAPL")
	r, state, _, _ := newTestRefresher(market, []string{"AAPL"})

	latest, err := r.Refresh(context.Background(), ModeUpdate, nil)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 4, 30), latest.AsOf)
	e, ok := state.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 121, e.Len())
}

func TestRefresherRejectsUnknownMode(t *testing.T) {
	r, _, _, _ := newTestRefresher(marketWith("AAPL"), []string{"AAPL"})
	_, err := r.Refresh(context.Background(), "rebuild", nil)
	assert.Error(t, err)
}

func TestRefreshJobHandlesMapPayload(t *testing.T) {
	market := marketWith("AAPL")
	r, state, _, _ := newTestRefresher(market, []string{"AAPL"})
	job := NewRefreshJob(r, nil)

	assert.Equal(t, RefreshMessageType, job.Type())
	err := job.Handle(context.Background(), map[string]interface{}{"mode": "build", "symbols": []interface{}{"AAPL"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, state.Symbols())

	assert.Error(t, job.Handle(context.Background(), 42))
}
