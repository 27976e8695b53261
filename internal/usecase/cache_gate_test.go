package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceBand/internal/domain/models"
	"PriceBand/internal/services/features"
)

func storedYear(t *testing.T, horizons []int) *models.Table {
	t.Helper()
	start := day(2023, 1, 1)
	n := int(day(2023, 12, 31).Sub(start).Hours()/24) + 1
	e := models.Enrich(models.NewSeries("AAPL", dailyBars(start, n)))
	e, err := features.ApplyLaggedReturns(e, models.ColClose, horizons)
	require.NoError(t, err)
	e, err = features.ApplyRollingLow(e, models.ColLow, features.DefaultLowWindow)
	require.NoError(t, err)
	return e.Table()
}

func TestCacheGateUsable(t *testing.T) {
	ctx := context.Background()
	horizons := []int{5, 10}
	store := newMemStore()
	store.tables["AAPL"] = storedYear(t, horizons)
	gate := NewCacheGate(store, nil, nil)

	assert.True(t, gate.Usable(ctx, "AAPL", day(2023, 6, 1), day(2023, 6, 30), horizons, true))

	store.tables["AAPL"] = dropColumn(store.tables["AAPL"], "P10")
	assert.False(t, gate.Usable(ctx, "AAPL", day(2023, 6, 1), day(2023, 6, 30), horizons, true))
}

func TestCacheGateRejects(t *testing.T) {
	ctx := context.Background()
	horizons := []int{5, 10}
	store := newMemStore()
	store.tables["AAPL"] = storedYear(t, horizons)
	gate := NewCacheGate(store, nil, nil)

	cases := map[string]func() bool{
		"reuse disabled": func() bool {
			return gate.Usable(ctx, "AAPL", day(2023, 6, 1), day(2023, 6, 30), horizons, false)
		},
		"unknown symbol": func() bool {
			return gate.Usable(ctx, "MSFT", day(2023, 6, 1), day(2023, 6, 30), horizons, true)
		},
		"starts too late": func() bool {
			return gate.Usable(ctx, "AAPL", day(2022, 12, 1), day(2023, 6, 30), horizons, true)
		},
		"ends too early": func() bool {
			return gate.Usable(ctx, "AAPL", day(2023, 6, 1), day(2024, 1, 2), horizons, true)
		},
		"extra horizon": func() bool {
			return gate.Usable(ctx, "AAPL", day(2023, 6, 1), day(2023, 6, 30), []int{5, 10, 20}, true)
		},
		"no rolling low": func() bool {
			store.tables["LOW"] = dropColumn(store.tables["AAPL"], models.ColLow52)
			return gate.Usable(ctx, "LOW", day(2023, 6, 1), day(2023, 6, 30), horizons, true)
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, fn())
		})
	}
}

func TestCacheGateLookupRestores(t *testing.T) {
	horizons := []int{5, 10}
	store := newMemStore()
	stored := storedYear(t, horizons)
	store.tables["AAPL"] = stored
	gate := NewCacheGate(store, nil, nil)

	e, ok := gate.Lookup(context.Background(), "AAPL", day(2023, 6, 1), day(2023, 6, 30), horizons, features.DefaultLowWindow, true)
	require.True(t, ok)
	require.NotNil(t, e.Returns)
	require.NotNil(t, e.Extremum)
	assert.Equal(t, stored.Len(), e.Len())
	assert.Equal(t, stored, e.Table())
}
