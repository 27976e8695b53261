//go:build wireinject
// +build wireinject

package di

import (
	"PriceBand/pkg/config"
	"PriceBand/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideLogger,
		ProvideMetrics,

		// Repositories
		ProvideMarketData,
		ProvideSeriesStore,
		ProvideSummaryCache,
		ProvideSummarySinks,
		ProvideSummaryReader,
		ProvideBandPublisher,

		// Use cases
		ProvideForecaster,
		ProvideReporter,
		ProvideForecastState,
		ProvideRefresher,
		ProvideBandQuery,
		ProvideRefreshQueue,

		// Application server
		ProvideHub,
		ProvideApp,
	)
	return &server.App{}, nil
}
