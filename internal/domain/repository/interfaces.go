package repository

import (
	"context"
	"time"

	"PriceBand/internal/domain/models"
)

// MarketData supplies daily bars and the most recent intraday bar.
type MarketData interface {
	DailyBars(ctx context.Context, symbol string, from, to time.Time) (models.Series, error)
	LatestMinuteBar(ctx context.Context, symbol string) (models.Bar, error)
}

// SeriesStore persists one enriched table per instrument. Save fully replaces
// the previous value.
type SeriesStore interface {
	Load(ctx context.Context, symbol string) (*models.Table, error)
	Save(ctx context.Context, symbol string, t *models.Table) error
}

// SummarySink receives every summary table produced by a report run.
type SummarySink interface {
	Name() string
	SaveSummary(ctx context.Context, t *models.SummaryTable) error
}

// SummaryReader serves stored summaries back to the API.
type SummaryReader interface {
	LatestSummary(ctx context.Context) (*models.SummaryTable, error)
}

// BandPublisher streams the latest summary rows to downstream consumers.
type BandPublisher interface {
	PublishRows(ctx context.Context, rows []models.SummaryRow) error
	Close() error
}

type Metrics interface {
	RecordTask(mode, outcome string, seconds float64)
	RecordStageError(stage string)
	RecordCacheDecision(usable bool)
	RecordSummary(asOf time.Time, rows int)
	RecordFetch(provider, outcome string, seconds float64)
}
