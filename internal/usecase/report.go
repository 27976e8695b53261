package usecase

import (
	"context"
	"fmt"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
	"PriceBand/pkg/logger"
)

// Reporter snapshots the enriched series on every selected date and hands
// the resulting summary tables to the configured sinks.
type Reporter struct {
	sinks    []drepo.SummarySink
	params   SummaryParams
	horizons []int
	metrics  drepo.Metrics
	log      *logger.Logger
}

func NewReporter(sinks []drepo.SummarySink, params SummaryParams, horizons []int, metrics drepo.Metrics, log *logger.Logger) *Reporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Reporter{sinks: sinks, params: params, horizons: horizons, metrics: metrics, log: log}
}

// Run produces one summary table per selected date, plus the latest table
// when the mode is not already latest. The latest table is always last.
func (r *Reporter) Run(ctx context.Context, series map[string]*models.EnrichedSeries) ([]*models.SummaryTable, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("report: %w: no instruments", models.ErrNoData)
	}
	index := UnionDates(series)
	dates, err := SelectSummaryDates(index, r.horizons, r.params)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	tables := make([]*models.SummaryTable, 0, len(dates)+1)
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return tables, fmt.Errorf("report: %w", err)
		}
		t := BuildSummary(d, ExtractSnapshot(series, d), r.log)
		r.emit(ctx, t)
		tables = append(tables, t)
	}

	if r.params.Mode != drepo.ModeLatest && r.params.Mode != "" {
		latest, err := r.Latest(series)
		if err != nil {
			return tables, fmt.Errorf("report: %w", err)
		}
		r.emit(ctx, latest)
		tables = append(tables, latest)
	}

	r.log.Info("report finished",
		logger.String("mode", string(r.params.Mode)),
		logger.Int("instruments", len(series)),
		logger.Int("tables", len(tables)))
	return tables, nil
}

// Latest summarizes the last row of every series, dated at the latest date
// of the union index. It does not touch the sinks.
func (r *Reporter) Latest(series map[string]*models.EnrichedSeries) (*models.SummaryTable, error) {
	index := UnionDates(series)
	if len(index) == 0 {
		return nil, fmt.Errorf("latest summary: %w", models.ErrNoData)
	}
	return BuildSummary(index[len(index)-1], LatestRows(series), r.log), nil
}

func (r *Reporter) emit(ctx context.Context, t *models.SummaryTable) {
	if r.metrics != nil {
		r.metrics.RecordSummary(t.AsOf, len(t.Rows))
	}
	for _, s := range r.sinks {
		if err := s.SaveSummary(ctx, t); err != nil {
			r.log.Error("summary sink failed",
				logger.String("sink", s.Name()),
				logger.Date("as_of", t.AsOf),
				logger.Error(err))
		}
	}
}
