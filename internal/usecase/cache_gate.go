package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
	"PriceBand/pkg/logger"
)

// CacheGate decides whether a persisted enriched series can be reused instead
// of fetching and recomputing it.
type CacheGate struct {
	store   drepo.SeriesStore
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewCacheGate(store drepo.SeriesStore, metrics drepo.Metrics, log *logger.Logger) *CacheGate {
	if log == nil {
		log = logger.Nop()
	}
	return &CacheGate{store: store, metrics: metrics, log: log}
}

// Usable reports whether the stored series for symbol covers [start, end]
// and carries P<h> for every horizon plus the rolling low. Any failure is a
// false answer, never an error.
func (g *CacheGate) Usable(ctx context.Context, symbol string, start, end time.Time, horizons []int, reuse bool) bool {
	_, err := g.load(ctx, symbol, start, end, horizons, reuse)
	return g.decide(symbol, err)
}

// Lookup is Usable that also hands back the restored series.
func (g *CacheGate) Lookup(ctx context.Context, symbol string, start, end time.Time, horizons []int, window int, reuse bool) (*models.EnrichedSeries, bool) {
	t, err := g.load(ctx, symbol, start, end, horizons, reuse)
	var e *models.EnrichedSeries
	if err == nil {
		if e, err = models.RestoreSeries(symbol, t, horizons, window); err != nil {
			err = fmt.Errorf("%w: restore: %v", models.ErrCacheDecision, err)
		}
	}
	if !g.decide(symbol, err) {
		return nil, false
	}
	return e, true
}

func (g *CacheGate) decide(symbol string, err error) bool {
	usable := err == nil
	if g.metrics != nil {
		g.metrics.RecordCacheDecision(usable)
	}
	if !usable {
		g.log.Debug("cache not reused",
			logger.String("symbol", symbol),
			logger.String("stage", models.StageCache),
			logger.Error(err))
	}
	return usable
}

func (g *CacheGate) load(ctx context.Context, symbol string, start, end time.Time, horizons []int, reuse bool) (*models.Table, error) {
	if !reuse {
		return nil, fmt.Errorf("%w: reuse disabled", models.ErrCacheDecision)
	}
	if g.store == nil {
		return nil, fmt.Errorf("%w: no store", models.ErrCacheDecision)
	}
	t, err := g.store.Load(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %v", models.ErrCacheDecision, err)
	}
	first, last, ok := t.Range()
	if !ok {
		return nil, fmt.Errorf("%w: empty table", models.ErrCacheDecision)
	}
	if first.After(models.Day(start)) || last.Before(models.Day(end)) {
		return nil, fmt.Errorf("%w: covers %s..%s, need %s..%s", models.ErrCacheDecision,
			first.Format(models.DateLayout), last.Format(models.DateLayout),
			start.Format(models.DateLayout), end.Format(models.DateLayout))
	}
	required := make([]string, 0, len(horizons)+1)
	for _, h := range horizons {
		required = append(required, models.ReturnColumn(h))
	}
	required = append(required, models.ColLow52)
	if missing := t.Missing(required...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", models.ErrCacheDecision, missing)
	}
	return t, nil
}
