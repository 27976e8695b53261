package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
	"PriceBand/internal/services/features"
	"PriceBand/pkg/logger"
)

const (
	DefaultWorkers     = 8
	DefaultTaskTimeout = 60 * time.Second

	ModeBuild  = "build"
	ModeUpdate = "update"
)

// ForecastOptions parameterize one forecaster.
type ForecastOptions struct {
	Start           time.Time
	End             time.Time
	Horizons        []int
	Lookback        int
	LowWindow       int
	PriceColumn     string
	LowColumn       string
	ReuseCache      bool
	Workers         int
	TaskTimeout     time.Duration
	ProjectInWorker bool
}

func (o ForecastOptions) withDefaults() ForecastOptions {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = DefaultTaskTimeout
	}
	if o.Lookback <= 0 {
		o.Lookback = features.DefaultLookback
	}
	if o.LowWindow <= 0 {
		o.LowWindow = features.DefaultLowWindow
	}
	if o.PriceColumn == "" {
		o.PriceColumn = models.ColClose
	}
	if o.LowColumn == "" {
		o.LowColumn = models.ColLow
	}
	if hs, err := features.NormalizeHorizons(o.Horizons); err == nil {
		o.Horizons = hs
	}
	return o
}

// Forecaster fetches, enriches and persists many instruments concurrently.
type Forecaster struct {
	market  drepo.MarketData
	store   drepo.SeriesStore
	gate    *CacheGate
	metrics drepo.Metrics
	opts    ForecastOptions
	log     *logger.Logger
}

func NewForecaster(market drepo.MarketData, store drepo.SeriesStore, gate *CacheGate, metrics drepo.Metrics, opts ForecastOptions, log *logger.Logger) *Forecaster {
	if log == nil {
		log = logger.Nop()
	}
	return &Forecaster{market: market, store: store, gate: gate, metrics: metrics, opts: opts.withDefaults(), log: log}
}

// Options returns the effective options.
func (f *Forecaster) Options() ForecastOptions { return f.opts }

// task computes one instrument; fresh reports whether the result was
// recomputed and so must be persisted.
type task func(ctx context.Context, symbol string) (e *models.EnrichedSeries, fresh bool, err error)

// Build produces an enriched series for every symbol, reusing the store when
// the cache gate allows it. Failed instruments are logged and dropped.
func (f *Forecaster) Build(ctx context.Context, symbols []string) (map[string]*models.EnrichedSeries, error) {
	out := f.runBatch(ctx, ModeBuild, symbols, f.buildOne, nil)
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("build: %w", err)
	}
	if !f.opts.ProjectInWorker {
		out = f.ProjectAll(out)
	}
	return out, nil
}

// Update folds the latest minute bar into every previous series and
// recomputes it. A failed instrument keeps its previous series.
func (f *Forecaster) Update(ctx context.Context, previous map[string]*models.EnrichedSeries) (map[string]*models.EnrichedSeries, error) {
	symbols := make([]string, 0, len(previous))
	for s := range previous {
		symbols = append(symbols, s)
	}
	update := func(ctx context.Context, symbol string) (*models.EnrichedSeries, bool, error) {
		return f.updateOne(ctx, symbol, previous[symbol])
	}
	fallback := func(symbol string) *models.EnrichedSeries { return previous[symbol] }

	out := f.runBatch(ctx, ModeUpdate, symbols, update, fallback)
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("update: %w", err)
	}
	if !f.opts.ProjectInWorker {
		out = f.ProjectAll(out)
	}
	return out, nil
}

// Restore loads the stored series of every symbol the cache gate accepts.
// Symbols without a usable stored series come back in missing. Reuse is
// forced on: an update always extends what is already on disk.
func (f *Forecaster) Restore(ctx context.Context, symbols []string) (restored map[string]*models.EnrichedSeries, missing []string) {
	restored = make(map[string]*models.EnrichedSeries, len(symbols))
	if f.gate == nil {
		return restored, append(missing, symbols...)
	}
	o := f.opts
	for _, s := range symbols {
		if e, ok := f.gate.Lookup(ctx, s, o.Start, o.End, o.Horizons, o.LowWindow, true); ok {
			restored[s] = e
			continue
		}
		missing = append(missing, s)
	}
	return restored, missing
}

// ProjectAll runs the price target projector over every series, dropping the
// instruments it fails on.
func (f *Forecaster) ProjectAll(series map[string]*models.EnrichedSeries) map[string]*models.EnrichedSeries {
	out := make(map[string]*models.EnrichedSeries, len(series))
	for sym, e := range series {
		p, err := f.project(sym, e)
		if err != nil {
			f.fail("project", sym, err)
			continue
		}
		out[sym] = p
	}
	return out
}

func (f *Forecaster) runBatch(ctx context.Context, mode string, symbols []string, run task, fallback func(string) *models.EnrichedSeries) map[string]*models.EnrichedSeries {
	results := make(map[string]*models.EnrichedSeries, len(symbols))
	var mu sync.Mutex
	put := func(sym string, e *models.EnrichedSeries) {
		mu.Lock()
		results[sym] = e
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(f.opts.Workers)
	for _, sym := range symbols {
		g.Go(func() error {
			started := time.Now()
			e, fresh, err := f.runTask(ctx, sym, run)
			if err != nil {
				f.fail(mode, sym, err)
				f.recordTask(mode, "failed", started)
				if fallback != nil {
					if prev := fallback(sym); prev != nil {
						put(sym, prev)
					}
				}
				return nil
			}
			if fresh {
				f.persist(ctx, sym, e)
			}
			put(sym, e)
			f.recordTask(mode, "ok", started)
			return nil
		})
	}
	_ = g.Wait()

	f.log.Info("batch finished",
		logger.String("mode", mode),
		logger.Int("requested", len(symbols)),
		logger.Int("completed", len(results)))
	return results
}

// runTask bounds one task by the task timeout. run receives the task
// context and passes it to every source call; FMP and ClickHouse both abort
// on it. A source that ignores cancellation keeps its goroutine alive after
// the worker slot is released, so for such sources in-flight calls can
// exceed Workers until they return. The result channel is buffered so that
// goroutine can still finish and exit.
func (f *Forecaster) runTask(ctx context.Context, symbol string, run task) (*models.EnrichedSeries, bool, error) {
	tctx, cancel := context.WithTimeout(ctx, f.opts.TaskTimeout)
	defer cancel()

	type result struct {
		e     *models.EnrichedSeries
		fresh bool
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		e, fresh, err := run(tctx, symbol)
		ch <- result{e, fresh, err}
	}()

	select {
	case r := <-ch:
		return r.e, r.fresh, r.err
	case <-tctx.Done():
		return nil, false, models.NewStageError(symbol, models.StageTask,
			fmt.Errorf("aborted after %s: %w", f.opts.TaskTimeout, tctx.Err()))
	}
}

func (f *Forecaster) buildOne(ctx context.Context, symbol string) (*models.EnrichedSeries, bool, error) {
	o := f.opts
	if f.gate != nil {
		if cached, ok := f.gate.Lookup(ctx, symbol, o.Start, o.End, o.Horizons, o.LowWindow, o.ReuseCache); ok {
			e, err := f.maybeProject(symbol, cached)
			return e, false, err
		}
	}

	s, err := f.market.DailyBars(ctx, symbol, o.Start, o.End)
	if err != nil {
		return nil, false, models.NewStageError(symbol, models.StageFetch, err)
	}
	if s.Len() == 0 {
		return nil, false, models.NewStageError(symbol, models.StageFetch, fmt.Errorf("%w: no bars returned", models.ErrNoData))
	}
	s.Symbol = symbol
	e, err := f.enrich(symbol, models.Enrich(s))
	return e, err == nil, err
}

func (f *Forecaster) updateOne(ctx context.Context, symbol string, prev *models.EnrichedSeries) (*models.EnrichedSeries, bool, error) {
	if prev == nil {
		return nil, false, models.NewStageError(symbol, models.StageFetch, fmt.Errorf("%w: no previous series", models.ErrNoData))
	}
	bar, err := f.market.LatestMinuteBar(ctx, symbol)
	if err != nil {
		return nil, false, models.NewStageError(symbol, models.StageFetch, err)
	}
	e, err := f.enrich(symbol, models.Enrich(prev.FoldBar(bar)))
	return e, err == nil, err
}

func (f *Forecaster) enrich(symbol string, e *models.EnrichedSeries) (*models.EnrichedSeries, error) {
	o := f.opts
	e, err := features.ApplyLaggedReturns(e, o.PriceColumn, o.Horizons)
	if err != nil {
		return nil, models.NewStageError(symbol, models.StageLags, err)
	}
	e, err = features.ApplyRollingLow(e, o.LowColumn, o.LowWindow)
	if err != nil {
		return nil, models.NewStageError(symbol, models.StageLow, err)
	}
	return f.maybeProject(symbol, e)
}

func (f *Forecaster) maybeProject(symbol string, e *models.EnrichedSeries) (*models.EnrichedSeries, error) {
	if !f.opts.ProjectInWorker {
		return e, nil
	}
	return f.project(symbol, e)
}

func (f *Forecaster) project(symbol string, e *models.EnrichedSeries) (*models.EnrichedSeries, error) {
	o := f.opts
	out, err := features.ApplyPriceTargets(e, o.PriceColumn, o.Horizons, o.Lookback)
	if err != nil {
		return nil, models.NewStageError(symbol, models.StageProject, err)
	}
	return out, nil
}

func (f *Forecaster) persist(ctx context.Context, symbol string, e *models.EnrichedSeries) {
	if f.store == nil {
		return
	}
	if err := f.store.Save(ctx, symbol, e.Table()); err != nil {
		f.fail("persist", symbol, models.NewStageError(symbol, models.StagePersist, err))
	}
}

func (f *Forecaster) fail(mode, symbol string, err error) {
	stage := models.StageTask
	var se *models.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	if f.metrics != nil {
		f.metrics.RecordStageError(stage)
	}
	f.log.Error("instrument failed",
		logger.String("mode", mode),
		logger.String("symbol", symbol),
		logger.String("stage", stage),
		logger.Error(err))
}

func (f *Forecaster) recordTask(mode, outcome string, started time.Time) {
	if f.metrics != nil {
		f.metrics.RecordTask(mode, outcome, time.Since(started).Seconds())
	}
}
