package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
	"PriceBand/pkg/logger"
)

// BandListener is told about every new latest summary.
type BandListener interface {
	Broadcast(t *models.SummaryTable)
}

// Refresher runs one full cycle: forecast, report, swap the serving state,
// then fan the latest summary out to the publisher and listeners.
type Refresher struct {
	forecaster *Forecaster
	reporter   *Reporter
	state      *ForecastState
	publisher  drepo.BandPublisher
	symbols    []string
	log        *logger.Logger

	mu        sync.Mutex
	listeners []BandListener
}

func NewRefresher(forecaster *Forecaster, reporter *Reporter, state *ForecastState, publisher drepo.BandPublisher, symbols []string, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.Nop()
	}
	return &Refresher{
		forecaster: forecaster,
		reporter:   reporter,
		state:      state,
		publisher:  publisher,
		symbols:    symbols,
		log:        log,
	}
}

// AddListener registers l for future refreshes.
func (r *Refresher) AddListener(l BandListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Refresh runs a build or update over symbols, or over every configured
// symbol when none are given. Results are merged into the current state.
// Only one refresh runs at a time.
func (r *Refresher) Refresh(ctx context.Context, mode string, symbols []string) (*models.SummaryTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(symbols) == 0 {
		symbols = r.symbols
	}
	current := r.state.Series()

	var (
		fresh map[string]*models.EnrichedSeries
		err   error
	)
	switch mode {
	case ModeBuild:
		fresh, err = r.forecaster.Build(ctx, symbols)
	case ModeUpdate:
		prev := make(map[string]*models.EnrichedSeries, len(symbols))
		var unknown []string
		for _, s := range symbols {
			if e, ok := current[s]; ok {
				prev[s] = e
			} else {
				unknown = append(unknown, s)
			}
		}
		// a new process starts empty; pick up what an earlier run stored
		restored, missing := r.forecaster.Restore(ctx, unknown)
		for k, v := range restored {
			prev[k] = v
		}
		fresh, err = r.forecaster.Update(ctx, prev)
		if err == nil && len(missing) > 0 {
			var built map[string]*models.EnrichedSeries
			built, err = r.forecaster.Build(ctx, missing)
			for k, v := range built {
				fresh[k] = v
			}
		}
	default:
		return nil, fmt.Errorf("refresh: unknown mode %q", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", mode, err)
	}

	merged := make(map[string]*models.EnrichedSeries, len(current)+len(fresh))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range fresh {
		merged[k] = v
	}

	tables, err := r.reporter.Run(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", mode, err)
	}
	latest := tables[len(tables)-1]
	r.state.Swap(merged, latest)

	if r.publisher != nil {
		if err := r.publisher.PublishRows(ctx, latest.Rows); err != nil {
			r.log.Error("band publish failed", logger.Error(err))
		}
	}
	for _, l := range r.listeners {
		l.Broadcast(latest)
	}

	r.log.Info("refresh finished",
		logger.String("mode", mode),
		logger.Int("instruments", len(merged)),
		logger.Date("as_of", latest.AsOf))
	return latest, nil
}

// Run refreshes with an update every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx, ModeUpdate, nil); err != nil {
				r.log.Error("scheduled refresh failed", logger.Error(err))
			}
		}
	}
}
