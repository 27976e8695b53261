package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceBand/internal/domain/models"
	domrepo "PriceBand/internal/domain/repository"
	"PriceBand/pkg/cache"
	applogger "PriceBand/pkg/logger"
)

var summaryLatestKey = cache.Key("summary", "latest")

func summaryDateKey(t time.Time) string {
	return cache.Key("summary", t.Format(models.DateLayout))
}

// SummaryCache keeps recent summary tables in a cache.Service so API
// replicas can serve them without recomputing. Only the newest table is
// kept under the latest key.
type SummaryCache struct {
	c   cache.Service
	ttl time.Duration
	l   *applogger.Logger
}

var (
	_ domrepo.SummarySink   = (*SummaryCache)(nil)
	_ domrepo.SummaryReader = (*SummaryCache)(nil)
)

func NewSummaryCache(c cache.Service, ttl time.Duration, l *applogger.Logger) *SummaryCache {
	if l == nil {
		l = applogger.Nop()
	}
	return &SummaryCache{c: c, ttl: ttl, l: l}
}

func (s *SummaryCache) Name() string { return "cache" }

func (s *SummaryCache) SaveSummary(ctx context.Context, t *models.SummaryTable) error {
	if err := s.c.Set(ctx, summaryDateKey(t.AsOf), t, s.ttl); err != nil {
		return fmt.Errorf("cache summary: %w", err)
	}
	var cur models.SummaryTable
	err := s.c.Get(ctx, summaryLatestKey, &cur)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("summary cache read failed", applogger.Error(err))
	}
	if err == nil && cur.AsOf.After(t.AsOf) {
		return nil
	}
	if err := s.c.Set(ctx, summaryLatestKey, t, s.ttl); err != nil {
		return fmt.Errorf("cache latest summary: %w", err)
	}
	return nil
}

func (s *SummaryCache) LatestSummary(ctx context.Context) (*models.SummaryTable, error) {
	return s.get(ctx, summaryLatestKey)
}

// SummaryAt returns the cached table for one as-of date.
func (s *SummaryCache) SummaryAt(ctx context.Context, asOf time.Time) (*models.SummaryTable, error) {
	return s.get(ctx, summaryDateKey(asOf))
}

func (s *SummaryCache) get(ctx context.Context, key string) (*models.SummaryTable, error) {
	var t models.SummaryTable
	if err := s.c.Get(ctx, key, &t); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s not cached", models.ErrNoData, key)
		}
		return nil, fmt.Errorf("read cached summary: %w", err)
	}
	return &t, nil
}
