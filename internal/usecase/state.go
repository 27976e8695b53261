package usecase

import (
	"sort"
	"sync"
	"time"

	"PriceBand/internal/domain/models"
)

// ForecastState is the in-memory view served by the API. Writers replace
// the whole mapping at once; readers never see a partial refresh.
type ForecastState struct {
	mu      sync.RWMutex
	series  map[string]*models.EnrichedSeries
	latest  *models.SummaryTable
	updated time.Time
}

func NewForecastState() *ForecastState {
	return &ForecastState{series: map[string]*models.EnrichedSeries{}}
}

// Swap installs a new series mapping and its latest summary.
func (s *ForecastState) Swap(series map[string]*models.EnrichedSeries, latest *models.SummaryTable) {
	cp := make(map[string]*models.EnrichedSeries, len(series))
	for k, v := range series {
		cp[k] = v
	}
	s.mu.Lock()
	s.series = cp
	s.latest = latest
	s.updated = time.Now()
	s.mu.Unlock()
}

// Series returns the current mapping. The returned map must not be modified.
func (s *ForecastState) Series() map[string]*models.EnrichedSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series
}

func (s *ForecastState) Get(symbol string) (*models.EnrichedSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.series[symbol]
	return e, ok
}

func (s *ForecastState) Latest() *models.SummaryTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *ForecastState) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Symbols returns the loaded instruments in order.
func (s *ForecastState) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.series))
	for k := range s.series {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
