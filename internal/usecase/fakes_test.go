package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceBand/internal/domain/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dailyBars builds n consecutive calendar-day bars with a deterministic,
// wiggly close.
func dailyBars(start time.Time, n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 100 + float64(i%7) + float64(i)*0.1
		bars[i] = models.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

type fakeMarket struct {
	bars   map[string][]models.Bar
	minute map[string]models.Bar
	fail   map[string]bool
	// delay is applied without looking at the context.
	delay map[string]time.Duration
	// hang blocks until the context is done, like a stalled HTTP call.
	hang      map[string]bool
	cancelled int

	mu    sync.Mutex
	calls map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		bars:   map[string][]models.Bar{},
		minute: map[string]models.Bar{},
		fail:   map[string]bool{},
		delay:  map[string]time.Duration{},
		hang:   map[string]bool{},
		calls:  map[string]int{},
	}
}

func (m *fakeMarket) hit(symbol string) {
	m.mu.Lock()
	m.calls[symbol]++
	m.mu.Unlock()
}

func (m *fakeMarket) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func (m *fakeMarket) Cancelled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

func (m *fakeMarket) DailyBars(ctx context.Context, symbol string, _, _ time.Time) (models.Series, error) {
	m.hit(symbol)
	if d := m.delay[symbol]; d > 0 {
		time.Sleep(d)
	}
	if m.hang[symbol] {
		<-ctx.Done()
		m.mu.Lock()
		m.cancelled++
		m.mu.Unlock()
		return models.Series{}, ctx.Err()
	}
	if m.fail[symbol] {
		return models.Series{}, fmt.Errorf("%w: %s unavailable", models.ErrFetch, symbol)
	}
	return models.NewSeries(symbol, m.bars[symbol]), nil
}

func (m *fakeMarket) LatestMinuteBar(_ context.Context, symbol string) (models.Bar, error) {
	m.hit(symbol)
	if m.fail[symbol] {
		return models.Bar{}, fmt.Errorf("%w: %s unavailable", models.ErrFetch, symbol)
	}
	b, ok := m.minute[symbol]
	if !ok {
		return models.Bar{}, fmt.Errorf("%w: no minute bar for %s", models.ErrFetch, symbol)
	}
	return b, nil
}

type memStore struct {
	mu     sync.Mutex
	tables map[string]*models.Table
	saves  map[string]int
}

func newMemStore() *memStore {
	return &memStore{tables: map[string]*models.Table{}, saves: map[string]int{}}
}

func (s *memStore) Load(_ context.Context, symbol string) (*models.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: not found", symbol)
	}
	return t, nil
}

func (s *memStore) Save(_ context.Context, symbol string, t *models.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[symbol] = t
	s.saves[symbol]++
	return nil
}

func (s *memStore) Saves(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[symbol]
}

type recordingSink struct {
	name   string
	err    error
	mu     sync.Mutex
	tables []*models.SummaryTable
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) SaveSummary(_ context.Context, t *models.SummaryTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = append(s.tables, t)
	return s.err
}

type recordingPublisher struct {
	mu   sync.Mutex
	rows [][]models.SummaryRow
}

func (p *recordingPublisher) PublishRows(_ context.Context, rows []models.SummaryRow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = append(p.rows, rows)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingListener struct {
	mu     sync.Mutex
	tables []*models.SummaryTable
}

func (l *recordingListener) Broadcast(t *models.SummaryTable) {
	l.mu.Lock()
	l.tables = append(l.tables, t)
	l.mu.Unlock()
}

func dropColumn(t *models.Table, name string) *models.Table {
	out := models.NewTable(t.Dates)
	for _, c := range t.Columns {
		if c == name {
			continue
		}
		v, _ := t.Column(c)
		_ = out.Set(c, v)
	}
	return out
}
