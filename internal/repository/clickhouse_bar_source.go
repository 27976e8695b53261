package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"PriceBand/internal/domain/models"
	domrepo "PriceBand/internal/domain/repository"
	applogger "PriceBand/pkg/logger"
)

// CHBarSource implements MarketData over bars already loaded into ClickHouse.
type CHBarSource struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var _ domrepo.MarketData = (*CHBarSource)(nil)

func NewCHBarSource(db *sql.DB, database string, l *applogger.Logger) *CHBarSource {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarSource{db: db, database: database, l: l}
}

func (s *CHBarSource) DailyBars(ctx context.Context, symbol string, from, to time.Time) (models.Series, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT date, open, high, low, close, volume
        FROM %s.daily_bars
        WHERE symbol = ? AND date >= ? AND date <= ?
        ORDER BY date ASC
    `, s.database)
	rows, err := s.db.QueryContext(ctx, q, symbol, models.Day(from), models.Day(to))
	if err != nil {
		s.l.Error("clickhouse daily_bars query error",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return models.Series{}, fmt.Errorf("%w: daily bars %s: %v", models.ErrFetch, symbol, err)
	}
	defer rows.Close()

	bars := make([]models.Bar, 0, 512)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return models.Series{}, fmt.Errorf("%w: scan bar %s: %v", models.ErrFetch, symbol, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return models.Series{}, fmt.Errorf("%w: rows %s: %v", models.ErrFetch, symbol, err)
	}
	s.l.Debug("clickhouse daily_bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)))
	return models.NewSeries(symbol, bars), nil
}

func (s *CHBarSource) LatestMinuteBar(ctx context.Context, symbol string) (models.Bar, error) {
	q := fmt.Sprintf(`
        SELECT ts, open, high, low, close, volume
        FROM %s.minute_bars
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT 1
    `, s.database)
	var b models.Bar
	err := s.db.QueryRowContext(ctx, q, symbol).Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Bar{}, fmt.Errorf("%w: no minute bars for %s", models.ErrFetch, symbol)
		}
		return models.Bar{}, fmt.Errorf("%w: minute bar %s: %v", models.ErrFetch, symbol, err)
	}
	return b, nil
}
