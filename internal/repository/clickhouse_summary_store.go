package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PriceBand/internal/domain/models"
	domrepo "PriceBand/internal/domain/repository"
	applogger "PriceBand/pkg/logger"
)

// CHSummaryStore keeps every summary table in ClickHouse, one row per
// instrument and as-of date.
type CHSummaryStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var (
	_ domrepo.SummarySink   = (*CHSummaryStore)(nil)
	_ domrepo.SummaryReader = (*CHSummaryStore)(nil)
)

func NewCHSummaryStore(db *sql.DB, database string, l *applogger.Logger) *CHSummaryStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSummaryStore{db: db, database: database, l: l}
}

// SchemaStatements returns the idempotent DDL for the tables the ClickHouse
// adapters use.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.daily_bars (
            symbol LowCardinality(String),
            date Date,
            open Float64, high Float64, low Float64, close Float64, volume Float64
        ) ENGINE = ReplacingMergeTree ORDER BY (symbol, date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.minute_bars (
            symbol LowCardinality(String),
            ts DateTime,
            open Float64, high Float64, low Float64, close Float64, volume Float64
        ) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts) TTL ts + INTERVAL 7 DAY`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.band_summaries (
            as_of Date,
            symbol LowCardinality(String),
            close Float64,
            high_min Nullable(Float64), high_avg Nullable(Float64), high_max Nullable(Float64),
            low_min Nullable(Float64), low_avg Nullable(Float64), low_max Nullable(Float64),
            low_52_week Float64,
            buy_from Nullable(Float64), floor Nullable(Float64),
            sell_from Nullable(Float64), ceiling Nullable(Float64), rate Nullable(Float64)
        ) ENGINE = ReplacingMergeTree ORDER BY (as_of, symbol)`, database),
	}
}

func (s *CHSummaryStore) Name() string { return "clickhouse" }

const summaryColumns = `as_of, symbol, close, high_min, high_avg, high_max, low_min, low_avg, low_max,
            low_52_week, buy_from, floor, sell_from, ceiling, rate`

func (s *CHSummaryStore) SaveSummary(ctx context.Context, t *models.SummaryTable) error {
	if len(t.Rows) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s.band_summaries (%s)`, s.database, summaryColumns))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	asOf := models.Day(t.AsOf)
	for _, r := range t.Rows {
		if _, err := stmt.ExecContext(ctx,
			asOf, r.Symbol, r.Close,
			r.HighMin, r.HighAvg, r.HighMax, r.LowMin, r.LowAvg, r.LowMax,
			r.Low52Week,
			r.BuyFrom, r.Floor, r.SellFrom, r.Ceiling, r.Rate,
		); err != nil {
			_ = tx.Rollback()
			s.l.Error("clickhouse band_summaries insert error",
				applogger.String("symbol", r.Symbol),
				applogger.Date("as_of", asOf),
				applogger.Error(err))
			return fmt.Errorf("insert %s: %w", r.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.l.Info("clickhouse band_summaries ok",
		applogger.Date("as_of", asOf),
		applogger.Int("rows", len(t.Rows)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

// LatestSummary returns the newest stored summary, or ErrNoData when the
// table is empty.
func (s *CHSummaryStore) LatestSummary(ctx context.Context) (*models.SummaryTable, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s.band_summaries FINAL
        WHERE as_of = (SELECT max(as_of) FROM %s.band_summaries)
        ORDER BY symbol ASC
    `, summaryColumns, s.database, s.database)
	return s.query(ctx, q)
}

// SummaryAt returns the stored summary for one as-of date.
func (s *CHSummaryStore) SummaryAt(ctx context.Context, asOf time.Time) (*models.SummaryTable, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s.band_summaries FINAL
        WHERE as_of = ?
        ORDER BY symbol ASC
    `, summaryColumns, s.database)
	return s.query(ctx, q, models.Day(asOf))
}

func (s *CHSummaryStore) query(ctx context.Context, q string, args ...interface{}) (*models.SummaryTable, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	out := &models.SummaryTable{}
	for rows.Next() {
		var r models.SummaryRow
		var asOf time.Time
		if err := rows.Scan(&asOf, &r.Symbol, &r.Close,
			&r.HighMin, &r.HighAvg, &r.HighMax, &r.LowMin, &r.LowAvg, &r.LowMax,
			&r.Low52Week,
			&r.BuyFrom, &r.Floor, &r.SellFrom, &r.Ceiling, &r.Rate,
		); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		r.Date = models.Day(asOf)
		out.AsOf = r.Date
		out.Rows = append(out.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(out.Rows) == 0 {
		return nil, fmt.Errorf("%w: no stored summaries", models.ErrNoData)
	}
	return out, nil
}
