package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"

	"PriceBand/internal/domain/models"
	domrepo "PriceBand/internal/domain/repository"
	applogger "PriceBand/pkg/logger"
)

// FileSummaryExporter writes each summary table to {dir}/{YYYY-MM-DD}.csv,
// one row per metric and one column per instrument.
type FileSummaryExporter struct {
	dir string
	l   *applogger.Logger
}

var _ domrepo.SummarySink = (*FileSummaryExporter)(nil)

func NewFileSummaryExporter(dir string, l *applogger.Logger) *FileSummaryExporter {
	if l == nil {
		l = applogger.Nop()
	}
	return &FileSummaryExporter{dir: dir, l: l}
}

func (e *FileSummaryExporter) Name() string { return "csv" }

func (e *FileSummaryExporter) Path(t *models.SummaryTable) string {
	return filepath.Join(e.dir, t.AsOf.Format(models.DateLayout)+".csv")
}

func (e *FileSummaryExporter) SaveSummary(ctx context.Context, t *models.SummaryTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := e.Path(t)
	if err := writeFileAtomic(e.dir, path, func(w io.Writer) error { return WriteSummaryCSV(w, t) }); err != nil {
		return fmt.Errorf("export summary %s: %w", t.AsOf.Format(models.DateLayout), err)
	}
	e.l.Info("summary exported",
		applogger.String("path", path),
		applogger.Int("instruments", len(t.Rows)))
	return nil
}

// WriteSummaryCSV renders t metric-major.
func WriteSummaryCSV(w io.Writer, t *models.SummaryTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"metric"}, t.Symbols()...)); err != nil {
		return err
	}
	matrix := t.Matrix()
	record := make([]string, len(t.Rows)+1)
	for _, m := range models.SummaryMetrics {
		record[0] = m
		for i, v := range matrix[m] {
			record[i+1] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
