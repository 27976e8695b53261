package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"PriceBand/internal/domain/models"
	domrepo "PriceBand/internal/domain/repository"
	applogger "PriceBand/pkg/logger"
)

const dateHeader = "date"

// FileSeriesStore implements SeriesStore as one CSV file per instrument under
// dir. Null cells are written as empty strings.
type FileSeriesStore struct {
	dir string
	l   *applogger.Logger
}

var _ domrepo.SeriesStore = (*FileSeriesStore)(nil)

func NewFileSeriesStore(dir string, l *applogger.Logger) *FileSeriesStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &FileSeriesStore{dir: dir, l: l}
}

func (s *FileSeriesStore) path(symbol string) string {
	return filepath.Join(s.dir, symbol+".csv")
}

// Load reads the stored table for symbol. A missing file is ErrNoData.
func (s *FileSeriesStore) Load(ctx context.Context, symbol string) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no stored series for %s", models.ErrNoData, symbol)
		}
		return nil, fmt.Errorf("open series %s: %w", symbol, err)
	}
	defer f.Close()

	t, err := ReadTableCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", symbol, err)
	}
	return t, nil
}

// Save atomically replaces the stored table for symbol.
func (s *FileSeriesStore) Save(ctx context.Context, symbol string, t *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := writeFileAtomic(s.dir, s.path(symbol), func(w io.Writer) error {
		return WriteTableCSV(w, t)
	})
	if err != nil {
		return fmt.Errorf("save series %s: %w", symbol, err)
	}
	s.l.Debug("series saved",
		applogger.String("symbol", symbol),
		applogger.Int("rows", t.Len()),
		applogger.Int("columns", len(t.Columns)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

// WriteTableCSV writes t with a leading date column.
func WriteTableCSV(w io.Writer, t *models.Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{dateHeader}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		record[0] = row.Date.Format(models.DateLayout)
		for j, v := range row.Values {
			record[j+1] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTableCSV parses a table written by WriteTableCSV.
func ReadTableCSV(r io.Reader) (*models.Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSchema, err)
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != dateHeader {
		return nil, fmt.Errorf("%w: missing %q header", models.ErrSchema, dateHeader)
	}
	header := records[0][1:]
	rows := records[1:]

	dates := make([]time.Time, len(rows))
	cols := make([][]null.Float, len(header))
	for j := range cols {
		cols[j] = make([]null.Float, len(rows))
	}
	for i, rec := range rows {
		d, err := time.Parse(models.DateLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d date %q", models.ErrSchema, i+1, rec[0])
		}
		dates[i] = d
		for j := range header {
			v, err := parseCell(rec[j+1])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", models.ErrSchema, i+1, header[j], err)
			}
			cols[j][i] = v
		}
	}

	t := models.NewTable(dates)
	for j, name := range header {
		if err := t.Set(name, cols[j]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func formatCell(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

func parseCell(s string) (null.Float, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return null.Float{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	return models.Finite(f), nil
}

// writeFileAtomic writes through a temp file in dir and renames it over path,
// so readers never observe a partial file.
func writeFileAtomic(dir, path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
