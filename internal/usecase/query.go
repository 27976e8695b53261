package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
	"PriceBand/pkg/logger"
)

// BandQuery answers read requests against the serving state, falling back
// to a stored summary when nothing has been computed in this process yet.
type BandQuery struct {
	state  *ForecastState
	reader drepo.SummaryReader
	log    *logger.Logger
}

func NewBandQuery(state *ForecastState, reader drepo.SummaryReader, log *logger.Logger) *BandQuery {
	if log == nil {
		log = logger.Nop()
	}
	return &BandQuery{state: state, reader: reader, log: log}
}

// Status describes what the serving state currently holds.
type Status struct {
	Symbols   []string  `json:"symbols"`
	UpdatedAt time.Time `json:"updated_at"`
	LatestAt  time.Time `json:"latest_as_of"`
}

func (q *BandQuery) Status() Status {
	st := Status{Symbols: q.state.Symbols(), UpdatedAt: q.state.UpdatedAt()}
	if t := q.state.Latest(); t != nil {
		st.LatestAt = t.AsOf
	}
	return st
}

// Latest returns the newest summary.
func (q *BandQuery) Latest(ctx context.Context) (*models.SummaryTable, error) {
	if t := q.state.Latest(); t != nil {
		return t, nil
	}
	if q.reader != nil {
		return q.reader.LatestSummary(ctx)
	}
	return nil, fmt.Errorf("%w: no summary computed yet", models.ErrNoData)
}

// SummaryAt builds the summary as of date from the loaded series.
func (q *BandQuery) SummaryAt(date time.Time) (*models.SummaryTable, error) {
	series := q.state.Series()
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no series loaded", models.ErrNoData)
	}
	rows := ExtractSnapshot(series, date)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no instrument has data on or before %s", models.ErrNoData, date.Format(models.DateLayout))
	}
	return BuildSummary(models.Day(date), rows, q.log), nil
}

// Snapshot returns the as-of row of every loaded instrument, or only of
// symbols when given.
func (q *BandQuery) Snapshot(date time.Time, symbols []string) (map[string]models.Row, error) {
	series := q.state.Series()
	if len(symbols) > 0 {
		picked := make(map[string]*models.EnrichedSeries, len(symbols))
		for _, s := range symbols {
			if e, ok := series[s]; ok {
				picked[s] = e
			}
		}
		series = picked
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no matching series loaded", models.ErrNoData)
	}
	return ExtractSnapshot(series, date), nil
}

// Tail returns the last limit rows of symbol's enriched series.
func (q *BandQuery) Tail(symbol string, limit int) ([]models.Row, error) {
	e, ok := q.state.Get(symbol)
	if !ok || e.Len() == 0 {
		return nil, fmt.Errorf("%w: unknown symbol %s", models.ErrNoData, symbol)
	}
	from := e.Len() - limit
	if from < 0 {
		from = 0
	}
	out := make([]models.Row, 0, e.Len()-from)
	for i := from; i < e.Len(); i++ {
		out = append(out, e.Row(i))
	}
	return out, nil
}

// Dates returns the union date index of the loaded series.
func (q *BandQuery) Dates() []time.Time {
	return UnionDates(q.state.Series())
}
