package usecase

import (
	"fmt"
	"sort"
	"time"

	"github.com/guregu/null/v6"

	"PriceBand/internal/domain/models"
	"PriceBand/pkg/logger"
)

var summaryColumns = []string{
	models.ColClose,
	models.ColHighMin, models.ColHighAvg, models.ColHighMax,
	models.ColLowMin, models.ColLowAvg, models.ColLowMax,
	models.ColLow52,
}

// LatestRows adapts a series mapping to the last row of each series.
func LatestRows(series map[string]*models.EnrichedSeries) map[string]models.Row {
	out := make(map[string]models.Row, len(series))
	for sym, e := range series {
		if e == nil || e.Len() == 0 {
			continue
		}
		out[sym] = e.Row(e.Len() - 1)
	}
	return out
}

// BuildSummary turns one row per instrument into the summary table for asOf.
// An instrument whose row lacks a summary column or a close is left out with
// a warning.
func BuildSummary(asOf time.Time, rows map[string]models.Row, log *logger.Logger) *models.SummaryTable {
	if log == nil {
		log = logger.Nop()
	}
	symbols := make([]string, 0, len(rows))
	for sym := range rows {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	t := &models.SummaryTable{AsOf: models.Day(asOf), Rows: make([]models.SummaryRow, 0, len(symbols))}
	for _, sym := range symbols {
		r, err := summaryRow(sym, rows[sym])
		if err != nil {
			log.Warn("instrument excluded from summary",
				logger.String("symbol", sym),
				logger.String("stage", models.StageSummary),
				logger.Date("as_of", asOf),
				logger.Error(err))
			continue
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

func summaryRow(symbol string, row models.Row) (models.SummaryRow, error) {
	cells := make(map[string]null.Float, len(summaryColumns))
	for _, c := range summaryColumns {
		v, ok := row.Get(c)
		if !ok {
			return models.SummaryRow{}, fmt.Errorf("%w: column %q not found", models.ErrSchema, c)
		}
		cells[c] = v
	}
	cls := cells[models.ColClose]
	if !cls.Valid || cls.Float64 == 0 {
		return models.SummaryRow{}, fmt.Errorf("%w: no close on %s", models.ErrNoData, row.Date.Format(models.DateLayout))
	}
	reach, _ := row.Get(models.ColReach)

	out := models.SummaryRow{
		Symbol:    symbol,
		Date:      row.Date,
		Close:     cls.Float64,
		HighMin:   cells[models.ColHighMin],
		HighAvg:   cells[models.ColHighAvg],
		HighMax:   cells[models.ColHighMax],
		LowMin:    cells[models.ColLowMin],
		LowAvg:    cells[models.ColLowAvg],
		LowMax:    cells[models.ColLowMax],
		Low52Week: cells[models.ColLow52].ValueOrZero(),
	}
	out.BuyFrom = out.LowMin
	out.Floor = out.LowMax
	out.Ceiling = out.HighMax
	out.SellFrom = models.SellFrom(out.Close, out.HighMin, reach)
	out.Rate = models.Rate(out.Close, out.LowMin)
	return out, nil
}
