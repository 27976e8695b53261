package usecase

import (
	"sort"
	"time"

	"PriceBand/internal/domain/models"
)

// ExtractSnapshot returns, per instrument, the row at date or else the latest
// row before it. Instruments whose history starts after date are omitted.
func ExtractSnapshot(series map[string]*models.EnrichedSeries, date time.Time) map[string]models.Row {
	d := models.Day(date)
	out := make(map[string]models.Row, len(series))
	for sym, e := range series {
		if i, ok := asOfIndex(e, d); ok {
			out[sym] = e.Row(i)
		}
	}
	return out
}

// asOfIndex finds the last row dated on or before d.
func asOfIndex(e *models.EnrichedSeries, d time.Time) (int, bool) {
	if e == nil || e.Len() == 0 {
		return 0, false
	}
	i := sort.Search(e.Len(), func(i int) bool { return e.Bars[i].Date.After(d) })
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}
