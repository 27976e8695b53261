package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"
)

// Table is the tabular rendering of a series: named, ordered, equal-length
// nullable columns keyed by a strictly increasing date index.
type Table struct {
	Dates   []time.Time
	Columns []string
	cells   map[string][]null.Float
}

// NewTable creates an empty table over the given date index.
func NewTable(dates []time.Time) *Table {
	return &Table{Dates: dates, cells: make(map[string][]null.Float)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Dates) }

// Set adds or replaces a column. Replacing keeps the original position.
func (t *Table) Set(name string, values []null.Float) error {
	if len(values) != len(t.Dates) {
		return fmt.Errorf("column %q: length %d != index length %d", name, len(values), len(t.Dates))
	}
	if _, exists := t.cells[name]; !exists {
		t.Columns = append(t.Columns, name)
	}
	t.cells[name] = values
	return nil
}

// Column returns a column by name.
func (t *Table) Column(name string) ([]null.Float, bool) {
	v, ok := t.cells[name]
	return v, ok
}

// Missing returns the names that are not columns of the table.
func (t *Table) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := t.cells[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Range returns the first and last index dates.
func (t *Table) Range() (first, last time.Time, ok bool) {
	if len(t.Dates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return t.Dates[0], t.Dates[len(t.Dates)-1], true
}

// Validate checks the date index is strictly increasing.
func (t *Table) Validate() error {
	for i := 1; i < len(t.Dates); i++ {
		if !t.Dates[i].After(t.Dates[i-1]) {
			return fmt.Errorf("%w: date index not strictly increasing at row %d (%s)",
				ErrSchema, i, t.Dates[i].Format(DateLayout))
		}
	}
	return nil
}

// Row returns the i-th row.
func (t *Table) Row(i int) Row {
	vals := make([]null.Float, len(t.Columns))
	for j, c := range t.Columns {
		vals[j] = t.cells[c][i]
	}
	cols := make([]string, len(t.Columns))
	copy(cols, t.Columns)
	return Row{Date: t.Dates[i], Columns: cols, Values: vals}
}

// DateLayout is the calendar-day layout used for persistence and the API.
const DateLayout = "2006-01-02"

// Row is a single-row view of an enriched series.
type Row struct {
	Date    time.Time
	Columns []string
	Values  []null.Float
}

// Get returns the cell of a named column.
func (r Row) Get(name string) (null.Float, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return null.Float{}, false
}

// MarshalJSON renders the row as {"date": ..., "<column>": value, ...}.
func (r Row) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(r.Columns)+1)
	m["date"] = r.Date.Format(DateLayout)
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return json.Marshal(m)
}

// Finite wraps v as a valid cell, or a null one when v is NaN or infinite.
func Finite(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

// FiniteAll wraps a plain column.
func FiniteAll(vs []float64) []null.Float {
	out := make([]null.Float, len(vs))
	for i, v := range vs {
		out[i] = Finite(v)
	}
	return out
}
