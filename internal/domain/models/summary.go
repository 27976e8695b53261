package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// SummaryRow is the per-instrument band view on one as-of date.
type SummaryRow struct {
	Symbol    string     `json:"symbol"`
	Date      time.Time  `json:"date"`
	Close     float64    `json:"close"`
	HighMin   null.Float `json:"high_min"`
	HighAvg   null.Float `json:"high_avg"`
	HighMax   null.Float `json:"high_max"`
	LowMin    null.Float `json:"low_min"`
	LowAvg    null.Float `json:"low_avg"`
	LowMax    null.Float `json:"low_max"`
	Low52Week float64    `json:"low_52_week"`

	BuyFrom  null.Float `json:"buy_from"`
	Floor    null.Float `json:"floor"`
	SellFrom null.Float `json:"sell_from"`
	Ceiling  null.Float `json:"ceiling"`
	Rate     null.Float `json:"rate"`
}

// SummaryTable is the cross-instrument summary for one as-of date, ordered
// by symbol.
type SummaryTable struct {
	AsOf time.Time    `json:"as_of"`
	Rows []SummaryRow `json:"rows"`
}

// Summary metric names, in rendering order.
const (
	MetricClose     = "Close"
	MetricHighMin   = "High_Min"
	MetricHighAvg   = "High_Avg"
	MetricHighMax   = "High_Max"
	MetricLowMin    = "Low_Min"
	MetricLowAvg    = "Low_Avg"
	MetricLowMax    = "Low_Max"
	MetricLow52Week = "52_week_low"
	MetricBuyFrom   = "Buy_From"
	MetricFloor     = "Floor"
	MetricSellFrom  = "Sell_From"
	MetricCeiling   = "Ceiling"
	MetricRate      = "Rate"
)

// SummaryMetrics lists the metric names returned by SummaryRow.Metrics.
var SummaryMetrics = []string{
	MetricClose, MetricHighMin, MetricHighAvg, MetricHighMax,
	MetricLowMin, MetricLowAvg, MetricLowMax, MetricLow52Week,
	MetricBuyFrom, MetricFloor, MetricSellFrom, MetricCeiling, MetricRate,
}

// Metrics returns the row's values in SummaryMetrics order.
func (r SummaryRow) Metrics() []null.Float {
	return []null.Float{
		Finite(r.Close), r.HighMin, r.HighAvg, r.HighMax,
		r.LowMin, r.LowAvg, r.LowMax, Finite(r.Low52Week),
		r.BuyFrom, r.Floor, r.SellFrom, r.Ceiling, r.Rate,
	}
}

// Symbols returns the instrument keys in row order.
func (t *SummaryTable) Symbols() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Symbol
	}
	return out
}

// Matrix renders the table metric-major: one slice per metric in
// SummaryMetrics order, one cell per row.
func (t *SummaryTable) Matrix() map[string][]null.Float {
	out := make(map[string][]null.Float, len(SummaryMetrics))
	for _, m := range SummaryMetrics {
		out[m] = make([]null.Float, len(t.Rows))
	}
	for i, r := range t.Rows {
		for j, v := range r.Metrics() {
			out[SummaryMetrics[j]][i] = v
		}
	}
	return out
}

// SellFrom picks the sell level for a row: HighMin while it is at or above
// the close, otherwise the close projected by the tightest historical upside.
func SellFrom(close float64, highMin, reach null.Float) null.Float {
	if highMin.Valid && highMin.Float64 < close {
		return reach
	}
	return highMin
}

// Rate is LowMin relative to the close, as a fraction.
func Rate(close float64, lowMin null.Float) null.Float {
	if !lowMin.Valid {
		return null.Float{}
	}
	return Finite(lowMin.Float64/close - 1)
}
