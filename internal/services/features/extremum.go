package features

import (
	"fmt"
	"math"

	"PriceBand/internal/domain/models"
)

// DefaultLowWindow is one trading year of daily rows.
const DefaultLowWindow = 252

// RollingLow computes the trailing minimum of lowColumn over window rows,
// expanding until window rows have accumulated. Every low must be finite so
// that every row gets a defined minimum.
func RollingLow(s models.Series, lowColumn string, window int) (*models.RollingExtremum, error) {
	low, err := s.Column(lowColumn)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, fmt.Errorf("rolling low: window must be positive, got %d", window)
	}
	for i, v := range low {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: rolling low: %s is %v on %s", models.ErrSchema,
				lowColumn, v, s.Bars[i].Date.Format(models.DateLayout))
		}
	}

	mins := rollingMin(models.FiniteAll(low), window)
	out := &models.RollingExtremum{Window: window, Low: make([]float64, len(low))}
	for i, v := range mins {
		out.Low[i] = v.Float64
	}
	return out, nil
}

// ApplyRollingLow attaches a freshly computed rolling low to e.
func ApplyRollingLow(e *models.EnrichedSeries, lowColumn string, window int) (*models.EnrichedSeries, error) {
	x, err := RollingLow(e.Series, lowColumn, window)
	if err != nil {
		return nil, err
	}
	return e.WithExtremum(x), nil
}
