package features

import (
	"errors"
	"fmt"
	"sort"

	"github.com/guregu/null/v6"

	"PriceBand/internal/domain/models"
)

// ErrInvalidHorizon is returned for an empty or non-positive horizon set.
var ErrInvalidHorizon = errors.New("invalid horizon")

// NormalizeHorizons deduplicates and sorts horizons ascending.
func NormalizeHorizons(horizons []int) ([]int, error) {
	if len(horizons) == 0 {
		return nil, fmt.Errorf("%w: empty set", ErrInvalidHorizon)
	}
	seen := make(map[int]struct{}, len(horizons))
	out := make([]int, 0, len(horizons))
	for _, h := range horizons {
		if h <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, h)
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Ints(out)
	return out, nil
}

// LaggedReturns computes P_h(t) = (price(t)/price(t-h) - 1) * 100 for every
// horizon, using row offsets rather than calendar offsets. Rows t < h and
// non-finite divisions are null. Total_% sums the defined P_h of a row; an
// all-null row totals 0.
func LaggedReturns(s models.Series, priceColumn string, horizons []int) (*models.LaggedReturnSet, error) {
	price, err := s.Column(priceColumn)
	if err != nil {
		return nil, err
	}
	hs, err := NormalizeHorizons(horizons)
	if err != nil {
		return nil, err
	}

	set := &models.LaggedReturnSet{
		Horizons: hs,
		Returns:  make(map[int][]null.Float, len(hs)),
		Total:    make([]float64, len(price)),
	}
	for _, h := range hs {
		col := make([]null.Float, len(price))
		for t := h; t < len(price); t++ {
			col[t] = models.Finite((price[t]/price[t-h] - 1) * 100)
			if col[t].Valid {
				set.Total[t] += col[t].Float64
			}
		}
		set.Returns[h] = col
	}
	return set, nil
}

// ApplyLaggedReturns attaches freshly computed returns to e.
func ApplyLaggedReturns(e *models.EnrichedSeries, priceColumn string, horizons []int) (*models.EnrichedSeries, error) {
	set, err := LaggedReturns(e.Series, priceColumn, horizons)
	if err != nil {
		return nil, err
	}
	return e.WithReturns(set), nil
}
