package features

import (
	"fmt"

	"github.com/guregu/null/v6"

	"PriceBand/internal/domain/models"
)

// DefaultLookback is the rolling window over each horizon's lagged return.
const DefaultLookback = 100

// ProjectPriceTargets projects the band from the lagged returns already
// carried by e. Every horizon must have its P_h record; otherwise the error
// wraps models.ErrComputation. The input is not modified.
func ProjectPriceTargets(e *models.EnrichedSeries, priceColumn string, horizons []int, lookback int) (*models.PriceTargetBand, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("price targets: lookback must be positive, got %d", lookback)
	}
	price, err := e.Column(priceColumn)
	if err != nil {
		return nil, err
	}
	hs, err := NormalizeHorizons(horizons)
	if err != nil {
		return nil, err
	}

	n := len(price)
	band := &models.PriceTargetBand{Lookback: lookback, Horizons: make([]models.HorizonBand, 0, len(hs))}
	maxPcts := make([][]null.Float, 0, len(hs))
	maxTargets := make([][]null.Float, 0, len(hs))
	minTargets := make([][]null.Float, 0, len(hs))

	for _, h := range hs {
		ret, ok := e.Returns.Column(h)
		if !ok {
			return nil, fmt.Errorf("%w: %s missing, compute lagged returns first", models.ErrComputation, models.ReturnColumn(h))
		}
		if len(ret) != n {
			return nil, fmt.Errorf("%w: %s has %d rows, series has %d", models.ErrComputation, models.ReturnColumn(h), len(ret), n)
		}

		shifted := make([]null.Float, n)
		for t := h; t < n; t++ {
			shifted[t] = models.Finite(price[t-h])
		}
		hb := models.HorizonBand{
			Horizon: h,
			MaxPct:  rollingMax(ret, lookback),
			MinPct:  rollingMin(ret, lookback),
			Shifted: shifted,
		}
		hb.MaxTarget = scale(shifted, hb.MaxPct)
		hb.MinTarget = scale(shifted, hb.MinPct)

		band.Horizons = append(band.Horizons, hb)
		maxPcts = append(maxPcts, hb.MaxPct)
		maxTargets = append(maxTargets, hb.MaxTarget)
		minTargets = append(minTargets, hb.MinTarget)
	}

	band.BandMinMaxPct = minAcross(maxPcts, n)
	band.HighMin = minAcross(maxTargets, n)
	band.HighAvg = meanAcross(maxTargets, n)
	band.HighMax = maxAcross(maxTargets, n)
	band.LowMin = maxAcross(minTargets, n)
	band.LowAvg = meanAcross(minTargets, n)
	band.LowMax = minAcross(minTargets, n)

	band.Reach = scale(models.FiniteAll(price), band.BandMinMaxPct)
	band.ReachFromLow = make([]null.Float, n)
	if x := e.Extremum; x != nil && len(x.Low) == n {
		band.ReachFromLow = scale(models.FiniteAll(x.Low), band.BandMinMaxPct)
	}
	return band, nil
}

// ApplyPriceTargets attaches a freshly projected band to e.
func ApplyPriceTargets(e *models.EnrichedSeries, priceColumn string, horizons []int, lookback int) (*models.EnrichedSeries, error) {
	band, err := ProjectPriceTargets(e, priceColumn, horizons, lookback)
	if err != nil {
		return nil, err
	}
	return e.WithBand(band), nil
}
