package features

import (
	"github.com/guregu/null/v6"

	"PriceBand/internal/domain/models"
)

// rollingExtreme computes a trailing-window extreme over vals with
// min-periods=1 semantics: row i covers rows [i-w+1, i], invalid cells are
// skipped, and a row whose window holds no valid cell is null. keep(a, b)
// reports whether a still dominates b; the deque keeps indices whose values
// are ordered by keep, so the front is always the window extreme.
func rollingExtreme(vals []null.Float, w int, keep func(a, b float64) bool) []null.Float {
	out := make([]null.Float, len(vals))
	dq := make([]int, 0, w)
	for i, v := range vals {
		for len(dq) > 0 && dq[0] <= i-w {
			dq = dq[1:]
		}
		if v.Valid {
			for len(dq) > 0 && !keep(vals[dq[len(dq)-1]].Float64, v.Float64) {
				dq = dq[:len(dq)-1]
			}
			dq = append(dq, i)
		}
		if len(dq) > 0 {
			out[i] = null.FloatFrom(vals[dq[0]].Float64)
		}
	}
	return out
}

func rollingMax(vals []null.Float, w int) []null.Float {
	return rollingExtreme(vals, w, func(a, b float64) bool { return a > b })
}

func rollingMin(vals []null.Float, w int) []null.Float {
	return rollingExtreme(vals, w, func(a, b float64) bool { return a < b })
}

// reduceAcross folds the i-th cell of every column with fn, skipping nulls.
// The result is null when every column is null at i.
func reduceAcross(cols [][]null.Float, n int, fn func(acc, v float64) float64) []null.Float {
	out := make([]null.Float, n)
	for i := 0; i < n; i++ {
		for _, c := range cols {
			v := c[i]
			if !v.Valid {
				continue
			}
			if !out[i].Valid {
				out[i] = null.FloatFrom(v.Float64)
				continue
			}
			out[i] = null.FloatFrom(fn(out[i].Float64, v.Float64))
		}
	}
	return out
}

func minAcross(cols [][]null.Float, n int) []null.Float {
	return reduceAcross(cols, n, func(acc, v float64) float64 {
		if v < acc {
			return v
		}
		return acc
	})
}

func maxAcross(cols [][]null.Float, n int) []null.Float {
	return reduceAcross(cols, n, func(acc, v float64) float64 {
		if v > acc {
			return v
		}
		return acc
	})
}

func meanAcross(cols [][]null.Float, n int) []null.Float {
	out := make([]null.Float, n)
	for i := 0; i < n; i++ {
		sum, cnt := 0.0, 0
		for _, c := range cols {
			if c[i].Valid {
				sum += c[i].Float64
				cnt++
			}
		}
		if cnt > 0 {
			out[i] = null.FloatFrom(sum / float64(cnt))
		}
	}
	return out
}

// scale returns base*(1+pct/100), null when either side is null.
func scale(base, pct []null.Float) []null.Float {
	out := make([]null.Float, len(base))
	for i := range base {
		if base[i].Valid && pct[i].Valid {
			out[i] = models.Finite(base[i].Float64 * (1 + pct[i].Float64/100))
		}
	}
	return out
}
