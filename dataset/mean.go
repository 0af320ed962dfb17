package dataset

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// nanMean returns the mean of the non-NaN values of xs, or NaN if there are none.
// xs is modified.
func nanMean(xs []float64) float64 {
	n := 0
	for _, x := range xs {
		if !math.IsNaN(x) {
			xs[n] = x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return stat.Mean(xs[:n], nil)
}

// meanMaps returns the vertex-wise NaN-aware mean of equal-length maps, or an
// empty result if there are no maps.
func meanMaps(maps []Values) Values {
	if len(maps) == 0 {
		return Values{}
	}
	mean := make(Values, len(maps[0]))
	column := make([]float64, len(maps))
	for i := range mean {
		for j, m := range maps {
			column[j] = float64(m[i])
		}
		mean[i] = float32(nanMean(column))
	}
	return mean
}
