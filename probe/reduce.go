package probe

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// insertSorted inserts z into the ascending slice s.
func insertSorted(s []float64, z float64) []float64 {
	i := sort.Search(len(s), func(i int) bool { return s[i] > z })
	return slices.Insert(s, i, z)
}

// median of an ascending slice. An even count averages the middle pair.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	m := sorted[(n-1)/2]
	if n%2 == 0 {
		m = (m + sorted[n/2]) / 2
	}
	return m
}

// trimmedMean drops extra samples from the ends of the ascending slice,
// each time the one farther from the median (the low end on a tie), and
// averages the rest.
func trimmedMean(sorted []float64, extra int) float64 {
	if extra <= 0 {
		return stat.Mean(sorted, nil)
	}
	if extra >= len(sorted) {
		return math.NaN()
	}
	med := median(sorted)
	lo, hi := 0, len(sorted)-1
	for range extra {
		if math.Abs(sorted[hi]-med) > math.Abs(sorted[lo]-med) {
			hi--
		} else {
			lo++
		}
	}
	return stat.Mean(sorted[lo:hi+1], nil)
}

// weightedDouble combines a fast and a slow sample, favoring the slow one.
func weightedDouble(fast, slow float64) float64 {
	return (slow*3 + fast*2) / 5
}

// innerMean averages an ascending slice without its two lowest and two
// highest values. Five or fewer samples give the highest one.
func innerMean(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n <= 5 {
		return sorted[n-1]
	}
	return stat.Mean(sorted[2:n-2], nil)
}
