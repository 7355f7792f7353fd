package bench

import (
	"math"
	"sort"
)

// ----------------------------------------------------------------------------
// Descriptive statistics
// ----------------------------------------------------------------------------

// Stats holds the descriptive statistics of a sample set
type Stats struct {
	Count        int     `json:"count"`
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
}

// NewStats computes count, mean, standard deviation, minimum, and maximum
// of values. An empty set yields the zero value.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	// initialize min and max with the first value
	min := values[0]
	max := values[0]

	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	// population standard deviation
	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	return Stats{
		Count:        len(values),
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
		Min:          min,
		Max:          max,
		Mean:         mean,
	}
}

// ----------------------------------------------------------------------------
// Percentiles
// ----------------------------------------------------------------------------

// Summary adds the 50th, 95th and 99th percentile to Stats
type Summary struct {
	Stats
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Summarize sorts a copy of values once and computes the summary. Percentiles
// use the nearest-rank method, so every percentile is an observed value and
// P50 <= P95 <= P99 <= Max holds.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := append(make([]float64, 0, len(values)), values...)
	sort.Float64s(sorted)

	return Summary{
		Stats: NewStats(sorted),
		P50:   Percentile(sorted, 50),
		P95:   Percentile(sorted, 95),
		P99:   Percentile(sorted, 99),
	}
}

// Percentile returns the nearest-rank p-th percentile (0 < p <= 100) of an
// ascending sorted slice, or 0 for an empty slice
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(n) / 100))
	rank = max(1, min(rank, n))
	return sorted[rank-1]
}
