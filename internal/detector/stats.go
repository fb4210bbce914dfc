package detector

import "math"

// welford accumulates a running mean and sum of squared deviations.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// popStd is the population standard deviation (divides by n, not n-1).
func (w *welford) popStd() float64 {
	if w.count == 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var w welford
	for _, v := range values {
		w.add(v)
	}
	return w.mean
}

// safeDiv returns 0 instead of dividing by a non-positive denominator.
func safeDiv(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
