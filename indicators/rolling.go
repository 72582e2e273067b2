package indicators

import (
	"math"
	"sort"
)

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

// Mean averages the non-NaN values of x; NaN when there are none.
func Mean(x []float64) float64 {
	s, n := 0.0, 0
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		s += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

// Std is the population standard deviation of the non-NaN values.
func Std(x []float64) float64 {
	m := Mean(x)
	if math.IsNaN(m) {
		return math.NaN()
	}
	s, n := 0.0, 0
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		s += (v - m) * (v - m)
		n++
	}
	return math.Sqrt(s / float64(n))
}

// Quantile uses linear interpolation between closest ranks and ignores
// NaN. It returns NaN for an empty input.
func Quantile(x []float64, q float64) float64 {
	v := make([]float64, 0, len(x))
	for _, f := range x {
		if !math.IsNaN(f) {
			v = append(v, f)
		}
	}
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	return quantileSorted(v, q)
}

func quantileSorted(v []float64, q float64) float64 {
	if q <= 0 {
		return v[0]
	}
	if q >= 1 {
		return v[len(v)-1]
	}
	pos := q * float64(len(v)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return v[lo]
	}
	frac := pos - float64(lo)
	return v[lo] + (v[hi]-v[lo])*frac
}

// window applies fn to each full window of size w. Windows holding a NaN
// produce NaN.
func window(x []float64, w int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i+1 < w || w <= 0 {
			out[i] = math.NaN()
			continue
		}
		win := x[i+1-w : i+1]
		bad := false
		for _, v := range win {
			if math.IsNaN(v) {
				bad = true
				break
			}
		}
		if bad {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(win)
	}
	return out
}

func RollingMean(x []float64, w int) []float64 { return window(x, w, mean) }

// RollingStd uses ddof=0.
func RollingStd(x []float64, w int) []float64 { return window(x, w, Std) }

func RollingMin(x []float64, w int) []float64 {
	return window(x, w, func(v []float64) float64 {
		m := v[0]
		for _, f := range v[1:] {
			m = math.Min(m, f)
		}
		return m
	})
}

func RollingMax(x []float64, w int) []float64 {
	return window(x, w, func(v []float64) float64 {
		m := v[0]
		for _, f := range v[1:] {
			m = math.Max(m, f)
		}
		return m
	})
}

func RollingQuantile(x []float64, w int, q float64) []float64 {
	return window(x, w, func(v []float64) float64 { return Quantile(v, q) })
}

// Shift lags x by k positions (k>0), padding with NaN.
func Shift(x []float64, k int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		j := i - k
		if j < 0 || j >= len(x) {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[j]
	}
	return out
}

// Last returns the final element of x, NaN when empty.
func Last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}

// Tail returns the last n elements of x.
func Tail(x []float64, n int) []float64 {
	if n >= len(x) {
		return x
	}
	return x[len(x)-n:]
}
