// Package indicators computes technical indicators over canonical bars.
//
// Streaming indicators implement Indicator and are fed one closed bar at a
// time. Compute runs them over a whole frame and returns NaN wherever the
// history is too short or a denominator is zero.
package indicators

import (
	"math"

	"github.com/rustyeddy/ashare/market"
)

// Indicator computes a single streaming value from candles.
type Indicator interface {
	// Name returns a stable identifier like "MA(20)" or "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed candle.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, NaN when not ready.
	Value() float64
}

// Series feeds every bar through ind and records Value after each update.
func Series(ind Indicator, bars []market.Candle) []float64 {
	ind.Reset()
	out := make([]float64, len(bars))
	for i, b := range bars {
		ind.Update(b)
		out[i] = ind.Value()
	}
	return out
}

// Div returns a/b, NaN when b is zero or either side is NaN.
func Div(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return a / b
}

// Ptr returns nil for NaN or Inf so values serialize as JSON null.
func Ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Or returns v, or def when v is NaN.
func Or(v, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return v
}
