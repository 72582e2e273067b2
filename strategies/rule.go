package strategies

import (
	"math"

	"github.com/rustyeddy/ashare/evaluate"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/risk"
)

// rule is a Strategy described by data: a setup mask, an optional separate
// event mask, a band function and fixed texts.
type rule struct {
	id      string
	name    string
	note    string
	observe bool

	mask      func(f *indicators.Frame) []bool
	eventMask func(f *indicators.Frame) []bool
	bands     func(f *indicators.Frame, idx int) Bands

	confirm      ConfirmText
	invalidation []string
}

func (r *rule) ID() string        { return r.id }
func (r *rule) Name() string      { return r.name }
func (r *rule) ObserveOnly() bool { return r.observe }

func (r *rule) Detect(f *indicators.Frame) []Setup {
	var out []Setup
	for i, hit := range r.mask(f) {
		if hit {
			out = append(out, Setup{Idx: i, Note: r.note})
		}
	}
	return out
}

func (r *rule) KeyBands(f *indicators.Frame, s Setup) Bands {
	if s.Idx < 0 || s.Idx >= f.Len() {
		return Bands{S1: math.NaN(), S2: math.NaN(), R1: math.NaN(), R2: math.NaN(), Anchors: math.NaN()}
	}
	return r.bands(f, s.Idx)
}

func (r *rule) Confirm(Setup, risk.Grade) ConfirmText { return r.confirm }

func (r *rule) Invalidation(Setup) []string {
	return append([]string(nil), r.invalidation...)
}

// EventStudy uses the strategy's event mask, which for most strategies is
// its setup mask. The setups argument is not consulted.
func (r *rule) EventStudy(f *indicators.Frame, _ []Setup) evaluate.EventStats {
	m := r.mask
	if r.eventMask != nil {
		m = r.eventMask
	}
	return evaluate.EventStudy(f.Closes(), m(f))
}

// column accessors

func lows(f *indicators.Frame) []float64 {
	out := make([]float64, f.Len())
	for i, b := range f.Bars {
		out[i] = b.Low
	}
	return out
}

func highs(f *indicators.Frame) []float64 {
	out := make([]float64, f.Len())
	for i, b := range f.Bars {
		out[i] = b.High
	}
	return out
}

// lookback returns x[max(0, idx-w) : idx+1].
func lookback(x []float64, idx, w int) []float64 {
	return x[max(0, idx-w) : idx+1]
}

func minOf(x []float64) float64 {
	m := math.Inf(1)
	for _, v := range x {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		m = math.Max(m, v)
	}
	return m
}

// meanBand is S1/R1 at close quantiles qLow/qHigh over the lookback, S2 the
// mean close, R2 = R1*mult.
func meanBand(w int, qLow, qHigh, mult float64) func(*indicators.Frame, int) Bands {
	return func(f *indicators.Frame, idx int) Bands {
		win := lookback(f.Closes(), idx, w)
		mid := indicators.Mean(win)
		high := indicators.Quantile(win, qHigh)
		return Bands{S1: indicators.Quantile(win, qLow), S2: mid, R1: high, R2: high * mult, Anchors: mid}
	}
}

// quantileBand takes all four levels from close quantiles.
func quantileBand(w int, q1, q2, q3, q4 float64) func(*indicators.Frame, int) Bands {
	return func(f *indicators.Frame, idx int) Bands {
		win := lookback(f.Closes(), idx, w)
		return Bands{
			S1:      indicators.Quantile(win, q1),
			S2:      indicators.Quantile(win, q2),
			R1:      indicators.Quantile(win, q3),
			R2:      indicators.Quantile(win, q4),
			Anchors: indicators.Mean(win),
		}
	}
}

// rangeBand is the lookback's lowest low, mean close and highest high.
func rangeBand(w int) func(*indicators.Frame, int) Bands {
	return func(f *indicators.Frame, idx int) Bands {
		mid := indicators.Mean(lookback(f.Closes(), idx, w))
		high := maxOf(lookback(highs(f), idx, w))
		return Bands{S1: minOf(lookback(lows(f), idx, w)), S2: mid, R1: high, R2: high * 1.02, Anchors: mid}
	}
}

// levelBand brackets a single level.
func levelBand(level func(*indicators.Frame) []float64) func(*indicators.Frame, int) Bands {
	return func(f *indicators.Frame, idx int) Bands {
		v := level(f)[idx]
		return Bands{S1: v * 0.99, S2: v, R1: v * 1.02, R2: v * 1.03, Anchors: v}
	}
}

func lessThan(x []float64, thr float64) []bool {
	out := make([]bool, len(x))
	for i, v := range x {
		out[i] = v < thr
	}
	return out
}

func greaterThan(x []float64, thr float64) []bool {
	out := make([]bool, len(x))
	for i, v := range x {
		out[i] = v > thr
	}
	return out
}

func shiftBools(x []bool, k int) []bool {
	out := make([]bool, len(x))
	for i := k; i < len(x); i++ {
		out[i] = x[i-k]
	}
	return out
}
