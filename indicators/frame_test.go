package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/ashare/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearFrame builds n daily bars with closes from lo to hi, a one-unit
// high-low span and constant volume.
func linearFrame(n int, lo, hi float64) market.Frame {
	bars := make([]market.Candle, n)
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	step := (hi - lo) / float64(n-1)
	for i := range bars {
		c := lo + step*float64(i)
		bars[i] = market.Candle{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000,
			Amount: 1000 * c,
		}
	}
	return market.Frame{Meta: market.Meta{Symbol: "TEST"}, Bars: bars}
}

func TestComputeLinearSeries(t *testing.T) {
	t.Parallel()

	f := Compute(linearFrame(30, 10, 20))
	closes := f.Closes()
	last := 29

	t.Run("ma20", func(t *testing.T) {
		want := mean(closes[10:30])
		assert.InDelta(t, want, f.MA[20][last], 1e-9)
		assert.InDelta(t, 16.72, f.MA[20][last], 0.01)
		assert.True(t, math.IsNaN(f.MA[20][18]))
		assert.False(t, math.IsNaN(f.MA[20][19]))
	})

	t.Run("bias6", func(t *testing.T) {
		m6 := mean(closes[24:30])
		assert.InDelta(t, (closes[last]-m6)/m6, f.Bias6[last], 1e-12)
	})

	t.Run("rsi2 with no losses", func(t *testing.T) {
		assert.Equal(t, 100.0, f.RSI2[last])
		assert.True(t, math.IsNaN(f.RSI2[0]))
	})

	t.Run("atr pct", func(t *testing.T) {
		assert.InDelta(t, 1.0, f.ATR14[last], 1e-12)
		assert.InDelta(t, 1.0/closes[last], f.ATRPct[last], 1e-12)
		assert.InDelta(t, 0.05, f.ATRPct[last], 1e-12)
	})

	t.Run("slope20", func(t *testing.T) {
		want := (f.MA[20][last] - f.MA[20][last-5]) / f.MA[20][last-5]
		assert.InDelta(t, want, f.Slope20[last], 1e-12)
		assert.True(t, math.IsNaN(f.Slope20[23]))
	})

	t.Run("volume ratio and amount", func(t *testing.T) {
		assert.InDelta(t, 1.0, f.VolRatio10[last], 1e-12)
		assert.InDelta(t, mean([]float64{
			1000 * closes[25], 1000 * closes[26], 1000 * closes[27], 1000 * closes[28], 1000 * closes[29],
		}), f.Amount5dAvg[last], 1e-6)
	})

	t.Run("gap", func(t *testing.T) {
		assert.True(t, math.IsNaN(f.GapPct[0]))
		assert.InDelta(t, (closes[last]-closes[last-1])/closes[last-1], f.GapPct[last], 1e-12)
	})

	t.Run("columns aligned", func(t *testing.T) {
		for _, w := range MAWindows {
			assert.Len(t, f.MA[w], 30)
		}
		assert.Len(t, f.NR7, 30)
		assert.Len(t, f.BBWidth20, 30)
	})
}

func TestComputeDivisionByZeroIsNaN(t *testing.T) {
	t.Parallel()

	f := linearFrame(12, 10, 10)
	for i := range f.Bars {
		f.Bars[i].Volume = 0
	}
	out := Compute(f)

	last := 11
	assert.True(t, math.IsNaN(out.VolRatio10[last]))
	assert.True(t, math.IsNaN(out.RSI2[last]), "flat series has no gains or losses")
	for _, col := range [][]float64{out.VolRatio10, out.RSI2, out.ATRPct, out.GapPct, out.BBWidth20} {
		for _, v := range col {
			assert.False(t, math.IsInf(v, 0))
		}
	}
}

func TestBiasCross(t *testing.T) {
	t.Parallel()

	// off a flat base a shock moves bias6 less than bias12
	down := linearFrame(30, 10, 10)
	down.Bars[29].Open, down.Bars[29].Close, down.Bars[29].Low = 9, 9, 8.5
	out := Compute(down)
	assert.True(t, out.Bias6CrossUp[29])
	assert.False(t, out.Bias6CrossUp[28])
	assert.False(t, out.Bias6CrossUp[0])
	assert.False(t, out.Bias6CrossDown[29])

	up := linearFrame(30, 10, 10)
	up.Bars[29].Open, up.Bars[29].Close, up.Bars[29].High = 11, 11, 11.5
	out = Compute(up)
	assert.True(t, out.Bias6CrossDown[29])
	assert.False(t, out.Bias6CrossUp[29])
}

func TestNR7(t *testing.T) {
	t.Parallel()

	f := linearFrame(10, 10, 10)
	f.Bars[8].High = 10.1
	f.Bars[8].Low = 9.95
	out := Compute(f)

	assert.True(t, out.NR7[8])
	assert.False(t, out.NR7[5], "rolling window not full")
}

func TestQuantileLinear(t *testing.T) {
	t.Parallel()

	x := []float64{4, 1, 3, 2, math.NaN()}
	assert.InDelta(t, 1.0, Quantile(x, 0), 1e-12)
	assert.InDelta(t, 2.5, Quantile(x, 0.5), 1e-12)
	assert.InDelta(t, 1.15, Quantile(x, 0.05), 1e-12)
	assert.InDelta(t, 4.0, Quantile(x, 1), 1e-12)
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestRMA(t *testing.T) {
	t.Parallel()

	r := NewRMA(2)
	assert.False(t, r.Ready())
	r.Add(math.NaN())
	assert.False(t, r.Ready())
	r.Add(4)
	assert.Equal(t, 4.0, r.Value())
	r.Add(0)
	assert.Equal(t, 2.0, r.Value())
	r.Reset()
	assert.True(t, math.IsNaN(r.Value()))
}

func TestSnapshotNullsNaN(t *testing.T) {
	t.Parallel()

	f := Compute(linearFrame(5, 10, 11))
	s := f.Latest()
	assert.Nil(t, s.MA20)
	require.NotNil(t, s.ATRPct)
	assert.Equal(t, 11.0, s.Close)
}

func TestReturn(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.1, Return([]float64{10, 10.5, 11}, 2), 1e-12)
	assert.True(t, math.IsNaN(Return([]float64{10}, 5)))
}
