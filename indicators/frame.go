package indicators

import (
	"math"

	"github.com/rustyeddy/ashare/market"
)

// MAWindows are the moving-average windows every frame carries.
var MAWindows = []int{5, 6, 10, 12, 20, 24, 60}

// Frame is a canonical frame plus per-bar indicator columns. Every column
// has one entry per bar.
type Frame struct {
	market.Frame

	MA             map[int][]float64
	Slope20        []float64
	Bias6          []float64
	Bias12         []float64
	Bias24         []float64
	Bias6CrossUp   []bool
	Bias6CrossDown []bool
	RSI2           []float64
	BBWidth20      []float64
	TR             []float64
	NR7            []bool
	VolRatio10     []float64
	ATR14          []float64
	ATRPct         []float64
	GapPct         []float64
	Amount5dAvg    []float64
}

// Compute derives all indicator columns from f. It never fails; short
// history yields NaN.
func Compute(f market.Frame) *Frame {
	n := len(f.Bars)
	out := &Frame{Frame: f, MA: make(map[int][]float64, len(MAWindows))}

	closes := make([]float64, n)
	opens := make([]float64, n)
	volume := make([]float64, n)
	amount := make([]float64, n)
	for i, b := range f.Bars {
		closes[i] = b.Close
		opens[i] = b.Open
		volume[i] = float64(b.Volume)
		amount[i] = b.Amount
	}

	for _, w := range MAWindows {
		out.MA[w] = Series(NewMA(w), f.Bars)
	}

	ma20 := out.MA[20]
	ma20lag := Shift(ma20, 5)
	out.Slope20 = make([]float64, n)
	for i := range ma20 {
		out.Slope20[i] = Div(ma20[i]-ma20lag[i], ma20lag[i])
	}

	out.Bias6 = bias(closes, out.MA[6])
	out.Bias12 = bias(closes, out.MA[12])
	out.Bias24 = bias(closes, out.MA[24])
	out.Bias6CrossUp = make([]bool, n)
	out.Bias6CrossDown = make([]bool, n)
	for i := 1; i < n; i++ {
		p6, p12 := out.Bias6[i-1], out.Bias12[i-1]
		c6, c12 := out.Bias6[i], out.Bias12[i]
		out.Bias6CrossUp[i] = p6 <= p12 && c6 > c12
		out.Bias6CrossDown[i] = p6 >= p12 && c6 < c12
	}

	out.RSI2 = rsi(closes, 2)

	mid := RollingMean(closes, 20)
	sd := RollingStd(closes, 20)
	out.BBWidth20 = make([]float64, n)
	for i := range mid {
		upper, lower := mid[i]+2*sd[i], mid[i]-2*sd[i]
		out.BBWidth20[i] = Div(upper-lower, mid[i])
	}

	out.TR = make([]float64, n)
	for i, b := range f.Bars {
		prev := math.NaN()
		if i > 0 {
			prev = f.Bars[i-1].Close
		}
		out.TR[i] = TrueRange(b, prev)
	}
	trMin := RollingMin(out.TR, 7)
	out.NR7 = make([]bool, n)
	for i := range trMin {
		out.NR7[i] = out.TR[i] == trMin[i]
	}

	volMean := RollingMean(volume, 10)
	out.VolRatio10 = make([]float64, n)
	for i := range volume {
		out.VolRatio10[i] = Div(volume[i], volMean[i])
	}

	out.ATR14 = Series(NewATR(14), f.Bars)
	out.ATRPct = make([]float64, n)
	out.GapPct = make([]float64, n)
	for i := range closes {
		out.ATRPct[i] = Div(out.ATR14[i], closes[i])
		if i == 0 {
			out.GapPct[i] = math.NaN()
			continue
		}
		out.GapPct[i] = Div(opens[i]-closes[i-1], closes[i-1])
	}

	out.Amount5dAvg = RollingMean(amount, 5)
	return out
}

func bias(closes, ma []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = Div(closes[i]-ma[i], ma[i])
	}
	return out
}

// rsi is Wilder's RSI. A window with gains and no losses is 100; a flat
// window is NaN.
func rsi(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	gain, loss := NewRMA(period), NewRMA(period)
	for i := range closes {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		d := closes[i] - closes[i-1]
		gain.Add(math.Max(d, 0))
		loss.Add(math.Max(-d, 0))
		g, l := gain.Value(), loss.Value()
		switch {
		case l == 0 && g > 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+Div(g, l))
		}
	}
	return out
}

// Snapshot is the latest-bar indicator view carried on candidates.
type Snapshot struct {
	Close     float64  `json:"close"`
	MA20      *float64 `json:"ma20"`
	Slope20   *float64 `json:"slope20"`
	Bias6     *float64 `json:"bias6"`
	RSI2      *float64 `json:"rsi2"`
	BBWidth20 *float64 `json:"bbwidth20"`
	VolRatio  *float64 `json:"volratio10"`
	ATRPct    *float64 `json:"atr_pct"`
	GapPct    *float64 `json:"gap_pct"`
	Amount5d  *float64 `json:"amount_5d_avg"`
}

// SnapshotAt returns the indicator view at bar i.
func (f *Frame) SnapshotAt(i int) Snapshot {
	if i < 0 || i >= f.Len() {
		return Snapshot{}
	}
	return Snapshot{
		Close:     f.Bars[i].Close,
		MA20:      Ptr(f.MA[20][i]),
		Slope20:   Ptr(f.Slope20[i]),
		Bias6:     Ptr(f.Bias6[i]),
		RSI2:      Ptr(f.RSI2[i]),
		BBWidth20: Ptr(f.BBWidth20[i]),
		VolRatio:  Ptr(f.VolRatio10[i]),
		ATRPct:    Ptr(f.ATRPct[i]),
		GapPct:    Ptr(f.GapPct[i]),
		Amount5d:  Ptr(f.Amount5dAvg[i]),
	}
}

// Latest is SnapshotAt for the final bar.
func (f *Frame) Latest() Snapshot { return f.SnapshotAt(f.Len() - 1) }

// Truncate returns the frame restricted to bars [0, end).
func (f *Frame) Truncate(end int) *Frame {
	return Compute(f.Slice(0, end))
}

// Return is close[last]/close[last-k] - 1, NaN when history is short.
func Return(closes []float64, k int) float64 {
	n := len(closes)
	if k <= 0 || n <= k {
		return math.NaN()
	}
	return Div(closes[n-1], closes[n-1-k]) - 1
}
