package strategies

import (
	"math"

	"github.com/rustyeddy/ashare/chip"
	"github.com/rustyeddy/ashare/indicators"
)

func init() {
	for _, r := range library() {
		Register(r)
	}
}

func library() []*rule {
	return []*rule{
		{
			id: "S1", name: "bias6_crossup", note: "bias6上穿bias12",
			mask:  func(f *indicators.Frame) []bool { return f.Bias6CrossUp },
			bands: meanBand(60, 0.05, 0.95, 1.02),
			confirm: ConfirmText{
				WindowA: "关键带回收且不再创新低；量能不失控；满足≥2项则记录为承接",
				WindowB: "收盘前站稳关键结构，回落不破；满足≥2项则视为转强；否则观望",
			},
			invalidation: []string{"放量不涨", "频繁冲高回落", "贴近压力带"},
		},
		{
			id: "S2", name: "rsi2_oversold", note: "RSI2极度超卖",
			mask:  func(f *indicators.Frame) []bool { return lessThan(f.RSI2, 10) },
			bands: meanBand(60, 0.1, 0.9, 1.02),
			confirm: ConfirmText{
				WindowA: "低吸仅在关键带回收且分时重心抬高时考虑；否则观望",
				WindowB: "尾盘确认不破关键带上沿，收盘站稳后再评估隔夜",
			},
			invalidation: []string{"放量不涨", "高位长上影"},
		},
		{
			id: "S3", name: "squeeze", note: "波动压缩Squeeze",
			mask:  squeeze,
			bands: meanBand(60, 0.2, 0.8, 1.03),
			confirm: ConfirmText{
				WindowA: "压缩后首次回收关键带且不再创新低，量能温和；满足≥2项",
				WindowB: "收盘突破中轨并站稳；不追价，确认后次日评估",
			},
			invalidation: []string{"持续阴跌", "放量跌破关键带"},
		},
		{
			id: "S4", name: "turtle_soup", note: "TurtleSoup 20d 假破",
			mask:  turtleSoup,
			bands: rangeBand(20),
			confirm: ConfirmText{
				WindowA: "假破后快速回收关键带；不再创新低；量能不失控",
				WindowB: "收盘确认站稳关键结构；次日评估是否隔夜",
			},
			invalidation: []string{"再创新低", "放量下破"},
		},
		{
			id: "S5", name: "ma20_retracement", note: "MA20回踩确认",
			mask:  ma20Retracement,
			bands: levelBand(func(f *indicators.Frame) []float64 { return f.MA[20] }),
			confirm: ConfirmText{
				WindowA: "回踩MA20后快速回收且低点不破；量能缩而不弱",
				WindowB: "收盘站稳MA20上方且不回落破位；不追价",
			},
			invalidation: []string{"跌破MA20且放量", "连续阴跌"},
		},
		{
			id: "S6", name: "breakout_pullback", note: "突破后二买回踩",
			mask:      breakoutPullback,
			eventMask: func(f *indicators.Frame) []bool { return shiftBools(breakout(f), 1) },
			bands:     quantileBand(20, 0.3, 0.5, 0.8, 0.9),
			confirm: ConfirmText{
				WindowA: "回踩关键带不破并回收；不追涨不打板",
				WindowB: "收盘确认不破支撑带上沿；结构成立再评估隔夜",
			},
			invalidation: []string{"跌破回踩带", "放量回落"},
		},
		{
			id: "S7", name: "nr7_contraction", note: "NR7 收缩",
			mask:  nr7Range,
			bands: rangeBand(20),
			confirm: ConfirmText{
				WindowA: "收缩后首次回收不破低点；量能温和",
				WindowB: "收盘站稳关键结构；不追价",
			},
			invalidation: []string{"放量跌破收缩低点"},
		},
		{
			id: "S8", name: "volratio_surge", note: "量能放大",
			mask:  func(f *indicators.Frame) []bool { return greaterThan(f.VolRatio10, 1.5) },
			bands: quantileBand(20, 0.3, 0.5, 0.8, 0.9),
			confirm: ConfirmText{
				WindowA: "放量后回踩不破关键带；承接良好",
				WindowB: "收盘确认不破关键带上沿；避免追高",
			},
			invalidation: []string{"放量不涨"},
		},
		{
			id: "S9", name: "chip_support", note: "筹码带支撑回收",
			mask:  chipSupport,
			bands: chipBand,
			confirm: ConfirmText{
				WindowA: "贴近筹码带低位后快速回收，低点抬高；量能不失控",
				WindowB: "收盘确认站稳S2；不满足则观望",
			},
			invalidation: []string{"跌破筹码带且不回收"},
		},
		{
			id: "S10", name: "gap_fade", note: "高开>2%观察", observe: true,
			mask:  func(f *indicators.Frame) []bool { return greaterThan(f.GapPct, 0.02) },
			bands: rangeBand(10),
			confirm: ConfirmText{
				WindowA: "当日禁买，仅观察结构变化",
				WindowB: "仅观察，不执行；等待后续回踩确认",
			},
			invalidation: []string{"追高冲动"},
		},
		{
			id: "S11", name: "rsi2_extreme", note: "RSI2极端超卖",
			mask:  func(f *indicators.Frame) []bool { return lessThan(f.RSI2, 5) },
			bands: quantileBand(60, 0.15, 0.35, 0.7, 0.85),
			confirm: ConfirmText{
				WindowA: "极端超卖仅在回收确认后考虑；结构不满足放弃",
				WindowB: "收盘确认站稳关键结构；避免抢反弹",
			},
			invalidation: []string{"继续走弱不回收"},
		},
		{
			id: "S12", name: "avwap_reclaim", note: "AVWAP回收",
			mask:  avwapReclaim,
			bands: levelBand(AVWAP),
			confirm: ConfirmText{
				WindowA: "回收AVWAP后不破且承接改善",
				WindowB: "收盘确认站稳AVWAP上方",
			},
			invalidation: []string{"跌破AVWAP并放量"},
		},
		{
			id: "S13", name: "squeeze_release", note: "压缩后释放",
			mask:  squeezeRelease,
			bands: quantileBand(20, 0.4, 0.5, 0.85, 0.9),
			confirm: ConfirmText{
				WindowA: "释放后等待回踩确认，不追价",
				WindowB: "收盘确认不破结构后评估隔夜",
			},
			invalidation: []string{"释放后放量回落"},
		},
		{
			id: "S14", name: "turtle_soup_plus", note: "TurtleSoup+ 上方假破",
			mask:  turtleSoupPlus,
			bands: rangeBand(20),
			confirm: ConfirmText{
				WindowA: "假破回落后等待回踩确认，不追价",
				WindowB: "收盘前确认不破关键结构",
			},
			invalidation: []string{"再次冲高回落且放量"},
		},
	}
}

// squeeze marks Bollinger width below its 20th percentile: the latest
// rolling 60-bar value, or the whole-series value with under 60 bars.
func squeeze(f *indicators.Frame) []bool {
	bbw := f.BBWidth20
	var thr float64
	if len(bbw) >= 60 {
		thr = indicators.Last(indicators.RollingQuantile(bbw, 60, 0.2))
	} else {
		thr = indicators.Quantile(bbw, 0.2)
	}
	return lessThan(bbw, thr)
}

// turtleSoup is a false breakdown: a new 20-day low that closes back above
// the prior low.
func turtleSoup(f *indicators.Frame) []bool {
	low := lows(f)
	prev := indicators.Shift(indicators.RollingMin(low, 20), 1)
	out := make([]bool, len(low))
	for i := range low {
		out[i] = low[i] < prev[i] && f.Bars[i].Close > prev[i]
	}
	return out
}

func turtleSoupPlus(f *indicators.Frame) []bool {
	high := highs(f)
	prev := indicators.Shift(indicators.RollingMax(high, 20), 1)
	out := make([]bool, len(high))
	for i := range high {
		out[i] = high[i] > prev[i] && f.Bars[i].Close < prev[i]
	}
	return out
}

// ma20Retracement is a rising MA20 touched intraday and held at the close.
func ma20Retracement(f *indicators.Frame) []bool {
	ma := f.MA[20]
	lag := indicators.Shift(ma, 5)
	out := make([]bool, len(ma))
	for i, b := range f.Bars {
		out[i] = ma[i] > lag[i] && b.Low <= ma[i] && b.Close >= ma[i]
	}
	return out
}

// breakout is a close above the prior 20-day high.
func breakout(f *indicators.Frame) []bool {
	prev := indicators.Shift(indicators.RollingMax(highs(f), 20), 1)
	out := make([]bool, f.Len())
	for i, b := range f.Bars {
		out[i] = b.Close > prev[i]
	}
	return out
}

// breakoutPullback marks the first down close within three days of a
// breakout.
func breakoutPullback(f *indicators.Frame) []bool {
	bo := breakout(f)
	n := f.Len()
	out := make([]bool, n)
	for i := range bo {
		if !bo[i] {
			continue
		}
		for j := 1; j <= 3 && i+j < n; j++ {
			if f.Bars[i+j].Close < f.Bars[i+j-1].Close {
				out[i+j] = true
				break
			}
		}
	}
	return out
}

// nr7Range uses the plain high-low span, not true range.
func nr7Range(f *indicators.Frame) []bool {
	span := make([]float64, f.Len())
	for i, b := range f.Bars {
		span[i] = math.Abs(b.High - b.Low)
	}
	mn := indicators.RollingMin(span, 7)
	out := make([]bool, len(span))
	for i := range span {
		out[i] = span[i] == mn[i]
	}
	return out
}

func chipSupport(f *indicators.Frame) []bool {
	s1 := chip.Compute(f.Frame, 0).Band90Low
	out := make([]bool, f.Len())
	for i, b := range f.Bars {
		out[i] = b.Low <= s1 && b.Close >= s1
	}
	return out
}

// chipBand uses the chip estimate as of the setup day.
func chipBand(f *indicators.Frame, idx int) Bands {
	c := chip.Compute(f.Slice(0, idx+1), 0)
	return Bands{S1: c.Band90Low, S2: c.AvgCost, R1: c.Band90High, R2: c.Band90High * 1.02, Anchors: c.AvgCost}
}

// AVWAP is the cumulative volume-weighted typical price from the first bar.
// It is NaN while cumulative volume is zero.
func AVWAP(f *indicators.Frame) []float64 {
	out := make([]float64, f.Len())
	pv, v := 0.0, 0.0
	for i, b := range f.Bars {
		vol := float64(b.Volume)
		pv += b.VWAP() * vol
		v += vol
		out[i] = indicators.Div(pv, v)
	}
	return out
}

func avwapReclaim(f *indicators.Frame) []bool {
	av := AVWAP(f)
	out := make([]bool, f.Len())
	for i, b := range f.Bars {
		out[i] = b.Close > av[i] && b.Open < av[i]
	}
	return out
}

// squeezeRelease is width back above its rolling 60-bar 20th percentile
// with close above MA5.
func squeezeRelease(f *indicators.Frame) []bool {
	thr := indicators.RollingQuantile(f.BBWidth20, 60, 0.2)
	ma5 := f.MA[5]
	out := make([]bool, f.Len())
	for i, b := range f.Bars {
		out[i] = f.BBWidth20[i] > thr[i] && b.Close > ma5[i]
	}
	return out
}
