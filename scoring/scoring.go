// Package scoring turns a pick's facts into a bounded 0-100 score and
// chooses the champion strategy from cross-validation results.
package scoring

import (
	"math"

	"github.com/rustyeddy/ashare/chip"
	"github.com/rustyeddy/ashare/evaluate"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/risk"
)

var envPoints = map[string]float64{"A": 20, "B": 14, "C": 8, "D": 2}

const unknownEnvPoints = 8

// Stats are the anchor event-study figures used for scoring.
type Stats struct {
	K             int     `json:"k"`
	WinRate5      float64 `json:"win_rate_5"`
	AvgReturn5    float64 `json:"avg_return_5"`
	MDD10Avg      float64 `json:"mdd10_avg"`
	SampleWarning bool    `json:"sample_warning"`
}

// StatsFrom reduces an event study to the scored figures.
func StatsFrom(es evaluate.EventStats) Stats {
	return Stats{
		K:             es.K,
		WinRate5:      es.WinRate5,
		AvgReturn5:    es.MeanReturn5,
		MDD10Avg:      es.MDD10,
		SampleWarning: es.SampleWarning,
	}
}

// RelStrength is the stock's return minus the benchmark's over 5 and 20
// days. Nil means unknown.
type RelStrength struct {
	RS5  *float64 `json:"rs5"`
	RS20 *float64 `json:"rs20"`
}

// Relative computes rs5 and rs20 from stock and benchmark closes.
func Relative(stock, bench []float64) RelStrength {
	rs := func(k int) *float64 {
		return indicators.Ptr(indicators.Return(stock, k) - indicators.Return(bench, k))
	}
	return RelStrength{RS5: rs(5), RS20: rs(20)}
}

// Input is everything the score reads. Nil chip or stats use neutral
// defaults.
type Input struct {
	Env              string
	ThemeStrength    float64
	Close            float64
	Indicators       indicators.Snapshot
	Chip             *chip.Result
	Stats            *Stats
	AnnouncementRisk string
	EventRisk        string
	RelStrength      RelStrength
}

// Breakdown lists each component's points.
type Breakdown struct {
	Env        float64 `json:"env"`
	Theme      float64 `json:"theme"`
	Trend      float64 `json:"trend"`
	Volatility float64 `json:"volatility"`
	Chip       float64 `json:"chip"`
	Stats      float64 `json:"stats"`
	Risk       float64 `json:"risk"`
	RelStr     float64 `json:"rel_strength"`
	Total      float64 `json:"total"`
}

// Score returns the clipped 0-100 total.
func Score(in Input) float64 { return Explain(in).Total }

// Explain computes every component.
func Explain(in Input) Breakdown {
	var b Breakdown

	b.Env = unknownEnvPoints
	if p, ok := envPoints[in.Env]; ok {
		b.Env = p
	}

	b.Theme = clip(15*in.ThemeStrength, 0, 15)

	slope := val(in.Indicators.Slope20)
	ma20 := val(in.Indicators.MA20)
	if ma20 > 0 {
		b.Trend = 20 * clip(0.5*slope+0.5*(in.Close-ma20)/ma20, 0, 1)
	}

	dist := 0.0
	if in.Chip != nil {
		dist = in.Chip.DistTo90High
	}
	atr, gap := val(in.Indicators.ATRPct), val(in.Indicators.GapPct)
	b.Volatility = math.Max(0, 15-100*(0.5*atr+0.5*math.Max(0, gap)+0.5*math.Max(0, dist)))

	prof, conc := 0.5, 0.5
	if in.Chip != nil {
		prof, conc = in.Chip.ProfitRatio, in.Chip.Concentration90
	}
	b.Chip = 15 * (0.6*prof + 0.4*(1-math.Abs(conc-0.8)))

	wr, ret, k := 0.5, 0.0, 0
	if in.Stats != nil {
		wr, ret, k = in.Stats.WinRate5, in.Stats.AvgReturn5, in.Stats.K
	}
	penalty := 0.0
	if k < evaluate.MinEventSamples {
		penalty = 2
	}
	b.Stats = math.Max(0, 10*(0.7*wr+0.3*math.Max(0, ret))-penalty)

	b.Risk = 5
	if in.AnnouncementRisk == risk.LevelHigh {
		b.Risk -= 2.5
	}
	if in.EventRisk == risk.LevelHigh {
		b.Risk -= 2.5
	}

	rs5, rs20 := val(in.RelStrength.RS5), val(in.RelStrength.RS20)
	b.RelStr = clip(100*(0.6*math.Max(0, rs5)+0.4*math.Max(0, rs20)), 0, 10)

	b.Total = clip(b.Env+b.Theme+b.Trend+b.Volatility+b.Chip+b.Stats+b.Risk+b.RelStr, 0, 100)
	return b
}

func clip(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}

func val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
