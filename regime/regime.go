// Package regime grades the market environment from index trends and
// snapshot breadth, and picks the day's leading themes.
package regime

import (
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/market"
)

// Grade is the market regime, A strongest through D weakest.
type Grade string

const (
	A Grade = "A"
	B Grade = "B"
	C Grade = "C"
	D Grade = "D"
)

// Slope thresholds on the mean 20-day MA slope of the index proxies.
const (
	thresholdA = 0.05
	thresholdB = 0.01
	thresholdC = -0.02

	// boundaries are inclusive within this tolerance
	slopeEps = 1e-9
)

// RecoveryConditions are reported with a D grade.
var RecoveryConditions = []string{
	"指数MA20斜率回升至-2%以上",
	"上涨家数占比>55%",
	"全市场均值涨跌幅>+0.3%",
}

// Breadth summarizes the whole-market snapshot. Nil fields mean no
// snapshot.
type Breadth struct {
	MeanChg *float64 `json:"mean_chg"`
	UpRatio *float64 `json:"up_ratio"`
	Grade   Grade    `json:"grade,omitempty"`
}

type Raw struct {
	Slopes  map[string]*float64 `json:"index_slopes"`
	Breadth Breadth             `json:"breadth"`
}

// Result is the environment assessment.
type Result struct {
	Grade              Grade    `json:"grade"`
	Score              *float64 `json:"score"`
	Reasons            []string `json:"reasons"`
	RecoveryConditions []string `json:"recovery_conditions"`
	Raw                Raw      `json:"raw"`

	// Neutralized is set when no index could be graded and C was assumed.
	Neutralized bool `json:"-"`
}

// GradeSlope buckets a mean index slope.
func GradeSlope(s float64) Grade {
	switch {
	case math.IsNaN(s):
		return C
	case s > thresholdA-slopeEps:
		return A
	case s > thresholdB-slopeEps:
		return B
	case s > thresholdC-slopeEps:
		return C
	default:
		return D
	}
}

// Score grades the regime from the index frames keyed by code. Indices that
// are missing or too short are skipped; with none left the grade is C with
// reason no_index_data. A snapshot, when given, adds breadth to Raw and the
// reasons but does not change the grade.
func Score(indices map[string]market.Frame, snap *market.Snapshot) Result {
	res := Result{
		Reasons:            []string{},
		RecoveryConditions: []string{},
		Raw:                Raw{Slopes: make(map[string]*float64)},
	}

	var slopes []float64
	codes := make([]string, 0, len(indices))
	for code := range indices {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		s := indicators.Last(indicators.Compute(indices[code]).Slope20)
		res.Raw.Slopes[code] = indicators.Ptr(s)
		if math.IsNaN(s) {
			continue
		}
		slopes = append(slopes, s)
		res.Reasons = append(res.Reasons, fmt.Sprintf("%s MA20斜率=%.2f%%", code, 100*s))
	}

	if len(slopes) == 0 {
		res.Grade = C
		res.Neutralized = true
		res.Reasons = append(res.Reasons, "no_index_data")
	} else {
		mean := indicators.Mean(slopes)
		res.Score = indicators.Ptr(mean)
		res.Grade = GradeSlope(mean)
		res.Reasons = append(res.Reasons, fmt.Sprintf("指数均值斜率=%.2f%%", 100*mean))
	}

	if snap.Len() > 0 {
		b := ScoreBreadth(snap)
		res.Raw.Breadth = b
		if b.MeanChg != nil {
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("全市场均值涨跌幅=%.2f%%", *b.MeanChg),
				fmt.Sprintf("上涨占比=%.2f%%", 100*(*b.UpRatio)))
		}
	}

	if res.Grade == D {
		res.RecoveryConditions = append(res.RecoveryConditions, RecoveryConditions...)
	}
	return res
}

// ScoreBreadth grades the snapshot's change distribution. Change values
// that all look like fractions (median |x| < 1 and max |x| <= 1) are scaled
// to percent first.
func ScoreBreadth(snap *market.Snapshot) Breadth {
	var chg []float64
	for _, q := range snap.Quotes {
		if !math.IsNaN(q.ChangePct) {
			chg = append(chg, q.ChangePct)
		}
	}
	if len(chg) == 0 {
		return Breadth{}
	}

	abs := make([]float64, len(chg))
	maxAbs := 0.0
	for i, v := range chg {
		abs[i] = math.Abs(v)
		maxAbs = math.Max(maxAbs, abs[i])
	}
	if indicators.Quantile(abs, 0.5) < 1 && maxAbs <= 1 {
		for i := range chg {
			chg[i] *= 100
		}
	}

	mean := indicators.Mean(chg)
	up := 0
	for _, v := range chg {
		if v > 0 {
			up++
		}
	}
	ratio := float64(up) / float64(len(chg))

	g := D
	switch {
	case mean > 1.0 && ratio > 0.6:
		g = A
	case mean > 0.3 && ratio > 0.55:
		g = B
	case mean > -0.3 && ratio > 0.45:
		g = C
	}
	return Breadth{MeanChg: &mean, UpRatio: &ratio, Grade: g}
}
