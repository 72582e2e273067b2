// Package candidates builds the daily candidate pool: the dynamic universe
// from the spot snapshot, per-symbol facts (indicators, chip, noise grade),
// hard vetoes and observe-only flags, and the downstream ranking.
package candidates

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/ashare/chip"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/risk"
)

// Flag reason codes.
const (
	ReasonLowLiquidity  = "LOW_LIQ_HARD"
	ReasonLiquidityC    = "LIQ_C_OBSERVE"
	ReasonATRHigh       = "ATR_HIGH_OBSERVE"
	ReasonGapHigh       = "GAP_HIGH_FORBID"
	ReasonNearChipHigh  = "NEAR_CHIP90_HIGH_FORBID"
	DefaultSourceReason = "默认候选池"
)

// Observe-only thresholds.
const (
	maxATRPct       = 0.08
	maxGapPct       = 0.02
	minDistChipHigh = 0.02
	nearMA20        = 0.005
	sampleLimit     = 10
)

// DailySource returns normalized daily bars for a symbol.
type DailySource interface {
	Daily(ctx context.Context, symbol string) (market.Frame, error)
}

type Options struct {
	PriceMin           float64
	PriceMax           float64
	NewStockDays       int
	DynamicPoolSize    int
	RestrictToMainline bool
	MainlineTopN       int
	MinAvgAmount       float64
	// MinBars below which a frame counts as short history. It is still used.
	MinBars int
	Now     time.Time
	Logger  *slog.Logger
}

type Liquidity struct {
	Avg5Amount float64 `json:"avg5_amount"`
	Grade      string  `json:"grade"`
}

type Flags struct {
	MustObserveOnly bool     `json:"must_observe_only"`
	Reasons         []string `json:"reasons"`
}

type PressureFlags struct {
	NearMA20 bool `json:"near_ma20"`
}

// Candidate is one symbol that passed the hard vetoes.
type Candidate struct {
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name,omitempty"`
	Industry      string              `json:"industry,omitempty"`
	SourceReason  string              `json:"source_reason"`
	Liquidity     Liquidity           `json:"liquidity"`
	ATRPct        float64             `json:"atr_pct"`
	GapPct        float64             `json:"gap_pct"`
	PressureFlags PressureFlags       `json:"pressure_flags"`
	QGrade        risk.Grade          `json:"q_grade"`
	Chip          chip.Result         `json:"chip"`
	Indicators    indicators.Snapshot `json:"indicators"`
	Close         float64             `json:"close"`
	Flags         Flags               `json:"flags"`

	Frame *indicators.Frame `json:"-"`
}

// Slope20 is the latest MA20 slope, 0 when unknown.
func (c Candidate) Slope20() float64 {
	if c.Indicators.Slope20 == nil {
		return 0
	}
	return *c.Indicators.Slope20
}

type Veto struct {
	Symbol      string  `json:"symbol"`
	Reason      string  `json:"reason"`
	Amount5dAvg float64 `json:"amount_5d_avg"`
}

// Stats are the generation diagnostics carried in debug output.
type Stats struct {
	UniverseIn          int      `json:"universe_in_count"`
	UniverseAfterFilter int      `json:"universe_after_filter_count"`
	BarsMissing         int      `json:"bars_missing_count"`
	BarsTooShort        int      `json:"bars_too_short_count"`
	// IndicatorErrors counts pool members whose latest MA20 or ATR% is
	// undefined.
	IndicatorErrors     int      `json:"indicator_error_count"`
	SkippedSample       []string `json:"skipped_symbols_sample"`
	CandidatesOut       int      `json:"candidates_out_count"`
}

type Result struct {
	Pool   []Candidate `json:"pool"`
	Vetoes []Veto      `json:"veto_reasons"`
	Stats  Stats       `json:"stats"`
}

// LiquidityGrade buckets the 5-day average amount: A from 2e9, B from 1e9.
func LiquidityGrade(avg5 float64) string {
	switch {
	case avg5 >= 2e9:
		return "A"
	case avg5 >= 1e9:
		return "B"
	default:
		return "C"
	}
}

// Generate computes facts and flags for each entry and returns the ranked
// pool. Symbols whose bars cannot be fetched are counted and skipped. A
// canceled context stops early with its error.
func Generate(ctx context.Context, src DailySource, entries []Entry, env string, opt Options) (Result, error) {
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}
	res := Result{
		Pool:   []Candidate{},
		Vetoes: []Veto{},
		Stats: Stats{
			UniverseIn:          len(entries),
			UniverseAfterFilter: len(entries),
			SkippedSample:       []string{},
		},
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		f, err := src.Daily(ctx, e.Code)
		if err != nil || f.Len() == 0 {
			res.Stats.BarsMissing++
			res.skip(e.Code)
			log.Debug("candidate bars missing", "symbol", e.Code, "err", err)
			continue
		}
		if f.Len() < opt.MinBars {
			res.Stats.BarsTooShort++
		}

		cand, veto := Evaluate(e, f, env, opt.MinAvgAmount)
		if veto != nil {
			res.Vetoes = append(res.Vetoes, *veto)
			continue
		}
		if cand.Indicators.MA20 == nil || cand.Indicators.ATRPct == nil {
			res.Stats.IndicatorErrors++
		}
		res.Pool = append(res.Pool, cand)
	}

	Rank(res.Pool)
	res.Stats.CandidatesOut = len(res.Pool)
	return res, nil
}

func (r *Result) skip(code string) {
	if len(r.Stats.SkippedSample) < sampleLimit {
		r.Stats.SkippedSample = append(r.Stats.SkippedSample, code)
	}
}

// Evaluate derives one candidate from its daily frame. It returns a veto
// instead when the 5-day average amount is below minAvgAmount.
func Evaluate(e Entry, f market.Frame, env string, minAvgAmount float64) (Candidate, *Veto) {
	feat := indicators.Compute(f)
	snap := feat.Latest()
	i := feat.Len() - 1

	avg5 := indicators.Or(feat.Amount5dAvg[i], 0)
	if avg5 < minAvgAmount {
		return Candidate{}, &Veto{Symbol: e.Code, Reason: ReasonLowLiquidity, Amount5dAvg: avg5}
	}

	atr := indicators.Or(feat.ATRPct[i], 0)
	gap := indicators.Or(feat.GapPct[i], 0)
	closePx := feat.Bars[i].Close
	ma20 := indicators.Or(feat.MA[20][i], 0)
	c := Candidate{
		Symbol:        e.Code,
		Name:          e.Name,
		Industry:      e.Industry,
		SourceReason:  DefaultSourceReason,
		Liquidity:     Liquidity{Avg5Amount: avg5, Grade: LiquidityGrade(avg5)},
		ATRPct:        atr,
		GapPct:        gap,
		PressureFlags: PressureFlags{NearMA20: ma20 != 0 && math.Abs((closePx-ma20)/ma20) <= nearMA20},
		QGrade:        risk.GradeNoise(feat, env),
		Chip:          chip.Compute(f, 0),
		Indicators:    snap,
		Close:         closePx,
		Flags:         Flags{Reasons: []string{}},
		Frame:         feat,
	}

	observe := func(reason string) {
		c.Flags.MustObserveOnly = true
		c.Flags.Reasons = append(c.Flags.Reasons, reason)
	}
	if c.Liquidity.Grade == "C" {
		observe(ReasonLiquidityC)
	}
	if atr > maxATRPct {
		observe(ReasonATRHigh)
	}
	if gap > maxGapPct {
		observe(ReasonGapHigh)
	}
	if c.Chip.DistTo90High <= minDistChipHigh {
		observe(ReasonNearChipHigh)
	}
	return c, nil
}

// Rank orders by steepest MA20 slope, then lowest ATR%, then best
// liquidity grade.
func Rank(pool []Candidate) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Slope20() != b.Slope20() {
			return a.Slope20() > b.Slope20()
		}
		if a.ATRPct != b.ATRPct {
			return a.ATRPct < b.ATRPct
		}
		return a.Liquidity.Grade < b.Liquidity.Grade
	})
}

// FromSymbols wraps an explicit symbol list as universe entries.
func FromSymbols(symbols []string) []Entry {
	out := make([]Entry, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, Entry{Code: s})
	}
	return out
}
