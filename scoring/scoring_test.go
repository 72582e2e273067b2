package scoring

import (
	"testing"

	"github.com/rustyeddy/ashare/chip"
	"github.com/rustyeddy/ashare/evaluate"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/risk"
	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestExplain(t *testing.T) {
	t.Parallel()

	in := Input{
		Env:           "A",
		ThemeStrength: 0.5,
		Close:         11,
		Indicators: indicators.Snapshot{
			Close: 11, MA20: f(10), Slope20: f(0.02), ATRPct: f(0.02), GapPct: f(0.01),
		},
		Chip:        &chip.Result{ProfitRatio: 0.8, Concentration90: 0.8, DistTo90High: 0.04},
		Stats:       &Stats{K: 10, WinRate5: 0.6, AvgReturn5: 0.02},
		RelStrength: RelStrength{RS5: f(0.05), RS20: f(0.1)},
	}
	b := Explain(in)

	assert.InDelta(t, 20, b.Env, 1e-9)
	assert.InDelta(t, 7.5, b.Theme, 1e-9)
	assert.InDelta(t, 1.2, b.Trend, 1e-9)
	assert.InDelta(t, 11.5, b.Volatility, 1e-9)
	assert.InDelta(t, 13.2, b.Chip, 1e-9)
	assert.InDelta(t, 4.26, b.Stats, 1e-9)
	assert.InDelta(t, 5, b.Risk, 1e-9)
	assert.InDelta(t, 7, b.RelStr, 1e-9)
	assert.InDelta(t, 69.66, b.Total, 1e-9)
	assert.Equal(t, b.Total, Score(in))
}

func TestScoreDefaults(t *testing.T) {
	t.Parallel()

	b := Explain(Input{})
	assert.Equal(t, 8.0, b.Env, "unknown env")
	assert.Zero(t, b.Trend, "no ma20")
	assert.InDelta(t, 8.7, b.Chip, 1e-9)
	assert.InDelta(t, 1.5, b.Stats, 1e-9, "neutral win rate less the small-sample penalty")
	assert.InDelta(t, 38.2, b.Total, 1e-9)
}

func TestScoreBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Input
	}{
		{"high", Input{
			Env: "A", ThemeStrength: 3, Close: 20,
			Indicators:  indicators.Snapshot{MA20: f(10), Slope20: f(1)},
			Chip:        &chip.Result{ProfitRatio: 1, Concentration90: 0.8},
			Stats:       &Stats{K: 50, WinRate5: 1, AvgReturn5: 10},
			RelStrength: RelStrength{RS5: f(1), RS20: f(1)},
		}},
		{"low", Input{
			Env: "D", ThemeStrength: -1, Close: 5,
			Indicators:       indicators.Snapshot{MA20: f(10), Slope20: f(-1), ATRPct: f(1), GapPct: f(1)},
			Chip:             &chip.Result{ProfitRatio: 0, Concentration90: 0},
			Stats:            &Stats{WinRate5: 0, AvgReturn5: -1},
			AnnouncementRisk: risk.LevelHigh,
			EventRisk:        risk.LevelHigh,
			RelStrength:      RelStrength{RS5: f(-1), RS20: f(-1)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(tt.in)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
		})
	}
	assert.Equal(t, 100.0, Score(tests[0].in))

	b := Explain(tests[1].in)
	assert.Zero(t, b.Risk)
	assert.Zero(t, b.Theme)
	assert.Zero(t, b.Volatility)
	assert.Zero(t, b.RelStr)
}

func TestRelative(t *testing.T) {
	t.Parallel()

	stock := make([]float64, 21)
	bench := make([]float64, 21)
	for i := range stock {
		stock[i] = 10 + float64(i)*0.1
		bench[i] = 10
	}
	rs := Relative(stock, bench)
	if assert.NotNil(t, rs.RS5) && assert.NotNil(t, rs.RS20) {
		assert.InDelta(t, 12.0/11.5-1, *rs.RS5, 1e-12)
		assert.InDelta(t, 0.2, *rs.RS20, 1e-12)
	}
	assert.Nil(t, Relative(stock[:3], bench[:3]).RS5)
}

func TestStatsFrom(t *testing.T) {
	t.Parallel()

	s := StatsFrom(evaluate.EventStats{K: 3, WinRate5: 0.5, MeanReturn5: 0.01, MDD10: -0.04, SampleWarning: true})
	assert.Equal(t, Stats{K: 3, WinRate5: 0.5, AvgReturn5: 0.01, MDD10Avg: -0.04, SampleWarning: true}, s)
}

func TestChooseChampion(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		c := ChooseChampion(nil)
		assert.Equal(t, NoChampion, c.Strategy)
		assert.Nil(t, c.CV)
		assert.Zero(t, c.Score)
	})

	t.Run("best wins", func(t *testing.T) {
		c := ChooseChampion([]Candidate{
			{ID: "S1", CV: evaluate.CVStats{K: 5, WinRate5dMean: 0.5}},
			{ID: "S2", CV: evaluate.CVStats{K: 5, WinRate5dMean: 0.6, DrawdownMean: -0.1}},
		})
		assert.Equal(t, "S2", c.Strategy)
		assert.InDelta(t, 0.7*0.6-0.01, c.Score, 1e-12)
	})

	t.Run("ties keep first", func(t *testing.T) {
		cv := evaluate.CVStats{K: 5, WinRate5dMean: 0.55, MeanReturn5dMean: 0.01}
		c := ChooseChampion([]Candidate{{ID: "S3", CV: cv}, {ID: "S1", CV: cv}})
		assert.Equal(t, "S3", c.Strategy)
	})

	t.Run("negative return not rewarded", func(t *testing.T) {
		assert.InDelta(t, 0.35, ChampionScore(evaluate.CVStats{WinRate5dMean: 0.5, MeanReturn5dMean: -0.2}), 1e-12)
	})
}
