package candidates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/ashare/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]market.Frame

func (m mapSource) Daily(_ context.Context, symbol string) (market.Frame, error) {
	f, ok := m[symbol]
	if !ok {
		return market.Frame{}, errors.New("no bars")
	}
	return f, nil
}

// frame builds n bars rising by step per day with the given daily amount.
func frame(n int, start, step, amount float64) market.Frame {
	bars := make([]market.Candle, n)
	t0 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = market.Candle{
			Time: t0.AddDate(0, 0, i), Open: c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1_000_000, Amount: amount, Turnover: 1,
		}
	}
	return market.Frame{Bars: bars}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	src := mapSource{
		"600001": frame(80, 10, 0.05, 3e9),  // steep, liquid
		"600002": frame(80, 10, 0.01, 1.5e9), // gentle, grade B
		"600003": frame(80, 10, 0.02, 6e8),   // grade C: observe only
		"600004": frame(80, 10, 0.02, 1e8),   // vetoed
		"600005": frame(30, 10, 0.02, 3e9),   // short history
	}
	entries := FromSymbols([]string{"600001", "600002", "600003", "600004", "600005", "600006"})

	res, err := Generate(context.Background(), src, entries, "B", Options{MinAvgAmount: 5e8, MinBars: 60})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Stats.UniverseIn)
	assert.Equal(t, 1, res.Stats.BarsMissing)
	assert.Equal(t, 1, res.Stats.BarsTooShort)
	assert.Zero(t, res.Stats.IndicatorErrors)
	assert.Equal(t, []string{"600006"}, res.Stats.SkippedSample)
	assert.Equal(t, 4, res.Stats.CandidatesOut)

	require.Len(t, res.Vetoes, 1)
	assert.Equal(t, Veto{Symbol: "600004", Reason: ReasonLowLiquidity, Amount5dAvg: 1e8}, res.Vetoes[0])

	bySym := map[string]Candidate{}
	for _, c := range res.Pool {
		bySym[c.Symbol] = c
		assert.Equal(t, DefaultSourceReason, c.SourceReason)
		assert.NotNil(t, c.Frame)
	}
	assert.Equal(t, "A", bySym["600001"].Liquidity.Grade)
	assert.Equal(t, "B", bySym["600002"].Liquidity.Grade)
	assert.True(t, bySym["600003"].Flags.MustObserveOnly)
	assert.Contains(t, bySym["600003"].Flags.Reasons, ReasonLiquidityC)

	assert.Equal(t, "600001", res.Pool[0].Symbol, "steepest slope ranks first")
	for i := 1; i < len(res.Pool); i++ {
		assert.GreaterOrEqual(t, res.Pool[i-1].Slope20(), res.Pool[i].Slope20())
	}
}

func TestEvaluateFlags(t *testing.T) {
	t.Parallel()

	f := frame(60, 10, 0, 3e9)
	last := &f.Bars[59]
	last.Open = 10.5 // 5% gap up over a flat prior close
	last.High = 10.6
	last.Close = 10.5

	c, veto := Evaluate(Entry{Code: "000001", Name: "平安银行", Industry: "银行"}, f, "A", 5e8)
	require.Nil(t, veto)
	assert.InDelta(t, 0.05, c.GapPct, 1e-9)
	assert.Contains(t, c.Flags.Reasons, ReasonGapHigh)
	assert.NotContains(t, c.Flags.Reasons, ReasonLiquidityC)
	assert.Equal(t, "银行", c.Industry)
	assert.InDelta(t, 10.5, c.Close, 1e-12)
}

func TestRankTieBreaks(t *testing.T) {
	t.Parallel()

	s := 0.01
	pool := []Candidate{
		{Symbol: "c", ATRPct: 0.02, Liquidity: Liquidity{Grade: "B"}},
		{Symbol: "b", ATRPct: 0.02, Liquidity: Liquidity{Grade: "A"}},
		{Symbol: "a", ATRPct: 0.03, Indicators: indicatorsWithSlope(&s)},
		{Symbol: "d", ATRPct: 0.01},
	}
	Rank(pool)
	got := []string{pool[0].Symbol, pool[1].Symbol, pool[2].Symbol, pool[3].Symbol}
	assert.Equal(t, []string{"a", "d", "b", "c"}, got)
}

func TestGenerateCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Generate(ctx, mapSource{}, FromSymbols([]string{"1"}), "A", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
