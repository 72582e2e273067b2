package recommend

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/ashare/candidates"
	"github.com/rustyeddy/ashare/chip"
	"github.com/rustyeddy/ashare/guard"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/provider"
	"github.com/rustyeddy/ashare/regime"
	"github.com/rustyeddy/ashare/risk"
	"github.com/rustyeddy/ashare/scoring"
)

var (
	shanghai = market.LoadLocation(market.DefaultTimezone)
	asOf     = time.Date(2025, 6, 30, 0, 0, 0, 0, shanghai) // Monday
)

type stubProvider struct {
	daily   map[string]market.Frame
	snap    *market.Snapshot
	snapErr error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Daily(_ context.Context, symbol string, _, _ time.Time) (market.Frame, error) {
	f, ok := s.daily[symbol]
	if !ok {
		return market.Frame{}, errs.Provider("stub daily", os.ErrNotExist)
	}
	return f, nil
}

func (s *stubProvider) Intraday(context.Context, string, time.Time) (market.Frame, error) {
	return market.Frame{}, errs.Insufficient("stub intraday", "none")
}

func (s *stubProvider) Snapshot(context.Context) (*market.Snapshot, error) {
	return s.snap, s.snapErr
}

func (s *stubProvider) StockBasic(context.Context) ([]market.StockBasic, error) { return nil, nil }

func (s *stubProvider) Health(context.Context) provider.Health {
	return provider.Health{Name: "stub", OK: true}
}

// weekdays returns the n trading days ending at end.
func weekdays(n int, end time.Time) []time.Time {
	out := make([]time.Time, n)
	d := end
	for i := n - 1; i >= 0; i-- {
		d = market.NearestTradingDay(d)
		out[i] = d
		d = d.AddDate(0, 0, -1)
	}
	return out
}

// series grows close geometrically by drift per bar with a wave on top.
func series(n int, base, drift, wave float64) market.Frame {
	days := weekdays(n, asOf)
	bars := make([]market.Candle, n)
	c := base
	for i, d := range days {
		px := c * (1 + wave*math.Sin(float64(i)/3))
		bars[i] = market.Candle{
			Time: d, Open: px * 0.998, High: px * 1.01, Low: px * 0.99, Close: px,
			Volume: 2_000_000, Amount: 3e9, Turnover: 2,
		}
		c *= 1 + drift
	}
	return market.Frame{Meta: market.Meta{Source: "stub"}, Bars: bars}
}

// indexDrift gives a 5-bar MA20 slope of roughly slope.
func indexDrift(slope float64) float64 { return math.Pow(1+slope, 1.0/5) - 1 }

func fixture(indexSlope float64) *stubProvider {
	p := &stubProvider{daily: make(map[string]market.Frame)}
	for _, code := range market.RegimeIndices {
		p.daily[code] = series(120, 3000, indexDrift(indexSlope), 0)
	}
	p.snap = &market.Snapshot{AsOf: asOf.Add(15 * time.Hour), Source: "stub"}
	industries := []string{"银行", "银行", "银行", "半导体", "医药"}
	for i, ind := range industries {
		code := []string{"600001", "600002", "600003", "000004", "000005"}[i]
		p.daily[code] = series(120, 10+float64(i), 0.002+0.001*float64(i), 0.02)
		p.snap.Quotes = append(p.snap.Quotes, market.Quote{
			Code: code, Name: "样本" + code, Price: 10, Amount: 3e9,
			ChangePct: float64(i), Industry: ind,
		})
	}
	return p
}

func engine(t *testing.T, p provider.Provider, out string) *Engine {
	t.Helper()
	e, err := New(Options{
		Provider: p,
		Candidates: candidates.Options{
			PriceMax: 1000,
			MinBars:  60,
		},
		MinUniverse:   1,
		MinCandidates: 1,
		Location:      shanghai,
		OutDir:        out,
		Now:           func() time.Time { return asOf.Add(16 * time.Hour) },
	})
	require.NoError(t, err)
	return e
}

func TestRunTradeable(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	p, err := engine(t, fixture(0.06), out).Run(context.Background(), Request{TopK: 3})
	require.NoError(t, err)

	assert.Equal(t, "2025-06-30", p.AsOf)
	assert.Equal(t, shanghai.String(), p.Timezone)
	assert.Equal(t, regime.A, p.Env.Grade)
	assert.True(t, p.Tradeable, p.Message)
	assert.Empty(t, p.Debug.DegradeReasons)
	assert.Equal(t, Disclaimer, p.Disclaimer)
	assert.LessOrEqual(t, len(p.ExecutionChecklist), 5)
	assert.Len(t, p.CandidatePool, 5)
	require.NotEmpty(t, p.Picks)
	assert.LessOrEqual(t, len(p.Picks), 3)
	assert.Equal(t, "generated "+strconv.Itoa(len(p.Picks))+" picks", p.Message)

	banks := 0
	for i, pk := range p.Picks {
		if i > 0 {
			assert.GreaterOrEqual(t, p.Picks[i-1].Score, pk.Score)
		}
		if pk.Industry == "银行" {
			banks++
		}
		assert.GreaterOrEqual(t, pk.Score, 0.0)
		assert.LessOrEqual(t, pk.Score, 100.0)
		plan := pk.TradePlan
		assert.NotEmpty(t, plan.WindowA)
		assert.Equal(t, pk.Symbol, plan.Panel.Symbol)
		assert.Equal(t, pk.QGrade, plan.Q)
		assert.Equal(t, pk.Chip.Model, plan.ChipAndBands.Model)
		assert.Equal(t, pk.AnnouncementRisk, plan.Announcements)
		assert.Equal(t, planStopLoss, plan.Risk.StopLoss)
		assert.Zero(t, plan.Risk.PositionShares%100)
		assert.NotNil(t, plan.Risk.Checks)
	}
	assert.LessOrEqual(t, banks, DefaultMaxPerIndustry)

	for _, path := range []string{
		DailyPath(out, "2025-06-30"),
		filepath.Join(out, "recommend", "2025-06-30_debug.json"),
		filepath.Join(out, "recommend", "2025-06-30_sources.json"),
		filepath.Join(RunDir(out, p.RunID), "01_market_context.json"),
		filepath.Join(RunDir(out, p.RunID), "01_sources.jsonl"),
		filepath.Join(RunDir(out, p.RunID), "02_selected_strategies.json"),
		filepath.Join(RunDir(out, p.RunID), "04_champion.json"),
		filepath.Join(RunDir(out, p.RunID), "05_final_response.json"),
		filepath.Join(RunDir(out, p.RunID), "05_final_response.txt"),
		filepath.Join(RunDir(out, p.RunID), "index.json"),
	} {
		assert.FileExists(t, path)
	}
	runs, err := os.ReadDir(filepath.Join(RunDir(out, p.RunID), "03_strategy_runs"))
	require.NoError(t, err)
	assert.NotEmpty(t, runs)

	b, err := os.ReadFile(DailyPath(out, "2025-06-30"))
	require.NoError(t, err)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(b, &saved))
	for _, k := range []string{"as_of", "timezone", "env", "themes", "candidate_pool", "picks", "execution_checklist", "disclaimer", "debug"} {
		assert.Contains(t, saved, k)
	}
}

func TestRunIsDeterministicPerDay(t *testing.T) {
	t.Parallel()

	e := engine(t, fixture(0.06), "")
	a, err := e.Run(context.Background(), Request{Date: "20250630"})
	require.NoError(t, err)
	b, err := e.Run(context.Background(), Request{Date: "2025-06-30"})
	require.NoError(t, err)
	assert.Equal(t, a.RunID, b.RunID)

	// a weekend resolves to the Friday before
	c, err := e.Run(context.Background(), Request{Date: "2025-06-29"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-27", c.AsOf)
}

func TestRunWithoutSnapshot(t *testing.T) {
	t.Parallel()

	p := fixture(0.03)
	p.snap, p.snapErr = nil, errs.Provider("stub snapshot", os.ErrDeadlineExceeded)

	res, err := engine(t, p, "").Run(context.Background(), Request{Symbols: []string{"600001", "000004"}})
	require.NoError(t, err)

	assert.False(t, res.Tradeable)
	assert.Equal(t, "NOT_TRADEABLE: SNAPSHOT_MISSING, THEMES_EMPTY", res.Message)
	assert.True(t, res.Debug.Degraded)
	assert.True(t, res.Debug.Snapshot.Missing)
	assert.Len(t, res.CandidatePool, 2)
	assert.Equal(t, regime.DefaultTheme, res.Themes[0].Name)
}

func TestRunRegimeDEmptiesPicks(t *testing.T) {
	t.Parallel()

	res, err := engine(t, fixture(-0.04), "").Run(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, regime.D, res.Env.Grade)
	assert.Empty(t, res.Picks)
	require.NotEmpty(t, res.CandidatePool)
	for _, c := range res.CandidatePool {
		assert.True(t, c.Flags.MustObserveOnly)
		assert.Contains(t, c.Flags.Reasons, ReasonEnvD)
	}
	require.NotEmpty(t, res.Debug.Advisories)
	assert.Equal(t, ChampionUnavailable, res.Debug.Advisories[0].Code)
}

func TestRunMissingIndicesNeutralizes(t *testing.T) {
	t.Parallel()

	p := fixture(0.03)
	for _, code := range market.RegimeIndices {
		delete(p.daily, code)
	}
	res, err := engine(t, p, "").Run(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, regime.C, res.Env.Grade)
	assert.False(t, res.Tradeable)
	assert.True(t, strings.HasPrefix(res.Message, "NOT_TRADEABLE: ENV_NEUTRALIZED"))
}

func TestRunFailsOnRefusedData(t *testing.T) {
	t.Parallel()

	p := fixture(0.03)
	p.snap, p.snapErr = nil, errs.BadData("fixture snapshot", "synthetic snapshot refused in strict mode")
	_, err := engine(t, p, "").Run(context.Background(), Request{})
	assert.ErrorIs(t, err, errs.ErrBadData)
}

func TestRunRejectsBadRequests(t *testing.T) {
	t.Parallel()

	e := engine(t, fixture(0.03), "")
	tests := []struct {
		name string
		req  Request
	}{
		{"date", Request{Date: "30/06/2025"}},
		{"profile", Request{RiskProfile: "yolo"}},
		{"detail", Request{Detail: "verbose"}},
		{"universe", Request{Universe: "everything"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, errs.ErrBadData)
		})
	}
}

func TestNewRequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestCompactView(t *testing.T) {
	t.Parallel()

	res, err := engine(t, fixture(0.06), "").Run(context.Background(), Request{})
	require.NoError(t, err)

	b, err := json.Marshal(res.View(DetailCompact))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "candidate_pool")
	assert.Contains(t, m, "picks")
	dbg := m["debug"].(map[string]any)
	assert.Contains(t, dbg, "degrade_reasons")
	assert.NotContains(t, dbg, "sources")

	b, err = json.Marshal(res.View(DetailFull))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"candidate_pool"`)
}

func TestDiversify(t *testing.T) {
	t.Parallel()

	picks := []Pick{
		{Symbol: "a", Industry: "银行"},
		{Symbol: "b", Industry: "银行"},
		{Symbol: "c", Industry: "银行"},
		{Symbol: "d", Theme: "行业轮动"},
		{Symbol: "e", Industry: "医药"},
	}
	got := diversify(picks, 2)
	syms := make([]string, len(got))
	for i, p := range got {
		syms[i] = p.Symbol
	}
	assert.Equal(t, []string{"a", "b", "d", "e"}, syms)
	assert.Len(t, diversify(picks, 0), 5)
}

func TestBuildPlanChipFallback(t *testing.T) {
	t.Parallel()

	c := candidates.Candidate{
		Symbol: "600001",
		Close:  10,
		QGrade: risk.Q1,
		Flags:  candidates.Flags{Reasons: []string{}},
		Chip:   chip.Result{AvgCost: 9.5, Band90Low: 9, Band90High: 11, Confidence: "medium", Model: "A"},
	}
	in := planInput{cand: c, pol: risk.PolicyFor(risk.Normal), equity: 1e6}
	p, n := buildPlan(in)
	assert.Zero(t, n)
	assert.Equal(t, BandsFromChip, p.Panel.BandSource)
	assert.Equal(t, 9.0, p.ChipAndBands.S1)
	assert.Equal(t, 9.5, p.ChipAndBands.S2)
	assert.InDelta(t, 11.22, p.ChipAndBands.R2, 1e-9)
	assert.Equal(t, "medium", p.ChipAndBands.Confidence)
	assert.Equal(t, "A", p.ChipAndBands.Model)
	assert.Equal(t, risk.Q1, p.Q)
	assert.Equal(t, defaultWindowA, p.WindowA)
	// 1% of 1e6 over a 1.0 stop distance
	assert.Equal(t, int64(10000), p.Risk.PositionShares)
	assert.InDelta(t, 0.01, p.Risk.RiskBudgetPct, 1e-12)
	assert.InDelta(t, 10000.0, p.Risk.RiskAmount, 1e-9)
	// target R1 is as far as the stop
	assert.InDelta(t, 1.0, p.Risk.RewardRisk, 1e-12)
	assert.Equal(t, []string{"RR_TOO_LOW"}, p.Risk.Checks)

	in.cand.QGrade = risk.Q2
	p, _ = buildPlan(in)
	assert.Equal(t, int64(5000), p.Risk.PositionShares)

	in.cand.Flags.MustObserveOnly = true
	p, _ = buildPlan(in)
	assert.True(t, p.Panel.ObserveOnly)
	assert.Zero(t, p.Risk.PositionShares)
	assert.Empty(t, p.Risk.Checks)
}

func TestBuildPlanStopAboveClose(t *testing.T) {
	t.Parallel()

	c := candidates.Candidate{
		Symbol: "600002",
		Close:  8,
		Flags:  candidates.Flags{Reasons: []string{}},
		Chip:   chip.Result{AvgCost: 9.5, Band90Low: 9, Band90High: 11},
	}
	p, _ := buildPlan(planInput{cand: c, pol: risk.PolicyFor(risk.Normal), equity: 1e6})
	assert.Zero(t, p.Risk.PositionShares)
	assert.Equal(t, []string{"NO_SHARES"}, p.Risk.Checks)
}

func TestTradePlanJSONKeys(t *testing.T) {
	t.Parallel()

	c := candidates.Candidate{
		Symbol:     "600001",
		Close:      10,
		QGrade:     risk.Q0,
		Flags:      candidates.Flags{Reasons: []string{}},
		Chip:       chip.Result{AvgCost: 9.5, Band90Low: 9, Band90High: 11, Confidence: "high", Model: "A"},
		Indicators: indicators.Snapshot{Bias6: indicators.Ptr(0.02)},
	}
	p, _ := buildPlan(planInput{
		cand:          c,
		theme:         "银行",
		announcements: risk.Assessment{Level: "low", Evidence: []string{}},
		events:        risk.Assessment{Level: "medium", Evidence: []string{"股东大会"}},
		pol:           risk.PolicyFor(risk.Normal),
		equity:        1e6,
	})
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &got))
	for _, k := range []string{"panel", "q", "chip_and_bands", "bias_stats", "announcements", "events",
		"window_A", "window_B", "risk", "invalidation"} {
		assert.Contains(t, got, k)
	}

	var cb map[string]any
	require.NoError(t, json.Unmarshal(got["chip_and_bands"], &cb))
	for _, k := range []string{"S1", "S2", "R1", "R2", "confidence", "model"} {
		assert.Contains(t, cb, k)
	}
	assert.Equal(t, "high", cb["confidence"])

	var rk map[string]any
	require.NoError(t, json.Unmarshal(got["risk"], &rk))
	for _, k := range []string{"position_shares", "risk_budget_pct", "stop_loss", "time_stop", "add_rule"} {
		assert.Contains(t, rk, k)
	}
	assert.EqualValues(t, 10000, rk["position_shares"])

	var bs map[string]any
	require.NoError(t, json.Unmarshal(got["bias_stats"], &bs))
	assert.InDelta(t, 0.02, bs["bias6"], 1e-12)
	assert.Contains(t, string(got["events"]), "medium")
	assert.Contains(t, string(got["panel"]), "银行")
}

func TestRenderPassesGuard(t *testing.T) {
	t.Parallel()

	p := &Payload{
		AsOf:               "2025-06-30",
		Env:                regime.Result{Grade: regime.B},
		Themes:             []regime.Theme{{Name: "银行"}},
		ExecutionChecklist: []string{"1) 环境分层：B"},
		Disclaimer:         Disclaimer,
		Tradeable:          true,
		Picks: []Pick{{
			Symbol:   "600001",
			Theme:    "银行",
			Champion: scoring.Champion{Strategy: "S1"},
			TradePlan: TradePlan{
				WindowA: "到10元买入",
				WindowB: defaultWindowB,
				Risk:    PlanRisk{StopLoss: planStopLoss, TimeStop: planTimeStop, AddRule: planAddRule},
			},
		}},
	}
	txt, err := Render(p)
	require.NoError(t, err)
	assert.Contains(t, txt, guard.Replacement)
	assert.Contains(t, txt, guard.Note)
	assert.NotContains(t, txt, "到10元买入")
	assert.Contains(t, txt, "600001")
	assert.Contains(t, txt, Disclaimer)

	p.Picks = nil
	txt, err = Render(p)
	require.NoError(t, err)
	assert.Contains(t, txt, "今日无推荐")
	assert.NotContains(t, txt, guard.Note)
}
