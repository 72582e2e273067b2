// Package recommend runs the daily recommendation pipeline: market regime
// and themes, the candidate pool, per-pick strategy evaluation and
// scoring, trade plans, and the degrade ledger that decides whether the
// result is tradeable. Runs are persisted under the output directory.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/ashare/candidates"
	"github.com/rustyeddy/ashare/chip"
	"github.com/rustyeddy/ashare/evaluate"
	"github.com/rustyeddy/ashare/guard"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/pkg/logging"
	"github.com/rustyeddy/ashare/provider"
	"github.com/rustyeddy/ashare/regime"
	"github.com/rustyeddy/ashare/risk"
	"github.com/rustyeddy/ashare/scoring"
	"github.com/rustyeddy/ashare/strategies"
)

// Disclaimer is carried on every payload.
const Disclaimer = "本内容仅供研究与教育，不构成任何投资建议或收益承诺；市场有风险，决策需独立承担"

const (
	DetailCompact = "compact"
	DetailFull    = "full"

	UniverseDynamic  = "dynamic"
	UniverseSymbols  = "symbols"
	UniverseMainline = "mainline"
	UniverseAll      = "all"

	DefaultTopK           = 3
	MaxTopK               = 50
	DefaultMaxPerIndustry = 2
	DefaultMinUniverse    = 50
	DefaultMinCandidates  = 20
	DefaultInitialCash    = 1e6

	// ReasonEnvD flags every candidate observe-only in a D regime.
	ReasonEnvD = "ENV_D_OBSERVE"
)

// Archiver stores finished payloads somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, runID string, p *Payload) error
}

type Options struct {
	Provider      provider.Provider
	Announcements risk.AnnouncementSource
	Events        risk.EventSource

	// Candidates carries the universe filters and the liquidity veto.
	Candidates     candidates.Options
	MaxPerIndustry int
	MinUniverse    int
	MinCandidates  int
	InitialCash    float64
	LookbackDays   int
	StrictRealData bool

	Location *time.Location
	// OutDir is the root for recommend/ and pipeline_runs/. Empty skips
	// persistence.
	OutDir  string
	Archive Archiver
	Logger  *slog.Logger
	Now     func() time.Time
}

// Request is one recommendation ask.
type Request struct {
	Date        string   `json:"date,omitempty"`
	TopK        int      `json:"topk,omitempty"`
	Universe    string   `json:"universe,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
	RiskProfile string   `json:"risk_profile,omitempty"`
	Detail      string   `json:"detail,omitempty"`
}

type Engine struct {
	opt Options
	log *slog.Logger
}

// New validates opt and fills its defaults.
func New(opt Options) (*Engine, error) {
	if opt.Provider == nil {
		return nil, errs.Config("recommend", "no data provider")
	}
	if opt.Location == nil {
		opt.Location = market.LoadLocation(market.DefaultTimezone)
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.MaxPerIndustry == 0 {
		opt.MaxPerIndustry = DefaultMaxPerIndustry
	}
	if opt.MinUniverse == 0 {
		opt.MinUniverse = DefaultMinUniverse
	}
	if opt.MinCandidates == 0 {
		opt.MinCandidates = DefaultMinCandidates
	}
	if opt.InitialCash <= 0 {
		opt.InitialCash = DefaultInitialCash
	}
	if opt.LookbackDays <= 0 {
		opt.LookbackDays = DefaultLookbackDays
	}
	return &Engine{opt: opt, log: logging.OrDefault(opt.Logger)}, nil
}

// Pick is one recommended symbol with its evidence and plan.
type Pick struct {
	Symbol           string              `json:"symbol"`
	Name             string              `json:"name,omitempty"`
	Industry         string              `json:"industry,omitempty"`
	Theme            string              `json:"theme"`
	Score            float64             `json:"score"`
	Breakdown        scoring.Breakdown   `json:"score_breakdown"`
	QGrade           risk.Grade          `json:"q_grade"`
	Flags            candidates.Flags    `json:"flags"`
	Chip             chip.Result         `json:"chip"`
	Indicators       indicators.Snapshot `json:"indicators"`
	Stats            scoring.Stats       `json:"stats"`
	RelStrength      scoring.RelStrength `json:"relative_strength"`
	AnnouncementRisk risk.Assessment     `json:"announcement_risk"`
	EventRisk        risk.Assessment     `json:"event_risk"`
	Champion         scoring.Champion    `json:"champion"`
	TradePlan        TradePlan           `json:"trade_plan"`
}

type SnapshotMeta struct {
	Missing bool      `json:"missing,omitempty"`
	Source  string    `json:"source,omitempty"`
	Rows    int       `json:"rows"`
	AsOf    time.Time `json:"as_of,omitzero"`
	Cache   string    `json:"cache,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type Debug struct {
	RunID          string             `json:"run_id,omitempty"`
	RiskProfile    risk.Profile       `json:"risk_profile,omitempty"`
	Timing         map[string]float64 `json:"timing,omitempty"`
	Sources        []Source           `json:"sources,omitempty"`
	Failures       []candidates.Veto  `json:"failures,omitempty"`
	Snapshot       *SnapshotMeta      `json:"snapshot,omitempty"`
	CandidateStats candidates.Stats   `json:"candidate_stats"`
	Advisories     []Advisory         `json:"advisories,omitempty"`
	Degraded       bool               `json:"degraded"`
	DegradeReasons []guard.Reason     `json:"degrade_reasons"`
	GuardRewrites  int                `json:"guard_rewrites"`
}

// Payload is the result of one run.
type Payload struct {
	AsOf               string                 `json:"as_of"`
	Timezone           string                 `json:"timezone"`
	RunID              string                 `json:"run_id"`
	Env                regime.Result          `json:"env"`
	Themes             []regime.Theme         `json:"themes"`
	CandidatePool      []candidates.Candidate `json:"candidate_pool"`
	Picks              []Pick                 `json:"picks"`
	ExecutionChecklist []string               `json:"execution_checklist"`
	Disclaimer         string                 `json:"disclaimer"`
	Tradeable          bool                   `json:"tradeable"`
	Message            string                 `json:"message"`
	Debug              *Debug                 `json:"debug"`
}

type compactPayload struct {
	*Payload
	CandidatePool any    `json:"candidate_pool,omitempty"`
	Debug         *Debug `json:"debug"`
}

// View returns the payload as served for detail: compact drops the
// candidate pool and keeps only the ledger part of debug.
func (p *Payload) View(detail string) any {
	if detail != DetailCompact {
		return p
	}
	d := &Debug{}
	if p.Debug != nil {
		d = &Debug{
			CandidateStats: p.Debug.CandidateStats,
			Advisories:     p.Debug.Advisories,
			Degraded:       p.Debug.Degraded,
			DegradeReasons: p.Debug.DegradeReasons,
			GuardRewrites:  p.Debug.GuardRewrites,
		}
	}
	return compactPayload{Payload: p, Debug: d}
}

// run is the state of one request.
type run struct {
	e      *Engine
	id     string
	asOf   time.Time
	hub    *hub
	led    *ledger
	pol    risk.Policy
	env    regime.Result
	themes []regime.Theme
	bench  []float64

	strategyRuns map[string]*StrategyRun
	champions    map[string]scoring.Champion
	rewrites     int
}

// Run executes the pipeline for req. It fails on bad requests, on
// cancellation and on provider data the normalizer rejects; everything
// else degrades the payload instead.
func (e *Engine) Run(ctx context.Context, req Request) (*Payload, error) {
	started := time.Now()
	asOf, err := e.resolveDate(req.Date)
	if err != nil {
		return nil, err
	}
	profile, err := risk.ParseProfile(req.RiskProfile)
	if err != nil {
		return nil, errs.BadData("recommend", "%v", err)
	}
	switch req.Detail {
	case "", DetailCompact, DetailFull:
	default:
		return nil, errs.BadData("recommend", "unknown detail %q", req.Detail)
	}
	copt := e.opt.Candidates
	copt.Now, copt.Logger = asOf, e.log
	switch strings.ToLower(req.Universe) {
	case "", UniverseDynamic, UniverseSymbols:
	case UniverseMainline:
		copt.RestrictToMainline = true
	case UniverseAll:
		copt.RestrictToMainline = false
	default:
		return nil, errs.BadData("recommend", "unknown universe %q", req.Universe)
	}
	topk := req.TopK
	if topk <= 0 {
		topk = DefaultTopK
	}
	topk = min(topk, MaxTopK)

	r := &run{
		e:            e,
		id:           runID(e.opt.Provider.Name(), asOf, e.opt.LookbackDays),
		asOf:         asOf,
		hub:          newHub(e.opt.Provider, asOf, e.opt.LookbackDays, e.log),
		led:          &ledger{log: e.log},
		pol:          risk.PolicyFor(profile),
		strategyRuns: make(map[string]*StrategyRun),
		champions:    make(map[string]scoring.Champion),
	}
	timing := make(map[string]float64)
	lap := func(stage string, t0 time.Time) { timing[stage] = time.Since(t0).Seconds() }

	t0 := time.Now()
	snap, snapMeta, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	lap("snapshot", t0)

	t0 = time.Now()
	indices := r.hub.indices(ctx)
	r.env = regime.Score(indices, snap)
	if r.env.Neutralized {
		r.led.add(EnvNeutralized, map[string]any{"reason": "no_index_data"})
	}
	if b, ok := indices[market.IndexSSE]; ok {
		r.bench = b.Closes()
	}
	r.themes = regime.Themes(snap)
	if len(r.themes) == 0 || r.themes[0].Source == "default" {
		r.led.add(ThemesEmpty, nil)
	}
	lap("env", t0)

	t0 = time.Now()
	var entries []candidates.Entry
	if len(req.Symbols) > 0 {
		entries = explicitEntries(req.Symbols, snap)
	} else {
		entries = candidates.Universe(snap, copt)
	}
	res, err := candidates.Generate(ctx, r.hub, entries, string(r.env.Grade), copt)
	if err != nil {
		return nil, err
	}
	if len(req.Symbols) == 0 && snap.Len() > 0 {
		res.Stats.UniverseIn = snap.Len()
	}
	if r.hub.badData != nil && len(res.Pool) == 0 {
		return nil, r.hub.badData
	}
	r.thresholds(res.Stats)
	lap("candidates", t0)

	t0 = time.Now()
	picks, err := r.picks(ctx, res.Pool)
	if err != nil {
		return nil, err
	}
	picks = diversify(picks, e.opt.MaxPerIndustry)
	if len(picks) > topk {
		picks = picks[:topk]
	}
	if r.env.Grade == regime.D {
		for i := range res.Pool {
			res.Pool[i].Flags.MustObserveOnly = true
			res.Pool[i].Flags.Reasons = append(res.Pool[i].Flags.Reasons, ReasonEnvD)
		}
		picks = []Pick{}
	}
	r.championAdvisory(picks)
	r.planAdvisory(picks)
	lap("evaluate", t0)

	if snap != nil && !sameDay(snap.AsOf.In(e.opt.Location), asOf) {
		r.led.add(InsufficientEvidence, map[string]any{
			"reason":      "snapshot_not_as_of",
			"snapshot_as": snap.AsOf.In(e.opt.Location).Format(time.DateOnly),
		})
	}

	p := &Payload{
		AsOf:               asOf.Format(time.DateOnly),
		Timezone:           e.opt.Location.String(),
		RunID:              r.id,
		Env:                r.env,
		Themes:             r.themes,
		CandidatePool:      res.Pool,
		Picks:              picks,
		ExecutionChecklist: r.checklist(),
		Disclaimer:         Disclaimer,
	}
	tradeable, msg := guard.Tradeable(r.led.reasons, "")
	if tradeable {
		msg = fmt.Sprintf("generated %d picks", len(picks))
	}
	p.Tradeable, p.Message = tradeable, msg
	r.led.announce()

	timing["total"] = time.Since(started).Seconds()
	p.Debug = &Debug{
		RunID:          r.id,
		RiskProfile:    profile,
		Timing:         timing,
		Sources:        r.hub.sources,
		Failures:       res.Vetoes,
		Snapshot:       snapMeta,
		CandidateStats: res.Stats,
		Advisories:     r.led.advisories,
		Degraded:       r.led.degraded(),
		DegradeReasons: r.led.reasons,
		GuardRewrites:  r.rewrites,
	}
	if p.Debug.DegradeReasons == nil {
		p.Debug.DegradeReasons = []guard.Reason{}
	}

	if e.opt.OutDir != "" {
		if err := r.persist(p); err != nil {
			return nil, fmt.Errorf("persist run %s: %w", r.id, err)
		}
	}
	if e.opt.Archive != nil {
		if err := e.opt.Archive.Archive(ctx, r.id, p); err != nil {
			e.log.Warn("archive recommendation", "run_id", r.id, "err", err)
		}
	}
	e.log.Info("recommendation done", "as_of", p.AsOf, "run_id", r.id, "env", r.env.Grade,
		"pool", len(res.Pool), "picks", len(picks), "tradeable", p.Tradeable)
	return p, nil
}

func (e *Engine) resolveDate(s string) (time.Time, error) {
	loc := e.opt.Location
	var d time.Time
	if strings.TrimSpace(s) == "" {
		now := e.opt.Now().In(loc)
		d = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	} else {
		var err error
		if d, err = market.ParseDate(strings.TrimSpace(s), loc); err != nil {
			return time.Time{}, errs.BadData("recommend", "bad date %q", s)
		}
	}
	return market.NearestTradingDay(d), nil
}

// snapshot fetches the spot table. Provider failures degrade to a run
// without snapshot; refused data and cancellation fail the run.
func (r *run) snapshot(ctx context.Context) (*market.Snapshot, *SnapshotMeta, error) {
	snap, err := r.hub.snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, errs.ErrBadData) || errors.Is(err, errs.ErrConfig) {
			return nil, nil, err
		}
		r.e.log.Warn("snapshot unavailable, continuing without", "provider", r.e.opt.Provider.Name(), "err", err)
		r.led.add(SnapshotMissing, map[string]any{"error": err.Error()})
		return nil, &SnapshotMeta{Missing: true, Error: err.Error()}, nil
	}
	meta := &SnapshotMeta{Source: snap.Source, Rows: snap.Len(), AsOf: snap.AsOf, Cache: snap.Cache}
	if snap.Cache == provider.CacheStale {
		r.led.add(SnapshotCache, map[string]any{"cache": snap.Cache, "as_of": snap.AsOf.Format(time.RFC3339)})
	}
	return snap, meta, nil
}

func (r *run) thresholds(st candidates.Stats) {
	if st.UniverseAfterFilter < r.e.opt.MinUniverse {
		r.led.add(UniverseTooSmall, map[string]any{"count": st.UniverseAfterFilter, "min": r.e.opt.MinUniverse})
	}
	if st.CandidatesOut < r.e.opt.MinCandidates {
		r.led.add(CandidateTooSmall, map[string]any{"count": st.CandidatesOut, "min": r.e.opt.MinCandidates})
	}
	if st.BarsTooShort > 0 {
		r.led.add(BarsTooShort, map[string]any{"count": st.BarsTooShort})
	}
	if st.IndicatorErrors > 0 {
		r.led.add(IndicatorPartial, map[string]any{"count": st.IndicatorErrors})
	}
}

// picks evaluates every pool member and returns them by score.
func (r *run) picks(ctx context.Context, pool []candidates.Candidate) ([]Pick, error) {
	out := make([]Pick, 0, len(pool))
	var failed []string
	for _, c := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, ok := r.pick(ctx, c)
		if !ok {
			failed = append(failed, c.Symbol)
		}
		out = append(out, p)
	}
	if len(failed) > 0 {
		r.led.add(StrategyEvalFailed, map[string]any{
			"symbols": failed[:min(sampleSymbols, len(failed))],
			"count":   len(failed),
			"error":   "insufficient history for cross-validation",
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

const sampleSymbols = 10

// pick scores one candidate. ok is false when cross-validation had no
// usable history.
func (r *run) pick(ctx context.Context, c candidates.Candidate) (Pick, bool) {
	f := c.Frame
	closes := f.Closes()
	cv := evaluate.PurgedWalkForward(closes, evaluate.DefaultFolds, evaluate.DefaultGap)

	type eligible struct {
		cand  scoring.Candidate
		event evaluate.EventStats
	}
	var pool []eligible
	for _, s := range strategies.All() {
		setups := s.Detect(f)
		es := s.EventStudy(f, setups)
		r.strategyRun(s).add(c.Symbol, setups, es, cv)
		if cv.K > 0 && len(setups) > 0 && !s.ObserveOnly() {
			pool = append(pool, eligible{scoring.Candidate{ID: s.ID(), CV: cv}, es})
		}
	}
	// equal CV scores fall to the better event study
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].event.WinRate5 > pool[j].event.WinRate5 })
	cands := make([]scoring.Candidate, len(pool))
	for i, e := range pool {
		cands[i] = e.cand
	}
	champ := scoring.ChooseChampion(cands)
	r.champions[c.Symbol] = champ

	var champStrategy strategies.Strategy
	if champ.Strategy != scoring.NoChampion {
		champStrategy, _ = strategies.Get(champ.Strategy)
	}

	anchor := scoring.StatsFrom(evaluate.EventStudy(closes, f.Bias6CrossUp))
	ann := risk.AssessAnnouncements(ctx, r.e.opt.Announcements, c.Symbol, r.asOf, r.e.opt.StrictRealData)
	evt := risk.AssessEvents(ctx, r.e.opt.Events, c.Symbol, r.asOf)
	rs := scoring.Relative(closes, r.bench)
	theme := themeFor(c, r.themes)
	chipRes := c.Chip

	bd := scoring.Explain(scoring.Input{
		Env:              string(r.env.Grade),
		ThemeStrength:    regime.StrengthOf(r.themes, theme),
		Close:            c.Close,
		Indicators:       c.Indicators,
		Chip:             &chipRes,
		Stats:            &anchor,
		AnnouncementRisk: ann.Level,
		EventRisk:        evt.Level,
		RelStrength:      rs,
	})

	plan, n := buildPlan(planInput{
		cand:          c,
		champ:         champStrategy,
		theme:         theme,
		crossUp:       anchor,
		announcements: ann,
		events:        evt,
		pol:           r.pol,
		equity:        r.e.opt.InitialCash,
	})
	r.rewrites += n

	return Pick{
		Symbol:           c.Symbol,
		Name:             c.Name,
		Industry:         c.Industry,
		Theme:            theme,
		Score:            bd.Total,
		Breakdown:        bd,
		QGrade:           c.QGrade,
		Flags:            c.Flags,
		Chip:             c.Chip,
		Indicators:       c.Indicators,
		Stats:            anchor,
		RelStrength:      rs,
		AnnouncementRisk: ann,
		EventRisk:        evt,
		Champion:         champ,
		TradePlan:        plan,
	}, cv.K > 0
}

func (r *run) championAdvisory(picks []Pick) {
	if len(picks) == 0 {
		r.led.advise(Advisory{Code: ChampionUnavailable, Detail: "no picks, champion not computed"})
		return
	}
	var missing []string
	for _, p := range picks {
		if p.Champion.Strategy == scoring.NoChampion {
			missing = append(missing, p.Symbol)
		}
	}
	if len(missing) > 0 {
		r.led.advise(Advisory{
			Code:    ChampionUnavailable,
			Symbols: missing,
			Detail:  fmt.Sprintf("champion missing for %d picks", len(missing)),
		})
	}
}

// planAdvisory reports picks whose sized position breaks a policy limit.
func (r *run) planAdvisory(picks []Pick) {
	var flagged []string
	seen := map[string]bool{}
	var codes []string
	for _, p := range picks {
		if len(p.TradePlan.Risk.Checks) == 0 {
			continue
		}
		flagged = append(flagged, p.Symbol)
		for _, c := range p.TradePlan.Risk.Checks {
			if !seen[c] {
				seen[c] = true
				codes = append(codes, c)
			}
		}
	}
	if len(flagged) > 0 {
		r.led.advise(Advisory{
			Code:    PlanRiskChecks,
			Symbols: flagged,
			Detail:  strings.Join(codes, ","),
		})
	}
}

func (r *run) checklist() []string {
	names := make([]string, len(r.themes))
	for i, t := range r.themes {
		names[i] = t.Name
	}
	items := []string{
		"1) 环境分层：" + string(r.env.Grade),
		"2) 主线限制：" + strings.Join(names, "、"),
		"3) 策略冠军与关键带",
		"4) 执行窗口：A窗09:35-10:15确认承接，B窗14:30-15:00收盘确认",
		"5) 失效即离场，不加仓摊低成本",
	}
	for i, it := range items {
		ok, out := guard.Rewrite(it)
		if !ok {
			r.rewrites++
		}
		items[i] = out
	}
	return items
}

// themeFor is the candidate's industry when it leads, else the top theme.
func themeFor(c candidates.Candidate, themes []regime.Theme) string {
	for _, t := range themes {
		if c.Industry != "" && t.Name == c.Industry {
			return t.Name
		}
	}
	if len(themes) > 0 {
		return themes[0].Name
	}
	return regime.DefaultTheme
}

// diversify keeps at most capN picks per industry, or per theme when the
// industry is unknown. Order is preserved. capN <= 0 disables the cap.
func diversify(picks []Pick, capN int) []Pick {
	if capN <= 0 {
		return picks
	}
	seen := make(map[string]int)
	out := make([]Pick, 0, len(picks))
	for _, p := range picks {
		key := p.Industry
		if key == "" {
			key = "theme:" + p.Theme
		}
		if seen[key] >= capN {
			continue
		}
		seen[key]++
		out = append(out, p)
	}
	return out
}

// explicitEntries turns requested symbols into universe entries, filling
// name and industry from the snapshot when it has them.
func explicitEntries(symbols []string, snap *market.Snapshot) []candidates.Entry {
	quotes := make(map[string]market.Quote)
	if snap.Len() > 0 {
		for _, q := range snap.Quotes {
			quotes[provider.PlainCode(q.Code)] = q
		}
	}
	seen := make(map[string]bool)
	var out []candidates.Entry
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		e := candidates.Entry{Code: s}
		if q, ok := quotes[provider.PlainCode(s)]; ok {
			e.Name, e.Industry, e.Amount = q.Name, q.Industry, q.Amount
		}
		out = append(out, e)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
