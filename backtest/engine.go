// Package backtest replays candidate lists against daily and 5-minute bars
// under A-share execution rules: signals confirm at a bar close and fill at
// the next bar's open, positions cannot be sold on the day they were
// bought, lots are 100 shares, one-word bars do not fill and holdings are
// flattened at the end of each week.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/ashare/journal"
	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/pkg/id"
)

const (
	LotSize = market.SharesPerHand

	DefaultMinMissingThreshold = 0.10
)

// ErrNoTrades is returned with the report when trades were required and
// none happened.
var ErrNoTrades = errors.New("backtest: no trades")

// InsufficientMinutesError aborts a minute-strategy run when too many of a
// day's candidates have no 5-minute bars.
type InsufficientMinutesError struct {
	Day        time.Time
	Missing    []string
	Candidates int
	Threshold  float64
}

func (e *InsufficientMinutesError) Ratio() float64 {
	return float64(len(e.Missing)) / float64(max(1, e.Candidates))
}

func (e *InsufficientMinutesError) Error() string {
	return fmt.Sprintf("minute bars missing for %.1f%% of candidates (threshold %.0f%%) on %s: %s",
		100*e.Ratio(), 100*e.Threshold, e.Day.Format("2006-01-02"), strings.Join(e.Missing, ","))
}

func (e *InsufficientMinutesError) Unwrap() error { return errs.ErrDataInsufficient }

type Config struct {
	RunID       string
	Start       time.Time
	End         time.Time
	InitialCash float64
	Fees        Fees
	// MinMissingThreshold is the largest tolerated share of candidates
	// without minute bars on a day. Zero means the default.
	MinMissingThreshold float64
	RequireTrades       bool

	// ResultsDir receives run_<id>/. Empty disables file output.
	ResultsDir  string
	ConfigFiles []string
	Commit      string

	// Journal, when set, also receives every fill and equity mark.
	Journal journal.Journal
	Logger  *slog.Logger
}

func (c Config) threshold() float64 {
	if c.MinMissingThreshold <= 0 {
		return DefaultMinMissingThreshold
	}
	return c.MinMissingThreshold
}

type Engine struct {
	cfg      Config
	bars     Bars
	universe Universe
	log      *slog.Logger
	events   *journal.EventLog
}

func NewEngine(bars Bars, universe Universe, cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, bars: bars, universe: universe, log: log}
}

// Event is one line of events.jsonl.
type Event struct {
	Type     string    `json:"type"`
	Strategy string    `json:"strategy"`
	Time     time.Time `json:"time"`
	Symbol   string    `json:"ts_code,omitempty"`
	Side     string    `json:"side,omitempty"`
	Price    float64   `json:"price,omitempty"`
	Shares   int64     `json:"shares,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

const (
	EventFill           = "fill"
	EventNoFill         = "no_fill"
	EventT1Blocked      = "t1_blocked"
	EventForcedFlat     = "forced_flat"
	EventNoCandidates   = "no_candidates"
	EventMinutesMissing = "minutes_missing"
)

// TradingDays lists the trading days in [start, end].
func TradingDays(start, end time.Time) []time.Time {
	var out []time.Time
	for d := dayOf(start); !d.After(dayOf(end)); d = d.AddDate(0, 0, 1) {
		if market.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// Run backtests each strategy independently from the same initial cash.
// Outputs are written under ResultsDir when it is set.
func (e *Engine) Run(ctx context.Context, strats ...Strategy) (*Report, error) {
	if e.bars == nil {
		return nil, fmt.Errorf("backtest: Bars is required")
	}
	if e.universe == nil {
		return nil, fmt.Errorf("backtest: Universe is required")
	}
	if len(strats) == 0 {
		return nil, fmt.Errorf("backtest: at least one strategy is required")
	}
	if e.cfg.InitialCash <= 0 {
		return nil, errs.Config("backtest", "initial_cash must be > 0")
	}
	days := TradingDays(e.cfg.Start, e.cfg.End)
	if len(days) == 0 {
		return nil, errs.Config("backtest", "no trading days between %s and %s",
			e.cfg.Start.Format("2006-01-02"), e.cfg.End.Format("2006-01-02"))
	}

	runID := e.cfg.RunID
	if runID == "" {
		runID = id.New()
	}
	report := &Report{RunID: runID}
	if e.cfg.ResultsDir != "" {
		report.Dir = filepath.Join(e.cfg.ResultsDir, "run_"+runID)
		if err := os.MkdirAll(report.Dir, 0o755); err != nil {
			return nil, err
		}
		ev, err := journal.NewEventLog(filepath.Join(report.Dir, "events.jsonl"))
		if err != nil {
			return nil, err
		}
		e.events = ev
		defer func() {
			_ = ev.Close()
			e.events = nil
		}()
	}

	e.log.Info("backtest start", "run_id", runID, "days", len(days), "strategies", len(strats))
	for _, s := range strats {
		res, err := e.runStrategy(ctx, s, days, runID, report.Dir)
		if err != nil {
			return nil, fmt.Errorf("backtest %s: %w", s.Name(), err)
		}
		report.Results = append(report.Results, res)
		e.log.Info("backtest strategy done", "strategy", s.Name(), "fills", len(res.Fills),
			"net_return", res.Metrics.NetReturn, "status", res.Status)
	}

	m, err := e.manifest(runID, days, strats)
	if err != nil {
		return nil, err
	}
	report.Manifest = m
	if report.Dir != "" {
		if err := report.write(); err != nil {
			return nil, err
		}
	}

	if e.cfg.RequireTrades && report.TotalFills() == 0 {
		return report, ErrNoTrades
	}
	return report, nil
}

func (e *Engine) runStrategy(ctx context.Context, s Strategy, days []time.Time, runID, runDir string) (*StrategyResult, error) {
	b := &book{
		e:      e,
		strat:  s,
		runID:  runID,
		cash:   decimal.NewFromFloat(e.cfg.InitialCash),
		pos:    map[string]*position{},
		lastPx: map[string]float64{},
		daily:  map[string]map[string]market.Candle{},
		res:    &StrategyResult{Strategy: s.Name(), Params: s.Params()},
		nav:    e.cfg.InitialCash,
	}

	var sinks journal.Multi
	if runDir != "" {
		dir := filepath.Join(runDir, s.Name())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		cj, err := journal.NewCSV(filepath.Join(dir, "trades.csv"), filepath.Join(dir, "daily_equity.csv"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, cj)
		defer cj.Close()
	}
	if e.cfg.Journal != nil {
		sinks = append(sinks, e.cfg.Journal)
	}
	b.sink = sinks

	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lastOfWeek := i == len(days)-1 || !market.SameWeek(day, days[i+1])

		cands, err := e.universe.Candidates(day)
		if err != nil {
			return nil, fmt.Errorf("candidates %s: %w", day.Format("2006-01-02"), err)
		}
		if cands == nil {
			b.event(Event{Type: EventNoCandidates, Time: day})
		}

		switch st := s.(type) {
		case MinuteStrategy:
			err = b.minuteDay(ctx, st, day, cands, lastOfWeek)
		case DailyStrategy:
			err = b.dailyDay(ctx, st, day, cands, lastOfWeek)
		default:
			err = fmt.Errorf("strategy %s is neither minute nor daily", s.Name())
		}
		if err != nil {
			return nil, err
		}
		if err := b.markDay(day, lastOfWeek); err != nil {
			return nil, err
		}
	}

	b.finish()
	if runDir != "" {
		if err := b.res.write(filepath.Join(runDir, s.Name()), runID, e.cfg, days); err != nil {
			return nil, err
		}
	}
	return b.res, nil
}

type position struct {
	shares int64
	cost   decimal.Decimal
	buyDay time.Time
}

// book is the cash and position ledger of one strategy run.
type book struct {
	e      *Engine
	strat  Strategy
	runID  string
	cash   decimal.Decimal
	pos    map[string]*position
	lastPx map[string]float64
	daily  map[string]map[string]market.Candle
	sink   journal.Multi
	res    *StrategyResult

	fillID int
	traded decimal.Decimal
	nav    float64
	week   weekAcc
}

type weekAcc struct {
	active    bool
	start     time.Time
	startNAV  float64
	peak      float64
	drawdown  float64
	trades    int
	wins      int
	notFilled int
}

func (b *book) held() []string {
	out := make([]string, 0, len(b.pos))
	for k := range b.pos {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (b *book) holding(sym string) *Holding {
	p, ok := b.pos[sym]
	if !ok {
		return nil
	}
	cost, _ := p.cost.Float64()
	return &Holding{Shares: p.shares, Cost: cost, BuyDay: p.buyDay}
}

func (b *book) event(ev Event) {
	if b.e.events == nil {
		return
	}
	ev.Strategy = b.strat.Name()
	if err := b.e.events.Append(ev); err != nil {
		b.e.log.Warn("event log append failed", "err", err)
	}
}

func (b *book) noFill(sym, side string, at time.Time) {
	if side == journal.SideBuy {
		b.res.NoFillBuy++
	} else {
		b.res.NoFillSell++
	}
	b.week.notFilled++
	b.event(Event{Type: EventNoFill, Time: at, Symbol: sym, Side: side, Detail: "one-word bar"})
}

func (b *book) buy(sym string, at time.Time, px decimal.Decimal, reason string) error {
	if _, ok := b.pos[sym]; ok || !px.IsPositive() {
		return nil
	}
	budget := b.cash.Mul(decimal.NewFromFloat(b.strat.PerStockCash()))
	lots := budget.Div(px).Div(decimal.NewFromInt(LotSize)).Floor().IntPart()

	var amount decimal.Decimal
	var cost Cost
	for ; lots > 0; lots-- {
		amount = px.Mul(decimal.NewFromInt(lots * LotSize))
		cost = b.e.cfg.Fees.Cost(amount, journal.SideBuy)
		if amount.Add(cost.Total()).LessThanOrEqual(b.cash) {
			break
		}
	}
	if lots <= 0 {
		return nil
	}
	shares := lots * LotSize

	b.cash = b.cash.Sub(amount).Sub(cost.Total())
	b.pos[sym] = &position{shares: shares, cost: px, buyDay: dayOf(at)}
	return b.record(sym, journal.SideBuy, at, px, shares, amount, cost, decimal.Zero, reason)
}

func (b *book) sell(sym string, at time.Time, px decimal.Decimal, reason string) error {
	p, ok := b.pos[sym]
	if !ok {
		return nil
	}
	amount := px.Mul(decimal.NewFromInt(p.shares))
	cost := b.e.cfg.Fees.Cost(amount, journal.SideSell)
	pnl := px.Sub(p.cost).Mul(decimal.NewFromInt(p.shares)).Sub(cost.Total())

	b.cash = b.cash.Add(amount).Sub(cost.Total())
	delete(b.pos, sym)

	b.week.trades++
	if pnl.IsPositive() {
		b.week.wins++
	}
	return b.record(sym, journal.SideSell, at, px, p.shares, amount, cost, pnl, reason)
}

func (b *book) record(sym, side string, at time.Time, px decimal.Decimal, shares int64, amount decimal.Decimal, cost Cost, pnl decimal.Decimal, reason string) error {
	b.fillID++
	b.traded = b.traded.Add(amount)
	b.res.Costs = b.res.Costs.Add(cost)

	price, _ := px.Float64()
	f := journal.Fill{
		ID:       b.fillID,
		RunID:    b.runID,
		Strategy: b.strat.Name(),
		Time:     at,
		Symbol:   sym,
		Side:     side,
		Price:    price,
		Shares:   shares,
		Amount:   amount.Round(2).InexactFloat64(),
		Fees:     cost.Total().InexactFloat64(),
		PnL:      pnl.Round(2).InexactFloat64(),
		Reason:   reason,
	}
	b.res.Fills = append(b.res.Fills, f)
	b.event(Event{Type: EventFill, Time: at, Symbol: sym, Side: side, Price: price, Shares: shares, Detail: reason})
	return b.sink.RecordFill(f)
}

// flat closes sym at the bar's close when T+1 allows it.
func (b *book) flat(sym string, day time.Time, c market.Candle) error {
	h := b.holding(sym)
	if h == nil {
		return nil
	}
	if !h.Sellable(day) {
		b.event(Event{Type: EventT1Blocked, Time: c.Time, Symbol: sym, Side: journal.SideSell, Detail: ReasonWeekFlat})
		return nil
	}
	if c.OneWord() {
		b.noFill(sym, journal.SideSell, c.Time)
		return nil
	}
	b.res.ForcedFlat++
	b.event(Event{Type: EventForcedFlat, Time: c.Time, Symbol: sym})
	return b.sell(sym, c.Time, decimal.NewFromFloat(c.Close).Round(4), ReasonWeekFlat)
}

// minuteDay replays the day symbol by symbol, candidates first, so an
// earlier symbol claims cash before a later one whatever the minute.
func (b *book) minuteDay(ctx context.Context, ms MinuteStrategy, day time.Time, cands []string, lastOfWeek bool) error {
	ms.OnDayStart(day, cands)

	symbols := slices.Clone(cands)
	for _, sym := range b.held() {
		if !slices.Contains(symbols, sym) {
			symbols = append(symbols, sym)
		}
	}

	var missing []string
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := b.e.bars.Intraday(ctx, sym, day)
		if err != nil && !errors.Is(err, errs.ErrDataInsufficient) {
			return fmt.Errorf("intraday %s %s: %w", sym, day.Format("2006-01-02"), err)
		}
		if err != nil || f.Len() == 0 {
			if slices.Contains(cands, sym) {
				missing = append(missing, sym)
			}
			b.event(Event{Type: EventMinutesMissing, Time: day, Symbol: sym})
			continue
		}
		if err := b.replay(ms, day, cands, sym, f, lastOfWeek); err != nil {
			return err
		}
	}

	if len(cands) > 0 && len(missing) > 0 {
		e := &InsufficientMinutesError{Day: day, Missing: missing, Candidates: len(cands), Threshold: b.e.cfg.threshold()}
		if e.Ratio() > e.Threshold {
			return e
		}
		b.e.log.Warn("[DEGRADED] minute bars missing", "day", day.Format("2006-01-02"), "codes", strings.Join(missing, ","))
	}
	return nil
}

func (b *book) replay(ms MinuteStrategy, day time.Time, cands []string, sym string, f market.Frame, lastOfWeek bool) error {
	var pending *OrderRequest
	var last *market.Candle
	for i := range f.Bars {
		c := f.Bars[i]
		if !market.InTradingWindow(c.Time) {
			continue
		}
		if pending != nil {
			if err := b.execute(sym, day, c, pending); err != nil {
				return err
			}
			pending = nil
		}
		b.lastPx[sym] = c.Close

		req := ms.OnBar(&Context{Day: day, Symbol: sym, Candidates: cands, Position: b.holding(sym)}, c)
		if req != nil {
			_, held := b.pos[sym]
			if (req.Side == journal.SideBuy && !held) || (req.Side == journal.SideSell && held) {
				pending = req
			}
		}
		last = &f.Bars[i]
	}
	if lastOfWeek && last != nil {
		return b.flat(sym, day, *last)
	}
	return nil
}

func (b *book) execute(sym string, day time.Time, c market.Candle, req *OrderRequest) error {
	if c.OneWord() {
		b.noFill(sym, req.Side, c.Time)
		return nil
	}
	px := b.e.cfg.Fees.FillPrice(c.Open, req.Side)
	if req.Side == journal.SideBuy {
		return b.buy(sym, c.Time, px, req.Reason)
	}
	if !b.holding(sym).Sellable(day) {
		b.event(Event{Type: EventT1Blocked, Time: c.Time, Symbol: sym, Side: journal.SideSell, Detail: req.Reason})
		return nil
	}
	return b.sell(sym, c.Time, px, req.Reason)
}

func (b *book) dailyBar(ctx context.Context, sym string, day time.Time) (market.Candle, bool, error) {
	bars, ok := b.daily[sym]
	if !ok {
		f, err := b.e.bars.Daily(ctx, sym, b.e.cfg.Start.AddDate(0, 0, -10), b.e.cfg.End)
		if err != nil && !errors.Is(err, errs.ErrDataInsufficient) {
			return market.Candle{}, false, fmt.Errorf("daily %s: %w", sym, err)
		}
		bars = make(map[string]market.Candle, f.Len())
		for _, c := range f.Bars {
			bars[c.Time.Format("2006-01-02")] = c
		}
		b.daily[sym] = bars
	}
	c, ok := bars[day.Format("2006-01-02")]
	return c, ok, nil
}

func (b *book) dailyDay(ctx context.Context, ds DailyStrategy, day time.Time, cands []string, lastOfWeek bool) error {
	open := sessionTime(day, 9, 30)
	closing := sessionTime(day, 15, 0)

	for _, sym := range b.held() {
		c, ok, err := b.dailyBar(ctx, sym, day)
		if err != nil {
			return err
		}
		if !ok || !b.holding(sym).Sellable(day) {
			continue
		}
		if c.OneWord() {
			b.noFill(sym, journal.SideSell, open)
			continue
		}
		if err := b.sell(sym, open, b.e.cfg.Fees.FillPrice(c.Open, journal.SideSell), ReasonT1Open); err != nil {
			return err
		}
	}

	for _, sym := range ds.Buys(cands) {
		if _, held := b.pos[sym]; held {
			continue
		}
		c, ok, err := b.dailyBar(ctx, sym, day)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if c.OneWord() {
			b.noFill(sym, journal.SideBuy, open)
			continue
		}
		if err := b.buy(sym, open, b.e.cfg.Fees.FillPrice(c.Open, journal.SideBuy), ReasonDailyOpen); err != nil {
			return err
		}
	}

	for _, sym := range b.held() {
		c, ok, err := b.dailyBar(ctx, sym, day)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b.lastPx[sym] = c.Close
		if lastOfWeek {
			c.Time = closing
			if err := b.flat(sym, day, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *book) markDay(day time.Time, lastOfWeek bool) error {
	mv := decimal.Zero
	for _, sym := range b.held() {
		p := b.pos[sym]
		px := p.cost
		if last, ok := b.lastPx[sym]; ok {
			px = decimal.NewFromFloat(last)
		}
		mv = mv.Add(px.Mul(decimal.NewFromInt(p.shares)))
	}
	mark := journal.EquityMark{
		RunID:       b.runID,
		Strategy:    b.strat.Name(),
		Day:         day,
		Cash:        b.cash.Round(2).InexactFloat64(),
		MarketValue: mv.Round(2).InexactFloat64(),
		NAV:         b.cash.Add(mv).Round(2).InexactFloat64(),
	}
	b.res.Equity = append(b.res.Equity, mark)

	w := &b.week
	if !w.active {
		*w = weekAcc{active: true, start: day, startNAV: b.nav, peak: b.nav, trades: w.trades, wins: w.wins, notFilled: w.notFilled}
	}
	b.nav = mark.NAV
	w.peak = max(w.peak, mark.NAV)
	if w.peak > 0 {
		w.drawdown = min(w.drawdown, mark.NAV/w.peak-1)
	}
	if lastOfWeek {
		winRate := 0.0
		if w.trades > 0 {
			winRate = float64(w.wins) / float64(w.trades)
		}
		ret := 0.0
		if w.startNAV > 0 {
			ret = mark.NAV/w.startNAV - 1
		}
		b.res.Weeks = append(b.res.Weeks, journal.WeekSummary{
			WeekStart: w.start,
			WeekEnd:   day,
			Strategy:  b.strat.Name(),
			WinRate:   winRate,
			Return:    ret,
			Drawdown:  w.drawdown,
			Trades:    w.trades,
			NotFilled: w.notFilled,
		})
		b.week = weekAcc{}
	}

	return b.sink.RecordEquity(mark)
}

func sessionTime(day time.Time, h, m int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location())
}
