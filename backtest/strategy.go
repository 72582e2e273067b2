package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/ashare/journal"
	"github.com/rustyeddy/ashare/market"
)

// Strategy is the common surface of every backtest strategy. A strategy is
// either a MinuteStrategy or a DailyStrategy.
type Strategy interface {
	Name() string
	// PerStockCash is the fraction of cash committed to each buy.
	PerStockCash() float64
	Params() map[string]any
}

// MinuteStrategy observes 5-minute bars. Requests returned by OnBar are
// confirmed at the bar close and fill at the next bar's open.
type MinuteStrategy interface {
	Strategy
	OnDayStart(day time.Time, candidates []string)
	OnBar(ctx *Context, c market.Candle) *OrderRequest
}

// DailyStrategy buys at the day's open. Holdings are sold at the next
// day's open.
type DailyStrategy interface {
	Strategy
	Buys(candidates []string) []string
}

// Context is the view a minute strategy gets of the symbol being replayed.
type Context struct {
	Day        time.Time
	Symbol     string
	Candidates []string
	// Position is nil when the symbol is not held.
	Position *Holding
}

// Holding is a read-only view of an open position.
type Holding struct {
	Shares int64
	Cost   float64
	BuyDay time.Time
}

// Sellable reports whether T+1 allows selling on day.
func (h *Holding) Sellable(day time.Time) bool {
	return h != nil && dayOf(h.BuyDay).Before(dayOf(day))
}

type OrderRequest struct {
	Side   string
	Reason string
}

const (
	ReasonTimeEntry  = "TIME_ENTRY"
	ReasonTimeExit   = "TIME_EXIT"
	ReasonStopLoss   = "STOP_LOSS"
	ReasonTakeProfit = "TAKE_PROFIT"
	ReasonDailyOpen  = "DAILY_OPEN"
	ReasonT1Open     = "T1_OPEN"
	ReasonWeekFlat   = "WEEK_FLAT"
)

// TimeEntryParams configure TimeEntryMin5. Times are bar close times,
// HH:MM:SS.
type TimeEntryParams struct {
	EntryTime     string  `json:"entry_time" yaml:"entry_time"`
	ExitTime      string  `json:"exit_time" yaml:"exit_time"`
	PickRank      int     `json:"pick_rank" yaml:"pick_rank"`
	TopK          int     `json:"top_k" yaml:"top_k"`
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	PerStockCash  float64 `json:"per_stock_cash" yaml:"per_stock_cash"`
}

func DefaultTimeEntryParams() TimeEntryParams {
	return TimeEntryParams{
		EntryTime:    "10:00:00",
		ExitTime:     "10:00:00",
		PickRank:     1,
		TopK:         1,
		PerStockCash: 0.25,
	}
}

// TimeEntryMin5 buys the top-ranked candidates when the entry-time bar
// closes and exits from the next day on at the exit time, or earlier on a
// stop-loss or take-profit close.
type TimeEntryMin5 struct {
	P           TimeEntryParams
	boughtToday map[string]bool
}

func NewTimeEntryMin5(p TimeEntryParams) *TimeEntryMin5 {
	return &TimeEntryMin5{P: p, boughtToday: map[string]bool{}}
}

func (s *TimeEntryMin5) Name() string          { return "time_entry_min5" }
func (s *TimeEntryMin5) PerStockCash() float64 { return s.P.PerStockCash }
func (s *TimeEntryMin5) Params() map[string]any {
	return toMap(s.P)
}

func (s *TimeEntryMin5) OnDayStart(day time.Time, candidates []string) {
	clear(s.boughtToday)
}

func (s *TimeEntryMin5) OnBar(ctx *Context, c market.Candle) *OrderRequest {
	hhmmss := c.Time.Format("15:04:05")

	if h := ctx.Position; h != nil {
		if !h.Sellable(ctx.Day) {
			return nil
		}
		switch {
		case s.P.StopLossPct > 0 && c.Close <= h.Cost*(1-s.P.StopLossPct):
			return &OrderRequest{Side: journal.SideSell, Reason: ReasonStopLoss}
		case s.P.TakeProfitPct > 0 && c.Close >= h.Cost*(1+s.P.TakeProfitPct):
			return &OrderRequest{Side: journal.SideSell, Reason: ReasonTakeProfit}
		case hhmmss >= s.P.ExitTime:
			return &OrderRequest{Side: journal.SideSell, Reason: ReasonTimeExit}
		}
		return nil
	}

	if !s.allowed(ctx.Symbol, ctx.Candidates) {
		return nil
	}
	if hhmmss == s.P.EntryTime && !s.boughtToday[ctx.Symbol] {
		s.boughtToday[ctx.Symbol] = true
		return &OrderRequest{Side: journal.SideBuy, Reason: ReasonTimeEntry}
	}
	return nil
}

func (s *TimeEntryMin5) allowed(symbol string, cands []string) bool {
	n := min(max(s.P.TopK, s.P.PickRank), len(cands))
	for _, c := range cands[:n] {
		if c == symbol {
			return true
		}
	}
	return false
}

type BaselineDailyParams struct {
	BuyTopK      int     `json:"buy_top_k" yaml:"buy_top_k"`
	PerStockCash float64 `json:"per_stock_cash" yaml:"per_stock_cash"`
}

func DefaultBaselineDailyParams() BaselineDailyParams {
	return BaselineDailyParams{BuyTopK: 1, PerStockCash: 0.25}
}

// BaselineDaily buys the top K candidates at each open and sells them at
// the next open.
type BaselineDaily struct {
	P BaselineDailyParams
}

func (s *BaselineDaily) Name() string           { return "baseline_daily" }
func (s *BaselineDaily) PerStockCash() float64  { return s.P.PerStockCash }
func (s *BaselineDaily) Params() map[string]any { return toMap(s.P) }

func (s *BaselineDaily) Buys(candidates []string) []string {
	return candidates[:min(s.P.BuyTopK, len(candidates))]
}

var factories = map[string]func(raw map[string]any) (Strategy, error){
	"time_entry_min5": func(raw map[string]any) (Strategy, error) {
		p := DefaultTimeEntryParams()
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		p.EntryTime, p.ExitTime = normClock(p.EntryTime), normClock(p.ExitTime)
		return NewTimeEntryMin5(p), nil
	},
	"baseline_daily": func(raw map[string]any) (Strategy, error) {
		p := DefaultBaselineDailyParams()
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return &BaselineDaily{P: p}, nil
	},
}

// Names lists the registered strategies.
func Names() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds a strategy by name, overlaying raw params on its defaults.
func New(name string, raw map[string]any) (Strategy, error) {
	f, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown backtest strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	s, err := f(raw)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

func decodeParams(raw map[string]any, into any) error {
	if len(raw) == 0 {
		return nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func toMap(v any) map[string]any {
	out := map[string]any{}
	b, err := yaml.Marshal(v)
	if err != nil {
		return out
	}
	_ = yaml.Unmarshal(b, &out)
	return out
}

// normClock accepts HH:MM and HH:MM:SS.
func normClock(s string) string {
	if len(s) == 5 {
		return s + ":00"
	}
	return s
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
