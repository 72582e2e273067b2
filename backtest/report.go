package backtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/ashare/journal"
	"github.com/rustyeddy/ashare/pkg/id"
)

const (
	StatusOK       = "OK"
	StatusNoSignal = "NO_SIGNAL"
)

// Metrics is metrics.json. NetReturn equals GrossReturn less
// FeesPaid/initial cash.
type Metrics struct {
	GrossReturn float64 `json:"gross_return"`
	NetReturn   float64 `json:"net_return"`
	Turnover    float64 `json:"turnover"`
	FeesPaid    float64 `json:"fees_paid"`
}

type StrategyResult struct {
	Strategy string
	Params   map[string]any
	Fills    []journal.Fill
	Equity   []journal.EquityMark
	Weeks    []journal.WeekSummary
	Costs    Cost
	Metrics  Metrics

	NTrades     int
	WinRate     float64
	MaxDrawdown float64
	NoFillBuy   int
	NoFillSell  int
	ForcedFlat  int
	Status      string
	FinalNAV    float64
}

// finish derives the summary metrics once the last day is marked.
func (b *book) finish() {
	r := b.res
	initial := b.e.cfg.InitialCash

	r.FinalNAV = initial
	if n := len(r.Equity); n > 0 {
		r.FinalNAV = r.Equity[n-1].NAV
	}
	fees := r.Costs.Total().InexactFloat64()
	turnover, _ := b.traded.Div(decimal.NewFromFloat(initial)).Float64()
	r.Metrics = Metrics{
		NetReturn: r.FinalNAV/initial - 1,
		Turnover:  turnover,
		FeesPaid:  fees,
	}
	r.Metrics.GrossReturn = r.Metrics.NetReturn + fees/initial

	peak := initial
	for _, m := range r.Equity {
		peak = max(peak, m.NAV)
		r.MaxDrawdown = min(r.MaxDrawdown, m.NAV/peak-1)
	}

	s := journal.Summarize(r.Fills)
	r.NTrades = s.Trades
	if s.Trades > 0 {
		r.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	r.Status = StatusOK
	if len(r.Fills) == 0 {
		r.Status = StatusNoSignal
	}
}

var CompareHeader = []string{"strategy", "n_trades", "win_rate", "total_return_net", "max_drawdown_net", "turnover", "no_fill_buy", "no_fill_sell", "forced_flat_count", "status"}

var CostsHeader = []string{"strategy", "fills", "traded_amount", "commission", "transfer_fee", "stamp_duty", "fees_paid"}

func (r *StrategyResult) CompareRow() []string {
	return []string{
		r.Strategy,
		strconv.Itoa(r.NTrades),
		fmtRatio(r.WinRate),
		fmtRatio(r.Metrics.NetReturn),
		fmtRatio(r.MaxDrawdown),
		fmtRatio(r.Metrics.Turnover),
		strconv.Itoa(r.NoFillBuy),
		strconv.Itoa(r.NoFillSell),
		strconv.Itoa(r.ForcedFlat),
		r.Status,
	}
}

func (r *StrategyResult) costsRow() []string {
	traded := 0.0
	for _, f := range r.Fills {
		traded += f.Amount
	}
	return []string{
		r.Strategy,
		strconv.Itoa(len(r.Fills)),
		strconv.FormatFloat(traded, 'f', 2, 64),
		r.Costs.Commission.StringFixed(2),
		r.Costs.Transfer.StringFixed(2),
		r.Costs.Stamp.StringFixed(2),
		r.Costs.Total().StringFixed(2),
	}
}

// write emits weekly_summary.csv, metrics.json and report.org into dir.
// trades.csv and daily_equity.csv are streamed during the run.
func (r *StrategyResult) write(dir, runID string, cfg Config, days []time.Time) error {
	if err := journal.WriteWeekly(filepath.Join(dir, "weekly_summary.csv"), r.Weeks); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "metrics.json"), r.Metrics); err != nil {
		return err
	}
	rep := &journal.RunReport{
		RunID:       runID,
		Strategy:    r.Strategy,
		Created:     time.Now(),
		Start:       days[0],
		End:         days[len(days)-1],
		Commit:      commitID(cfg.Commit),
		InitialCash: cfg.InitialCash,
		FinalNAV:    r.FinalNAV,
		GrossReturn: r.Metrics.GrossReturn,
		NetReturn:   r.Metrics.NetReturn,
		FeesPaid:    r.Metrics.FeesPaid,
		Turnover:    r.Metrics.Turnover,
		MaxDDPct:    r.MaxDrawdown,
		Summary:     journal.Summarize(r.Fills),
		NoFillBuy:   r.NoFillBuy,
		NoFillSell:  r.NoFillSell,
		ForcedFlat:  r.ForcedFlat,
		Status:      r.Status,
		Params:      r.Params,
	}
	return rep.WriteOrg(filepath.Join(dir, "report.org"))
}

type Report struct {
	RunID    string
	Dir      string
	Manifest Manifest
	Results  []*StrategyResult
}

func (r *Report) TotalFills() int {
	n := 0
	for _, s := range r.Results {
		n += len(s.Fills)
	}
	return n
}

// Result returns the named strategy's result, or nil.
func (r *Report) Result(strategy string) *StrategyResult {
	for _, s := range r.Results {
		if s.Strategy == strategy {
			return s
		}
	}
	return nil
}

func (r *Report) write() error {
	var compare, costs [][]string
	for _, s := range r.Results {
		compare = append(compare, s.CompareRow())
		costs = append(costs, s.costsRow())
	}
	if err := journal.WriteCSV(filepath.Join(r.Dir, "compare_strategies.csv"), CompareHeader, compare); err != nil {
		return err
	}
	if err := journal.WriteCSV(filepath.Join(r.Dir, "costs.csv"), CostsHeader, costs); err != nil {
		return err
	}
	return writeJSON(filepath.Join(r.Dir, "manifest.json"), r.Manifest)
}

// EnginePolicy records the execution rules a run used.
type EnginePolicy struct {
	Fill                string  `json:"fill"`
	TPlus               int     `json:"t_plus"`
	LotSize             int     `json:"lot_size"`
	OneWordBar          string  `json:"one_word_bar"`
	WeekEnd             string  `json:"week_end"`
	MinMissingThreshold float64 `json:"min_missing_threshold"`
}

type Manifest struct {
	RunID       string         `json:"run_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	TradingDays int            `json:"trading_days"`
	InitialCash float64        `json:"initial_cash"`
	Strategies  map[string]any `json:"strategies"`
	Engine      EnginePolicy   `json:"engine_policy"`
	CostModel   Fees           `json:"cost_model"`
	AsOfPolicy  string         `json:"asof_policy"`
	Commit      string         `json:"commit"`
	ConfigHash  string         `json:"config_hash"`
	ConfigFiles []string       `json:"config_files"`
}

const asOfPolicy = "candidate_pool_<YYYYMMDD>.csv is read before the open of its day; signals use bars up to the confirming bar close"

func (e *Engine) manifest(runID string, days []time.Time, strats []Strategy) (Manifest, error) {
	hash, err := id.ContentHash(e.cfg.ConfigFiles...)
	if err != nil {
		return Manifest{}, err
	}
	params := make(map[string]any, len(strats))
	for _, s := range strats {
		params[s.Name()] = s.Params()
	}
	return Manifest{
		RunID:       runID,
		CreatedAt:   time.Now().UTC(),
		Start:       days[0].Format("2006-01-02"),
		End:         days[len(days)-1].Format("2006-01-02"),
		TradingDays: len(days),
		InitialCash: e.cfg.InitialCash,
		Strategies:  params,
		Engine: EnginePolicy{
			Fill:                "next_bar_open_with_slippage",
			TPlus:               1,
			LotSize:             LotSize,
			OneWordBar:          "no_fill",
			WeekEnd:             "force_flat_at_last_bar",
			MinMissingThreshold: e.cfg.threshold(),
		},
		CostModel:   e.cfg.Fees,
		AsOfPolicy:  asOfPolicy,
		Commit:      commitID(e.cfg.Commit),
		ConfigHash:  hash,
		ConfigFiles: e.cfg.ConfigFiles,
	}, nil
}

// commitID prefers an explicit id, then the VCS revision stamped into the
// binary.
func commitID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func fmtRatio(x float64) string {
	return strconv.FormatFloat(x, 'f', 4, 64)
}
