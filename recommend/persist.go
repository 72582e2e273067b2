package recommend

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rustyeddy/ashare/evaluate"
	"github.com/rustyeddy/ashare/pkg/id"
	"github.com/rustyeddy/ashare/strategies"
)

// SymbolRun is one strategy's result for one symbol.
type SymbolRun struct {
	Symbol string              `json:"symbol"`
	Setups int                 `json:"setups"`
	Latest *strategies.Setup   `json:"latest_setup,omitempty"`
	Event  evaluate.EventStats `json:"event"`
	CV     evaluate.CVStats    `json:"cv"`
}

// StrategyRun is 03_strategy_runs/<id>.json.
type StrategyRun struct {
	StrategyID  string      `json:"strategy_id"`
	Name        string      `json:"name"`
	ObserveOnly bool        `json:"observe_only"`
	Results     []SymbolRun `json:"results"`
}

func (r *run) strategyRun(s strategies.Strategy) *StrategyRun {
	sr, ok := r.strategyRuns[s.ID()]
	if !ok {
		sr = &StrategyRun{StrategyID: s.ID(), Name: s.Name(), ObserveOnly: s.ObserveOnly(), Results: []SymbolRun{}}
		r.strategyRuns[s.ID()] = sr
	}
	return sr
}

func (sr *StrategyRun) add(symbol string, setups []strategies.Setup, es evaluate.EventStats, cv evaluate.CVStats) {
	res := SymbolRun{Symbol: symbol, Setups: len(setups), Event: es, CV: cv}
	if s, ok := strategies.Latest(setups); ok {
		res.Latest = &s
	}
	sr.Results = append(sr.Results, res)
}

// runID is stable for a provider, date and lookback so a rerun replaces
// its own directory.
func runID(providerName string, asOf time.Time, lookback int) string {
	return id.RunID(providerName, asOf.Format("20060102"), lookback)
}

// Artifact names inside a pipeline run directory.
var artifacts = map[string]string{
	"01_market_context":      "01_market_context.json",
	"01_sources":             "01_sources.jsonl",
	"02_selected_strategies": "02_selected_strategies.json",
	"03_dir":                 "03_strategy_runs/",
	"04_champion":            "04_champion.json",
	"05_final_response_json": "05_final_response.json",
	"05_final_response_txt":  "05_final_response.txt",
}

type runIndex struct {
	RunID     string            `json:"run_id"`
	EndDate   string            `json:"end_date"`
	CreatedAt time.Time         `json:"created_at"`
	Artifacts map[string]string `json:"artifacts"`
}

// RunDir is where a run's pipeline artifacts live.
func RunDir(out, runID string) string {
	return filepath.Join(out, "pipeline_runs", runID)
}

// DailyPath is <out>/recommend/<YYYY-MM-DD>.json.
func DailyPath(out, asOf string) string {
	return filepath.Join(out, "recommend", asOf+".json")
}

func (r *run) persist(p *Payload) error {
	out := r.e.opt.OutDir
	recDir := filepath.Join(out, "recommend")
	runDir := RunDir(out, r.id)
	for _, d := range []string{recDir, filepath.Join(runDir, "03_strategy_runs")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	if err := writeJSON(DailyPath(out, p.AsOf), p); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(recDir, p.AsOf+"_debug.json"), p.Debug); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(recDir, p.AsOf+"_sources.json"), r.hub.sources); err != nil {
		return err
	}

	ctx := map[string]any{
		"as_of":    p.AsOf,
		"timezone": p.Timezone,
		"env":      p.Env,
		"themes":   p.Themes,
		"snapshot": p.Debug.Snapshot,
	}
	if err := writeJSON(filepath.Join(runDir, artifacts["01_market_context"]), ctx); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(runDir, artifacts["01_sources"]), r.hub.sources); err != nil {
		return err
	}

	ids := make([]string, 0, len(r.strategyRuns))
	for sid := range r.strategyRuns {
		ids = append(ids, sid)
	}
	sort.Strings(ids)
	selected := make([]map[string]any, 0, len(ids))
	for _, sid := range strategies.IDs() {
		sr, ok := r.strategyRuns[sid]
		if !ok {
			continue
		}
		selected = append(selected, map[string]any{"strategy_id": sr.StrategyID, "name": sr.Name, "observe_only": sr.ObserveOnly})
	}
	if err := writeJSON(filepath.Join(runDir, artifacts["02_selected_strategies"]), map[string]any{"selected": selected}); err != nil {
		return err
	}
	for _, sid := range ids {
		if err := writeJSON(filepath.Join(runDir, "03_strategy_runs", sid+".json"), r.strategyRuns[sid]); err != nil {
			return err
		}
	}
	if err := writeJSON(filepath.Join(runDir, artifacts["04_champion"]), map[string]any{"by_symbol": r.champions}); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(runDir, artifacts["05_final_response_json"]), p); err != nil {
		return err
	}
	txt, err := Render(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(runDir, artifacts["05_final_response_txt"]), []byte(txt), 0o644); err != nil {
		return err
	}

	idx := runIndex{RunID: r.id, EndDate: p.AsOf, CreatedAt: time.Now().UTC(), Artifacts: artifacts}
	return writeJSON(filepath.Join(runDir, "index.json"), idx)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func writeJSONL(path string, rows []Source) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
