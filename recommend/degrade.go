package recommend

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rustyeddy/ashare/guard"
	"github.com/rustyeddy/ashare/pkg/logging"
)

// Degrade reason codes. Any of them makes a run not tradeable.
const (
	SnapshotMissing      = "SNAPSHOT_MISSING"
	SnapshotCache        = "SNAPSHOT_CACHE"
	EnvNeutralized       = "ENV_NEUTRALIZED"
	ThemesEmpty          = "THEMES_EMPTY"
	UniverseTooSmall     = "UNIVERSE_TOO_SMALL"
	CandidateTooSmall    = "CANDIDATE_TOO_SMALL"
	BarsTooShort         = "BARS_TOO_SHORT"
	IndicatorPartial     = "INDICATOR_PARTIAL"
	StrategyEvalFailed   = "STRATEGY_EVAL_FAILED"
	InsufficientEvidence = "INSUFFICIENT_EVIDENCE_TRADEABLE"

	// Advisory only.
	ChampionUnavailable = "CHAMPION_UNAVAILABLE"
	PlanRiskChecks      = "PLAN_RISK_CHECKS"
)

// Advisory is a soft warning that leaves the tradeable flag alone.
type Advisory struct {
	Code    string   `json:"code"`
	Symbols []string `json:"symbols,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

// ledger collects degrade reasons in the order they were found. Each
// code is kept once; later details for the same code are dropped.
type ledger struct {
	reasons    []guard.Reason
	advisories []Advisory
	log        *slog.Logger
}

func (l *ledger) add(code string, detail map[string]any) {
	for _, r := range l.reasons {
		if r.Code == code {
			return
		}
	}
	if detail == nil {
		detail = map[string]any{}
	}
	l.reasons = append(l.reasons, guard.Reason{Code: code, Detail: detail})
}

func (l *ledger) advise(a Advisory) {
	l.advisories = append(l.advisories, a)
	logging.WarnOnce(l.log, a.Code, a.Detail)
}

func (l *ledger) degraded() bool { return len(l.reasons) > 0 }

// announce logs the first three reasons once each.
func (l *ledger) announce() {
	for _, r := range l.reasons[:min(3, len(l.reasons))] {
		logging.WarnOnce(l.log, r.Code, r.Code+" "+formatDetail(r.Detail))
	}
}

func formatDetail(d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, d[k])
	}
	return strings.Join(parts, " ")
}
