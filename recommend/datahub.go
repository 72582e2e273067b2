package recommend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/provider"
)

// DefaultLookbackDays is the calendar-day history fetched per symbol,
// enough for roughly 250 daily bars.
const DefaultLookbackDays = 400

// Source is one fetch made during a run.
type Source struct {
	Kind            string `json:"kind"` // snapshot, daily, index
	Symbol          string `json:"symbol,omitempty"`
	Source          string `json:"source"`
	Rows            int    `json:"rows"`
	Cache           string `json:"cache,omitempty"`
	AmountEstimated bool   `json:"amount_is_estimated,omitempty"`
	Error           string `json:"error,omitempty"`
}

// hub reads everything a run needs from one provider, bounded to the
// lookback window ending at asOf, and records every fetch.
type hub struct {
	p        provider.Provider
	asOf     time.Time
	lookback int
	log      *slog.Logger

	sources []Source
	badData error
}

func newHub(p provider.Provider, asOf time.Time, lookback int, log *slog.Logger) *hub {
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	return &hub{p: p, asOf: asOf, lookback: lookback, log: log}
}

func (h *hub) end() time.Time {
	y, m, d := h.asOf.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, h.asOf.Location())
}

func (h *hub) record(kind, symbol string, f market.Frame, err error) {
	s := Source{
		Kind:            kind,
		Symbol:          symbol,
		Source:          f.Meta.Source,
		Rows:            f.Len(),
		AmountEstimated: f.Meta.AmountIsEstimated,
	}
	if s.Source == "" {
		s.Source = h.p.Name()
	}
	if err != nil {
		s.Error = err.Error()
		if h.badData == nil && errors.Is(err, errs.ErrBadData) {
			h.badData = err
		}
	}
	h.sources = append(h.sources, s)
}

// Daily satisfies candidates.DailySource.
func (h *hub) Daily(ctx context.Context, symbol string) (market.Frame, error) {
	f, err := h.p.Daily(ctx, symbol, h.asOf.AddDate(0, 0, -h.lookback), h.end())
	h.record("daily", symbol, f, err)
	return f, err
}

// indices fetches the regime proxies. Failures are logged and left out.
func (h *hub) indices(ctx context.Context) map[string]market.Frame {
	out := make(map[string]market.Frame, len(market.RegimeIndices))
	for _, code := range market.RegimeIndices {
		f, err := h.p.Daily(ctx, code, h.asOf.AddDate(0, 0, -h.lookback), h.end())
		h.record("index", code, f, err)
		if err != nil || f.Len() == 0 {
			h.log.Debug("index bars unavailable", "index", code, "err", err)
			continue
		}
		out[code] = f
	}
	return out
}

func (h *hub) snapshot(ctx context.Context) (*market.Snapshot, error) {
	snap, err := h.p.Snapshot(ctx)
	s := Source{Kind: "snapshot", Source: h.p.Name()}
	if err != nil {
		s.Error = err.Error()
	} else {
		s.Source, s.Rows, s.Cache = snap.Source, snap.Len(), snap.Cache
	}
	h.sources = append(h.sources, s)
	return snap, err
}
