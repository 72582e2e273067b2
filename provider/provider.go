// Package provider is the market data port: one interface for daily and
// 5-minute bars, the spot snapshot and the listing table, a registry
// that builds an implementation by name, and the concrete adapters.
//
// Every implementation returns canonical frames (see market.Normalizer)
// and surfaces upstream failures as errs.ErrProvider.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
)

// Provider is implemented by every market data source. Zero start or end
// times leave that side of the range open.
type Provider interface {
	Name() string
	Daily(ctx context.Context, symbol string, start, end time.Time) (market.Frame, error)
	Intraday(ctx context.Context, symbol string, day time.Time) (market.Frame, error)
	Snapshot(ctx context.Context) (*market.Snapshot, error)
	StockBasic(ctx context.Context) ([]market.StockBasic, error)
	// Health never fails; problems are reported in Reason.
	Health(ctx context.Context) Health
}

type Health struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

const (
	AdjustNone = "none"
	AdjustQFQ  = "qfq"

	DefaultTimeout = 20 * time.Second
)

// Options configure the adapters. Each adapter reads what it needs.
type Options struct {
	// Root is the local data directory.
	Root string
	// Codes are the symbols the sina snapshot quotes.
	Codes []string
	// KlineURL and ListURL override the eastmoney hosts, QuoteURL the sina
	// host.
	KlineURL string
	ListURL  string
	QuoteURL string

	DailyAdjust    string
	StrictRealData bool
	Timeout        time.Duration
	Client         *http.Client
	Location       *time.Location
	Logger         *slog.Logger
	// Seed and Symbols drive the fixture provider.
	Seed    uint64
	Symbols int
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	t := o.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	return &http.Client{Timeout: t}
}

func (o Options) location() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return market.LoadLocation(market.DefaultTimezone)
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) normalizer() market.Normalizer {
	return market.Normalizer{StrictRealData: o.StrictRealData}
}

type Factory func(Options) (Provider, error)

var factories = map[string]Factory{
	"local": func(o Options) (Provider, error) {
		l, err := NewLocal(o)
		if err != nil {
			return nil, err
		}
		return l, nil
	},
	"eastmoney": func(o Options) (Provider, error) { return NewEastmoney(o), nil },
	"sina":      func(o Options) (Provider, error) { return NewSina(o), nil },
	"fixture":   func(o Options) (Provider, error) { return NewFixture(o), nil },
}

// Names lists the registered providers, sorted.
func Names() []string {
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds the provider registered under name. An unknown name is a
// config error.
func New(name string, o Options) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	f, ok := factories[key]
	if !ok {
		return nil, errs.Config("provider", "unknown data provider %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(o)
}

// CheckAll runs Health on every registered provider.
func CheckAll(ctx context.Context, o Options) []Health {
	out := make([]Health, 0, len(factories))
	for _, n := range Names() {
		p, err := New(n, o)
		if err != nil {
			out = append(out, Health{Name: n, Reason: err.Error()})
			continue
		}
		out = append(out, p.Health(ctx))
	}
	return out
}

// Combined serves bars from one provider and the snapshot from another.
type Combined struct {
	Bars Provider
	Spot Provider
}

func (c Combined) Name() string { return c.Bars.Name() + "+" + c.Spot.Name() }

func (c Combined) Daily(ctx context.Context, symbol string, start, end time.Time) (market.Frame, error) {
	return c.Bars.Daily(ctx, symbol, start, end)
}

func (c Combined) Intraday(ctx context.Context, symbol string, day time.Time) (market.Frame, error) {
	return c.Bars.Intraday(ctx, symbol, day)
}

func (c Combined) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	return c.Spot.Snapshot(ctx)
}

func (c Combined) StockBasic(ctx context.Context) ([]market.StockBasic, error) {
	return c.Bars.StockBasic(ctx)
}

func (c Combined) Health(ctx context.Context) Health {
	b, s := c.Bars.Health(ctx), c.Spot.Health(ctx)
	h := Health{Name: c.Name(), OK: b.OK && s.OK}
	var reasons []string
	for _, x := range []Health{b, s} {
		if x.Reason != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", x.Name, x.Reason))
		}
	}
	h.Reason = strings.Join(reasons, "; ")
	return h
}

// unsupported is the error for an operation an adapter does not serve.
func unsupported(name, op string) error {
	return errs.Provider(name+" "+op, fmt.Errorf("not supported"))
}

// inRange keeps bars whose date lies in [start, end], comparing dates only.
func inRange(f market.Frame, start, end time.Time) market.Frame {
	lo, hi := 0, f.Len()
	day := func(t time.Time) string { return t.Format(time.DateOnly) }
	if !start.IsZero() {
		for lo < hi && day(f.Bars[lo].Time) < day(start) {
			lo++
		}
	}
	if !end.IsZero() {
		for hi > lo && day(f.Bars[hi-1].Time) > day(end) {
			hi--
		}
	}
	return f.Slice(lo, hi)
}
