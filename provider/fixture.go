package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rustyeddy/ashare/market"
	"github.com/rustyeddy/ashare/pkg/errs"
)

// fixtureEpoch anchors every synthetic series so a bar does not depend on
// the requested range.
var fixtureEpoch = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

var fixtureIndustries = []string{"银行", "半导体", "医药", "汽车", "电力", "软件", "白酒", "化工", "军工", "光伏"}

// Fixture generates deterministic synthetic markets for demos and tests.
// Its frames carry market.SourceFixture, which strict mode refuses.
type Fixture struct {
	seed    uint64
	symbols int
	strict  bool
	loc     *time.Location
	norm    market.Normalizer
}

func NewFixture(o Options) *Fixture {
	f := &Fixture{seed: o.Seed, symbols: o.Symbols, strict: o.StrictRealData, loc: o.location(), norm: o.normalizer()}
	if f.symbols <= 0 {
		f.symbols = 300
	}
	return f
}

func (f *Fixture) Name() string { return market.SourceFixture }

func (f *Fixture) rng(symbol string, salt uint64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(TSCode(symbol)))
	return rand.New(rand.NewPCG(f.seed^salt, h.Sum64()))
}

func (f *Fixture) today() time.Time {
	return dayStart(time.Now().In(f.loc))
}

// series walks from the epoch to end, one bar per trading day.
func (f *Fixture) series(symbol string, end time.Time) market.RawFrame {
	r := f.rng(symbol, 0)
	px := 5 + r.Float64()*45
	raw := market.RawFrame{Symbol: TSCode(symbol), Source: market.SourceFixture}
	epoch := time.Date(fixtureEpoch.Year(), fixtureEpoch.Month(), fixtureEpoch.Day(), 0, 0, 0, 0, f.loc)
	for d := epoch; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !market.IsTradingDay(d) {
			continue
		}
		open := px * (1 + r.NormFloat64()*0.005)
		closePx := open * (1 + r.NormFloat64()*0.018 + 0.0003)
		closePx = math.Max(closePx, 0.5)
		high := math.Max(open, closePx) * (1 + r.Float64()*0.01)
		low := math.Min(open, closePx) * (1 - r.Float64()*0.01)
		vol := math.Round(1e5 + r.Float64()*9e5)
		raw.Rows = append(raw.Rows, market.RawBar{
			Time:      d,
			Open:      round2(open),
			High:      round2(high),
			Low:       round2(low),
			Close:     round2(closePx),
			Volume:    vol,
			Amount:    math.NaN(),
			Turnover:  0.5 + r.Float64()*4,
			AdjFactor: 1,
		})
		px = closePx
	}
	// rounding can push open/close past the extremes
	for i := range raw.Rows {
		b := &raw.Rows[i]
		b.High = math.Max(b.High, math.Max(b.Open, b.Close))
		b.Low = math.Min(b.Low, math.Min(b.Open, b.Close))
	}
	return raw
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func (f *Fixture) Daily(ctx context.Context, symbol string, start, end time.Time) (market.Frame, error) {
	if end.IsZero() {
		end = f.today()
	}
	fr, err := f.norm.Daily(f.series(symbol, end), string(market.UnitHand))
	if err != nil {
		return market.Frame{}, err
	}
	return inRange(fr, start, end), nil
}

// Intraday splits the day's daily bar into 48 five-minute bars.
func (f *Fixture) Intraday(ctx context.Context, symbol string, day time.Time) (market.Frame, error) {
	d := dayStart(day.In(f.loc))
	daily, err := f.Daily(ctx, symbol, d, d)
	if err != nil {
		return market.Frame{}, err
	}
	if daily.Len() == 0 {
		return market.Frame{}, errs.Insufficient("fixture intraday", "%s: %s is not a trading day", symbol, d.Format(time.DateOnly))
	}
	bar := daily.Last()
	slots := minuteSlots(d)
	r := f.rng(symbol, uint64(d.Unix()))
	raw := market.RawFrame{Symbol: TSCode(symbol), Source: market.SourceFixture}
	prev := bar.Open
	per := float64(bar.Volume) / float64(len(slots)) / market.SharesPerHand
	for i, t := range slots {
		next := bar.Open + (bar.Close-bar.Open)*float64(i+1)/float64(len(slots))
		next += (r.Float64() - 0.5) * 0.002 * bar.Open
		if i == len(slots)-1 {
			next = bar.Close
		}
		next = math.Min(math.Max(next, bar.Low), bar.High)
		hi := math.Min(math.Max(prev, next)*(1+r.Float64()*0.001), bar.High)
		lo := math.Max(math.Min(prev, next)*(1-r.Float64()*0.001), bar.Low)
		raw.Rows = append(raw.Rows, market.RawBar{
			Time: t, Open: prev, High: hi, Low: lo, Close: next,
			Volume: math.Round(per), Amount: math.NaN(), Turnover: math.NaN(), AdjFactor: 1,
		})
		prev = next
	}
	return f.norm.Minute(raw, string(market.UnitHand))
}

// minuteSlots are the bar-close stamps 09:35..11:30 and 13:05..15:00.
func minuteSlots(d time.Time) []time.Time {
	var out []time.Time
	for _, s := range [][2]int{{9*60 + 35, 11*60 + 30}, {13*60 + 5, 15 * 60}} {
		for m := s[0]; m <= s[1]; m += 5 {
			out = append(out, d.Add(time.Duration(m)*time.Minute))
		}
	}
	return out
}

func (f *Fixture) code(i int) string {
	if i%2 == 0 {
		return fmt.Sprintf("6%05d", 1000+i)
	}
	return fmt.Sprintf("00%04d", 1000+i)
}

func (f *Fixture) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	if f.strict {
		return nil, errs.BadData("fixture snapshot", "synthetic snapshot refused in strict mode")
	}
	today := market.NearestTradingDay(f.today())
	snap := &market.Snapshot{AsOf: today.Add(15 * time.Hour), Source: market.SourceFixture}
	for i := range f.symbols {
		code := f.code(i)
		fr, err := f.Daily(ctx, code, today.AddDate(0, 0, -7), today)
		if err != nil {
			return nil, err
		}
		if fr.Len() < 2 {
			continue
		}
		last, prev := fr.Bars[fr.Len()-1], fr.Bars[fr.Len()-2]
		snap.Quotes = append(snap.Quotes, market.Quote{
			Code:      code,
			Name:      fmt.Sprintf("样本%03d", i),
			Price:     last.Close,
			Amount:    last.Amount,
			ChangePct: (last.Close/prev.Close - 1) * 100,
			Industry:  fixtureIndustries[i%len(fixtureIndustries)],
			ListDate:  fixtureEpoch.AddDate(-1-i%5, 0, 0),
		})
	}
	return snap, nil
}

func (f *Fixture) StockBasic(ctx context.Context) ([]market.StockBasic, error) {
	out := make([]market.StockBasic, f.symbols)
	for i := range out {
		out[i] = market.StockBasic{TSCode: TSCode(f.code(i)), Name: fmt.Sprintf("样本%03d", i)}
	}
	return out, nil
}

func (f *Fixture) Health(ctx context.Context) Health {
	h := Health{Name: f.Name(), OK: !f.strict}
	if f.strict {
		h.Reason = "synthetic data disabled by strict_real_data"
	}
	return h
}
