package market

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/ashare/pkg/errs"
)

// ParseVolumeUnit maps a provider hint to a unit. Empty means shares.
func ParseVolumeUnit(hint string) (VolumeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "", "share", "shares", "股":
		return UnitShare, nil
	case "hand", "hands", "lot", "手":
		return UnitHand, nil
	default:
		return "", errs.BadData("normalize", "unknown volume unit %q", hint)
	}
}

// Normalizer converts provider frames to canonical frames. The zero
// value accepts any source.
type Normalizer struct {
	// StrictRealData refuses frames whose source is SourceFixture.
	StrictRealData bool
}

// NormalizeDaily normalizes with a permissive Normalizer.
func NormalizeDaily(raw RawFrame, hint string) (Frame, error) {
	return Normalizer{}.Daily(raw, hint)
}

// NormalizeMinute normalizes with a permissive Normalizer.
func NormalizeMinute(raw RawFrame, hint string) (Frame, error) {
	return Normalizer{}.Minute(raw, hint)
}

// Daily coerces row times to dates, sorts ascending, keeps the last of
// duplicate dates, converts hands to shares and estimates missing amount.
func (n Normalizer) Daily(raw RawFrame, hint string) (Frame, error) {
	return n.normalize(raw, hint, FreqDaily, func(t time.Time) (time.Time, bool) {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), true
	})
}

// Minute is Daily at 5-minute resolution. Bars outside the trading
// window are dropped.
func (n Normalizer) Minute(raw RawFrame, hint string) (Frame, error) {
	return n.normalize(raw, hint, Freq5Min, func(t time.Time) (time.Time, bool) {
		return t.Truncate(time.Second), InTradingWindow(t)
	})
}

func (n Normalizer) normalize(raw RawFrame, hint, freq string, key func(time.Time) (time.Time, bool)) (Frame, error) {
	const op = "normalize"

	unit, err := ParseVolumeUnit(hint)
	if err != nil {
		return Frame{}, err
	}
	if n.StrictRealData && raw.Source == SourceFixture {
		return Frame{}, errs.BadData(op, "%s: synthetic frame refused in strict mode", raw.Symbol)
	}

	meta := Meta{
		Symbol:     raw.Symbol,
		Source:     raw.Source,
		Freq:       freq,
		VolumeUnit: UnitShare,
	}

	type keyed struct {
		pos int
		bar Candle
	}
	rows := make([]keyed, 0, len(raw.Rows))
	for i, r := range raw.Rows {
		if r.Time.IsZero() {
			return Frame{}, errs.BadData(op, "%s row %d: missing date", raw.Symbol, i)
		}
		t, ok := key(r.Time)
		if !ok {
			meta.DroppedOutside++
			continue
		}
		if err := checkOHLC(r); err != nil {
			return Frame{}, errs.BadData(op, "%s %s: %v", raw.Symbol, t.Format(time.DateTime), err)
		}

		vol := r.Volume
		if unit == UnitHand {
			vol *= SharesPerHand
		}
		amount := r.Amount
		if math.IsNaN(amount) {
			amount = (r.High + r.Low + r.Close) / 3.0 * vol
			meta.AmountIsEstimated = true
		}
		if amount < 0 {
			return Frame{}, errs.BadData(op, "%s %s: negative amount %v", raw.Symbol, t.Format(time.DateTime), amount)
		}
		adj := r.AdjFactor
		if math.IsNaN(adj) || adj == 0 {
			adj = 1
		}

		rows = append(rows, keyed{pos: i, bar: Candle{
			Time:      t,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    int64(math.Round(vol)),
			Amount:    amount,
			Turnover:  r.Turnover,
			AdjFactor: adj,
		}})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].bar.Time.Before(rows[j].bar.Time) })

	bars := make([]Candle, 0, len(rows))
	for _, r := range rows {
		if k := len(bars); k > 0 && bars[k-1].Time.Equal(r.bar.Time) {
			// keep last
			bars[k-1] = r.bar
			meta.DroppedDuplicates++
			continue
		}
		bars = append(bars, r.bar)
	}

	meta.Rows = len(bars)
	return Frame{Meta: meta, Bars: bars}, nil
}

func checkOHLC(r RawBar) error {
	for _, v := range []float64{r.Open, r.High, r.Low, r.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("prices must be positive reals (o=%v h=%v l=%v c=%v)", r.Open, r.High, r.Low, r.Close)
		}
	}
	if math.IsNaN(r.Volume) || r.Volume < 0 {
		return fmt.Errorf("volume must be non-negative, got %v", r.Volume)
	}
	lo := math.Min(r.Open, r.Close)
	hi := math.Max(r.Open, r.Close)
	if r.Low > lo || hi > r.High {
		return fmt.Errorf("ohlc invariant broken (o=%v h=%v l=%v c=%v)", r.Open, r.High, r.Low, r.Close)
	}
	return nil
}
