package market

import (
	"math"
	"time"
)

// VolumeUnit is the unit a provider reports volume in.
type VolumeUnit string

const (
	UnitShare VolumeUnit = "share"
	UnitHand  VolumeUnit = "hand"

	// SharesPerHand is the A-share board lot.
	SharesPerHand = 100
)

// Frequency labels carried in Meta.
const (
	FreqDaily = "1d"
	Freq5Min  = "5min"
)

// SourceFixture marks synthetic frames. Strict mode refuses them.
const SourceFixture = "fixture"

// RawBar is one provider row before normalization. Missing numbers are NaN.
type RawBar struct {
	Time      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Amount    float64
	Turnover  float64 // percent of float shares
	AdjFactor float64
}

// RawFrame is what a provider hands back.
type RawFrame struct {
	Symbol string
	Source string
	Rows   []RawBar
}

// Candle is a canonical OHLCV bar. Volume is in shares.
type Candle struct {
	Time      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Amount    float64
	Turnover  float64 // NaN when unknown
	AdjFactor float64
}

// VWAP is the typical price (H+L+C)/3.
func (c Candle) VWAP() float64 {
	return (c.High + c.Low + c.Close) / 3.0
}

// OneWord reports a bar that cannot be traded: O==H==L==C with no volume.
func (c Candle) OneWord() bool {
	return c.Open == c.High && c.High == c.Low && c.Low == c.Close && c.Volume == 0
}

// Meta is the unit and provenance record attached to a frame.
type Meta struct {
	Symbol            string     `json:"symbol"`
	Source            string     `json:"source"`
	Freq              string     `json:"freq"`
	VolumeUnit        VolumeUnit `json:"volume_unit"`
	AmountIsEstimated bool       `json:"amount_is_estimated"`
	Rows              int        `json:"rows"`
	DroppedDuplicates int        `json:"dropped_duplicates"`
	DroppedOutside    int        `json:"dropped_outside_session,omitempty"`
}

// Frame is a normalized, date-ascending series for one symbol.
type Frame struct {
	Meta Meta
	Bars []Candle
}

func (f Frame) Len() int { return len(f.Bars) }

// Last returns the final bar, or the zero Candle for an empty frame.
func (f Frame) Last() Candle {
	if len(f.Bars) == 0 {
		return Candle{}
	}
	return f.Bars[len(f.Bars)-1]
}

func (f Frame) Closes() []float64 {
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.Close
	}
	return out
}

// Slice returns bars [from, to) sharing the meta.
func (f Frame) Slice(from, to int) Frame {
	if from < 0 {
		from = 0
	}
	if to > len(f.Bars) {
		to = len(f.Bars)
	}
	if from > to {
		from = to
	}
	m := f.Meta
	m.Rows = to - from
	return Frame{Meta: m, Bars: f.Bars[from:to]}
}

// Raw converts a normalized frame back to provider rows in shares.
func (f Frame) Raw() RawFrame {
	rows := make([]RawBar, len(f.Bars))
	for i, b := range f.Bars {
		rows[i] = RawBar{
			Time:      b.Time,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
			Amount:    b.Amount,
			Turnover:  b.Turnover,
			AdjFactor: b.AdjFactor,
		}
	}
	return RawFrame{Symbol: f.Meta.Symbol, Source: f.Meta.Source, Rows: rows}
}

// HasTurnover reports whether every bar carries a turnover ratio.
func (f Frame) HasTurnover() bool {
	if len(f.Bars) == 0 {
		return false
	}
	for _, b := range f.Bars {
		if math.IsNaN(b.Turnover) {
			return false
		}
	}
	return true
}
