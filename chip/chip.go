// Package chip estimates the holder cost distribution of a stock from its
// daily bars: the weighted average cost and the 90% cost band.
//
// Model A weights each bar's typical price by its turnover ratio. Model B
// is a volume histogram over typical-price quantile bins and is used when
// turnover is unavailable or carries no weight.
package chip

import (
	"math"
	"sort"

	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/market"
)

const (
	ModelA = "A"
	ModelB = "B"

	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"

	repeatScale = 1000
	histBins    = 50
)

// Result is the cost-band estimate for one symbol.
type Result struct {
	AvgCost         float64 `json:"avg_cost"`
	ProfitRatio     float64 `json:"profit_ratio"`
	Band90Low       float64 `json:"band_90_low"`
	Band90High      float64 `json:"band_90_high"`
	Concentration90 float64 `json:"concentration_90"`
	DistTo90High    float64 `json:"dist_to_90_high_pct"`
	Confidence      string  `json:"confidence"`
	Model           string  `json:"model_used"`
	SampleN         int     `json:"sample_n"`
}

// Compute returns Model A when turnover (or volume over floatShares) gives
// positive weights and Model B otherwise. floatShares <= 0 means unknown.
// It never fails; an empty frame yields the zero Result with low
// confidence.
func Compute(f market.Frame, floatShares float64) Result {
	if f.Len() == 0 {
		return Result{Confidence: ConfidenceLow, Model: ModelB, ProfitRatio: 0.5, Concentration90: 1}
	}
	if r, ok := modelA(f, floatShares); ok {
		return r
	}
	return modelB(f)
}

func modelA(f market.Frame, floatShares float64) (Result, bool) {
	var turnover func(market.Candle) float64
	switch {
	case f.HasTurnover():
		turnover = func(c market.Candle) float64 { return c.Turnover / 100 }
	case floatShares > 0:
		turnover = func(c market.Candle) float64 { return float64(c.Volume) / floatShares }
	default:
		return Result{}, false
	}

	prices := make([]float64, f.Len())
	weights := make([]float64, f.Len())
	sum := 0.0
	for i, b := range f.Bars {
		t := math.Max(0, math.Min(1, turnover(b)))
		if math.IsNaN(t) {
			t = 0
		}
		weights[i] = t
		prices[i] = b.VWAP()
		sum += t
	}
	if sum <= 0 {
		return Result{}, false
	}

	avg := 0.0
	var expanded []float64
	for i := range weights {
		w := weights[i] / sum
		avg += w * prices[i]
		rep := max(1, int(w*repeatScale))
		for range rep {
			expanded = append(expanded, prices[i])
		}
	}

	r := stats(expanded, f.Last().Close)
	r.AvgCost = avg
	r.Model = ModelA
	switch n := len(expanded); {
	case n >= 200:
		r.Confidence = ConfidenceHigh
	case n >= 80:
		r.Confidence = ConfidenceMedium
	default:
		r.Confidence = ConfidenceLow
	}
	return r, true
}

func modelB(f market.Frame) Result {
	vwap := make([]float64, f.Len())
	volMean := 0.0
	for i, b := range f.Bars {
		vwap[i] = b.VWAP()
		volMean += float64(b.Volume)
	}
	volMean /= float64(f.Len())

	sorted := append([]float64(nil), vwap...)
	sort.Float64s(sorted)
	cuts := make([]float64, histBins+1)
	for i := range cuts {
		cuts[i] = indicators.Quantile(sorted, float64(i)/histBins)
	}

	// bin b holds prices in (cuts[b-1], cuts[b]]
	binVol := make(map[int]float64)
	var order []int
	for i, p := range vwap {
		b := sort.SearchFloat64s(cuts, p)
		if _, ok := binVol[b]; !ok {
			order = append(order, b)
		}
		binVol[b] += float64(f.Bars[i].Volume)
	}

	var expanded []float64
	for _, b := range order {
		price := cuts[min(max(b, 0), histBins)]
		rep := max(1, int(binVol[b]/math.Max(1, volMean)))
		for range rep {
			expanded = append(expanded, price)
		}
	}

	last := f.Last()
	if len(expanded) == 0 {
		r := Result{
			AvgCost:         vwap[len(vwap)-1],
			ProfitRatio:     0.5,
			Band90Low:       sorted[0],
			Band90High:      sorted[len(sorted)-1],
			Concentration90: 1,
			Confidence:      ConfidenceLow,
			Model:           ModelB,
		}
		r.DistTo90High = distToHigh(r.Band90High, last.Close)
		return r
	}

	r := stats(expanded, last.Close)
	r.AvgCost = indicators.Mean(expanded)
	r.Model = ModelB
	r.Confidence = ConfidenceLow
	if len(expanded) >= 100 {
		r.Confidence = ConfidenceMedium
	}
	return r
}

// stats fills the band, profit and concentration fields from an expanded
// cost sample.
func stats(expanded []float64, close float64) Result {
	low := indicators.Quantile(expanded, 0.05)
	high := indicators.Quantile(expanded, 0.95)
	below, inside := 0, 0
	for _, p := range expanded {
		if p < close {
			below++
		}
		if p >= low && p <= high {
			inside++
		}
	}
	n := float64(len(expanded))
	return Result{
		ProfitRatio:     float64(below) / n,
		Band90Low:       low,
		Band90High:      high,
		Concentration90: float64(inside) / n,
		DistTo90High:    distToHigh(high, close),
		SampleN:         len(expanded),
	}
}

func distToHigh(high, close float64) float64 {
	if high == 0 {
		return 0
	}
	return (high - close) / high
}
