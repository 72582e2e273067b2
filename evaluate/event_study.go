package evaluate

import (
	"github.com/rustyeddy/ashare/indicators"
)

// MinEventSamples below which EventStats carries a sample warning.
const MinEventSamples = 5

// EventStats are forward outcomes after setup days, entering at the next
// day's close.
type EventStats struct {
	K             int     `json:"k"`
	WinRate2      float64 `json:"win_rate_2"`
	WinRate5      float64 `json:"win_rate_5"`
	WinRate10     float64 `json:"win_rate_10"`
	MeanReturn2   float64 `json:"mean_return_2"`
	MeanReturn5   float64 `json:"mean_return_5"`
	MeanReturn10  float64 `json:"mean_return_10"`
	MDD10         float64 `json:"mdd10_proxy"`
	SampleWarning bool    `json:"sample_warning"`
}

// EventStudy measures returns at days i+2, i+5 and i+10 relative to
// close[i+1] for every true mask index i, and the worst close within the
// following ten days. K is the smallest horizon sample count. Empty
// horizons report zero.
func EventStudy(closes []float64, mask []bool) EventStats {
	n := len(closes)
	var f2, f5, f10, mdds []float64
	for i, hit := range mask {
		if !hit || i+1 >= n {
			continue
		}
		entry := closes[i+1]
		if i+2 < n {
			f2 = append(f2, closes[i+2]/entry-1)
		}
		if i+5 < n {
			f5 = append(f5, closes[i+5]/entry-1)
		}
		if i+10 < n {
			f10 = append(f10, closes[i+10]/entry-1)
		}
		end := min(n-1, i+10)
		low := entry
		for _, c := range closes[i+1 : end+1] {
			if c < low {
				low = c
			}
		}
		mdds = append(mdds, low/entry-1)
	}

	k := min(len(f2), len(f5), len(f10))
	return EventStats{
		K:             k,
		WinRate2:      winRate(f2),
		WinRate5:      winRate(f5),
		WinRate10:     winRate(f10),
		MeanReturn2:   meanOrZero(f2),
		MeanReturn5:   meanOrZero(f5),
		MeanReturn10:  meanOrZero(f10),
		MDD10:         meanOrZero(mdds),
		SampleWarning: k < MinEventSamples,
	}
}

func winRate(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	wins := 0
	for _, v := range x {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(x))
}

func meanOrZero(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return indicators.Mean(x)
}
