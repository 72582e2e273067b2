// Package evaluate scores how a close series behaved historically: a
// purged walk-forward cross-validation of 5-day forward returns, and an
// event study of forward returns after setup days.
package evaluate

import (
	"github.com/rustyeddy/ashare/indicators"
)

const (
	DefaultFolds = 5
	DefaultGap   = 5

	minRows    = 60
	minTrain   = 10
	fwdHorizon = 5
)

// CVStats aggregates per-fold metrics. K is the number of folds that had
// enough data; K == 0 means no usable history.
type CVStats struct {
	K                int     `json:"k"`
	WinRate5dMean    float64 `json:"win_rate_5d_mean"`
	WinRate5dStd     float64 `json:"win_rate_5d_std"`
	MeanReturn5dMean float64 `json:"mean_return_5d_mean"`
	MeanReturn5dStd  float64 `json:"mean_return_5d_std"`
	DrawdownMean     float64 `json:"drawdown_proxy_mean"`
}

// PurgedWalkForward splits closes into kFolds equal segments and drops gap
// bars at both ends of each before measuring 5-day forward returns and the
// drawdown from the running high. Fewer than 60 closes, or no fold with more
// than 10 bars after purging, gives zero stats.
func PurgedWalkForward(closes []float64, kFolds, gap int) CVStats {
	n := len(closes)
	if n < minRows || kFolds <= 0 {
		return CVStats{}
	}
	foldSize := n / kFolds

	var wrs, means, dds []float64
	for i := range kFolds {
		start, end := i*foldSize, (i+1)*foldSize
		trStart, trEnd := start+gap, end-gap
		if trEnd-trStart <= minTrain {
			continue
		}
		seg := closes[trStart:trEnd]

		fwd := make([]float64, 0, len(seg)-fwdHorizon)
		for j := fwdHorizon; j < len(seg); j++ {
			fwd = append(fwd, seg[j]/seg[j-fwdHorizon]-1)
		}
		wins := 0
		for _, r := range fwd {
			if r > 0 {
				wins++
			}
		}

		peak, dd := seg[0], 0.0
		for _, c := range seg {
			if c > peak {
				peak = c
			}
			if d := c/peak - 1; d < dd {
				dd = d
			}
		}

		wrs = append(wrs, float64(wins)/float64(len(fwd)))
		means = append(means, indicators.Mean(fwd))
		dds = append(dds, dd)
	}
	if len(wrs) == 0 {
		return CVStats{}
	}
	return CVStats{
		K:                len(wrs),
		WinRate5dMean:    indicators.Mean(wrs),
		WinRate5dStd:     indicators.Std(wrs),
		MeanReturn5dMean: indicators.Mean(means),
		MeanReturn5dStd:  indicators.Std(means),
		DrawdownMean:     indicators.Mean(dds),
	}
}
