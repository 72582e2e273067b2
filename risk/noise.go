package risk

import (
	"math"

	"github.com/rustyeddy/ashare/indicators"
)

// Grade is the Q noise grade, Q0 quiet through Q3 noisy.
type Grade string

const (
	Q0 Grade = "Q0"
	Q1 Grade = "Q1"
	Q2 Grade = "Q2"
	Q3 Grade = "Q3"
)

var grades = []Grade{Q0, Q1, Q2, Q3}

const noiseTail = 20

// NoiseScore combines the last 20 bars of ATR%, Bollinger width, NR7 rarity
// and volume spikes. An empty frame scores 0.5 (NR7 rarity alone).
func NoiseScore(f *indicators.Frame) float64 {
	atr := indicators.Or(indicators.Mean(indicators.Tail(f.ATRPct, noiseTail)), 0)
	bbw := indicators.Or(indicators.Mean(indicators.Tail(f.BBWidth20, noiseTail)), 0)

	nr7 := tailBools(f.NR7, noiseTail)
	nr7Rate := 1.0
	if len(nr7) > 0 {
		hits := 0
		for _, b := range nr7 {
			if b {
				hits++
			}
		}
		nr7Rate = 1 - float64(hits)/float64(len(nr7))
	}
	vr := indicators.Or(indicators.Mean(indicators.Tail(f.VolRatio10, noiseTail)), 1)

	return atr*4 + bbw*2 + nr7Rate*0.5 + math.Max(0, vr-1)*0.5
}

// GradeNoise buckets NoiseScore and moves one grade noisier when the market
// regime is C or D.
func GradeNoise(f *indicators.Frame, env string) Grade {
	score := NoiseScore(f)
	idx := 3
	switch {
	case score < 0.05:
		idx = 0
	case score < 0.10:
		idx = 1
	case score < 0.16:
		idx = 2
	}
	if env == "C" || env == "D" {
		idx = min(3, idx+1)
	}
	return grades[idx]
}

func tailBools(x []bool, n int) []bool {
	if n >= len(x) {
		return x
	}
	return x[len(x)-n:]
}
