package scoring

import (
	"math"

	"github.com/rustyeddy/ashare/evaluate"
)

// NoChampion is the strategy id reported when no strategy was evaluated.
const NoChampion = "NA"

// Candidate is one strategy's cross-validation result.
type Candidate struct {
	ID string
	CV evaluate.CVStats
}

type Champion struct {
	Strategy string            `json:"strategy"`
	CV       *evaluate.CVStats `json:"cv"`
	Score    float64           `json:"score"`
}

// ChampionScore rewards win rate and positive mean return and penalizes
// drawdown.
func ChampionScore(cv evaluate.CVStats) float64 {
	return 0.7*cv.WinRate5dMean + 0.2*math.Max(0, cv.MeanReturn5dMean) - 0.1*math.Abs(cv.DrawdownMean)
}

// ChooseChampion returns the best-scoring strategy. Ties keep the earliest.
// An empty list yields NoChampion with a zero score.
func ChooseChampion(cands []Candidate) Champion {
	best := Champion{Strategy: NoChampion}
	bestScore := math.Inf(-1)
	for _, c := range cands {
		s := ChampionScore(c.CV)
		if s > bestScore {
			cv := c.CV
			bestScore = s
			best = Champion{Strategy: c.ID, CV: &cv, Score: s}
		}
	}
	return best
}
