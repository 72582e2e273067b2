package risk

import "math"

// stopDistance is the per-share loss from entry to stop.
func stopDistance(entry, stop float64) float64 {
	return math.Abs(entry - stop)
}

// PlannedRisk is the yuan lost on shares if the stop is hit.
func PlannedRisk(shares int64, entry, stop float64) float64 {
	return float64(shares) * stopDistance(entry, stop)
}

// RewardRisk is the target distance over the stop distance. A stop on the
// entry price has no defined ratio and reports 0.
func RewardRisk(entry, stop, target float64) float64 {
	d := stopDistance(entry, stop)
	if d == 0 {
		return 0
	}
	return math.Abs(target-entry) / d
}

// ShareOfEquity is amount as a fraction of equity. An empty account is
// infinitely exposed.
func ShareOfEquity(amount, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return amount / equity
}
