package risk

import "math"

// Inputs sizes a long A-share position from a risk budget.
type Inputs struct {
	Equity     float64
	RiskPct    float64 // 0.01
	EntryPrice float64
	StopPrice  float64
	LotSize    int64 // 0 means 100
}

type Result struct {
	Shares       int64
	StopDistance float64
	RiskAmount   float64
}

// Calculate returns the largest whole-lot share count whose loss at the stop
// stays within Equity*RiskPct. The position is also capped by what Equity can
// buy at EntryPrice. A stop at or above entry sizes zero shares.
func Calculate(in Inputs) Result {
	lot := in.LotSize
	if lot <= 0 {
		lot = 100
	}
	riskAmt := in.Equity * in.RiskPct
	dist := in.EntryPrice - in.StopPrice
	res := Result{StopDistance: dist, RiskAmount: riskAmt}
	if dist <= 0 || in.EntryPrice <= 0 || riskAmt <= 0 {
		return res
	}

	res.Shares = min(RoundLot(riskAmt/dist, lot), RoundLot(in.Equity/in.EntryPrice, lot))
	return res
}

// RoundLot floors shares to a multiple of lot.
func RoundLot(shares float64, lot int64) int64 {
	if lot <= 0 {
		lot = 100
	}
	if shares <= 0 {
		return 0
	}
	return int64(math.Floor(shares/float64(lot))) * lot
}
