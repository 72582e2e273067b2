package risk

import "fmt"

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type Decision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`

	PlannedRisk    float64 `json:"planned_risk"`
	PlannedRiskPct float64 `json:"planned_risk_pct"`
	PlannedRR      float64 `json:"planned_rr"`
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Codes lists the violation codes in order.
func (d Decision) Codes() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.Code
	}
	return out
}

// Evaluate checks a planned long entry against the policy.
func Evaluate(p Policy, intent TradeIntent, acct AccountSnapshot) Decision {
	d := Decision{Allowed: true}

	if intent.Stop == 0 || intent.Entry == 0 {
		d.add("NO_STOP_OR_ENTRY", "entry/stop must be set")
		return d
	}
	if intent.Shares <= 0 {
		d.add("NO_SHARES", "position rounds to zero lots")
		return d
	}
	lot := p.LotSize
	if lot <= 0 {
		lot = 100
	}
	if intent.Shares%lot != 0 {
		d.add("NOT_BOARD_LOT", fmt.Sprintf("shares %d not a multiple of %d", intent.Shares, lot))
	}

	d.PlannedRisk = PlannedRisk(intent.Shares, intent.Entry, intent.Stop)
	d.PlannedRiskPct = ShareOfEquity(d.PlannedRisk, acct.Equity)
	if intent.TakeProfit > 0 {
		d.PlannedRR = RewardRisk(intent.Entry, intent.Stop, intent.TakeProfit)
		if d.PlannedRR < p.MinRR {
			d.add("RR_TOO_LOW",
				fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
		}
	}

	if d.PlannedRiskPct > p.MaxRiskPct {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%",
				100*d.PlannedRiskPct, 100*p.MaxRiskPct))
	}

	cost := float64(intent.Shares) * intent.Entry
	if share := ShareOfEquity(cost, acct.Equity); acct.Equity > 0 && share > p.MaxPositionPct {
		d.add("POSITION_TOO_LARGE",
			fmt.Sprintf("position %.2f%% of equity exceeds max %.2f%%",
				100*share, 100*p.MaxPositionPct))
	}
	if acct.Cash > 0 && cost > acct.Cash {
		d.add("INSUFFICIENT_CASH", fmt.Sprintf("cost %.2f exceeds cash %.2f", cost, acct.Cash))
	}
	if acct.OpenPositions >= p.MaxOpenPositions {
		d.add("TOO_MANY_POSITIONS",
			fmt.Sprintf("open positions %d >= max %d", acct.OpenPositions, p.MaxOpenPositions))
	}
	return d
}
