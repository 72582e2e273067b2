package recommend

import (
	"github.com/rustyeddy/ashare/candidates"
	"github.com/rustyeddy/ashare/guard"
	"github.com/rustyeddy/ashare/indicators"
	"github.com/rustyeddy/ashare/risk"
	"github.com/rustyeddy/ashare/scoring"
	"github.com/rustyeddy/ashare/strategies"
)

const (
	BandsFromStrategy = "strategy"
	BandsFromChip     = "chip"

	defaultWindowA = "A窗：关键带回收，承接成立"
	defaultWindowB = "B窗：收盘确认，不追价"

	planStopLoss = "收盘有效跌破支撑带"
	planTimeStop = "2-3日不强必走"
	planAddRule  = "不加仓摊低成本"
)

// Panel is the one-line header of a plan.
type Panel struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name,omitempty"`
	Industry    string  `json:"industry,omitempty"`
	Theme       string  `json:"theme,omitempty"`
	Close       float64 `json:"close"`
	Strategy    string  `json:"strategy"`
	BandSource  string  `json:"band_source"`
	ObserveOnly bool    `json:"observe_only"`
}

// ChipAndBands are the key levels with the chip model that backs them.
type ChipAndBands struct {
	S1         float64 `json:"S1"`
	S2         float64 `json:"S2"`
	R1         float64 `json:"R1"`
	R2         float64 `json:"R2"`
	Confidence string  `json:"confidence"`
	Model      string  `json:"model"`
}

func (b ChipAndBands) bands() strategies.Bands {
	return strategies.Bands{S1: b.S1, S2: b.S2, R1: b.R1, R2: b.R2}
}

func (b *ChipAndBands) setBands(s strategies.Bands) {
	b.S1, b.S2, b.R1, b.R2 = s.S1, s.S2, s.R1, s.R2
}

// BiasStats is the latest BIAS reading plus how past BIAS6 up-crosses
// played out.
type BiasStats struct {
	Bias6   *float64      `json:"bias6"`
	Bias12  *float64      `json:"bias12"`
	Bias24  *float64      `json:"bias24"`
	CrossUp bool          `json:"bias6_cross_up"`
	Study   scoring.Stats `json:"cross_up_study"`
}

// PlanRisk sizes the position from the risk budget with the stop at S1
// and carries the fixed exit rules. Checks lists the policy violations
// of the sized position.
type PlanRisk struct {
	PositionShares int64        `json:"position_shares"`
	RiskBudgetPct  float64      `json:"risk_budget_pct"`
	Profile        risk.Profile `json:"risk_profile"`
	Equity         float64      `json:"equity"`
	RiskAmount     float64      `json:"risk_amount"`
	RewardRisk     float64      `json:"reward_risk"`
	Checks         []string     `json:"checks"`
	StopLoss       string       `json:"stop_loss"`
	TimeStop       string       `json:"time_stop"`
	AddRule        string       `json:"add_rule"`
}

type TradePlan struct {
	Panel         Panel           `json:"panel"`
	Q             risk.Grade      `json:"q"`
	ChipAndBands  ChipAndBands    `json:"chip_and_bands"`
	BiasStats     BiasStats       `json:"bias_stats"`
	Announcements risk.Assessment `json:"announcements"`
	Events        risk.Assessment `json:"events"`
	WindowA       string          `json:"window_A"`
	WindowB       string          `json:"window_B"`
	Risk          PlanRisk        `json:"risk"`
	Invalidation  []string        `json:"invalidation"`
}

// planInput is what a pick knows by the time its plan is built.
type planInput struct {
	cand          candidates.Candidate
	champ         strategies.Strategy
	theme         string
	crossUp       scoring.Stats
	announcements risk.Assessment
	events        risk.Assessment
	pol           risk.Policy
	equity        float64
}

// chipBands derive support and resistance from the cost band.
func chipBands(c candidates.Candidate) strategies.Bands {
	low, high := c.Chip.Band90Low, c.Chip.Band90High
	mid := c.Chip.AvgCost
	if mid == 0 && low != 0 && high != 0 {
		mid = (low + high) / 2
	}
	return strategies.Bands{S1: low, S2: mid, R1: high, R2: high * 1.02}
}

func biasStats(c candidates.Candidate, study scoring.Stats) BiasStats {
	bs := BiasStats{Bias6: c.Indicators.Bias6, Study: study}
	if f := c.Frame; f != nil && f.Len() > 0 {
		i := f.Len() - 1
		bs.Bias12 = indicators.Ptr(f.Bias12[i])
		bs.Bias24 = indicators.Ptr(f.Bias24[i])
		bs.CrossUp = f.Bias6CrossUp[i]
	}
	return bs
}

// buildPlan takes bands and texts from the champion's latest setup and
// falls back to the chip band when the champion has none. Shares stay
// zero for observe-only picks; other picks are checked against the
// policy. Every text passes the guard; the return counts rewrites.
func buildPlan(in planInput) (TradePlan, int) {
	c := in.cand
	p := TradePlan{
		Panel: Panel{
			Symbol:      c.Symbol,
			Name:        c.Name,
			Industry:    c.Industry,
			Theme:       in.theme,
			Close:       c.Close,
			BandSource:  BandsFromChip,
			ObserveOnly: c.Flags.MustObserveOnly,
		},
		Q:             c.QGrade,
		ChipAndBands:  ChipAndBands{Confidence: c.Chip.Confidence, Model: c.Chip.Model},
		BiasStats:     biasStats(c, in.crossUp),
		Announcements: in.announcements,
		Events:        in.events,
		WindowA:       defaultWindowA,
		WindowB:       defaultWindowB,
		Invalidation:  []string{},
	}
	p.ChipAndBands.setBands(chipBands(c))

	if in.champ != nil && c.Frame != nil {
		p.Panel.Strategy = in.champ.ID()
		p.Panel.ObserveOnly = p.Panel.ObserveOnly || in.champ.ObserveOnly()
		if s, ok := strategies.Latest(in.champ.Detect(c.Frame)); ok {
			if b := in.champ.KeyBands(c.Frame, s); validBands(b) {
				p.ChipAndBands.setBands(b)
				p.Panel.BandSource = BandsFromStrategy
			}
			ct := in.champ.Confirm(s, c.QGrade)
			if ct.WindowA != "" {
				p.WindowA = ct.WindowA
			}
			if ct.WindowB != "" {
				p.WindowB = ct.WindowB
			}
			p.Invalidation = append(p.Invalidation, in.champ.Invalidation(s)...)
		}
	}

	p.Risk = sizePosition(c.Close, p.ChipAndBands.bands(), p.Panel.ObserveOnly, c.QGrade, in.pol, in.equity)
	p.Risk.Checks = []string{}
	if !p.Panel.ObserveOnly {
		b := p.ChipAndBands.bands()
		dec := risk.Evaluate(in.pol, risk.TradeIntent{
			Symbol:     c.Symbol,
			Shares:     p.Risk.PositionShares,
			Entry:      c.Close,
			Stop:       b.S1,
			TakeProfit: b.R1,
		}, risk.AccountSnapshot{Cash: in.equity, Equity: in.equity})
		p.Risk.RewardRisk = dec.PlannedRR
		p.Risk.Checks = append(p.Risk.Checks, dec.Codes()...)
	}

	rewrites := 0
	clean := func(s *string) {
		ok, out := guard.Rewrite(*s)
		if !ok {
			rewrites++
		}
		*s = out
	}
	clean(&p.WindowA)
	clean(&p.WindowB)
	for i := range p.Invalidation {
		clean(&p.Invalidation[i])
	}
	return p, rewrites
}

func sizePosition(entry float64, b strategies.Bands, observeOnly bool, q risk.Grade, pol risk.Policy, equity float64) PlanRisk {
	pr := PlanRisk{
		RiskBudgetPct: pol.BudgetPct(q),
		Profile:       pol.Profile,
		Equity:        equity,
		StopLoss:      planStopLoss,
		TimeStop:      planTimeStop,
		AddRule:       planAddRule,
	}
	if observeOnly {
		return pr
	}
	sz := risk.Calculate(risk.Inputs{
		Equity:     equity,
		RiskPct:    pr.RiskBudgetPct,
		EntryPrice: entry,
		StopPrice:  b.S1,
		LotSize:    pol.LotSize,
	})
	pr.PositionShares = sz.Shares
	pr.RiskAmount = risk.PlannedRisk(sz.Shares, entry, b.S1)
	return pr
}

func validBands(b strategies.Bands) bool {
	for _, v := range []float64{b.S1, b.S2, b.R1, b.R2} {
		if indicators.Ptr(v) == nil {
			return false
		}
	}
	return b.S1 > 0 && b.R1 > 0
}
