package risk

import (
	"fmt"
	"strings"
)

// Profile is the user's risk appetite.
type Profile string

const (
	Conservative Profile = "conservative"
	Normal       Profile = "normal"
	Aggressive   Profile = "aggressive"
)

// ParseProfile accepts the three profile names; empty means Normal.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return Normal, nil
	case Conservative, Normal, Aggressive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown risk profile %q", s)
	}
}

type Policy struct {
	Profile Profile

	// Risk budget per position as a fraction of equity.
	DefaultRiskPct float64
	MaxRiskPct     float64

	// Exposure limits
	MaxOpenPositions int
	MaxPositionPct   float64 // of equity

	// Trade constraints
	MinRR   float64
	LotSize int64
}

// PolicyFor returns the sizing policy of a profile.
func PolicyFor(p Profile) Policy {
	pol := Policy{
		Profile:          p,
		MaxOpenPositions: 3,
		MaxPositionPct:   0.30,
		MinRR:            1.5,
		LotSize:          100,
	}
	switch p {
	case Conservative:
		pol.DefaultRiskPct, pol.MaxRiskPct = 0.005, 0.0075
		pol.MaxOpenPositions = 2
		pol.MaxPositionPct = 0.20
	case Aggressive:
		pol.DefaultRiskPct, pol.MaxRiskPct = 0.015, 0.02
		pol.MaxOpenPositions = 5
		pol.MaxPositionPct = 0.40
	default:
		pol.Profile = Normal
		pol.DefaultRiskPct, pol.MaxRiskPct = 0.01, 0.015
	}
	return pol
}

// BudgetPct scales the default risk budget down for noisy stocks: Q2 halves
// it and Q3 quarters it.
func (p Policy) BudgetPct(q Grade) float64 {
	switch q {
	case Q2:
		return p.DefaultRiskPct / 2
	case Q3:
		return p.DefaultRiskPct / 4
	default:
		return p.DefaultRiskPct
	}
}

type TradeIntent struct {
	Symbol     string
	Shares     int64
	Entry      float64
	Stop       float64
	TakeProfit float64
}

type AccountSnapshot struct {
	Cash          float64
	Equity        float64
	OpenPositions int
}
