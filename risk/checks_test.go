package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, Normal, p)

	p, err = ParseProfile(" Aggressive ")
	require.NoError(t, err)
	assert.Equal(t, Aggressive, p)

	_, err = ParseProfile("yolo")
	assert.Error(t, err)
}

func TestBudgetPct(t *testing.T) {
	t.Parallel()

	pol := PolicyFor(Normal)
	assert.InDelta(t, 0.01, pol.BudgetPct(Q0), 1e-12)
	assert.InDelta(t, 0.01, pol.BudgetPct(Q1), 1e-12)
	assert.InDelta(t, 0.005, pol.BudgetPct(Q2), 1e-12)
	assert.InDelta(t, 0.0025, pol.BudgetPct(Q3), 1e-12)
	assert.InDelta(t, 0.005, PolicyFor(Conservative).BudgetPct(Q0), 1e-12)
	assert.InDelta(t, 0.015, PolicyFor(Aggressive).BudgetPct(Q0), 1e-12)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	pol := PolicyFor(Normal)
	acct := AccountSnapshot{Cash: 1_000_000, Equity: 1_000_000}

	tests := []struct {
		name      string
		intent    TradeIntent
		acct      AccountSnapshot
		wantOK    bool
		wantCodes []string
	}{
		{
			name:   "within limits",
			intent: TradeIntent{Symbol: "600000", Shares: 10000, Entry: 10, Stop: 9.5, TakeProfit: 11},
			acct:   acct,
			wantOK: true,
		},
		{
			name:      "no stop",
			intent:    TradeIntent{Shares: 100, Entry: 10},
			acct:      acct,
			wantCodes: []string{"NO_STOP_OR_ENTRY"},
		},
		{
			name:      "zero shares",
			intent:    TradeIntent{Entry: 10, Stop: 9},
			acct:      acct,
			wantCodes: []string{"NO_SHARES"},
		},
		{
			name:      "odd lot and low rr",
			intent:    TradeIntent{Shares: 150, Entry: 10, Stop: 9, TakeProfit: 10.5},
			acct:      acct,
			wantCodes: []string{"NOT_BOARD_LOT", "RR_TOO_LOW"},
		},
		{
			name:      "too risky and too large",
			intent:    TradeIntent{Shares: 40000, Entry: 10, Stop: 9},
			acct:      acct,
			wantCodes: []string{"RISK_TOO_HIGH", "POSITION_TOO_LARGE"},
		},
		{
			name:      "crowded book",
			intent:    TradeIntent{Shares: 1000, Entry: 10, Stop: 9.5},
			acct:      AccountSnapshot{Cash: 5000, Equity: 1_000_000, OpenPositions: 3},
			wantCodes: []string{"INSUFFICIENT_CASH", "TOO_MANY_POSITIONS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(pol, tt.intent, tt.acct)
			assert.Equal(t, tt.wantOK, d.Allowed)
			if tt.wantOK {
				assert.Empty(t, d.Violations)
				return
			}
			assert.Equal(t, tt.wantCodes, d.Codes())
		})
	}
}
