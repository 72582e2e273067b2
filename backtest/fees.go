package backtest

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/ashare/journal"
)

// Fees is the A-share cost model. Rates are fractions of the traded
// amount.
type Fees struct {
	CommissionRate  float64 `json:"commission_rate" yaml:"commission_rate"`
	CommissionCap   float64 `json:"commission_cap" yaml:"commission_cap"`
	TransferFeeRate float64 `json:"transfer_fee_rate" yaml:"transfer_fee_rate"`
	StampDutyRate   float64 `json:"stamp_duty_rate" yaml:"stamp_duty_rate"`
	SlippageBps     float64 `json:"slippage_bps" yaml:"slippage_bps"`
	MinCommission   float64 `json:"min_commission" yaml:"min_commission"`
}

func DefaultFees() Fees {
	return Fees{
		CommissionRate:  0.0003,
		CommissionCap:   0.0013,
		TransferFeeRate: 0.00001,
		StampDutyRate:   0.0005,
		SlippageBps:     3,
		MinCommission:   0,
	}
}

// Cost is the fee breakdown of one fill, rounded to cents.
type Cost struct {
	Commission decimal.Decimal
	Transfer   decimal.Decimal
	Stamp      decimal.Decimal
}

func (c Cost) Total() decimal.Decimal {
	return c.Commission.Add(c.Transfer).Add(c.Stamp)
}

func (c Cost) Add(o Cost) Cost {
	return Cost{
		Commission: c.Commission.Add(o.Commission),
		Transfer:   c.Transfer.Add(o.Transfer),
		Stamp:      c.Stamp.Add(o.Stamp),
	}
}

// Cost charges commission max(min, min(amount*rate, amount*cap)), the
// transfer fee on both sides and stamp duty on sells only.
func (f Fees) Cost(amount decimal.Decimal, side string) Cost {
	rate := decimal.NewFromFloat(f.CommissionRate)
	capRate := decimal.NewFromFloat(f.CommissionCap)
	comm := decimal.Min(amount.Mul(rate), amount.Mul(capRate))
	comm = decimal.Max(comm, decimal.NewFromFloat(f.MinCommission))

	c := Cost{
		Commission: comm.Round(2),
		Transfer:   amount.Mul(decimal.NewFromFloat(f.TransferFeeRate)).Round(2),
		Stamp:      decimal.Zero,
	}
	if side == journal.SideSell {
		c.Stamp = amount.Mul(decimal.NewFromFloat(f.StampDutyRate)).Round(2)
	}
	return c
}

// FillPrice applies slippage against the trader: buys pay up, sells
// receive less. The result is rounded to 4 decimals.
func (f Fees) FillPrice(open float64, side string) decimal.Decimal {
	px := decimal.NewFromFloat(open)
	slip := decimal.NewFromFloat(f.SlippageBps).Div(decimal.NewFromInt(10000))
	if side == journal.SideBuy {
		return px.Mul(decimal.NewFromInt(1).Add(slip)).Round(4)
	}
	return px.Mul(decimal.NewFromInt(1).Sub(slip)).Round(4)
}
