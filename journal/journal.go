// Package journal records backtest fills and daily equity marks to CSV,
// SQLite and JSON-lines sinks.
package journal

import (
	"errors"
	"time"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Fill is one executed order. PnL is set on sells only and is net of the
// sell-side fees.
type Fill struct {
	ID       int       `json:"id"`
	RunID    string    `json:"run_id"`
	Strategy string    `json:"strategy"`
	Time     time.Time `json:"time"`
	Symbol   string    `json:"ts_code"`
	Side     string    `json:"side"`
	Price    float64   `json:"price"`
	Shares   int64     `json:"shares"`
	Amount   float64   `json:"amount"`
	Fees     float64   `json:"fees"`
	PnL      float64   `json:"pnl"`
	Reason   string    `json:"reason"`
}

// EquityMark is the end-of-day account value.
type EquityMark struct {
	RunID       string    `json:"run_id"`
	Strategy    string    `json:"strategy"`
	Day         time.Time `json:"date"`
	Cash        float64   `json:"cash"`
	MarketValue float64   `json:"market_value"`
	NAV         float64   `json:"nav"`
}

type Journal interface {
	RecordFill(Fill) error
	RecordEquity(EquityMark) error
	Close() error
}

// Multi fans every record out to each journal.
type Multi []Journal

func (m Multi) RecordFill(f Fill) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordFill(f))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEquity(e EquityMark) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEquity(e))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
