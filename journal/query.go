package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrFillNotFound = errors.New("fill not found")

const fillColumns = `run_id, strategy, fill_id, time, ts_code, side, price, shares, amount, fees, pnl, reason`

func scanFill(s interface{ Scan(...any) error }) (Fill, error) {
	var rec Fill
	err := s.Scan(
		&rec.RunID,
		&rec.Strategy,
		&rec.ID,
		&rec.Time,
		&rec.Symbol,
		&rec.Side,
		&rec.Price,
		&rec.Shares,
		&rec.Amount,
		&rec.Fees,
		&rec.PnL,
		&rec.Reason,
	)
	return rec, err
}

// GetFill returns a single fill of a run.
func (j *FillDB) GetFill(runID, strategy string, id int) (Fill, error) {
	row := j.db.QueryRow(`SELECT `+fillColumns+` FROM fills
		WHERE run_id = ? AND strategy = ? AND fill_id = ?`, runID, strategy, id)

	rec, err := scanFill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Fill{}, fmt.Errorf("fill %s/%s/%d: %w", runID, strategy, id, ErrFillNotFound)
		}
		return Fill{}, err
	}
	return rec, nil
}

// ListFills returns a run's fills in execution order.
func (j *FillDB) ListFills(runID string) ([]Fill, error) {
	return j.queryFills(`SELECT `+fillColumns+` FROM fills
		WHERE run_id = ?
		ORDER BY strategy ASC, fill_id ASC`, runID)
}

// ListSellsBetween returns sell fills whose time is within [start, end).
func (j *FillDB) ListSellsBetween(start, end time.Time) ([]Fill, error) {
	return j.queryFills(`SELECT `+fillColumns+` FROM fills
		WHERE side = 'sell' AND time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
}

func (j *FillDB) queryFills(q string, args ...any) ([]Fill, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fill
	for rows.Next() {
		rec, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns a strategy's daily marks in date order.
func (j *FillDB) ListEquity(runID, strategy string) ([]EquityMark, error) {
	rows, err := j.db.Query(`
		SELECT `+equityColumns+`
		FROM equity
		WHERE run_id = ? AND strategy = ?
		ORDER BY day ASC`, runID, strategy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquityMark
	for rows.Next() {
		var e EquityMark
		if err := rows.Scan(&e.RunID, &e.Strategy, &e.Day, &e.Cash, &e.MarketValue, &e.NAV); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary counts closed round trips and their outcomes.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
}

// Summarize aggregates the sells of fills.
func Summarize(fills []Fill) Summary {
	var s Summary
	for _, f := range fills {
		if f.Side != SideSell {
			continue
		}
		s.Trades++
		switch {
		case f.PnL > 0:
			s.Wins++
			s.GrossProfit += f.PnL
		case f.PnL < 0:
			s.Losses++
			s.GrossLoss -= f.PnL
		}
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}
