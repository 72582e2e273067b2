package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

var (
	TradesHeader = []string{"id", "date", "time", "ts_code", "side", "price", "shares", "amount", "fees", "pnl", "reason", "strategy"}
	EquityHeader = []string{"date", "cash", "market_value", "nav"}
	WeeklyHeader = []string{"week_start", "week_end", "strategy", "win_rate", "ret", "drawdown", "trades", "not_filled"}
)

// CSVJournal writes trades.csv and daily_equity.csv.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write(TradesHeader); err != nil {
		return nil, err
	}
	if err := ew.Write(EquityHeader); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordFill(t Fill) error {
	err := j.trades.Write([]string{
		strconv.Itoa(t.ID),
		t.Time.Format(dateLayout),
		t.Time.Format(timeLayout),
		t.Symbol,
		t.Side,
		strconv.FormatFloat(t.Price, 'f', 4, 64),
		strconv.FormatInt(t.Shares, 10),
		money(t.Amount),
		money(t.Fees),
		money(t.PnL),
		t.Reason,
		t.Strategy,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquityMark) error {
	err := j.equity.Write([]string{
		e.Day.Format(dateLayout),
		money(e.Cash),
		money(e.MarketValue),
		money(e.NAV),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

// WeekSummary is one row of weekly_summary.csv.
type WeekSummary struct {
	WeekStart time.Time
	WeekEnd   time.Time
	Strategy  string
	WinRate   float64
	Return    float64
	Drawdown  float64
	Trades    int
	NotFilled int
}

func (w WeekSummary) row() []string {
	return []string{
		w.WeekStart.Format(dateLayout),
		w.WeekEnd.Format(dateLayout),
		w.Strategy,
		ratio(w.WinRate),
		ratio(w.Return),
		ratio(w.Drawdown),
		strconv.Itoa(w.Trades),
		strconv.Itoa(w.NotFilled),
	}
}

// WriteWeekly writes weekly_summary.csv in one go.
func WriteWeekly(path string, weeks []WeekSummary) error {
	rows := make([][]string, 0, len(weeks))
	for _, w := range weeks {
		rows = append(rows, w.row())
	}
	return WriteCSV(path, WeeklyHeader, rows)
}

// WriteCSV writes header and rows to path, replacing any existing file.
func WriteCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func money(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

func ratio(x float64) string {
	return strconv.FormatFloat(x, 'f', 4, 64)
}
