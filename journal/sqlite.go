package journal

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const equityColumns = `run_id, strategy, day, cash, market_value, nav`

// FillDB keeps fills and daily equity marks of backtest runs in SQLite so
// several runs can be compared after the fact.
type FillDB struct {
	db         *sql.DB
	fillStmt   string
	equityStmt string
}

// OpenFillDB opens or creates the database at path and applies Schema.
func OpenFillDB(path string) (*FillDB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open fill db %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply fill db schema: %w", err)
	}
	return &FillDB{
		db:         db,
		fillStmt:   insertInto("fills", fillColumns),
		equityStmt: insertInto("equity", equityColumns),
	}, nil
}

func insertInto(table, columns string) string {
	n := strings.Count(columns, ",") + 1
	marks := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return "INSERT INTO " + table + " (" + columns + ") VALUES (" + marks + ")"
}

// RecordFill stores f. A fill id is unique per run and strategy.
func (j *FillDB) RecordFill(f Fill) error {
	if _, err := j.db.Exec(j.fillStmt,
		f.RunID, f.Strategy, f.ID, f.Time, f.Symbol, f.Side,
		f.Price, f.Shares, f.Amount, f.Fees, f.PnL, f.Reason,
	); err != nil {
		return fmt.Errorf("record fill %s/%s/%d: %w", f.RunID, f.Strategy, f.ID, err)
	}
	return nil
}

func (j *FillDB) RecordEquity(e EquityMark) error {
	if _, err := j.db.Exec(j.equityStmt,
		e.RunID, e.Strategy, e.Day, e.Cash, e.MarketValue, e.NAV,
	); err != nil {
		return fmt.Errorf("record equity %s/%s: %w", e.RunID, e.Strategy, err)
	}
	return nil
}

func (j *FillDB) Close() error { return j.db.Close() }
