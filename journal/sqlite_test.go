package journal

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFillDB(t *testing.T) (*FillDB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenFillDB(path)
	require.NoError(t, err)
	return j, path
}

func TestFillDBSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := openFillDB(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('fills','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["fills"])
	assert.True(t, found["equity"])
}

func fill(id int, side string, at time.Time, pnl float64) Fill {
	return Fill{
		ID: id, RunID: "r1", Strategy: "baseline_daily", Time: at, Symbol: "000001.SZ",
		Side: side, Price: 12.5, Shares: 1000, Amount: 12500, Fees: 5, PnL: pnl, Reason: "T1",
	}
}

func TestFillDBRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := openFillDB(t)
	defer j.Close()

	d1 := time.Date(2026, 1, 6, 9, 30, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	require.NoError(t, j.RecordFill(fill(1, SideBuy, d1, 0)))
	require.NoError(t, j.RecordFill(fill(2, SideSell, d2, 120)))

	got, err := j.GetFill("r1", "baseline_daily", 2)
	require.NoError(t, err)
	assert.Equal(t, SideSell, got.Side)
	assert.Equal(t, int64(1000), got.Shares)
	assert.InDelta(t, 120, got.PnL, 1e-9)
	assert.True(t, got.Time.Equal(d2))

	all, err := j.ListFills("r1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].ID)

	sells, err := j.ListSellsBetween(d1, d2.Add(time.Nanosecond))
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.Equal(t, 2, sells[0].ID)
}

func TestFillDBDuplicateFillRejected(t *testing.T) {
	t.Parallel()

	j, _ := openFillDB(t)
	defer j.Close()

	at := time.Date(2026, 1, 6, 9, 30, 0, 0, time.UTC)
	require.NoError(t, j.RecordFill(fill(1, SideBuy, at, 0)))
	assert.Error(t, j.RecordFill(fill(1, SideBuy, at, 0)))
}

func TestGetFillNotFound(t *testing.T) {
	t.Parallel()

	j, _ := openFillDB(t)
	defer j.Close()

	_, err := j.GetFill("r1", "x", 9)
	assert.ErrorIs(t, err, ErrFillNotFound)
}

func TestFillDBEquity(t *testing.T) {
	t.Parallel()

	j, _ := openFillDB(t)
	defer j.Close()

	d := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordEquity(EquityMark{RunID: "r1", Strategy: "s", Day: d.AddDate(0, 0, 1), NAV: 101}))
	require.NoError(t, j.RecordEquity(EquityMark{RunID: "r1", Strategy: "s", Day: d, Cash: 50, MarketValue: 50, NAV: 100}))
	require.NoError(t, j.RecordEquity(EquityMark{RunID: "r2", Strategy: "s", Day: d, NAV: 7}))

	marks, err := j.ListEquity("r1", "s")
	require.NoError(t, err)
	require.Len(t, marks, 2)
	assert.InDelta(t, 100, marks[0].NAV, 1e-9)
	assert.InDelta(t, 101, marks[1].NAV, 1e-9)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	at := time.Now()
	s := Summarize([]Fill{
		fill(1, SideBuy, at, 0),
		fill(2, SideSell, at, 30),
		fill(3, SideSell, at, -10),
		fill(4, SideSell, at, 0),
	})
	assert.Equal(t, Summary{Trades: 3, Wins: 1, Losses: 1, GrossProfit: 30, GrossLoss: 10, ProfitFactor: 3}, s)
}

func TestInsertInto(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"INSERT INTO equity (run_id, strategy, day, cash, market_value, nav) VALUES (?, ?, ?, ?, ?, ?)",
		insertInto("equity", equityColumns))
	assert.Equal(t, 12, strings.Count(insertInto("fills", fillColumns), "?"))
}
