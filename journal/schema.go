package journal

const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	run_id TEXT NOT NULL,
	strategy TEXT NOT NULL,
	fill_id INTEGER NOT NULL,
	time DATETIME NOT NULL,
	ts_code TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	shares INTEGER NOT NULL,
	amount REAL NOT NULL,
	fees REAL NOT NULL,
	pnl REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, strategy, fill_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	strategy TEXT NOT NULL,
	day DATETIME NOT NULL,
	cash REAL NOT NULL,
	market_value REAL NOT NULL,
	nav REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_time ON fills(time);
CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, strategy, day);
`
