package journal

const Schema = `
CREATE TABLE IF NOT EXISTS risk_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	date TEXT NOT NULL,
	data TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	strategy_type TEXT NOT NULL,
	status TEXT NOT NULL,
	entry REAL NOT NULL,
	stop REAL NOT NULL,
	initial_stop REAL NOT NULL,
	tp1 REAL NOT NULL,
	tp2 REAL NOT NULL,
	tp3 REAL NOT NULL,
	frac1 REAL NOT NULL,
	frac2 REAL NOT NULL,
	breakeven INTEGER NOT NULL,
	tp1_hit INTEGER NOT NULL,
	tp2_hit INTEGER NOT NULL,
	r_target REAL NOT NULL,
	qty REAL NOT NULL,
	notional REAL NOT NULL,
	margin REAL NOT NULL,
	leverage REAL NOT NULL,
	risk_pct REAL NOT NULL,
	risk_amount REAL NOT NULL,
	score REAL NOT NULL,
	reasons TEXT NOT NULL,
	opened_at DATETIME NOT NULL,
	deadline DATETIME NOT NULL,
	last_price REAL NOT NULL,
	exit_price REAL,
	closed_at DATETIME,
	r REAL
);

CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
CREATE INDEX IF NOT EXISTS idx_signals_opened_at ON signals(opened_at);
CREATE INDEX IF NOT EXISTS idx_signals_closed_at ON signals(closed_at);

CREATE TABLE IF NOT EXISTS events (
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	signal_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	strategy_type TEXT NOT NULL,
	price REAL NOT NULL,
	outcome TEXT NOT NULL,
	r REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
`
