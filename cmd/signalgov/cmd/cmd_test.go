package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/journal"
	"github.com/rustyeddy/signalgov/lifecycle"
	"github.com/rustyeddy/signalgov/market"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRenderTables(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.Default()
	st := guard.NewState(now)
	st.RDay = -1.5
	st.CooldownUntil = now.Add(30 * time.Minute)
	st.Blocked = map[string]time.Time{"ETHUSDT": now.Add(time.Hour), "OLDUSDT": now.Add(-time.Hour)}

	var buf bytes.Buffer
	renderGuard(&buf, st, guard.DayPortfolio{RiskUsedPct: 0.01, OpenSignals: 2}, cfg, now)
	out := buf.String()
	assert.Contains(t, out, "-1.50")
	assert.Contains(t, out, "30m0s left")
	assert.Contains(t, out, "ETHUSDT until 13:00")
	assert.NotContains(t, out, "OLDUSDT")
	assert.Contains(t, out, "1.00% / 1.50%")

	buf.Reset()
	renderOpen(&buf, nil, now)
	assert.Contains(t, buf.String(), "no open signals")

	buf.Reset()
	renderOpen(&buf, []lifecycle.OpenSignal{{
		ID: "S1", Symbol: "BTCUSDT", Side: market.Long, Entry: 100, Stop: 99.3,
		TP1: 101.4, StrategyType: "trend", Deadline: now.Add(time.Hour),
	}}, now)
	assert.Contains(t, buf.String(), "LONG")
	assert.Contains(t, buf.String(), "99.3")

	buf.Reset()
	renderPerf(&buf, []journal.StrategyPerf{{Strategy: "trend", Scored: 4, Wins: 3, TotalR: 1.2, MaxR: 0.8, MinR: -1}}, 7)
	assert.Contains(t, buf.String(), "75%")
	assert.Contains(t, buf.String(), "+0.30")

	assert.Equal(t, "none", codeList(nil))
	assert.Equal(t, "CORRELATION=2 DAY_RISK_CAP=1", codeList(map[string]int{"DAY_RISK_CAP": 1, "CORRELATION": 2}))
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signalgov.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = execute(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "1000.00 USDT")
}

const cliScenario = `
start: 2025-03-01T12:00:00Z
step_sec: 60
prices:
  BTCUSDT: [100, 105, 110, 97]
passes:
  - step: 0
    candidates:
      - {symbol: BTCUSDT, side: long, score: 3, atr_pct: 5, strategy_type: scripted}
`

func TestRunThenQuery(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Risk.ATRMult = 1
	cfg.Store.EventsCSV = filepath.Join(dir, "events.csv")
	cfgPath := filepath.Join(dir, "signalgov.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	scPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scPath, []byte(cliScenario), 0o644))
	db := filepath.Join(dir, "signals.db")

	out, err := execute(t, "run", "--db", db, "--log-level", "error", "-f", cfgPath, "--scenario", scPath)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN SUMMARY")
	assert.Contains(t, out, "SL=1")

	csvData, err := os.ReadFile(cfg.Store.EventsCSV)
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "tp1_hit")

	out, err = execute(t, "journal", "perf", "--db", db, "-f", cfgPath, "--days", "36500")
	require.NoError(t, err)
	assert.Contains(t, out, "scripted")
	assert.Contains(t, out, "-1.00")

	out, err = execute(t, "status", "--db", db, "-f", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "GUARD 2025-03-01")
	assert.Contains(t, out, "no open signals")

	_, err = execute(t, "journal", "signal", "--db", db, "-f", cfgPath, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signal nope")
}
