package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/market"
)

type memStore struct {
	mu    sync.Mutex
	state State
	ok    bool
	saves int
	fail  error
}

func (m *memStore) LoadRiskState(ctx context.Context) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.ok, nil
}

func (m *memStore) SaveRiskState(ctx context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.state = s.Clone()
	m.ok = true
	m.saves++
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(t *testing.T, cfg *config.Config, st *memStore, c *clock) *Guard {
	t.Helper()
	g, err := New(context.Background(), cfg, st,
		WithClock(c.now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return g
}

func TestNewStartsFreshState(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	st := &memStore{}
	g := newTestGuard(t, config.Default(), st, c)

	s, day := g.Snapshot()
	assert.Equal(t, "2025-03-01", s.Date)
	assert.Zero(t, s.RDay)
	assert.Zero(t, day.OpenSignals)
	assert.True(t, st.ok, "initial state must be persisted")
	assert.True(t, g.CanAccept())
}

func TestHardStopCooldown(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Guard.StopDayR = -3.0
	cfg.Guard.CooldownAfterStopSec = 8 * 3600

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	st := &memStore{ok: true, state: NewState(c.t)}
	st.state.RDay = -2.6
	g := newTestGuard(t, cfg, st, c)

	require.NoError(t, g.RegisterTradeResult(context.Background(), -1.0))

	s, _ := g.Snapshot()
	assert.InDelta(t, -3.6, s.RDay, 1e-9)
	assert.Equal(t, c.t.Add(8*time.Hour), s.CooldownUntil)
	assert.False(t, g.CanAccept())
	assert.Equal(t, 8*time.Hour, g.CooldownRemaining())

	// persisted
	assert.InDelta(t, -3.6, st.state.RDay, 1e-9)

	c.advance(8*time.Hour + time.Second)
	assert.True(t, g.CanAccept())
	assert.Zero(t, g.CooldownRemaining())
}

func TestMaxDrawdownStop(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Account.Deposit = 10 // 5% of 10 is 0.5
	cfg.Guard.StopDayR = -100

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)

	require.NoError(t, g.RegisterTradeResult(context.Background(), -0.5))
	assert.False(t, g.CanAccept())
	s, _ := g.Snapshot()
	assert.Equal(t, c.t.Add(cfg.Guard.AfterStop()), s.CooldownUntil)
}

func TestLossStreakCooldown(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Guard.LossStreakCooldown = 3
	cfg.Guard.CooldownAfterStreakSec = 1800
	cfg.Guard.StopDayR = -10
	cfg.Account.Deposit = 1e6

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)
	ctx := context.Background()

	require.NoError(t, g.RegisterTradeResult(ctx, -1))
	require.NoError(t, g.RegisterTradeResult(ctx, 0.5)) // win resets
	require.NoError(t, g.RegisterTradeResult(ctx, -1))
	require.NoError(t, g.RegisterTradeResult(ctx, -1))
	assert.True(t, g.CanAccept())

	require.NoError(t, g.RegisterTradeResult(ctx, -1))
	s, _ := g.Snapshot()
	assert.Equal(t, 3, s.LossStreak)
	assert.Equal(t, c.t.Add(30*time.Minute), s.CooldownUntil)
	assert.False(t, g.CanAccept())
}

func TestCooldownNeverMovesBack(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Guard.StopDayR = -2
	cfg.Guard.CooldownAfterStopSec = 8 * 3600
	cfg.Guard.LossStreakCooldown = 1
	cfg.Guard.CooldownAfterStreakSec = 600
	cfg.Account.Deposit = 1e6

	c := &clock{t: time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)
	ctx := context.Background()

	require.NoError(t, g.RegisterTradeResult(ctx, -2)) // hard stop, 8h
	s, _ := g.Snapshot()
	stopUntil := s.CooldownUntil

	c.advance(time.Minute)
	require.NoError(t, g.RegisterTradeResult(ctx, 1)) // still below stop
	require.NoError(t, g.RegisterTradeResult(ctx, -0.5))

	s, _ = g.Snapshot()
	assert.Equal(t, stopUntil, s.CooldownUntil)
}

func TestDailySignalLimit(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Guard.MaxSignalsPerDay = 2

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)
	ctx := context.Background()

	require.NoError(t, g.RegisterSignalSent(ctx))
	assert.True(t, g.CanAccept())
	require.NoError(t, g.RegisterSignalSent(ctx))
	assert.False(t, g.CanAccept())
}

func TestDayBoundaryReset(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	c := &clock{t: time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)}
	st := &memStore{ok: true, state: NewState(c.t)}
	st.state.RDay = -3.5
	st.state.LossStreak = 4
	st.state.SignalsSent = 12
	st.state.CooldownUntil = c.t.Add(8 * time.Hour)

	g := newTestGuard(t, cfg, st, c)
	g.SetDayPortfolio(DayPortfolio{RiskUsedPct: 0.01, OpenSignals: 2})
	assert.False(t, g.CanAccept())

	rolled, err := g.OnDayBoundary(context.Background())
	require.NoError(t, err)
	assert.False(t, rolled)

	c.advance(2 * time.Minute)
	rolled, err = g.OnDayBoundary(context.Background())
	require.NoError(t, err)
	assert.True(t, rolled)

	s, day := g.Snapshot()
	assert.Equal(t, "2025-03-02", s.Date)
	assert.Zero(t, s.RDay)
	assert.Zero(t, s.LossStreak)
	assert.Zero(t, s.SignalsSent)
	assert.True(t, s.CooldownUntil.IsZero())
	assert.Zero(t, day.RiskUsedPct)
	assert.Equal(t, 2, day.OpenSignals, "carried-over signals stay counted")
	assert.True(t, g.CanAccept())
	assert.Equal(t, "2025-03-02", st.state.Date)

	// a second call on the same day is a no-op
	rolled, err = g.OnDayBoundary(context.Background())
	require.NoError(t, err)
	assert.False(t, rolled)
}

func TestReleaseAcrossDayBoundary(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	c := &clock{t: time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)}
	st := &memStore{ok: true, state: NewState(c.t)}
	g := newTestGuard(t, cfg, st, c)
	g.SetDayPortfolio(DayPortfolio{OpenSignals: 1})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g.Release()
	}()
	go func() {
		defer wg.Done()
		c.advance(2 * time.Minute)
		_, err := g.OnDayBoundary(context.Background())
		assert.NoError(t, err)
	}()
	wg.Wait()

	_, day := g.Snapshot()
	assert.Zero(t, day.OpenSignals)

	// a release that lands after the rollover is not undone either
	g.SetDayPortfolio(DayPortfolio{OpenSignals: 1})
	c.advance(24 * time.Hour)
	rolled, err := g.OnDayBoundary(context.Background())
	require.NoError(t, err)
	assert.True(t, rolled)
	g.Release()
	_, day = g.Snapshot()
	assert.Zero(t, day.OpenSignals)
}

func TestNewRollsOverStaleState(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)}
	st := &memStore{ok: true, state: NewState(c.t.AddDate(0, 0, -2))}
	st.state.RDay = -1.5

	g := newTestGuard(t, config.Default(), st, c)
	s, _ := g.Snapshot()
	assert.Equal(t, "2025-03-05", s.Date)
	assert.Zero(t, s.RDay)
}

func TestOutcomeCooldown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tpSec   int
		slSec   int
		outcome market.Outcome
		blocked bool
	}{
		{"sl blocks", 0, 1800, market.OutcomeSL, true},
		{"tp disabled", 0, 1800, market.OutcomeTP, false},
		{"tp blocks", 600, 0, market.OutcomeTP, true},
		{"sl disabled", 600, 0, market.OutcomeSL, false},
		{"ttl never blocks", 600, 600, market.OutcomeTTL, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			cfg.Guard.CooldownAfterTPSec = tt.tpSec
			cfg.Guard.CooldownAfterSLSec = tt.slSec

			c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
			g := newTestGuard(t, cfg, &memStore{}, c)

			require.NoError(t, g.RegisterOutcomeCooldown(context.Background(), "ETHUSDT", tt.outcome))
			assert.Equal(t, tt.blocked, g.IsSymbolBlocked("ETHUSDT"))
			assert.False(t, g.IsSymbolBlocked("SOLUSDT"))
		})
	}
}

func TestSymbolBlockExpires(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Guard.CooldownAfterSLSec = 60

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)

	require.NoError(t, g.RegisterOutcomeCooldown(context.Background(), "ETHUSDT", market.OutcomeSL))
	assert.True(t, g.IsSymbolBlocked("ETHUSDT"))

	c.advance(61 * time.Second)
	assert.False(t, g.IsSymbolBlocked("ETHUSDT"))

	_, err := g.OnDayBoundary(context.Background())
	require.NoError(t, err)
	s, _ := g.Snapshot()
	assert.Empty(t, s.Blocked, "expired blocks are pruned")
}

func TestAcceptBooksSignal(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Consensus.CooldownSameSec = 600
	cfg.Consensus.CooldownOppSec = 1800
	cfg.Portfolio.DayMaxRiskPct = 0.01
	cfg.Portfolio.MaxOpenSignals = 2

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)

	var committed State
	err := g.Accept(context.Background(), "BTCUSDT", market.Long, 0.005, func(next State) error {
		committed = next
		return nil
	})
	require.NoError(t, err)

	s, day := g.Snapshot()
	assert.Equal(t, 1, s.SignalsSent)
	assert.Equal(t, 1, committed.SignalsSent)
	assert.InDelta(t, 0.005, day.RiskUsedPct, 1e-12)
	assert.Equal(t, 1, day.OpenSignals)

	assert.True(t, g.SideCooling("BTCUSDT", market.Long))
	assert.True(t, g.SideCooling("BTCUSDT", market.Short))
	assert.False(t, g.SideCooling("ETHUSDT", market.Long))

	assert.True(t, g.DayRiskAllowed(0.005))
	assert.False(t, g.DayRiskAllowed(0.006))
	assert.True(t, g.OpenSignalAllowed())

	c.advance(11 * time.Minute)
	assert.False(t, g.SideCooling("BTCUSDT", market.Long))
	assert.True(t, g.SideCooling("BTCUSDT", market.Short))
}

func TestFailedCommitKeepsState(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, config.Default(), &memStore{}, c)
	ctx := context.Background()

	boom := errors.New("disk full")
	err := g.Accept(ctx, "BTCUSDT", market.Long, 0.005, func(State) error { return boom })
	require.ErrorIs(t, err, boom)

	s, day := g.Snapshot()
	assert.Zero(t, s.SignalsSent)
	assert.Zero(t, day.OpenSignals)
	assert.False(t, g.SideCooling("BTCUSDT", market.Long))

	err = g.Settle(ctx, "BTCUSDT", market.OutcomeSL, -1, func(State) error { return boom })
	require.ErrorIs(t, err, boom)
	s, _ = g.Snapshot()
	assert.Zero(t, s.RDay)
}

func TestSettle(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Guard.CooldownAfterSLSec = 1800

	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)
	ctx := context.Background()

	require.NoError(t, g.Accept(ctx, "BTCUSDT", market.Long, 0.005, nil))
	require.NoError(t, g.Accept(ctx, "ETHUSDT", market.Short, 0.005, nil))

	require.NoError(t, g.Settle(ctx, "BTCUSDT", market.OutcomeSL, -1, nil))
	s, day := g.Snapshot()
	assert.InDelta(t, -1.0, s.RDay, 1e-12)
	assert.Equal(t, 1, s.LossStreak)
	assert.Equal(t, 1, day.OpenSignals)
	assert.True(t, g.IsSymbolBlocked("BTCUSDT"))

	// TTL is unscored
	require.NoError(t, g.Settle(ctx, "ETHUSDT", market.OutcomeTTL, 0, nil))
	s, day = g.Snapshot()
	assert.InDelta(t, -1.0, s.RDay, 1e-12)
	assert.Equal(t, 1, s.LossStreak)
	assert.Zero(t, day.OpenSignals)
	assert.False(t, g.IsSymbolBlocked("ETHUSDT"))

	// never below zero
	g.Release()
	_, day = g.Snapshot()
	assert.Zero(t, day.OpenSignals)
}

func TestOpenSignalCap(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Portfolio.MaxOpenSignals = 1
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	g := newTestGuard(t, cfg, &memStore{}, c)

	require.NoError(t, g.Accept(context.Background(), "BTCUSDT", market.Long, 0.001, nil))
	assert.False(t, g.OpenSignalAllowed())
}

func TestStateClone(t *testing.T) {
	t.Parallel()

	s := NewState(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	s.Blocked["BTCUSDT"] = time.Unix(1, 0)
	c := s.Clone()
	c.Blocked["ETHUSDT"] = time.Unix(2, 0)
	c.SideCooldowns["X:long"] = time.Unix(3, 0)

	assert.Len(t, s.Blocked, 1)
	assert.Empty(t, s.SideCooldowns)
}
