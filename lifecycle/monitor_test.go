package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/market"
)

// fakeStore keeps signals and the risk state in memory.
type fakeStore struct {
	mu      sync.Mutex
	state   guard.State
	hasSt   bool
	open    map[string]OpenSignal
	closed  []ClosedSignal
	updates int
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{open: make(map[string]OpenSignal)}
}

func (f *fakeStore) LoadRiskState(ctx context.Context) (guard.State, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone(), f.hasSt, nil
}

func (f *fakeStore) SaveRiskState(ctx context.Context, s guard.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state, f.hasSt = s.Clone(), true
	return nil
}

func (f *fakeStore) OpenSignals(ctx context.Context) ([]OpenSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OpenSignal
	for _, s := range f.open {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) InsertSignal(ctx context.Context, s OpenSignal, st guard.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.open[s.ID] = s
	f.state, f.hasSt = st.Clone(), true
	return nil
}

func (f *fakeStore) UpdateSignal(ctx context.Context, s OpenSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if _, ok := f.open[s.ID]; !ok {
		return fmt.Errorf("update %s: %w", s.ID, ErrNotFound)
	}
	f.open[s.ID] = s
	f.updates++
	return nil
}

func (f *fakeStore) CloseSignal(ctx context.Context, c ClosedSignal, st guard.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if _, ok := f.open[c.ID]; !ok {
		return fmt.Errorf("close %s: %w", c.ID, ErrNotFound)
	}
	delete(f.open, c.ID)
	f.closed = append(f.closed, c)
	f.state, f.hasSt = st.Clone(), true
	return nil
}

// pathPrices replays a fixed price path per symbol.
type pathPrices struct {
	mu    sync.Mutex
	paths map[string][]float64
}

func (p *pathPrices) Price(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	path := p.paths[symbol]
	if len(path) == 0 {
		return 0, market.ErrNoPrice
	}
	px := path[0]
	p.paths[symbol] = path[1:]
	return px, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	store  *fakeStore
	prices *pathPrices
	guard  *guard.Guard
	mon    *Monitor
	rec    *recorder
	now    time.Time
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		store:  newFakeStore(),
		prices: &pathPrices{paths: map[string][]float64{}},
		rec:    &recorder{},
		now:    t0,
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return f.now }

	g, err := guard.New(context.Background(), cfg, f.store, guard.WithClock(clock), guard.WithLogger(quiet))
	require.NoError(t, err)
	f.guard = g
	f.mon = NewMonitor(f.store, g, f.prices, cfg.Follow,
		WithClock(clock), WithLogger(quiet), WithSinks(f.rec))
	return f
}

func (f *fixture) tickAll(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.now = f.now.Add(3 * time.Second)
		require.NoError(t, f.mon.Tick(context.Background()))
	}
}

func TestMonitorStopAfterBreakeven(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	f := newFixture(t, cfg)
	ctx := context.Background()

	require.NoError(t, f.mon.Open(ctx, longSignal()))
	assert.Equal(t, 1, f.mon.Count())
	st, day := f.guard.Snapshot()
	assert.Equal(t, 1, st.SignalsSent)
	assert.Equal(t, 1, day.OpenSignals)

	f.prices.paths["BTCUSDT"] = []float64{105, 110, 97}
	f.tickAll(t, 3)

	assert.Zero(t, f.mon.Count())
	require.Len(t, f.store.closed, 1)
	c := f.store.closed[0]
	assert.Equal(t, market.OutcomeSL, c.Outcome)
	assert.Equal(t, -1.0, c.R)
	assert.Equal(t, 100.0, c.Stop)
	assert.True(t, c.TP1Hit)

	st, day = f.guard.Snapshot()
	assert.InDelta(t, -1.0, st.RDay, 1e-12)
	assert.Equal(t, 1, st.LossStreak)
	assert.Zero(t, day.OpenSignals)
	assert.True(t, f.guard.IsSymbolBlocked("BTCUSDT"), "post-loss block")
	assert.InDelta(t, -1.0, f.store.state.RDay, 1e-12, "state committed with the close")

	assert.Equal(t, []EventKind{EventAccepted, EventTP1, EventClosed}, f.rec.kinds())
}

func TestMonitorTakeProfit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	require.NoError(t, f.mon.Open(context.Background(), longSignal()))

	f.prices.paths["BTCUSDT"] = []float64{110, 120, 130}
	f.tickAll(t, 3)

	require.Len(t, f.store.closed, 1)
	assert.Equal(t, market.OutcomeTP, f.store.closed[0].Outcome)
	assert.InDelta(t, 0.4, f.store.closed[0].R, 1e-12)
	assert.Equal(t, 2, f.store.updates)

	st, _ := f.guard.Snapshot()
	assert.InDelta(t, 0.4, st.RDay, 1e-12)
	assert.Zero(t, st.LossStreak)
	assert.Equal(t, []EventKind{EventAccepted, EventTP1, EventTP2, EventClosed}, f.rec.kinds())
}

func TestMonitorRepeatedPriceNoDuplicateEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	require.NoError(t, f.mon.Open(context.Background(), longSignal()))

	f.prices.paths["BTCUSDT"] = []float64{110, 110, 110}
	f.tickAll(t, 3)

	assert.Equal(t, []EventKind{EventAccepted, EventTP1}, f.rec.kinds())
	assert.Equal(t, 1, f.store.updates)
	sigs := f.mon.Signals()
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].TP1Hit)
}

func TestMonitorTTLIsUnscored(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	require.NoError(t, f.mon.Open(context.Background(), longSignal()))

	f.now = t0.Add(2 * time.Hour)
	require.NoError(t, f.mon.Tick(context.Background())) // no price at all

	require.Len(t, f.store.closed, 1)
	assert.Equal(t, market.OutcomeTTL, f.store.closed[0].Outcome)
	st, day := f.guard.Snapshot()
	assert.Zero(t, st.RDay)
	assert.Zero(t, st.LossStreak)
	assert.Zero(t, day.OpenSignals)
}

func TestMonitorMissingRecordDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	require.NoError(t, f.mon.Open(context.Background(), longSignal()))

	f.store.mu.Lock()
	delete(f.store.open, "sig-long")
	f.store.mu.Unlock()

	f.prices.paths["BTCUSDT"] = []float64{110}
	f.tickAll(t, 1)

	assert.Zero(t, f.mon.Count())
	_, day := f.guard.Snapshot()
	assert.Zero(t, day.OpenSignals)
	assert.Equal(t, []EventKind{EventAccepted}, f.rec.kinds())
}

func TestMonitorStoreFailureKeepsSignal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	require.NoError(t, f.mon.Open(context.Background(), longSignal()))

	f.store.failErr = errors.New("database is locked")
	f.prices.paths["BTCUSDT"] = []float64{90}
	err := f.mon.Tick(context.Background())
	require.Error(t, err)

	sigs := f.mon.Signals()
	require.Len(t, sigs, 1)
	st, _ := f.guard.Snapshot()
	assert.Zero(t, st.RDay, "no result booked without the close")

	f.store.failErr = nil
	f.prices.paths["BTCUSDT"] = []float64{90}
	require.NoError(t, f.mon.Tick(context.Background()))
	assert.Zero(t, f.mon.Count())
	st, _ = f.guard.Snapshot()
	assert.InDelta(t, -1.0, st.RDay, 1e-12)
}

func TestMonitorOpenFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	f.store.failErr = errors.New("disk full")

	require.Error(t, f.mon.Open(context.Background(), longSignal()))
	assert.Zero(t, f.mon.Count())
	st, day := f.guard.Snapshot()
	assert.Zero(t, st.SignalsSent)
	assert.Zero(t, day.OpenSignals)
	assert.Empty(t, f.rec.kinds())
}

func TestMonitorRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	require.NoError(t, f.mon.Open(context.Background(), longSignal()))
	require.Error(t, f.mon.Open(context.Background(), longSignal()))
	assert.Equal(t, 1, f.mon.Count())
}

func TestMonitorLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	f.store.open["a"] = OpenSignal{ID: "a", Symbol: "ETHUSDT", OpenedAt: t0.Add(time.Minute)}
	f.store.open["b"] = OpenSignal{ID: "b", Symbol: "BTCUSDT", OpenedAt: t0}

	require.NoError(t, f.mon.Load(context.Background()))
	sigs := f.mon.Signals()
	require.Len(t, sigs, 2)
	assert.Equal(t, "b", sigs[0].ID)
	assert.True(t, f.mon.HasOpen("ETHUSDT"))
	assert.False(t, f.mon.HasOpen("SOLUSDT"))
}

func TestMonitorIndependentSymbols(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Default())
	ctx := context.Background()
	require.NoError(t, f.mon.Open(ctx, longSignal()))
	short := shortSignal()
	short.Symbol = "ETHUSDT"
	require.NoError(t, f.mon.Open(ctx, short))

	f.prices.paths["BTCUSDT"] = []float64{110}
	f.prices.paths["ETHUSDT"] = []float64{106}
	f.tickAll(t, 1)

	require.Len(t, f.store.closed, 1)
	assert.Equal(t, "sig-short", f.store.closed[0].ID)
	sigs := f.mon.Signals()
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].TP1Hit)
}
