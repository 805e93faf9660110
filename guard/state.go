// Package guard is the day governor: it owns the persisted RiskState and the
// in-memory day portfolio, and decides whether new signals may be accepted.
package guard

import (
	"time"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/market"
)

// DateLayout is the layout of State.Date.
const DateLayout = "2006-01-02"

// State is the durable per-day risk record. It survives restarts.
type State struct {
	Date          string    `json:"date"`
	RDay          float64   `json:"r_day"`
	LossStreak    int       `json:"loss_streak"`
	CooldownUntil time.Time `json:"cooldown_until"`
	SignalsSent   int       `json:"signals_sent"`

	// Blocked maps a symbol to the end of its post-outcome cooldown.
	Blocked map[string]time.Time `json:"blocked"`
	// SideCooldowns maps "SYMBOL:side" to the end of its re-entry block.
	SideCooldowns map[string]time.Time `json:"side_cooldowns"`
}

// DayPortfolio is the in-memory exposure committed today.
type DayPortfolio struct {
	RiskUsedPct float64
	OpenSignals int
}

// NewState returns an empty state dated at now.
func NewState(now time.Time) State {
	return State{
		Date:          now.UTC().Format(DateLayout),
		Blocked:       make(map[string]time.Time),
		SideCooldowns: make(map[string]time.Time),
	}
}

// Clone returns a deep copy so a transition can be computed without touching
// the live state.
func (s State) Clone() State {
	c := s
	c.Blocked = make(map[string]time.Time, len(s.Blocked))
	for k, v := range s.Blocked {
		c.Blocked[k] = v
	}
	c.SideCooldowns = make(map[string]time.Time, len(s.SideCooldowns))
	for k, v := range s.SideCooldowns {
		c.SideCooldowns[k] = v
	}
	return c
}

// rollover resets the day counters when now falls on a different UTC date.
func (s *State) rollover(now time.Time) bool {
	today := now.UTC().Format(DateLayout)
	if s.Date == today {
		return false
	}
	s.Date = today
	s.RDay = 0
	s.LossStreak = 0
	s.CooldownUntil = time.Time{}
	s.SignalsSent = 0
	return true
}

// extendCooldown moves CooldownUntil forward, never back.
func (s *State) extendCooldown(until time.Time) {
	if until.After(s.CooldownUntil) {
		s.CooldownUntil = until
	}
}

// applyTradeResult books r and evaluates the stop conditions: the hard day
// stop first, then the loss streak.
func (s *State) applyTradeResult(cfg config.GuardConfig, deposit, r float64, now time.Time) {
	s.RDay += r
	if r < 0 {
		s.LossStreak++
	} else {
		s.LossStreak = 0
	}

	mddFloor := -cfg.MaxMDDPct / 100 * deposit
	switch {
	case s.RDay <= cfg.StopDayR || s.RDay <= mddFloor:
		s.extendCooldown(now.Add(cfg.AfterStop()))
	case s.LossStreak >= cfg.LossStreakCooldown:
		s.extendCooldown(now.Add(cfg.AfterStreak()))
	}
}

// applyOutcome blocks the symbol after a TP or SL when the matching cooldown
// is configured.
func (s *State) applyOutcome(cfg config.GuardConfig, symbol string, outcome market.Outcome, now time.Time) {
	var d time.Duration
	switch outcome {
	case market.OutcomeTP:
		d = cfg.AfterTP()
	case market.OutcomeSL:
		d = cfg.AfterSL()
	}
	if d <= 0 {
		return
	}
	if s.Blocked == nil {
		s.Blocked = make(map[string]time.Time)
	}
	until := now.Add(d)
	if until.After(s.Blocked[symbol]) {
		s.Blocked[symbol] = until
	}
}

// applySideCooldowns blocks re-entry on the same side and reversal to the
// opposite side of an accepted signal.
func (s *State) applySideCooldowns(cfg config.ConsensusConfig, symbol string, side market.Side, now time.Time) {
	if s.SideCooldowns == nil {
		s.SideCooldowns = make(map[string]time.Time)
	}
	if d := cfg.SameSide(); d > 0 {
		s.SideCooldowns[market.SideKey(symbol, side)] = now.Add(d)
	}
	if d := cfg.OppositeSide(); d > 0 {
		s.SideCooldowns[market.SideKey(symbol, side.Opposite())] = now.Add(d)
	}
}

// prune drops expired symbol and side blocks.
func (s *State) prune(now time.Time) {
	for k, until := range s.Blocked {
		if !now.Before(until) {
			delete(s.Blocked, k)
		}
	}
	for k, until := range s.SideCooldowns {
		if !now.Before(until) {
			delete(s.SideCooldowns, k)
		}
	}
}
