package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/signalgov/market"
)

// Scenario is a scripted market: one price per symbol per step and the
// candidates proposed at given steps.
//
//	start: 2025-03-01T12:00:00Z
//	step_sec: 60
//	prices:
//	  BTCUSDT: [100, 105, 110, 97]
//	passes:
//	  - step: 0
//	    candidates:
//	      - {symbol: BTCUSDT, side: long, score: 3, atr_pct: 0.5}
//
// A price of zero means the feed is silent for that step.
type Scenario struct {
	Start     time.Time            `yaml:"start"`
	StepSec   int                  `yaml:"step_sec"`
	ScanEvery int                  `yaml:"scan_every"` // steps between acceptance passes, default 1
	Warmup    map[string][]float64 `yaml:"warmup,omitempty"`
	Prices    map[string][]float64 `yaml:"prices,omitempty"`
	TicksCSV  string               `yaml:"ticks_csv,omitempty"`
	Passes    []ScriptedPass       `yaml:"passes,omitempty"`
}

type ScriptedPass struct {
	Step       int                `yaml:"step"`
	Candidates []market.Candidate `yaml:"candidates"`
}

// LoadScenario parses a scenario file. A relative ticks_csv is resolved
// against the scenario's directory and merged into Prices.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.TicksCSV != "" {
		p := sc.TicksCSV
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		ticks, err := LoadTicksCSV(p)
		if err != nil {
			return nil, err
		}
		sc.MergeTicks(ticks)
	}
	return sc, sc.Validate()
}

func ParseScenario(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.ScanEvery <= 0 {
		sc.ScanEvery = 1
	}
	if sc.Start.IsZero() {
		sc.Start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	sc.Start = sc.Start.UTC()
	return sc, nil
}

func (s *Scenario) Step() time.Duration { return time.Duration(s.StepSec) * time.Second }

// At is the wall time of step i.
func (s *Scenario) At(i int) time.Time { return s.Start.Add(time.Duration(i) * s.Step()) }

// Steps is the length of the longest price path.
func (s *Scenario) Steps() int {
	n := 0
	for _, path := range s.Prices {
		n = max(n, len(path))
	}
	return n
}

// Symbols lists every symbol with a price path, sorted.
func (s *Scenario) Symbols() []string {
	out := make([]string, 0, len(s.Prices))
	for sym := range s.Prices {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// MergeTicks slots ticks into steps by time. The last tick in a step wins
// and steps without a tick carry the previous price forward.
func (s *Scenario) MergeTicks(ticks []Tick) {
	if s.Prices == nil {
		s.Prices = make(map[string][]float64)
	}
	step := s.Step()
	if step <= 0 {
		return
	}
	for _, tk := range ticks {
		if tk.Time.Before(s.Start) {
			continue
		}
		i := int(tk.Time.Sub(s.Start) / step)
		path := s.Prices[tk.Symbol]
		for len(path) <= i {
			var carry float64
			if n := len(path); n > 0 {
				carry = path[n-1]
			}
			path = append(path, carry)
		}
		path[i] = tk.Price
		s.Prices[tk.Symbol] = path
	}
}

func (s *Scenario) Validate() error {
	if s.StepSec <= 0 {
		return fmt.Errorf("step_sec must be positive")
	}
	if s.Steps() == 0 {
		return fmt.Errorf("scenario has no prices")
	}
	for i, p := range s.Passes {
		if p.Step < 0 || p.Step >= s.Steps() {
			return fmt.Errorf("passes[%d]: step %d outside 0..%d", i, p.Step, s.Steps()-1)
		}
		for j, c := range p.Candidates {
			if c.Symbol == "" {
				return fmt.Errorf("passes[%d].candidates[%d]: symbol is required", i, j)
			}
			if !c.Side.Valid() {
				return fmt.Errorf("passes[%d].candidates[%d]: bad side %q", i, j, c.Side)
			}
		}
	}
	return nil
}
