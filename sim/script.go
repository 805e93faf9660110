package sim

import (
	"context"
	"strings"
	"sync"

	"github.com/rustyeddy/signalgov/market"
)

// Script proposes the scenario's candidates for the current step.
type Script struct {
	mu     sync.Mutex
	step   int
	byStep map[int][]market.Candidate
}

func NewScript(passes []ScriptedPass) *Script {
	s := &Script{byStep: make(map[int][]market.Candidate)}
	for _, p := range passes {
		s.byStep[p.Step] = append(s.byStep[p.Step], p.Candidates...)
	}
	return s
}

func (s *Script) Name() string { return "scenario" }

func (s *Script) SetStep(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = i
}

func (s *Script) Candidates(_ context.Context, symbol string) ([]market.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []market.Candidate
	for _, c := range s.byStep[s.step] {
		if strings.EqualFold(c.Symbol, symbol) {
			out = append(out, c)
		}
	}
	return out, nil
}
