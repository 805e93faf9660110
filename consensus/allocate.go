package consensus

import (
	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/market"
)

// Allocation pairs a ranked candidate with its share of the pass risk budget.
type Allocation struct {
	Candidate market.Candidate
	RiskPct   float64
}

// Allocate gives every candidate an equal share of cfg.MaxRiskPct, so the
// pass never commits more than MaxRiskPct in total. The equal split does not
// depend on deposit; it is part of the signature for policies that size by
// account value.
func Allocate(deposit float64, cfg config.AllocatorConfig, cands []market.Candidate) []Allocation {
	if len(cands) == 0 {
		return nil
	}
	share := cfg.MaxRiskPct / float64(len(cands))
	out := make([]Allocation, len(cands))
	for i, c := range cands {
		out[i] = Allocation{Candidate: c, RiskPct: share}
	}
	return out
}
