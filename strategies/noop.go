package strategies

import (
	"context"

	"github.com/rustyeddy/signalgov/market"
)

// Noop never proposes anything.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Candidates(context.Context, string) ([]market.Candidate, error) { return nil, nil }
