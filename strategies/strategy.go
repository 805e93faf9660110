// Package strategies holds the built-in candidate producers. Each one reads
// recent candles for a symbol and proposes at most one candidate per call.
package strategies

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/signalgov/market"
)

// Strategy is the shape the engine consumes.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, symbol string) ([]market.Candidate, error)
}

// Factory builds a strategy over a candle source.
type Factory func(src market.CandleSource) Strategy

var registry = make(map[string]Factory)

func Register(name string, f Factory) {
	registry[strings.ToLower(name)] = f
}

// ByName builds the registered strategy called name.
func ByName(name string, src market.CandleSource) (Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(src), nil
}

// Names lists the registered strategies, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("noop", func(market.CandleSource) Strategy { return Noop{} })
	Register("ema-cross", func(src market.CandleSource) Strategy { return NewEMACross(src, DefaultEMACrossConfig()) })
	Register("ema-adx", func(src market.CandleSource) Strategy { return NewEMAADX(src, DefaultEMAADXConfig()) })
}
