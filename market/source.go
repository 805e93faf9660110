package market

import (
	"context"
	"errors"
)

// ErrNoPrice is returned by price sources that have nothing for a symbol.
var ErrNoPrice = errors.New("price not available")

// PriceSource returns the latest price for a symbol. Any error, or a
// non-positive price, means "skip this observation".
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// HistorySource returns recent closes for a symbol, oldest first.
type HistorySource interface {
	Closes(ctx context.Context, symbol string, n int) ([]float64, error)
}

// Correlator returns the correlation (beta proxy) of symbol against the
// configured reference asset.
type Correlator interface {
	Beta(ctx context.Context, symbol string) (float64, error)
}
