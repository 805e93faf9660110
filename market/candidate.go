package market

// Candidate is one strategy's proposal for a single scan pass.
type Candidate struct {
	Symbol       string   `json:"symbol" yaml:"symbol"`
	Side         Side     `json:"side" yaml:"side"`
	Score        float64  `json:"score" yaml:"score"`
	ATRPct       float64  `json:"atr_pct" yaml:"atr_pct"`
	ADX          float64  `json:"adx" yaml:"adx"`
	CorrToRef    float64  `json:"corr_to_ref" yaml:"corr_to_ref"`
	StrategyType string   `json:"strategy_type" yaml:"strategy_type"`
	Reasons      []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`

	// Entry is the reference price the strategy saw. Zero means the
	// acceptance path fetches a fresh price.
	Entry float64 `json:"entry,omitempty" yaml:"entry,omitempty"`
}

// Key identifies a symbol/side pair, e.g. "BTCUSDT:long".
func (c Candidate) Key() string {
	return SideKey(c.Symbol, c.Side)
}

func SideKey(symbol string, side Side) string {
	return symbol + ":" + string(side)
}
