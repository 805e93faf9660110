package market

// Outcome is how a signal was closed.
type Outcome string

const (
	OutcomeTP  Outcome = "TP"
	OutcomeSL  Outcome = "SL"
	OutcomeTTL Outcome = "TTL"
)

// Scored reports whether the outcome counts toward the day's realized R.
// TTL exits are neutral.
func (o Outcome) Scored() bool {
	return o == OutcomeTP || o == OutcomeSL
}
