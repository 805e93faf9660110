package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/signalgov/config"
)

// Violation codes reported by the acceptance gates.
const (
	CodeGuardClosed   = "GUARD_CLOSED"
	CodeSymbolBlocked = "SYMBOL_BLOCKED"
	CodeAlreadyOpen   = "ALREADY_OPEN"
	CodeSideCooldown  = "SIDE_COOLDOWN"
	CodeDayRiskCap    = "DAY_RISK_CAP"
	CodeMaxOpen       = "MAX_OPEN_SIGNALS"
	CodeCorrelation   = "CORRELATION"
	CodeInvalidSize   = "INVALID_SIZE"
	CodeMinNotional   = "MIN_NOTIONAL"
	CodeNoPrice       = "NO_PRICE"
)

type Violation struct {
	Code string
	Msg  string
}

func (v *Violation) Error() string { return v.Code + ": " + v.Msg }

// Decision collects the gate results for one candidate.
type Decision struct {
	Allowed    bool
	Violations []Violation
}

func Allow() Decision { return Decision{Allowed: true} }

func (d *Decision) Add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Codes joins the violation codes, e.g. "DAY_RISK_CAP,CORRELATION".
func (d Decision) Codes() string {
	codes := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		codes[i] = v.Code
	}
	return strings.Join(codes, ",")
}

// CorrelationOK is the correlation gate: always true when the cap is
// disabled, otherwise false when |beta| exceeds the threshold.
func CorrelationOK(beta float64, cfg config.CorrCapConfig) bool {
	if !cfg.Enable {
		return true
	}
	return math.Abs(beta) <= cfg.BetaThreshold
}

// CheckCorrelation records a CORRELATION violation when the gate fails.
func CheckCorrelation(d *Decision, symbol string, beta float64, cfg config.CorrCapConfig) {
	if !CorrelationOK(beta, cfg) {
		d.Add(CodeCorrelation, fmt.Sprintf("%s beta %.2f exceeds %.2f", symbol, beta, cfg.BetaThreshold))
	}
}
