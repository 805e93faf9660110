package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatSignalOrg renders a signal as an Org-mode block suitable for pasting
// into a journal. Structured facts go into the PROPERTIES drawer; the
// strategy reasons seed the Thesis section.
func FormatSignalOrg(r SignalRecord) string {
	status := r.Status
	if r.IsOpen() {
		status = "OPEN"
	}
	heading := fmt.Sprintf("** Signal: %s %s [%s] (%s)", r.Symbol, strings.ToUpper(string(r.Side)), status, shortID(r.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", r.ID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", r.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", r.Side))
	b.WriteString(fmt.Sprintf(":STRATEGY: %s\n", r.StrategyType))
	b.WriteString(fmt.Sprintf(":SCORE: %.2f\n", r.Score))
	b.WriteString(fmt.Sprintf(":ENTRY: %s\n", px(r.Entry)))
	b.WriteString(fmt.Sprintf(":STOP: %s\n", px(r.InitialStop)))
	b.WriteString(fmt.Sprintf(":TP1: %s\n", px(r.TP1)))
	b.WriteString(fmt.Sprintf(":TP2: %s\n", px(r.TP2)))
	b.WriteString(fmt.Sprintf(":TP3: %s\n", px(r.TP3)))
	b.WriteString(fmt.Sprintf(":QTY: %.6f\n", r.Qty))
	b.WriteString(fmt.Sprintf(":NOTIONAL: %.2f\n", r.Notional))
	b.WriteString(fmt.Sprintf(":LEVERAGE: %.1f\n", r.Leverage))
	b.WriteString(fmt.Sprintf(":RISK_PCT: %.4f\n", r.RiskPct))
	b.WriteString(fmt.Sprintf(":OPENED_AT: %s\n", r.OpenedAt.UTC().Format(time.RFC3339)))
	if !r.IsOpen() {
		b.WriteString(fmt.Sprintf(":CLOSED_AT: %s\n", r.ClosedAt.UTC().Format(time.RFC3339)))
		b.WriteString(fmt.Sprintf(":EXIT_PRICE: %s\n", px(r.ExitPrice)))
		b.WriteString(fmt.Sprintf(":OUTCOME: %s\n", r.Outcome))
		b.WriteString(fmt.Sprintf(":R: %.2f\n", r.R))
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n")
	if len(r.Reasons) == 0 {
		b.WriteString("- \n")
	}
	for _, reason := range r.Reasons {
		b.WriteString("- " + reason + "\n")
	}
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatSignalsOrg renders multiple signals separated by blank lines.
func FormatSignalsOrg(recs []SignalRecord) string {
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatSignalOrg(r))
	}
	return b.String()
}

func px(x float64) string {
	return fmt.Sprintf("%.5f", x)
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
