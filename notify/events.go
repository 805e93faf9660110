package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/signalgov/lifecycle"
	"github.com/rustyeddy/signalgov/market"
)

// EventSink turns lifecycle events into messages.
type EventSink struct {
	N Notifier
}

func (s EventSink) HandleEvent(ctx context.Context, ev lifecycle.Event) error {
	return s.N.Notify(ctx, Format(ev))
}

// Format renders the message for ev.
func Format(ev lifecycle.Event) Message {
	sig := ev.Signal
	head := fmt.Sprintf("%s %s", ev.Symbol, strings.ToUpper(string(ev.Side)))

	switch ev.Kind {
	case lifecycle.EventAccepted:
		var b strings.Builder
		fmt.Fprintf(&b, "Strategy: %s (score %.2f)\n", sig.StrategyType, sig.Score)
		fmt.Fprintf(&b, "Entry: %s\nStop: %s\n", price(sig.Entry), price(sig.Stop))
		fmt.Fprintf(&b, "TP1: %s (%.0f%%)\nTP2: %s (%.0f%%)\nTP3: %s\n",
			price(sig.TP1), sig.Frac1*100, price(sig.TP2), sig.Frac2*100, price(sig.TP3))
		fmt.Fprintf(&b, "Qty: %.6f  Leverage: x%.0f  Margin: %.2f\n", sig.Qty, sig.Leverage, sig.Margin)
		fmt.Fprintf(&b, "Risk: %.2f%% (%.2f)\n", sig.RiskPct*100, sig.RiskAmount)
		if len(sig.Reasons) > 0 {
			fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(sig.Reasons, ", "))
		}
		fmt.Fprintf(&b, "Valid until %s UTC", sig.Deadline.UTC().Format("15:04"))
		return Message{Level: LevelInfo, Title: "New signal " + head, Text: b.String()}

	case lifecycle.EventTP1:
		text := fmt.Sprintf("TP1 reached at %s", price(ev.Price))
		if sig.Breakeven {
			text += fmt.Sprintf("\nStop moved to breakeven %s", price(sig.Stop))
		}
		return Message{Level: LevelSuccess, Title: "TP1 " + head, Text: text}

	case lifecycle.EventTP2:
		return Message{
			Level: LevelSuccess,
			Title: "TP2 " + head,
			Text:  fmt.Sprintf("TP2 reached at %s\nRunner targets %s", price(ev.Price), price(sig.TP3)),
		}

	case lifecycle.EventClosed:
		lvl := LevelInfo
		switch ev.Outcome {
		case market.OutcomeTP:
			lvl = LevelSuccess
		case market.OutcomeSL:
			lvl = LevelWarning
		}
		text := fmt.Sprintf("Closed %s at %s", ev.Outcome, price(ev.Price))
		if ev.Outcome.Scored() {
			text += fmt.Sprintf("\nResult: %+.2fR", ev.R)
		}
		if !ev.OpenedAt.IsZero() {
			text += fmt.Sprintf("\nHeld %s", ev.Time.Sub(ev.OpenedAt).Round(time.Second))
		}
		return Message{Level: lvl, Title: "Closed " + head, Text: text}
	}

	return Message{Level: LevelInfo, Title: head, Text: string(ev.Kind)}
}

func price(x float64) string {
	switch {
	case x >= 1000:
		return fmt.Sprintf("%.2f", x)
	case x >= 1:
		return fmt.Sprintf("%.4f", x)
	default:
		return fmt.Sprintf("%.6f", x)
	}
}
