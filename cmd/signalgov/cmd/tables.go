package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/journal"
	"github.com/rustyeddy/signalgov/lifecycle"
	"github.com/rustyeddy/signalgov/market"
	"github.com/rustyeddy/signalgov/sim"
)

func newTable(out io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderGuard(out io.Writer, st guard.State, day guard.DayPortfolio, cfg *config.Config, now time.Time) {
	t := newTable(out, "GUARD "+st.Date)

	cooldown := "none"
	if st.CooldownUntil.After(now) {
		cooldown = fmt.Sprintf("%s (%s left)", st.CooldownUntil.UTC().Format("15:04"), st.CooldownUntil.Sub(now).Round(time.Second))
	}
	t.AppendRows([]table.Row{
		{"R today", fmt.Sprintf("%+.2f (stop at %.2f)", st.RDay, cfg.Guard.StopDayR)},
		{"Loss streak", fmt.Sprintf("%d / %d", st.LossStreak, cfg.Guard.LossStreakCooldown)},
		{"Cooldown", cooldown},
		{"Signals sent", fmt.Sprintf("%d / %d", st.SignalsSent, cfg.Guard.MaxSignalsPerDay)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Day risk used", fmt.Sprintf("%.2f%% / %.2f%%", day.RiskUsedPct*100, cfg.Portfolio.DayMaxRiskPct*100)},
		{"Open signals", fmt.Sprintf("%d / %d", day.OpenSignals, cfg.Portfolio.MaxOpenSignals)},
		{"Blocked", blockedList(st.Blocked, now)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, Align: text.AlignLeft},
	})
	t.Render()
}

func blockedList(blocked map[string]time.Time, now time.Time) string {
	var out []string
	for sym, until := range blocked {
		if until.After(now) {
			out = append(out, fmt.Sprintf("%s until %s", sym, until.UTC().Format("15:04")))
		}
	}
	if len(out) == 0 {
		return "none"
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func renderOpen(out io.Writer, open []lifecycle.OpenSignal, now time.Time) {
	t := newTable(out, "OPEN SIGNALS")
	t.AppendHeader(table.Row{"ID", "Symbol", "Side", "Stage", "Entry", "Stop", "TP1", "TP2", "TP3", "Strategy", "Expires in"})
	for _, s := range open {
		t.AppendRow(table.Row{
			s.ID, s.Symbol, strings.ToUpper(string(s.Side)), s.Stage(),
			num(s.Entry), num(s.Stop), num(s.TP1), num(s.TP2), num(s.TP3),
			s.StrategyType, s.Deadline.Sub(now).Round(time.Second),
		})
	}
	if len(open) == 0 {
		t.AppendRow(table.Row{"-", "no open signals"})
	}
	t.Render()
}

func renderEvents(out io.Writer, evs []journal.EventRecord) {
	t := newTable(out, "EVENTS")
	t.AppendHeader(table.Row{"Time", "Kind", "Symbol", "Side", "Price", "Outcome", "R", "Signal"})
	for _, ev := range evs {
		r := ""
		if market.Outcome(ev.Outcome).Scored() {
			r = fmt.Sprintf("%+.2f", ev.R)
		}
		t.AppendRow(table.Row{
			ev.Time.UTC().Format("15:04:05"), ev.Kind, ev.Symbol, strings.ToUpper(ev.Side),
			num(ev.Price), ev.Outcome, r, ev.SignalID,
		})
	}
	t.Render()
}

func renderPerf(out io.Writer, perf []journal.StrategyPerf, days int) {
	t := newTable(out, fmt.Sprintf("PERFORMANCE, LAST %d DAYS", days))
	t.AppendHeader(table.Row{"Strategy", "Scored", "Win rate", "Avg R", "Total R", "Max R", "Min R", "Expired"})
	for _, p := range perf {
		t.AppendRow(table.Row{
			p.Strategy, p.Scored, fmt.Sprintf("%.0f%%", p.WinRate()*100),
			fmt.Sprintf("%+.2f", p.AvgR()), fmt.Sprintf("%+.2f", p.TotalR),
			fmt.Sprintf("%+.2f", p.MaxR), fmt.Sprintf("%+.2f", p.MinR), p.Expired,
		})
	}
	t.Render()
}

func renderSummary(out io.Writer, sum sim.Summary, st guard.State, day guard.DayPortfolio, open []lifecycle.OpenSignal) {
	t := newTable(out, "RUN SUMMARY")
	t.AppendRows([]table.Row{
		{"Steps", sum.Steps},
		{"Passes", sum.Passes},
		{"Accepted", sum.Accepted},
		{"Closed", outcomeList(sum.Closed)},
		{"R (scored)", fmt.Sprintf("%+.2f", sum.R)},
		{"Rejected", codeList(sum.Rejected)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"R today", fmt.Sprintf("%+.2f", st.RDay)},
		{"Loss streak", st.LossStreak},
		{"Day risk used", fmt.Sprintf("%.2f%%", day.RiskUsedPct*100)},
		{"Still open", len(open)},
	})
	t.Render()
}

func outcomeList(m map[market.Outcome]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	return countList(keys, func(k string) int { return m[market.Outcome(k)] })
}

func codeList(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return countList(keys, func(k string) int { return m[k] })
}

func countList(keys []string, count func(string) int) string {
	if len(keys) == 0 {
		return "none"
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, count(k))
	}
	return strings.Join(parts, " ")
}

func num(x float64) string {
	if x == 0 {
		return "-"
	}
	return fmt.Sprintf("%.6g", x)
}
