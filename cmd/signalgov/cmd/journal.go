package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/signalgov/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the signal journal",
	Long: `Query signals and events recorded in the SQLite database.

Subcommands:
  signal - Show one signal as an Org block
  today  - List today's events and closed signals
  perf   - Per-strategy performance

Examples:
  signalgov journal signal 01J9Z3...
  signalgov journal today
  signalgov journal perf --days 30`,
}

var journalSignalCmd = &cobra.Command{
	Use:   "signal <id>",
	Short: "Show one signal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalSignal,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List today's events and closed signals (UTC)",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalPerfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Per-strategy performance of closed signals",
	Args:  cobra.NoArgs,
	RunE:  runJournalPerf,
}

var (
	journalConfigPath string
	journalPerfDays   int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalSignalCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalPerfCmd)

	journalCmd.PersistentFlags().StringVarP(&journalConfigPath, "file", "f", "", "config file, defaults when empty")
	journalPerfCmd.Flags().IntVar(&journalPerfDays, "days", 7, "look back this many days")
}

func withJournal(fn func(j *journal.SQLite) error) error {
	cfg, err := loadConfig(journalConfigPath)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(j)
}

func runJournalSignal(cmd *cobra.Command, args []string) error {
	return withJournal(func(j *journal.SQLite) error {
		rec, err := j.GetSignal(cmd.Context(), args[0])
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("no signal %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("get signal: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), journal.FormatSignalOrg(rec))
		return nil
	})
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return withJournal(func(j *journal.SQLite) error {
		start := startOfDay(time.Now())
		end := start.Add(24 * time.Hour)

		evs, err := j.ListEventsBetween(cmd.Context(), start, end)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		recs, err := j.ListSignalsClosedBetween(cmd.Context(), start, end)
		if err != nil {
			return fmt.Errorf("query signals: %w", err)
		}

		out := cmd.OutOrStdout()
		renderEvents(out, evs)
		if len(recs) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, journal.FormatSignalsOrg(recs))
		}
		return nil
	})
}

func runJournalPerf(cmd *cobra.Command, args []string) error {
	if journalPerfDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	return withJournal(func(j *journal.SQLite) error {
		since := time.Now().UTC().Add(-time.Duration(journalPerfDays) * 24 * time.Hour)
		perf, err := j.Performance(cmd.Context(), since)
		if err != nil {
			return fmt.Errorf("performance: %w", err)
		}
		renderPerf(cmd.OutOrStdout(), perf, journalPerfDays)
		return nil
	})
}
