package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/signalgov/guard"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the day governor and the open signals",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusConfigPath string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusConfigPath, "file", "f", "", "config file, defaults when empty")
}

// runStatus reads the store directly; it never writes, so it is safe next
// to a running engine.
func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(statusConfigPath)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := cmd.Context()
	now := time.Now().UTC()

	st, ok, err := j.LoadRiskState(ctx)
	if err != nil {
		return fmt.Errorf("load risk state: %w", err)
	}
	if !ok {
		st = guard.NewState(now)
	}
	day, err := j.DayPortfolio(ctx, startOfDay(now))
	if err != nil {
		return fmt.Errorf("day portfolio: %w", err)
	}
	open, err := j.OpenSignals(ctx)
	if err != nil {
		return fmt.Errorf("open signals: %w", err)
	}

	out := cmd.OutOrStdout()
	renderGuard(out, st, day, cfg, now)
	fmt.Fprintln(out)
	renderOpen(out, open, now)
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
