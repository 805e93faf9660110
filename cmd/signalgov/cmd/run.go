package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/engine"
	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/journal"
	"github.com/rustyeddy/signalgov/lifecycle"
	"github.com/rustyeddy/signalgov/market"
	"github.com/rustyeddy/signalgov/metrics"
	"github.com/rustyeddy/signalgov/notify"
	"github.com/rustyeddy/signalgov/sim"
	"github.com/rustyeddy/signalgov/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine over a scenario",
	Long: `Run the acceptance and monitor loops over a scripted market.

The scenario supplies the price feed and any scripted candidates; built-in
strategies can be added with --strategy and read the same feed. State is
kept in the configured SQLite database, so a second run resumes the guard
and any signals still open.

Example:
  signalgov run -f signalgov.yaml --scenario examples/scenario.yaml --strategy ema-adx`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runConfigPath   string
	runScenarioPath string
	runStrategies   []string
	runPace         time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "file", "f", "", "config file (YAML or JSON), defaults when empty")
	runCmd.Flags().StringVar(&runScenarioPath, "scenario", "", "scenario file (required)")
	runCmd.Flags().StringSliceVar(&runStrategies, "strategy", nil, "built-in strategies to run alongside the scenario")
	runCmd.Flags().DurationVar(&runPace, "pace", 0, "wall time between scenario steps")
	_ = runCmd.MarkFlagRequired("scenario")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sc, err := sim.LoadScenario(runScenarioPath)
	if err != nil {
		return err
	}
	// only symbols with a feed can be scanned
	cfg.Scan.Symbols = sc.Symbols()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := slog.Default()

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	runner := sim.NewRunner(sc, log)
	runner.Pace = runPace
	m := metrics.New()

	sinks := []lifecycle.EventSink{j, runner, m, notify.EventSink{N: notifier(cfg.Telegram, log)}}
	if cfg.Store.EventsCSV != "" {
		csvLog, err := journal.NewCSVEventLog(cfg.Store.EventsCSV)
		if err != nil {
			return err
		}
		defer csvLog.Close()
		sinks = append(sinks, csvLog)
	}

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", "addr", cfg.Metrics.Listen)
	}

	g, err := guard.New(ctx, cfg, j, guard.WithClock(runner.Now), guard.WithLogger(log))
	if err != nil {
		return err
	}
	prices := runner.Prices()
	mon := lifecycle.NewMonitor(j, g, prices, cfg.Follow,
		lifecycle.WithClock(runner.Now), lifecycle.WithLogger(log), lifecycle.WithSinks(sinks...))

	strats := []engine.Strategy{runner.Script()}
	for _, name := range runStrategies {
		s, err := strategies.ByName(name, prices)
		if err != nil {
			return err
		}
		strats = append(strats, s)
	}

	opts := []engine.Option{engine.WithClock(runner.Now), engine.WithLogger(log), engine.WithMetrics(m)}
	if cc := cfg.Risk.CorrCap; cc.Enable {
		opts = append(opts, engine.WithCorrelator(market.SeriesCorrelator{
			History:   prices,
			Reference: cfg.Scan.Reference,
			Window:    cc.Window,
			Fallback:  cc.Fallback,
		}))
	}
	eng := engine.New(cfg, j, g, mon, prices, strats, opts...)
	if err := eng.Restore(ctx); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	sum, err := runner.Run(ctx, eng, mon)
	if errors.Is(err, context.Canceled) {
		log.Warn("interrupted")
	} else if err != nil {
		return err
	}

	st, day := g.Snapshot()
	renderSummary(cmd.OutOrStdout(), sum, st, day, mon.Signals())
	return nil
}

// notifier logs every message and also sends it to Telegram when both
// credentials are set.
func notifier(tg config.TelegramConfig, log *slog.Logger) notify.Notifier {
	n := notify.Multi{notify.Log{Logger: log}}
	if tg.Enabled() {
		n = append(n, notify.NewTelegram(tg.Token, tg.ChatID))
	}
	return n
}
