package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/signalgov/config"
	"github.com/rustyeddy/signalgov/journal"
)

var rootCmd = &cobra.Command{
	Use:   "signalgov",
	Short: "Signal governance and lifecycle engine",
	Long: `signalgov turns strategy candidates into a small number of governed
signals and follows each one to TP, SL or expiry.

It provides tools for:
  - Running the acceptance and monitor loops over a scripted market
  - Inspecting the day governor and the open signals
  - Querying the signal journal and per-strategy performance`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	dbPath   string
	logLevel string
	envFile  string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database (overrides store.db_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with secrets")
}

func setup(cmd *cobra.Command, args []string) error {
	lvl, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return config.LoadEnv(envFile)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// loadConfig reads path, or the defaults when path is empty, and applies
// the --db override.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
		config.ApplyEnv(cfg)
	} else {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	return cfg, nil
}

func openJournal(cfg *config.Config) (*journal.SQLite, error) {
	j, err := journal.NewSQLite(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}
