package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joshharrison/milestone/internal/config"
	"github.com/joshharrison/milestone/internal/cpm"
	"github.com/joshharrison/milestone/internal/ctxlog"
	"github.com/joshharrison/milestone/internal/store"
	"github.com/joshharrison/milestone/internal/store/filestore"
	"github.com/joshharrison/milestone/internal/store/sqlstore"
	"github.com/joshharrison/milestone/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagStore     string
	flagDriver    string
	flagJSON      bool
	flagNoColor   bool
	flagLogLevel  string
	flagLogFormat string
	flagRunType   string
	flagFormat    string
	flagAddr      string
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintf(os.Stderr, "\n🛑 %s\n", ui.Yellow("Received interrupt, shutting down..."))
		cancel()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "milestone",
		Short: "Critical path scheduling for project task graphs",
		Long: `Milestone computes critical path schedules for projects. It imports
projects, WBS items and tasks from HCL files, runs forward and backward
passes over the dependency graph and stores every result as an immutable
schedule run. Runs can be inspected from the terminal or served over HTTP.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagNoColor {
				ui.SetColor(false)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ./.milestone/config.json over ~/.milestone/config.json)")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Store path (file document or SQLite database)")
	rootCmd.PersistentFlags().StringVar(&flagDriver, "driver", "", "Store driver: file or sqlite")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text, json or pretty")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(computeCmd())
	rootCmd.AddCommand(latestCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(vizCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	return rootCmd
}

// env is what every command needs: settings, a logger and an open store.
type env struct {
	cfg    config.ResolvedConfig
	logger *slog.Logger
	store  store.Store
}

// setup resolves configuration, builds the logger and opens the store. The
// returned context carries the logger. Callers must close env.store.
func setup(cmd *cobra.Command) (context.Context, *env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format)
	ctx := ctxlog.WithLogger(cmd.Context(), logger)

	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("store opened", "driver", cfg.Store.Driver, "path", cfg.Store.Path)
	return ctx, &env{cfg: cfg, logger: logger, store: st}, nil
}

// loadConfig layers the config files and then the global flags.
func loadConfig() (config.ResolvedConfig, error) {
	var cfg config.ResolvedConfig
	if flagConfig != "" {
		project, found, err := config.LoadFile(flagConfig)
		if err != nil {
			return cfg, err
		}
		if !found {
			return cfg, fmt.Errorf("config file %s not found", flagConfig)
		}
		global, _, err := config.LoadGlobalConfig()
		if err != nil {
			return cfg, err
		}
		cfg = config.ResolveConfig(project, global)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return cfg, fmt.Errorf("working directory: %w", err)
		}
		if cfg, err = config.LoadConfig(cwd); err != nil {
			return cfg, err
		}
	}

	if flagDriver != "" {
		driver := strings.ToLower(flagDriver)
		if driver != config.DriverFile && driver != config.DriverSQLite {
			return cfg, fmt.Errorf("unknown store driver %q (want file or sqlite)", flagDriver)
		}
		// A path that merely followed the old driver follows the new one.
		if cfg.Store.Path == config.DefaultPath(cfg.Store.Driver) {
			cfg.Store.Path = config.DefaultPath(driver)
		}
		cfg.Store.Driver = driver
	}
	if flagStore != "" {
		cfg.Store.Path = flagStore
	}
	if flagLogLevel != "" {
		cfg.Log.Level = strings.ToLower(flagLogLevel)
	}
	if flagLogFormat != "" {
		cfg.Log.Format = strings.ToLower(flagLogFormat)
	}
	return cfg, nil
}

// newLogger writes logs to stderr. The pretty format renders slog JSON
// records through ui.LogFormatter.
func newLogger(level, format string) *slog.Logger {
	if format == "pretty" {
		return ctxlog.New(level, "json", ui.NewLogFormatter(os.Stderr, nil))
	}
	return ctxlog.New(level, format, os.Stderr)
}

func openStore(sc config.ResolvedStore) (store.Store, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return sqlstore.Open(sc.Path)
	default:
		return filestore.Open(sc.Path)
	}
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", what, arg)
	}
	return id, nil
}

// describeError turns scheduler errors into operator-facing messages.
func describeError(err error) error {
	var cycle *cpm.CycleError
	if !errors.As(err, &cycle) {
		return err
	}
	ids := make([]string, len(cycle.Cycle))
	for i, id := range cycle.Cycle {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Errorf("dependency cycle: %s (%d tasks cannot be scheduled): %w",
		strings.Join(ids, " → "), len(cycle.Stalled), cpm.ErrInvalidGraph)
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
