// Package main implements the firstpull CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firstpull/internal/config"
	"firstpull/internal/logging"
	"firstpull/internal/pipeline"
)

// version is stamped by the release build.
var version = "dev"

var (
	// Global flags
	cfgPath  string
	dataRoot string
	verbose  bool
	timeout  time.Duration

	// Shared state built in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command. Running it bare executes the full
// pipeline, same as `firstpull run`.
var rootCmd = &cobra.Command{
	Use:   "firstpull",
	Short: "firstpull - state impaired-driving crash report pipeline",
	Long: `firstpull pulls impaired-driving crash counts from the NHTSA FIRST
query tool, one workbook per state, and converts them to CSV.

Each run recreates the workspace from scratch, resolves a browser engine,
installs the state manifest, then executes the fetch and convert payloads
as subprocesses. Run without arguments to execute the full pipeline.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version needs no config or logger
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dataRoot != "" {
			cfg.DataRoot = dataRoot
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runPipeline,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the firstpull version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("firstpull %s\n", version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "firstpull.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "Override the configured data root")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort after this long, 0 means no limit")

	// Command flags
	convertCmd.Flags().BoolVar(&convertWatch, "watch", false, "Keep converting as workbooks arrive")
	statusCmd.Flags().IntVar(&statusFetches, "fetches", 10, "How many recent fetches to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var stepErr *pipeline.StepError
		if errors.As(err, &stepErr) {
			os.Exit(stepErr.Code)
		}
		os.Exit(1)
	}
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
// Cancellation kills the current child process; there is no cleanup beyond
// that, the next run recreates the workspace anyway.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// runContext is the base context for payload commands: signal-cancelled and,
// when --timeout is set, deadline-bounded.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signalContext(context.Background())
	if timeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
