// Package main implements acememd - the memory substrate's command-line
// entry point: a long-running reflection worker (serve), one-shot
// recall/observe calls an agent graph can shell out to, a standalone
// worker-only mode, and a migrate subcommand for index maintenance.
//
// # File Index
//
//   - main.go       - entry point, rootCmd, global flags, init()
//   - cmd_serve.go  - serveCmd: opens the --session store (shared when unset) and blocks, running
//     the reflection worker until interrupted
//   - cmd_recall.go - recallCmd: one-shot hybrid search against a store
//   - cmd_observe.go - observeCmd: one-shot task-queue enqueue
//   - cmd_worker.go - workerCmd: runs only the reflection worker, no
//     recall/observe surface
//   - cmd_migrate.go - migrateCmd: rebuilds a store's vector index from its
//     document table
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"acemem/internal/config"
	"acemem/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	sessionID  string

	// Logger
	logger *zap.Logger

	// loadedConfig is populated by PersistentPreRunE and read by every subcommand.
	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "acememd",
	Short: "acememd - hybrid memory store and reflection loop for a conversational agent",
	Long: `acememd hosts the memory substrate an agent graph delegates to for
long-term recall: a hybrid vector + lexical document store, a durable task
queue, and a background reflection worker that turns raw interactions into
structured knowledge.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}

		path := configPath
		if path == "" {
			path = filepath.Join(ws, ".acemem", "config.yaml")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		loadedConfig = cfg

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: <workspace>/.acemem/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session id (default: shared, non-session-scoped store)")

	rootCmd.AddCommand(
		serveCmd,
		recallCmd,
		observeCmd,
		workerCmd,
		migrateCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
