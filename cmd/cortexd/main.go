// Package main implements cortexd, a thin operational CLI over the
// memory engine's Orchestrator.
//
// This is not the product surface: it exists to give the module a
// runnable entrypoint that exercises the wired stack end to end
// (insert, search, backup/restore, stats) against a local data
// directory. There is no interactive shell, no chat loop, no tool
// execution.
//
// File Index:
//   - main.go   - entry point, rootCmd, global flags
//   - serve.go  - serveCmd: long-running health/stats loop
//   - insert.go - insertCmd
//   - search.go - searchCmd
//   - backup.go - backupCmd, restoreCmd
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/orchestrator"
)

var (
	dataDir    string
	profile    string
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cortexd",
	Short: "cortexd - operational CLI for the tiered memory engine",
	Long: `cortexd drives the memory engine's Orchestrator directly: insert
records, run searches, take backups, and inspect health/stats against
a local data directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		logging.Init(l)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./cortex-data", "Data directory for the record store, indices, and backups")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "dev", "Config profile: prod|dev|minimal")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (overrides --profile)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd, insertCmd, searchCmd, backupCmd, restoreCmd)
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		switch profile {
		case "prod":
			cfg = config.DefaultConfig()
		case "minimal":
			cfg = config.MinimalProfile()
		default:
			cfg = config.DevProfile()
		}
	}
	cfg.DataDir = dataDir
	return cfg, nil
}

func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(cfg, orchestrator.Deps{
		EmbeddingModel: hashEmbedder(cfg.HNSW.Dimension),
	})
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "cortexd:", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}
