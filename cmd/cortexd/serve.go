package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cortexmem/cortex/internal/logging"
)

var (
	serveTick           time.Duration
	servePromoteEnabled bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine, ticking promotion and health checks until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		o, err := buildOrchestrator(cfg)
		if err != nil {
			return err
		}
		defer o.Shutdown(context.Background())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logging.For(logging.CategoryOrchestrator)
		log.Info("cortexd serving", zap.String("data_dir", cfg.DataDir))

		ticker := time.NewTicker(serveTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("shutting down")
				return nil
			case <-ticker.C:
				if servePromoteEnabled {
					if _, err := o.RunPromotion(ctx); err != nil {
						log.Warn("promotion tick failed", logging.ErrorField(err))
					}
				}
				health := o.CheckHealth()
				stats := o.GetStats()
				total := 0
				for _, n := range stats.IndexLengths {
					total += n
				}
				fmt.Printf("healthy=%v alerts=%d active_txn=%d indexed=%d cache=%+v\n", health.OverallHealthy, len(health.Alerts), stats.Active, total, stats.CacheStats)
			}
		}
	},
}

func init() {
	serveCmd.Flags().DurationVar(&serveTick, "tick", 5*time.Second, "Interval between promotion/health ticks")
	serveCmd.Flags().BoolVar(&servePromoteEnabled, "promote", true, "Run promotion on each tick")
}
