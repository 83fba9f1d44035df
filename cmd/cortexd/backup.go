package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/types"
)

var backupParent string

var backupCmd = &cobra.Command{
	Use:   "backup <name>",
	Short: "Take a full or incremental backup",
	Args:  cobra.ExactArgs(1),
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

		kind := types.BackupFull
		if backupParent != "" {
			kind = types.BackupIncremental
		}
		meta, err := o.Backup(context.Background(), kind, args[0], backupParent)
		if err != nil {
			return err
		}
		total := 0
		for _, stat := range meta.LayerStats {
			total += stat.Count
		}
		fmt.Printf("backup %s (%s) complete: %d record(s)\n", meta.Name, meta.Type, total)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Restore a backup (and its ancestry chain) into the live store",
	Args:  cobra.ExactArgs(1),
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

		if err := o.Restore(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("restored %s\n", args[0])
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupParent, "parent", "", "Parent backup name (implies an incremental backup)")
}
