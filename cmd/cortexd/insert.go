package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/types"
)

var (
	insertLayer   string
	insertKind    string
	insertTags    []string
	insertProject string
)

var insertCmd = &cobra.Command{
	Use:   "insert <payload>",
	Short: "Embed and insert one record into the Interact layer (or --layer)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, ok := types.ParseLayer(insertLayer)
		if !ok {
			return fmt.Errorf("unknown layer %q", insertLayer)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		o, err := buildOrchestrator(cfg)
		if err != nil {
			return err
		}
		defer o.Shutdown(context.Background())

		rec, err := o.Insert(context.Background(), types.Record{
			Payload: args[0],
			Layer:   layer,
			Kind:    insertKind,
			Tags:    insertTags,
			Project: insertProject,
		})
		if err != nil {
			return err
		}
		fmt.Printf("inserted %s into %s\n", rec.ID, layer)
		return nil
	},
}

func init() {
	insertCmd.Flags().StringVar(&insertLayer, "layer", "interact", "Target layer: interact|insights|assets")
	insertCmd.Flags().StringVar(&insertKind, "kind", "", "Record kind tag")
	insertCmd.Flags().StringSliceVar(&insertTags, "tags", nil, "Comma-separated tags")
	insertCmd.Flags().StringVar(&insertProject, "project", "", "Project association")
}

func joinLayers(layers []types.Layer) string {
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.String()
	}
	return strings.Join(names, ",")
}
