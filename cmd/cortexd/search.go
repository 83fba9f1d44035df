package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/coordinator"
	"github.com/cortexmem/cortex/internal/types"
)

var (
	searchLayers []string
	searchTopK   int
	searchMin    float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Embed a query and search across one or more layers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layers := make([]types.Layer, 0, len(searchLayers))
		for _, name := range searchLayers {
			l, ok := types.ParseLayer(name)
			if !ok {
				return fmt.Errorf("unknown layer %q", name)
			}
			layers = append(layers, l)
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

		results, err := o.Search(context.Background(), args[0], layers, coordinator.SearchOptions{
			TopK:     searchTopK,
			MinScore: searchMin,
		})
		if err != nil {
			return err
		}

		fmt.Printf("searched %s, %d result(s)\n", joinLayers(layers), len(results))
		for i, r := range results {
			fmt.Printf("%2d. [%s] score=%.4f id=%s %q\n", i+1, r.Record.Layer, r.Score, r.Record.ID, truncatePayload(r.Record.Payload, 80))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchLayers, "layers", []string{"interact", "insights", "assets"}, "Layers to search")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 10, "Number of results to return")
	searchCmd.Flags().Float64Var(&searchMin, "min-score", 0, "Minimum score to include a result")
}

func truncatePayload(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
