package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "opsmemory",
		Short: "Long-term operational memory for network operations",
		Long: `opsmemory records network operations events and learns from them:
recurring patterns, forecasts of likely incidents, a topology graph for
impact analysis, and a self-tuning voice command recognizer.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to opsmemory.yml")

	rootCmd.AddCommand(
		newServeCmd(),
		newIngestFileCmd(),
		newPatternsCmd(),
		newPredictCmd(),
		newTrendsCmd(),
		newIncidentsCmd(),
		newStatsCmd(),
		newCleanupCmd(),
		newVoiceCmd(),
		newGraphCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads config, wires the engines and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
