package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"opsmemory/internal/patterns"
	"opsmemory/internal/predict"
	"opsmemory/pkg/models"
)

func newPatternsCmd() *cobra.Command {
	var types []string
	var windowHours int
	var learned bool
	var minConfidence float64
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Detect patterns in recent events, or list learned patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if learned {
					pt := ""
					if len(types) > 0 {
						pt = types[0]
					}
					return printJSON(cmd.OutOrStdout(), a.memory.GetLearnedPatterns(ctx, pt, minConfidence))
				}
				req := patterns.AnalyzeRequest{WindowHours: windowHours}
				for _, t := range types {
					req.Types = append(req.Types, models.PatternType(t))
				}
				return printJSON(cmd.OutOrStdout(), a.patterns.AnalyzePatterns(ctx, req))
			})
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "Pattern types to run (repeatable)")
	cmd.Flags().IntVar(&windowHours, "window-hours", 0, "Analysis window in hours (default from config)")
	cmd.Flags().BoolVar(&learned, "learned", false, "List stored learned patterns instead of detecting")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0.7, "Minimum confidence for --learned")
	return cmd
}

func newPredictCmd() *cobra.Command {
	var entities, types []string
	var horizon int
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast incidents for units, sites or devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				req := predict.PredictRequest{Entities: entities, HorizonDays: horizon}
				for _, t := range types {
					req.Types = append(req.Types, models.PredictionType(t))
				}
				return printJSON(cmd.OutOrStdout(), a.predict.GeneratePredictions(ctx, req))
			})
		},
	}
	cmd.Flags().StringSliceVar(&entities, "entity", nil, "Entity keys such as BWW or BWW_155 (repeatable)")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Prediction types (repeatable)")
	cmd.Flags().IntVar(&horizon, "horizon-days", 0, "Forecast horizon in days (default from config)")
	return cmd
}

func newTrendsCmd() *cobra.Command {
	var entities, metricNames []string
	var lookback int
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Fit trends over recorded metric samples",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.predict.AnalyzeTrends(ctx, predict.TrendRequest{
					Entities:     entities,
					Metrics:      metricNames,
					LookbackDays: lookback,
				}))
			})
		},
	}
	cmd.Flags().StringSliceVar(&entities, "entity", nil, "Entity keys (repeatable)")
	cmd.Flags().StringSliceVar(&metricNames, "metric", nil, "Metric names (repeatable)")
	cmd.Flags().IntVar(&lookback, "lookback-days", 0, "Lookback in days (default from config)")
	return cmd
}

func newIncidentsCmd() *cobra.Command {
	var lookback int
	var types []string
	cmd := &cobra.Command{
		Use:   "incidents [unit] [site]",
		Short: "Summarize past incidents at a site as a simple forecast",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var eventTypes []models.EventType
				for _, t := range types {
					eventTypes = append(eventTypes, models.EventType(t))
				}
				return printJSON(cmd.OutOrStdout(), a.memory.PredictSimilarIncidents(ctx, args[0], args[1], lookback, eventTypes...))
			})
		},
	}
	cmd.Flags().IntVar(&lookback, "lookback-days", 30, "Days of history to consider")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Only count these event types (repeatable)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print event store statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.memory.Stats(ctx))
			})
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete events, interactions and metrics older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if days <= 0 {
					days = a.cfg.OpsMemory.Store.RetentionDays
				}
				n := a.memory.CleanupOldData(ctx, days)
				fmt.Fprintf(cmd.OutOrStdout(), "removed=%d retention_days=%d\n", n, days)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default from config)")
	return cmd
}
