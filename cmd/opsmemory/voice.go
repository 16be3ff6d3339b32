package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"opsmemory/internal/voice"
)

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Voice command recognition and learning",
	}

	var outcome string
	var responseTime time.Duration
	processCmd := &cobra.Command{
		Use:   "process [command text]",
		Short: "Recognize a command; with --outcome, record the result for learning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res := a.voice.ProcessCommand(strings.Join(args, " "), map[string]any{"source": "cli"})
				if outcome != "" {
					a.voice.LearnFromInteraction(ctx, res, voice.Outcome{
						Success:      outcome == "success",
						ResponseTime: responseTime.Seconds(),
					})
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	processCmd.Flags().StringVar(&outcome, "outcome", "", "Record the interaction as success or failure")
	processCmd.Flags().DurationVar(&responseTime, "response-time", 0, "Response time to record with --outcome")

	var section, unit string
	suggestCmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest commands for a UI section and preferred unit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.voice.SuggestCommands(voice.SuggestContext{Section: section, PreferredUnit: unit}))
			})
		},
	}
	suggestCmd.Flags().StringVar(&section, "section", "", "UI section (investigation, fortianalyzer)")
	suggestCmd.Flags().StringVar(&unit, "unit", "", "Preferred business unit")

	insightsCmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarize voice usage over the last 30 days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.voice.AnalyzeUsage(ctx))
			})
		},
	}

	cmd.AddCommand(processCmd, suggestCmd, insightsCmd)
	return cmd
}
