package main

import (
	"context"

	"github.com/spf13/cobra"

	"opsmemory/internal/graph"
)

func newGraphCmd() *cobra.Command {
	var lookback int
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Topology analysis over the configured hierarchy and stored events",
	}
	cmd.PersistentFlags().IntVar(&lookback, "lookback-days", 30, "Days of stored events linked into the graph")

	withGraph := func(cmd *cobra.Command, fn func(g *graph.Graph) (any, error)) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			g, err := a.topology(ctx, lookback)
			if err != nil {
				return err
			}
			out, err := fn(g)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	}

	var hops int
	impactCmd := &cobra.Command{
		Use:   "impact [entity]",
		Short: "Score how a failure at entity propagates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraph(cmd, func(g *graph.Graph) (any, error) {
				return g.AnalyzeImpactPropagation(graph.EntityNodeID(args[0]), hops)
			})
		},
	}
	impactCmd.Flags().IntVar(&hops, "max-hops", 3, "Maximum propagation distance")

	var sources, targets []string
	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "Find attack paths between entities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGraph(cmd, func(g *graph.Graph) (any, error) {
				return g.AnalyzeAttackPaths(nodeIDs(sources), nodeIDs(targets)), nil
			})
		},
	}
	pathsCmd.Flags().StringSliceVar(&sources, "source", nil, "Source entities (default: security-relevant devices)")
	pathsCmd.Flags().StringSliceVar(&targets, "target", nil, "Target entities (default: critical infrastructure)")

	var threshold float64
	similarCmd := &cobra.Command{
		Use:   "similar [entity]",
		Short: "List entities similar to entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraph(cmd, func(g *graph.Graph) (any, error) {
				return g.FindSimilarEntities(graph.EntityNodeID(args[0]), threshold)
			})
		},
	}
	similarCmd.Flags().Float64Var(&threshold, "threshold", 0.7, "Minimum similarity")

	var mode string
	clustersCmd := &cobra.Command{
		Use:   "clusters",
		Short: "Group the graph into clusters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGraph(cmd, func(g *graph.Graph) (any, error) {
				return g.FindNetworkClusters(graph.ClusterMode(mode)), nil
			})
		},
	}
	clustersCmd.Flags().StringVar(&mode, "mode", string(graph.ClusterConnectedComponents), "connected_components or grouping_key")

	influenceCmd := &cobra.Command{
		Use:   "influence [entity]",
		Short: "Score an entity's structural influence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraph(cmd, func(g *graph.Graph) (any, error) {
				id := graph.EntityNodeID(args[0])
				score, err := g.EntityInfluenceScore(id)
				if err != nil {
					return nil, err
				}
				return map[string]any{"entity": id, "influence": score}, nil
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count nodes and relationships",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGraph(cmd, func(g *graph.Graph) (any, error) {
				return g.Stats(), nil
			})
		},
	}

	cmd.AddCommand(impactCmd, pathsCmd, similarCmd, clustersCmd, influenceCmd, statsCmd)
	return cmd
}

func nodeIDs(entities []string) []string {
	if len(entities) == 0 {
		return nil
	}
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = graph.EntityNodeID(e)
	}
	return out
}
