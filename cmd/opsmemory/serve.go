package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"opsmemory/internal/logger"
	"opsmemory/internal/pipeline"
)

func newServeCmd() *cobra.Command {
	var graphLookback int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume events from the configured input and run continuous analysis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				source, err := openSource(a.cfg.OpsMemory.Input)
				if err != nil {
					return err
				}
				return runPipeline(ctx, a, source, graphLookback, true)
			})
		},
	}
	cmd.Flags().IntVar(&graphLookback, "graph-lookback-days", 30, "Days of stored events linked into the topology at startup")
	return cmd
}

func newIngestFileCmd() *cobra.Command {
	var noAnalyze bool
	cmd := &cobra.Command{
		Use:   "ingest-file [path]",
		Short: "Record newline-delimited JSON events from a file and analyze them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := a.cfg.OpsMemory.Input
				in.Mode, in.File = "file", args[0]
				source, err := openSource(in)
				if err != nil {
					return err
				}
				return runPipeline(ctx, a, source, 0, !noAnalyze)
			})
		},
	}
	cmd.Flags().BoolVar(&noAnalyze, "no-analyze", false, "Only record events")
	return cmd
}

func runPipeline(ctx context.Context, a *app, source pipeline.Source, graphLookback int, analyze bool) error {
	c := a.cfg.OpsMemory

	topo, err := a.topology(ctx, graphLookback)
	if err != nil {
		source.Close()
		return err
	}

	var analyzer pipeline.Analyzer
	var writer pipeline.MatchWriter
	if analyze {
		analyzer = a.patterns
		if writer, err = openWriter(c.Output); err != nil {
			source.Close()
			return err
		}
	}

	pipe := pipeline.NewIngestPipeline(source, a.memory, analyzer, writer, pipeline.Config{
		Workers:         c.Pipeline.Workers,
		QueueSize:       c.Pipeline.QueueSize,
		AnalyzeInterval: c.Pipeline.AnalyzeInterval,
		WindowHours:     c.Patterns.WindowHours,
	}, pipeline.WithLinker(topo), pipeline.WithMetrics(a.metrics))
	defer func() {
		if err := pipe.Close(); err != nil {
			logger.Errorf("Error closing pipeline: %v", err)
		}
	}()

	var metricsSrv *http.Server
	if c.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		metricsSrv = &http.Server{Addr: c.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
		logger.Infof("Metrics listening on %s/metrics", c.Metrics.Listen)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("opsmemory pipeline starting")
	err = pipe.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}

	s := pipe.Stats()
	gs := topo.Stats()
	logger.Infof("opsmemory stopped: recorded=%d rejected=%d matches=%d graph_nodes=%d",
		s.Recorded, s.Rejected, s.Matches, gs.Nodes)
	return err
}
