package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opsmemory/config"
	"opsmemory/internal/graph"
	inputfile "opsmemory/internal/input/file"
	inputnats "opsmemory/internal/input/nats"
	inputredis "opsmemory/internal/input/redis"
	"opsmemory/internal/logger"
	"opsmemory/internal/metrics"
	"opsmemory/internal/output/matchclickhouse"
	"opsmemory/internal/output/matchhttp"
	"opsmemory/internal/output/matchjson"
	"opsmemory/internal/patterns"
	"opsmemory/internal/pipeline"
	"opsmemory/internal/predict"
	"opsmemory/internal/store"
	"opsmemory/internal/voice"
)

const defaultConfigName = "opsmemory.yml"

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	for _, path := range []string{defaultConfigName, filepath.Join("configs", defaultConfigName)} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	if exePath, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return defaultConfigName
}

func applyDefaults(cfg *config.Config) {
	c := &cfg.OpsMemory

	if c.Store.Backend == "" {
		c.Store.Backend = "badger"
	}
	if c.Store.RetentionDays <= 0 {
		c.Store.RetentionDays = 365
	}
	if c.Store.Badger.Dir == "" && !c.Store.Badger.InMemory {
		c.Store.Badger.Dir = "data/opsmemory"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Store.Redis.Key == "" {
		c.Store.Redis.Key = "opsmemory"
	}

	if c.Input.Mode == "" {
		c.Input.Mode = "redis"
	}
	if c.Input.Redis.Addr == "" {
		c.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Input.Redis.Key == "" {
		c.Input.Redis.Key = "opsmemory:events"
	}
	if c.Input.Redis.BlockTimeout == 0 {
		c.Input.Redis.BlockTimeout = 5 * time.Second
	}
	if c.Input.NATS.URL == "" {
		c.Input.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Input.NATS.Subject == "" {
		c.Input.NATS.Subject = "opsmemory.events"
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = 1024
	}
	if c.Pipeline.AnalyzeInterval <= 0 {
		c.Pipeline.AnalyzeInterval = 5 * time.Minute
	}

	if c.Output.Mode == "" {
		c.Output.Mode = "file"
	}
	if c.Output.File.Path == "" {
		c.Output.File.Path = "output/pattern_matches.jsonl"
	}
	if c.Output.ClickHouse.Database == "" {
		c.Output.ClickHouse.Database = "opsmemory"
	}
	if c.Output.ClickHouse.Table == "" {
		c.Output.ClickHouse.Table = "pattern_matches"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9108"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// loadConfig resolves, parses and defaults the config, then starts logging.
func loadConfig(configArg string) (*config.Config, error) {
	path := findConfigFile(configArg)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	applyDefaults(cfg)

	l := cfg.OpsMemory.Logging
	if err := logger.Init(l.Enabled, l.Level, l.File, l.Console); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infof("Config loaded from: %s", path)
	return cfg, nil
}

// app holds the wired engines shared by every subcommand.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	memory   *store.Memory
	patterns *patterns.Engine
	predict  *predict.Engine
	voice    *voice.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	c := cfg.OpsMemory
	m := metrics.New()

	backend, err := store.Open(c.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", c.Store.Backend, err)
	}
	logger.Infof("Store backend: %s", c.Store.Backend)
	mem := store.NewMemory(backend, store.Options{RetentionDays: c.Store.RetentionDays, Metrics: m})

	sigs, stats, err := patterns.LoadSignatures(c.Patterns.SignaturesPath)
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("failed to load threat signatures: %w", err)
	}
	logger.Infof("Threat signatures loaded: loaded=%d skipped_invalid=%d files=%d", stats.Loaded, stats.SkippedInvalid, stats.TotalFiles)

	pe, err := patterns.NewEngine(mem, patterns.Options{
		Thresholds:        patterns.ThresholdsFromConfig(c.Patterns),
		Signatures:        sigs,
		FeedbackCacheSize: c.Patterns.FeedbackCacheSize,
		Metrics:           m,
	})
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("failed to create pattern engine: %w", err)
	}
	th := pe.Thresholds()
	logger.Infof("Pattern thresholds: min_confidence=%.2f min_events=%d window=%s escalation=%.2f anomaly=%.1fx drift_window=%s",
		th.MinConfidence, th.MinEventCount, th.MaxTimeWindow, th.EscalationRatio, th.AnomalyMultiplier, th.DriftWindow)

	ve, err := voice.NewEngine(mem, voice.Options{
		MinPatternConfidence: c.Voice.MinPatternConfidence,
		MinUsageCount:        c.Voice.MinUsageCount,
		LearningRate:         c.Voice.LearningRate,
		Metrics:              m,
	})
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("failed to create voice engine: %w", err)
	}

	return &app{
		cfg:      cfg,
		metrics:  m,
		memory:   mem,
		patterns: pe,
		predict: predict.NewEngine(mem, predict.Options{
			MinConfidence:     c.Predict.MinConfidence,
			MinHistoricalData: c.Predict.MinHistoricalData,
			HorizonDays:       c.Predict.HorizonDays,
			LookbackDays:      c.Predict.LookbackDays,
			RecordRisk:        c.Predict.RecordRisk,
			Metrics:           m,
		}),
		voice: ve,
	}, nil
}

func (a *app) Close() {
	if err := a.memory.Close(); err != nil {
		logger.Errorf("Failed to close store: %v", err)
	}
	logger.Sync()
}

// topology seeds the configured hierarchy and links stored events from the
// last lookbackDays into it.
func (a *app) topology(ctx context.Context, lookbackDays int) (*graph.Graph, error) {
	g := graph.New()
	if err := g.Bootstrap(a.cfg.OpsMemory.Graph); err != nil {
		return nil, fmt.Errorf("failed to bootstrap graph: %w", err)
	}
	if lookbackDays <= 0 {
		return g, nil
	}
	since := a.memory.Now().AddDate(0, 0, -lookbackDays)
	linked := 0
	for _, ev := range a.memory.Events(ctx, since) {
		if _, err := g.LinkEvent(ev); err != nil {
			logger.Debugf("event %s not linked: %v", ev.ID, err)
			continue
		}
		linked++
	}
	logger.Infof("Graph hydrated with %d events", linked)
	return g, nil
}

func openSource(in config.InputConfig) (pipeline.Source, error) {
	switch strings.ToLower(in.Mode) {
	case "redis":
		c, err := inputredis.NewConsumer(inputredis.Config{
			Addr:         in.Redis.Addr,
			Password:     in.Redis.Password,
			DB:           in.Redis.DB,
			Key:          in.Redis.Key,
			BlockTimeout: in.Redis.BlockTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis consumer: %w", err)
		}
		logger.Infof("Input mode: redis (%s %s)", in.Redis.Addr, in.Redis.Key)
		return c, nil
	case "nats":
		s, err := inputnats.NewSubscriber(inputnats.Config{
			URL:     in.NATS.URL,
			Subject: in.NATS.Subject,
			Queue:   in.NATS.Queue,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
		}
		logger.Infof("Input mode: nats (%s %s)", in.NATS.URL, in.NATS.Subject)
		return s, nil
	case "file":
		r, err := inputfile.Open(in.File)
		if err != nil {
			return nil, err
		}
		logger.Infof("Input mode: file (%s)", in.File)
		return r, nil
	default:
		return nil, fmt.Errorf("unknown input mode: %s", in.Mode)
	}
}

func openWriter(out config.OutputConfig) (pipeline.MatchWriter, error) {
	switch strings.ToLower(out.Mode) {
	case "file":
		w, err := matchjson.NewWriter(out.File.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: file (%s)", out.File.Path)
		return w, nil
	case "http":
		w, err := matchhttp.NewWriter(matchhttp.Config{
			URL:     out.HTTP.URL,
			Timeout: out.HTTP.Timeout,
			Headers: out.HTTP.Headers,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: http (%s)", out.HTTP.URL)
		return w, nil
	case "clickhouse":
		ch := out.ClickHouse
		w, err := matchclickhouse.NewWriter(matchclickhouse.Config{
			URL:      ch.URL,
			Database: ch.Database,
			Table:    ch.Table,
			Username: ch.Username,
			Password: ch.Password,
			Timeout:  ch.Timeout,
			Headers:  ch.Headers,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: clickhouse (%s/%s.%s)", ch.URL, ch.Database, ch.Table)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown output mode: %s", out.Mode)
	}
}
