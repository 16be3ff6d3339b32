package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/config"
)

func TestApplyDefaults(t *testing.T) {
	var cfg config.Config
	cfg.OpsMemory.Pipeline.Workers = 2
	applyDefaults(&cfg)

	c := cfg.OpsMemory
	assert.Equal(t, "badger", c.Store.Backend)
	assert.Equal(t, 365, c.Store.RetentionDays)
	assert.Equal(t, "redis", c.Input.Mode)
	assert.Equal(t, 5*time.Second, c.Input.Redis.BlockTimeout)
	assert.Equal(t, 2, c.Pipeline.Workers)
	assert.Equal(t, 5*time.Minute, c.Pipeline.AnalyzeInterval)
	assert.Equal(t, "file", c.Output.Mode)
	assert.Equal(t, "info", c.Logging.Level)
}

func TestOpenSourceAndWriterModes(t *testing.T) {
	_, err := openSource(config.InputConfig{Mode: "kafka"})
	assert.Error(t, err)
	_, err = openSource(config.InputConfig{Mode: "file", File: filepath.Join(t.TempDir(), "missing.jsonl")})
	assert.Error(t, err)

	_, err = openWriter(config.OutputConfig{Mode: "s3"})
	assert.Error(t, err)
	_, err = openWriter(config.OutputConfig{Mode: "http"})
	assert.Error(t, err)

	w, err := openWriter(config.OutputConfig{Mode: "file", File: config.FileOutputConfig{Path: filepath.Join(t.TempDir(), "m.jsonl")}})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestNewAppWithInMemoryStore(t *testing.T) {
	var cfg config.Config
	cfg.OpsMemory.Store.Badger.InMemory = true
	applyDefaults(&cfg)

	a, err := newApp(&cfg)
	require.NoError(t, err)
	defer a.Close()

	g, err := a.topology(t.Context(), 30)
	require.NoError(t, err)
	assert.Equal(t, 39, g.Stats().Nodes)
}
