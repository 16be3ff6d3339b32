package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigParsesNestedSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	raw := `
opsmemory:
  store:
    backend: redis
    redis:
      addr: 10.0.0.1:6379
      key: ops
  pipeline:
    analyze_interval: 90s
  patterns:
    escalation_ratio: 0.8
    policy_keywords: [blocked, denied]
  graph:
    units: [BWW]
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.OpsMemory.Store.Backend)
	assert.Equal(t, "10.0.0.1:6379", cfg.OpsMemory.Store.Redis.Addr)
	assert.Equal(t, 90*time.Second, cfg.OpsMemory.Pipeline.AnalyzeInterval)
	assert.Equal(t, 0.8, cfg.OpsMemory.Patterns.EscalationRatio)
	assert.Equal(t, []string{"blocked", "denied"}, cfg.OpsMemory.Patterns.PolicyKeywords)
	assert.Equal(t, []string{"BWW"}, cfg.OpsMemory.Graph.Units)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "configs", "opsmemory.yml"))
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.OpsMemory.Store.Backend)
	assert.Len(t, cfg.OpsMemory.Graph.Sites, 3)
}
