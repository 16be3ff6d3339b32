package patterns

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/config"
	"opsmemory/pkg/models"
)

func TestLoadBuiltinSignatures(t *testing.T) {
	set, stats, err := LoadSignatures("")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Loaded)
	assert.Zero(t, stats.SkippedInvalid)

	ids := make([]string, 0, 3)
	for _, sig := range set.Signatures() {
		ids = append(ids, sig.ID)
	}
	assert.Equal(t, []string{"sql_injection_campaign", "malware_campaign", "brute_force_campaign"}, ids)
}

func TestSignatureMatchUsesDescriptionAndTags(t *testing.T) {
	set, _, err := LoadSignatures("")
	require.NoError(t, err)
	ctx := context.Background()

	ev := &models.Event{Type: models.EventSecurityIncident, Description: "Multiple FAILED LOGIN attempts"}
	assert.Equal(t, []string{"brute_force_campaign"}, set.Match(ctx, ev))

	tagged := &models.Event{Type: models.EventSecurityIncident, Description: "endpoint alert", Tags: []string{"ransomware"}}
	assert.Equal(t, []string{"malware_campaign"}, set.Match(ctx, tagged))

	assert.Empty(t, set.Match(ctx, &models.Event{Description: "routine backup"}))
}

func TestLoadSignaturesFromDirectoryOverridesAndSkips(t *testing.T) {
	dir := t.TempDir()
	custom := `signatures:
  - id: malware_campaign
    name: Commodity Malware
    attack_type: malware
    severity: high
    indicators: [emotet]
    mitigation: [Reimage host]
  - id: dns_tunnel
    name: DNS Tunneling
    attack_type: exfiltration
    severity: medium
    indicators: [dns tunnel]
  - id: broken
    name: Broken
    severity: extreme
    indicators: [nothing]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.yml"), []byte(custom), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	set, stats, err := LoadSignatures(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 4, stats.Loaded)
	assert.Equal(t, 1, stats.SkippedInvalid)

	ctx := context.Background()
	assert.Equal(t, []string{"malware_campaign"}, set.Match(ctx, &models.Event{Description: "emotet dropper seen"}))
	assert.Empty(t, set.Match(ctx, &models.Event{Description: "trojan detected"}))
	assert.Equal(t, []string{"dns_tunnel"}, set.Match(ctx, &models.Event{Description: "possible DNS tunnel"}))
}

func TestLoadSignaturesRejectsNonYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigs.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, _, err := LoadSignatures(path)
	assert.Error(t, err)
}

func TestMatchedIndicators(t *testing.T) {
	set, _, err := LoadSignatures("")
	require.NoError(t, err)
	sig := set.Signatures()[0]
	events := []models.Event{
		{Description: "sql injection probe"},
		{Description: "DROP TABLE users"},
		{Description: "sql injection again"},
	}
	assert.Equal(t, 2, MatchedIndicators(sig, events))
}

func TestThresholdsFromConfig(t *testing.T) {
	th := ThresholdsFromConfig(config.PatternsConfig{MinConfidence: 0.8, PolicyKeywords: []string{" Quarantine "}})
	assert.InDelta(t, 0.8, th.MinConfidence, 1e-9)
	assert.Equal(t, []string{"quarantine"}, th.PolicyKeywords)
	assert.Equal(t, DefaultThresholds().DriftWindow, th.DriftWindow)
}

func TestNewEngineKeepsPartialThresholds(t *testing.T) {
	e, err := NewEngine(nil, Options{Thresholds: Thresholds{DriftWindow: 6 * time.Hour}})
	require.NoError(t, err)

	th := e.Thresholds()
	def := DefaultThresholds()
	assert.Equal(t, 6*time.Hour, th.DriftWindow)
	assert.Equal(t, def.MinEventCount, th.MinEventCount)
	assert.Equal(t, def.AnomalyMultiplier, th.AnomalyMultiplier)
	assert.Equal(t, def.PolicyKeywords, th.PolicyKeywords)
}
