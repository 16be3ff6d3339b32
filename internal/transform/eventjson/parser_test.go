package eventjson

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/pkg/models"
)

func TestParseNativeFields(t *testing.T) {
	ev, err := Parse([]byte(`{
		"id": "evt-1",
		"timestamp": "2026-02-01T10:00:00Z",
		"event_type": "security_incident",
		"unit": "bww",
		"site": "155",
		"device": "FortiGate-01",
		"severity": "HIGH",
		"description": "SQL injection attempt blocked",
		"tags": ["waf", ""],
		"metadata": {"source_ip": "10.0.0.9", "attack_type": "sqli"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, models.EventSecurityIncident, ev.Type)
	assert.Equal(t, "BWW", ev.Unit)
	assert.Equal(t, models.SeverityHigh, ev.Severity)
	assert.Equal(t, []string{"waf"}, ev.Tags)
	assert.Equal(t, "10.0.0.9", ev.Meta("source_ip"))
}

func TestParseLegacyAliases(t *testing.T) {
	ev, err := Parse([]byte(`{
		"event_id": "legacy-7",
		"timestamp": "2026-02-01 10:30:00",
		"event_type": "performance_issue",
		"brand": "Sonic",
		"store_id": 789,
		"device_name": "Switch-01",
		"severity": "medium",
		"description": "High latency",
		"resolution": "Rebooted switch",
		"resolution_time": "42.5"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "legacy-7", ev.ID)
	assert.Equal(t, "SONIC", ev.Unit)
	assert.Equal(t, "789", ev.Site)
	assert.Equal(t, "Switch-01", ev.Device)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, 42.5, ev.ResolutionTime)
	assert.True(t, ev.Resolved())
}

func TestParseUnixTimestamp(t *testing.T) {
	ev, err := Parse([]byte(`{"event_type":"device_failure","unit":"ARBYS","site":"234","device":"AP-01","severity":"critical","description":"AP offline","timestamp":1769940000}`))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1769940000, 0).UTC(), ev.Timestamp)
	assert.Empty(t, ev.ID)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"missing unit":     `{"event_type":"security_incident","site":"1","device":"d","severity":"low","description":"x"}`,
		"missing device":   `{"event_type":"security_incident","unit":"BWW","site":"1","severity":"low","description":"x"}`,
		"bad severity":     `{"event_type":"security_incident","unit":"BWW","site":"1","device":"d","severity":"urgent","description":"x"}`,
		"bad timestamp":    `{"event_type":"security_incident","unit":"BWW","site":"1","device":"d","severity":"low","description":"x","timestamp":"yesterday"}`,
		"blank event type": `{"event_type":" ","unit":"BWW","site":"1","device":"d","severity":"low","description":"x"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(payload))
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}
