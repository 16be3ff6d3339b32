package eventjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"opsmemory/internal/logger"
	"opsmemory/pkg/models"
)

// ErrInvalidEvent wraps every rejection so callers can count them.
var ErrInvalidEvent = errors.New("invalid event payload")

// ExpectedMetadata lists the metadata keys producers are expected to send
// per event type. Missing keys are logged, not rejected.
var ExpectedMetadata = map[models.EventType][]string{
	models.EventSecurityIncident:    {"source_ip", "attack_type"},
	models.EventPerformanceIssue:    {"metric", "value"},
	models.EventConfigurationChange: {"changed_by", "change_type"},
	models.EventDeviceFailure:       {"component"},
	models.EventPolicyViolation:     {"policy", "action"},
}

// Parse converts a producer JSON payload into an Event. Both the native
// field names and the legacy brand/store_id/device_name aliases are
// accepted.
func Parse(data []byte) (*models.Event, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	ev := &models.Event{
		ID:             getString(raw, "id", "event_id"),
		Type:           models.EventType(strings.ToLower(getString(raw, "event_type", "type"))),
		Unit:           strings.ToUpper(getString(raw, "unit", "brand")),
		Site:           getString(raw, "site", "store_id"),
		Device:         getString(raw, "device", "device_name"),
		Description:    getString(raw, "description"),
		Resolution:     getString(raw, "resolution"),
		ResolutionTime: getFloat(raw, "resolution_time"),
	}

	for _, f := range []struct{ name, value string }{
		{"event_type", string(ev.Type)},
		{"unit", ev.Unit},
		{"site", ev.Site},
		{"device", ev.Device},
		{"description", ev.Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidEvent, f.name)
		}
	}

	sev, ok := models.ParseSeverity(getString(raw, "severity"))
	if !ok {
		return nil, fmt.Errorf("%w: bad severity %q", ErrInvalidEvent, getString(raw, "severity"))
	}
	ev.Severity = sev

	if v, ok := raw["timestamp"]; ok {
		ts, ok := parseTimestamp(v)
		if !ok {
			return nil, fmt.Errorf("%w: bad timestamp %v", ErrInvalidEvent, v)
		}
		ev.Timestamp = ts
	}

	if tags, ok := raw["tags"].([]interface{}); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok && s != "" {
				ev.Tags = append(ev.Tags, s)
			}
		}
	}
	if m, ok := raw["metadata"].(map[string]interface{}); ok {
		ev.Metadata = m
	}
	for _, key := range ExpectedMetadata[ev.Type] {
		if ev.Meta(key) == "" {
			logger.Debugf("event %s (%s) missing metadata %q", ev.ID, ev.Type, key)
		}
	}
	return ev, nil
}

// parseTimestamp accepts RFC3339 strings, naive "2006-01-02 15:04:05"
// strings in UTC and unix seconds.
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case float64:
		sec := int64(val)
		return time.Unix(sec, int64((val-float64(sec))*1e9)).UTC(), true
	case string:
		val = strings.TrimSpace(val)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), true
			}
		}
		for _, layout := range []string{
			"2006-01-02T15:04:05.999999",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05.999999",
			"2006-01-02 15:04:05",
		} {
			if t, err := time.ParseInLocation(layout, val, time.UTC); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func getString(root map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := root[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64:
			if val == float64(int64(val)) {
				return strconv.FormatInt(int64(val), 10)
			}
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return ""
}

func getFloat(root map[string]interface{}, key string) float64 {
	switch val := root[key].(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
