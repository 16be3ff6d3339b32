package models

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the open event type vocabulary.
type EventType string

const (
	EventSecurityIncident    EventType = "security_incident"
	EventPerformanceIssue    EventType = "performance_issue"
	EventConfigurationChange EventType = "configuration_change"
	EventDeviceFailure       EventType = "device_failure"
	EventPolicyViolation     EventType = "policy_violation"
)

// IsSecurity reports whether the type belongs to the security family.
func (t EventType) IsSecurity() bool {
	return t == EventSecurityIncident || strings.Contains(string(t), "security")
}

// IsPerformance reports whether the type belongs to the performance family.
func (t EventType) IsPerformance() bool {
	return t == EventPerformanceIssue || strings.Contains(string(t), "performance")
}

// Event is a discrete operational event submitted by a producer.
type Event struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Type           EventType      `json:"event_type"`
	Unit           string         `json:"unit"`
	Site           string         `json:"site"`
	Device         string         `json:"device"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	Resolution     string         `json:"resolution,omitempty"`
	ResolutionTime float64        `json:"resolution_time,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Entity returns the UNIT_SITE analysis key.
func (e *Event) Entity() string {
	return EntityKey(e.Unit, e.Site, "")
}

// DeviceEntity returns the UNIT_SITE_DEVICE analysis key.
func (e *Event) DeviceEntity() string {
	return EntityKey(e.Unit, e.Site, e.Device)
}

// Resolved reports whether resolution text has been recorded.
func (e *Event) Resolved() bool {
	return strings.TrimSpace(e.Resolution) != ""
}

// Meta returns a metadata value rendered as a string.
func (e *Event) Meta(name string) string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	v, ok := e.Metadata[name]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%f", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// EntityKey composes unit, optional site and optional device into an entity id.
func EntityKey(unit, site, device string) string {
	parts := []string{strings.ToUpper(strings.TrimSpace(unit))}
	if site = strings.TrimSpace(site); site != "" {
		parts = append(parts, site)
		if device = strings.TrimSpace(device); device != "" {
			parts = append(parts, device)
		}
	}
	return strings.Join(parts, "_")
}

// SplitEntity is the inverse of EntityKey. Missing parts are empty.
func SplitEntity(entity string) (unit, site, device string) {
	parts := strings.SplitN(entity, "_", 3)
	unit = parts[0]
	if len(parts) > 1 {
		site = parts[1]
	}
	if len(parts) > 2 {
		device = parts[2]
	}
	return unit, site, device
}
