package models

import "time"

// PatternType is the closed set of detector outputs.
type PatternType string

const (
	PatternSecuritySequence       PatternType = "security_sequence"
	PatternPerformanceDegradation PatternType = "performance_degradation"
	PatternConfigurationDrift     PatternType = "configuration_drift"
	PatternCrossUnitCorrelation   PatternType = "cross_unit_correlation"
	PatternTemporalAnomaly        PatternType = "temporal_anomaly"
	PatternDeviceFailure          PatternType = "device_failure"
	PatternCampaignMatch          PatternType = "campaign_match"
	PatternPolicyViolation        PatternType = "policy_violation"
)

// AllPatternTypes lists every detector in execution order.
var AllPatternTypes = []PatternType{
	PatternSecuritySequence,
	PatternPerformanceDegradation,
	PatternConfigurationDrift,
	PatternCrossUnitCorrelation,
	PatternTemporalAnomaly,
	PatternDeviceFailure,
	PatternCampaignMatch,
	PatternPolicyViolation,
}

// LearningPattern is a stored, incrementally updated pattern record.
type LearningPattern struct {
	ID              string         `json:"id"`
	Type            string         `json:"pattern_type"`
	Confidence      float64        `json:"confidence"`
	Frequency       int            `json:"frequency"`
	LastSeen        time.Time      `json:"last_seen"`
	Conditions      map[string]any `json:"conditions,omitempty"`
	Outcomes        map[string]any `json:"outcomes,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// TimeWindow is a closed time interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End-Start.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// PatternMatch is a transient detector output.
type PatternMatch struct {
	ID               string         `json:"id"`
	Type             PatternType    `json:"pattern_type"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Confidence       float64        `json:"confidence"`
	Severity         Severity       `json:"severity"`
	AffectedEntities []string       `json:"affected_entities"`
	Window           TimeWindow     `json:"time_window"`
	Evidence         []string       `json:"evidence"`
	Recommendations  []string       `json:"recommendations,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	DetectedAt       time.Time      `json:"detected_at"`
}
