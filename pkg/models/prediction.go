package models

import "time"

// PredictionType is the closed set of forecasting models.
type PredictionType string

const (
	PredictSecurityIncident    PredictionType = "security_incident"
	PredictPerformanceIssue    PredictionType = "performance_issue"
	PredictDeviceFailure       PredictionType = "device_failure"
	PredictCapacityOverflow    PredictionType = "capacity_overflow"
	PredictComplianceViolation PredictionType = "compliance_violation"
	PredictMaintenanceRequired PredictionType = "maintenance_required"
)

// AllPredictionTypes lists every model in execution order.
var AllPredictionTypes = []PredictionType{
	PredictSecurityIncident,
	PredictPerformanceIssue,
	PredictDeviceFailure,
	PredictCapacityOverflow,
	PredictComplianceViolation,
	PredictMaintenanceRequired,
}

// Impact is the business impact tier of a prediction.
type Impact string

const (
	ImpactLow    Impact = "Low"
	ImpactMedium Impact = "Medium"
	ImpactHigh   Impact = "High"
)

// Prediction is a forward-looking statement about one entity.
type Prediction struct {
	ID                string             `json:"id"`
	Type              PredictionType     `json:"prediction_type"`
	Entity            string             `json:"entity"`
	Confidence        float64            `json:"confidence"`
	Probability       float64            `json:"probability"`
	Severity          Severity           `json:"severity"`
	Window            TimeWindow         `json:"predicted_window"`
	Reasoning         string             `json:"reasoning"`
	Factors           map[string]float64 `json:"risk_factors"`
	Recommendations   []string           `json:"recommendations"`
	Mitigations       []string           `json:"mitigation_actions"`
	BusinessImpact    Impact             `json:"business_impact"`
	SupportingPattern []string           `json:"supporting_patterns,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// RiskScore is confidence × probability × severity weight.
func (p *Prediction) RiskScore() float64 {
	w := p.Severity.Weight()
	if w == 0 {
		w = 2
	}
	return p.Confidence * p.Probability * float64(w)
}

// TrendDirection classifies a metric's movement between two windows.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendAnalysis describes how one metric of one entity is moving.
type TrendAnalysis struct {
	Entity         string         `json:"entity"`
	Metric         string         `json:"metric"`
	Direction      TrendDirection `json:"trend_direction"`
	Strength       float64        `json:"trend_strength"`
	CurrentValue   float64        `json:"current_value"`
	PriorValue     float64        `json:"prior_value"`
	PredictedValue float64        `json:"predicted_value"`
	IntervalLow    float64        `json:"confidence_interval_low"`
	IntervalHigh   float64        `json:"confidence_interval_high"`
	HorizonDays    int            `json:"time_horizon_days"`
}
