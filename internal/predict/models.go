package predict

import (
	"fmt"
	"math"
	"strings"

	"opsmemory/pkg/models"
)

// Sample caps mirror how much recent history each model looks at.
const (
	securitySampleLimit    = 100
	performanceSampleLimit = 50
	deviceSampleLimit      = 150
	capacitySampleLimit    = 30
	complianceSampleLimit  = 20
	maintenanceSampleLimit = 90
)

func predictSecurityIncident(h *history, entity string) (models.Prediction, bool) {
	events := h.forEntity(entity, securitySampleLimit, func(ev *models.Event) bool { return ev.Type.IsSecurity() })
	if len(events) < h.minData {
		return models.Prediction{}, false
	}
	recent := within(events, h, 30)
	if len(recent) == 0 {
		return models.Prediction{}, false
	}

	freqTrend := frequencyTrend(events, h, 30)
	sevTrend := severityTrend(recent)
	factors := map[string]float64{
		"historical_frequency": float64(len(recent)) / 30,
		"severity_escalation":  sevTrend,
		"frequency_trend":      freqTrend,
		"recent_activity":      float64(len(within(recent, h, 7))) / 7,
	}

	confidence := 0.3
	if factors["historical_frequency"] > 0.1 {
		confidence += 0.3
	}
	if freqTrend > 0.2 {
		confidence += 0.3
	}
	if factors["recent_activity"] > factors["historical_frequency"] {
		confidence += 0.2
	}
	if len(events) >= 20 {
		confidence += 0.1
	}
	probability := math.Min(factors["historical_frequency"]*(1+math.Max(0, freqTrend)), 1)

	impact := models.ImpactMedium
	if probability > 0.7 {
		impact = models.ImpactHigh
	}
	return models.Prediction{
		Confidence:  math.Min(confidence, 0.95),
		Probability: probability,
		Severity:    predictSeverity(recent),
		Window:      h.window(1, h.horizon),
		Reasoning: reasoning(
			fmt.Sprintf("Historical frequency: %.2f events/day", factors["historical_frequency"]),
			fmt.Sprintf("Trend direction: %s", describe(freqTrend > 0, "increasing", "stable/decreasing")),
			fmt.Sprintf("Recent activity spike: %.2f events/day", factors["recent_activity"]),
			fmt.Sprintf("Severity trend: %s", describe(sevTrend > 0, "escalating", "stable")),
		),
		Factors: factors,
		Recommendations: []string{
			"Increase security monitoring for this entity",
			"Review and update security policies",
			"Prepare incident response procedures",
			"Consider proactive security assessment",
		},
		Mitigations: []string{
			"Enable enhanced logging and monitoring",
			"Review firewall rules and IPS signatures",
			"Update antivirus definitions",
			"Brief security team on potential incident",
		},
		BusinessImpact:    impact,
		SupportingPattern: h.supporting(entity, models.EventSecurityIncident),
	}, true
}

func predictPerformanceIssue(h *history, entity string) (models.Prediction, bool) {
	events := h.forEntity(entity, performanceSampleLimit, func(ev *models.Event) bool { return ev.Type.IsPerformance() })
	if len(events) < 5 {
		return models.Prediction{}, false
	}
	recent := within(events, h, 14)
	if len(recent) < 3 {
		return models.Prediction{}, false
	}

	freqTrend := frequencyTrend(events, h, 14)
	unresolved := countUnresolved(recent)
	factors := map[string]float64{
		"frequency_trend":       freqTrend,
		"recent_frequency":      float64(len(recent)) / 14,
		"resolution_time_trend": resolutionTrend(recent),
		"unresolved_issues":     float64(unresolved),
	}
	confidence := math.Min(math.Abs(freqTrend)*0.8+factors["recent_frequency"]*0.2, 0.9)
	if confidence < 0.5 {
		return models.Prediction{}, false
	}
	return models.Prediction{
		Confidence:  confidence,
		Probability: math.Min(factors["recent_frequency"]*1.5, 0.8),
		Severity:    models.SeverityMedium,
		Window:      h.window(2, h.horizon),
		Reasoning: reasoning(
			fmt.Sprintf("Frequency trend: %.2f", freqTrend),
			fmt.Sprintf("Recent issue rate: %.2f/day", factors["recent_frequency"]),
			fmt.Sprintf("Unresolved issues: %d", unresolved),
		),
		Factors: factors,
		Recommendations: []string{
			"Monitor network performance metrics",
			"Check bandwidth utilization",
			"Review device resource usage",
			"Consider capacity planning",
		},
		Mitigations: []string{
			"Proactive performance monitoring",
			"Resource capacity assessment",
			"Network optimization review",
		},
		BusinessImpact:    models.ImpactMedium,
		SupportingPattern: h.supporting(entity, models.EventPerformanceIssue),
	}, true
}

func predictDeviceFailure(h *history, entity string) (models.Prediction, bool) {
	unit, site, device := models.SplitEntity(entity)
	if site == "" || device == "" {
		return models.Prediction{}, false
	}
	events := h.forEntity(entity, deviceSampleLimit, nil)
	if len(events) < 5 {
		return models.Prediction{}, false
	}
	recent := within(events, h, 21)
	if len(recent) < 3 {
		return models.Prediction{}, false
	}

	critical := 0
	for _, ev := range recent {
		if ev.Severity.AtLeast(models.SeverityHigh) {
			critical++
		}
	}
	unresolved := countUnresolved(recent)
	n := float64(len(recent))
	factors := map[string]float64{
		"event_frequency":      n / 21,
		"critical_event_ratio": float64(critical) / n,
		"unresolved_ratio":     float64(unresolved) / n,
		"event_trend":          frequencyTrend(events, h, 21),
	}
	risk := factors["critical_event_ratio"]*0.4 + factors["unresolved_ratio"]*0.3 + factors["event_frequency"]*0.3
	confidence := math.Min(risk*1.2, 0.95)
	if confidence < 0.6 {
		return models.Prediction{}, false
	}

	sev, impact := models.SeverityMedium, models.ImpactMedium
	if risk > 0.7 {
		sev, impact = models.SeverityHigh, models.ImpactHigh
	}
	horizon := h.horizon
	if horizon > 14 {
		horizon = 14
	}
	return models.Prediction{
		Confidence:  confidence,
		Probability: math.Min(risk, 0.8),
		Severity:    sev,
		Window:      h.window(1, horizon),
		Reasoning: reasoning(
			fmt.Sprintf("Device failure risk for %s at %s store %s", device, unit, site),
			fmt.Sprintf("Recent event frequency: %.2f/day", factors["event_frequency"]),
			fmt.Sprintf("Critical events: %d of %d", critical, len(recent)),
			fmt.Sprintf("Unresolved issues: %d", unresolved),
			fmt.Sprintf("Event trend: %s", describe(factors["event_trend"] > 0, "increasing", "stable")),
		),
		Factors: factors,
		Recommendations: []string{
			fmt.Sprintf("Schedule immediate inspection of %s", device),
			"Check device health and resource utilization",
			"Prepare replacement device",
			"Review device maintenance history",
		},
		Mitigations: []string{
			"Proactive device replacement",
			"Enhanced monitoring",
			"Backup configuration",
			"Spare device preparation",
		},
		BusinessImpact:    impact,
		SupportingPattern: h.supporting(entity, models.EventDeviceFailure),
	}, true
}

func predictCapacityOverflow(h *history, entity string) (models.Prediction, bool) {
	events := h.forEntity(entity, capacitySampleLimit, func(ev *models.Event) bool { return ev.Type.IsPerformance() })
	if len(events) < 5 {
		return models.Prediction{}, false
	}
	recent := within(events, h, 14)
	if len(recent) < 3 {
		return models.Prediction{}, false
	}
	freqTrend := frequencyTrend(events, h, 14)
	if freqTrend <= 0.1 {
		return models.Prediction{}, false
	}

	factors := map[string]float64{
		"frequency_trend":  freqTrend,
		"recent_frequency": float64(len(recent)) / 14,
	}
	return models.Prediction{
		Confidence:  math.Min(freqTrend*2, 0.8),
		Probability: math.Min(factors["recent_frequency"]*2, 0.7),
		Severity:    models.SeverityMedium,
		Window:      h.window(3, h.horizon),
		Reasoning: reasoning(
			fmt.Sprintf("Performance issue frequency increasing: %.2f", freqTrend),
			fmt.Sprintf("Recent performance events: %d", len(recent)),
		),
		Factors: factors,
		Recommendations: []string{
			"Review bandwidth utilization",
			"Assess storage capacity",
			"Plan capacity expansion",
			"Optimize resource allocation",
		},
		Mitigations: []string{
			"Capacity planning assessment",
			"Resource optimization",
			"Infrastructure scaling",
		},
		BusinessImpact: models.ImpactMedium,
	}, true
}

func predictComplianceViolation(h *history, entity string) (models.Prediction, bool) {
	events := h.forEntity(entity, complianceSampleLimit, func(ev *models.Event) bool {
		return ev.Type == models.EventConfigurationChange
	})
	recent := within(events, h, 7)
	if len(recent) < 3 {
		return models.Prediction{}, false
	}
	rate := float64(len(recent)) / 7
	if rate <= 0.5 {
		return models.Prediction{}, false
	}

	return models.Prediction{
		Confidence:  math.Min(rate*0.8, 0.7),
		Probability: math.Min(rate*0.6, 0.6),
		Severity:    models.SeverityMedium,
		Window:      h.window(5, h.horizon),
		Reasoning: reasoning(
			fmt.Sprintf("High configuration change frequency: %.2f/day", rate),
			fmt.Sprintf("Recent changes: %d in last 7 days", len(recent)),
		),
		Factors: map[string]float64{
			"config_change_frequency": rate,
			"recent_changes":          float64(len(recent)),
		},
		Recommendations: []string{
			"Review configuration changes against standards",
			"Implement configuration validation",
			"Schedule compliance audit",
			"Update change management procedures",
		},
		Mitigations: []string{
			"Configuration compliance check",
			"Change management review",
			"Policy validation",
		},
		BusinessImpact:    models.ImpactMedium,
		SupportingPattern: h.supporting(entity, models.EventConfigurationChange),
	}, true
}

func predictMaintenance(h *history, entity string) (models.Prediction, bool) {
	events := h.forEntity(entity, maintenanceSampleLimit, nil)
	if len(events) < h.minData {
		return models.Prediction{}, false
	}
	recent := within(events, h, 30)
	unresolved := countUnresolved(recent)
	perf := 0
	for _, ev := range recent {
		if ev.Type.IsPerformance() {
			perf++
		}
	}
	factors := map[string]float64{
		"total_event_rate":       float64(len(recent)) / 30,
		"unresolved_ratio":       float64(unresolved) / math.Max(float64(len(recent)), 1),
		"performance_issue_rate": float64(perf) / 30,
	}
	score := factors["total_event_rate"]*0.4 + factors["unresolved_ratio"]*0.3 + factors["performance_issue_rate"]*0.3
	if score <= 0.3 {
		return models.Prediction{}, false
	}

	return models.Prediction{
		Confidence:  math.Min(score*1.2, 0.8),
		Probability: math.Min(score, 0.7),
		Severity:    models.SeverityLow,
		Window:      h.window(7, h.horizon),
		Reasoning: reasoning(
			fmt.Sprintf("Event rate: %.2f/day", factors["total_event_rate"]),
			fmt.Sprintf("Unresolved issues: %d", unresolved),
			fmt.Sprintf("Performance issues: %d", perf),
		),
		Factors: factors,
		Recommendations: []string{
			"Schedule preventive maintenance",
			"Review device configurations",
			"Update software and signatures",
			"Check hardware health",
		},
		Mitigations: []string{
			"Preventive maintenance scheduling",
			"Health check assessment",
			"Configuration optimization",
		},
		BusinessImpact: models.ImpactLow,
	}, true
}

// predictSeverity is high when any of the three newest events is high or
// critical, otherwise the most common severity.
func predictSeverity(newestFirst []models.Event) models.Severity {
	if len(newestFirst) == 0 {
		return models.SeverityMedium
	}
	for i := 0; i < len(newestFirst) && i < 3; i++ {
		if newestFirst[i].Severity.AtLeast(models.SeverityHigh) {
			return models.SeverityHigh
		}
	}
	counts := make(map[models.Severity]int)
	best := newestFirst[0].Severity
	for _, ev := range newestFirst {
		counts[ev.Severity]++
		if counts[ev.Severity] > counts[best] {
			best = ev.Severity
		}
	}
	return best
}

func countUnresolved(events []models.Event) int {
	n := 0
	for i := range events {
		if !events[i].Resolved() {
			n++
		}
	}
	return n
}

func reasoning(lines ...string) string {
	return strings.Join(lines, "; ")
}

func describe(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
