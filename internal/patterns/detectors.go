package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"opsmemory/pkg/models"
)

func (e *Engine) detectSecuritySequence(_ context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	groups, keys := groupBy(events, func(ev *models.Event) (string, bool) {
		return ev.Entity(), ev.Type == models.EventSecurityIncident
	})

	var out []models.PatternMatch
	for _, key := range keys {
		seq := groups[key]
		if len(seq) < th.MinEventCount {
			continue
		}
		severities := make([]string, len(seq))
		weights := make([]int, len(seq))
		for i, ev := range seq {
			severities[i] = string(ev.Severity)
			weights[i] = ev.Severity.Weight()
		}
		if !isEscalating(weights, th.EscalationRatio) {
			continue
		}
		span := seq[len(seq)-1].Timestamp.Sub(seq[0].Timestamp)
		if span > th.MaxTimeWindow {
			continue
		}
		out = append(out, models.PatternMatch{
			Name:             "Escalating security sequence",
			Description:      fmt.Sprintf("Escalating security incident sequence detected at %s", key),
			Confidence:       0.85,
			Severity:         models.SeverityHigh,
			AffectedEntities: []string{key},
			Window:           windowOf(seq),
			Evidence:         eventIDs(seq),
			Recommendations: []string{
				"Immediate security assessment required",
				"Review incident timeline for attack progression",
				"Check for lateral movement indicators",
				"Implement enhanced monitoring",
			},
			Details: map[string]any{
				"sequence_length":      len(seq),
				"time_span_minutes":    span.Minutes(),
				"severity_progression": severities,
			},
		})
	}
	return out
}

func (e *Engine) detectPerformanceDegradation(_ context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	groups, keys := groupBy(events, func(ev *models.Event) (string, bool) {
		return ev.Unit, ev.Type == models.EventPerformanceIssue
	})

	var out []models.PatternMatch
	for _, unit := range keys {
		evs := groups[unit]
		if len(evs) < th.MinEventCount {
			continue
		}
		counts := windowCounts(evs, th.PerformanceBucket)
		if !isRising(counts, th.MinTrendBuckets, th.RisingRatio) {
			continue
		}
		sites := make(map[string]struct{})
		for _, ev := range evs {
			sites[ev.Site] = struct{}{}
		}
		out = append(out, models.PatternMatch{
			Name:             "Performance degradation",
			Description:      fmt.Sprintf("Performance degradation trend detected for %s", unit),
			Confidence:       0.75,
			Severity:         models.SeverityMedium,
			AffectedEntities: []string{unit},
			Window:           windowOf(evs),
			Evidence:         eventIDs(evs),
			Recommendations: []string{
				fmt.Sprintf("Investigate %s network infrastructure", unit),
				"Check bandwidth utilization and device resources",
				"Review recent configuration changes",
				"Consider capacity planning assessment",
			},
			Details: map[string]any{
				"event_count":     len(evs),
				"frequency_trend": counts,
				"affected_sites":  len(sites),
			},
		})
	}
	return out
}

func (e *Engine) detectConfigurationDrift(_ context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	groups, keys := groupBy(events, func(ev *models.Event) (string, bool) {
		return ev.DeviceEntity(), ev.Type == models.EventConfigurationChange
	})

	var out []models.PatternMatch
	for _, key := range keys {
		changes := groups[key]
		if len(changes) < th.DriftMinChanges {
			continue
		}
		span := changes[len(changes)-1].Timestamp.Sub(changes[0].Timestamp)
		if span > th.DriftWindow {
			continue
		}
		out = append(out, models.PatternMatch{
			Name:             "Configuration drift",
			Description:      fmt.Sprintf("Configuration drift detected on %s", key),
			Confidence:       0.8,
			Severity:         models.SeverityMedium,
			AffectedEntities: []string{key},
			Window:           windowOf(changes),
			Evidence:         eventIDs(changes),
			Recommendations: []string{
				"Review configuration change history",
				"Validate current configuration against standards",
				"Check for unauthorized changes",
				"Implement configuration backup and rollback",
			},
			Details: map[string]any{
				"change_count":      len(changes),
				"time_span_minutes": span.Minutes(),
			},
		})
	}
	return out
}

func (e *Engine) detectCrossUnitCorrelation(_ context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	type bucketKey struct {
		start time.Time
		typ   models.EventType
	}
	byBucket := make(map[bucketKey]map[string][]models.Event)
	var order []bucketKey
	for _, ev := range events {
		k := bucketKey{start: ev.Timestamp.Truncate(th.CorrelationBucket), typ: ev.Type}
		units := byBucket[k]
		if units == nil {
			units = make(map[string][]models.Event)
			byBucket[k] = units
			order = append(order, k)
		}
		units[ev.Unit] = append(units[ev.Unit], ev)
	}

	var out []models.PatternMatch
	for _, k := range order {
		units := byBucket[k]
		if len(units) < th.CorrelationUnits {
			continue
		}
		names := make([]string, 0, len(units))
		var all []models.Event
		for unit, evs := range units {
			names = append(names, unit)
			all = append(all, evs...)
		}
		if len(all) < th.MinEventCount {
			continue
		}
		sort.Strings(names)
		sortByTime(all)

		sev := models.SeverityMedium
		if k.typ.IsSecurity() {
			sev = models.SeverityHigh
		}
		out = append(out, models.PatternMatch{
			Name:             "Cross-unit correlation",
			Description:      fmt.Sprintf("Correlated %s events across units: %s", k.typ, strings.Join(names, ", ")),
			Confidence:       0.9,
			Severity:         sev,
			AffectedEntities: names,
			Window:           models.TimeWindow{Start: k.start, End: k.start.Add(th.CorrelationBucket)},
			Evidence:         eventIDs(all),
			Recommendations: []string{
				"Investigate potential coordinated attack or system-wide issue",
				fmt.Sprintf("Review %s patterns across all units", k.typ),
				"Check for common infrastructure or vendors",
				"Implement cross-unit monitoring alerts",
			},
			Details: map[string]any{
				"units_affected": len(names),
				"total_events":   len(all),
				"event_type":     string(k.typ),
			},
		})
	}
	return out
}

func (e *Engine) detectTemporalAnomaly(_ context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	if len(events) < th.AnomalyMinEvents {
		return nil
	}
	hourly := make(map[int]int)
	for _, ev := range events {
		hourly[ev.Timestamp.Hour()]++
	}
	baseline := float64(len(events)) / float64(len(hourly))

	anomalous := make(map[int]int)
	for hour, count := range hourly {
		if float64(count) > baseline*th.AnomalyMultiplier {
			anomalous[hour] = count
		}
	}
	if len(anomalous) == 0 {
		return nil
	}

	var hits []models.Event
	for _, ev := range events {
		if _, ok := anomalous[ev.Timestamp.Hour()]; ok {
			hits = append(hits, ev)
		}
	}
	return []models.PatternMatch{{
		Name:             "Temporal anomaly",
		Description:      fmt.Sprintf("Temporal anomaly detected: unusually high activity during %d hour(s)", len(anomalous)),
		Confidence:       0.8,
		Severity:         models.SeverityMedium,
		AffectedEntities: distinctEntities(hits),
		Window:           windowOf(hits),
		Evidence:         eventIDs(hits),
		Recommendations: []string{
			"Investigate cause of increased activity",
			"Check for scheduled maintenance or updates",
			"Review user activity patterns",
			"Consider implementing time-based monitoring",
		},
		Details: map[string]any{
			"anomalous_hours":          anomalous,
			"baseline_events_per_hour": baseline,
			"total_anomaly_events":     len(hits),
		},
	}}
}

func (e *Engine) detectDeviceFailure(_ context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	groups, keys := groupBy(events, func(ev *models.Event) (string, bool) {
		return ev.DeviceEntity(), ev.Device != ""
	})

	var out []models.PatternMatch
	for _, key := range keys {
		evs := groups[key]
		if len(evs) < th.FailureMinEvents {
			continue
		}
		severe := 0
		types := make(map[string]struct{})
		for _, ev := range evs {
			if ev.Severity.AtLeast(models.SeverityHigh) {
				severe++
			}
			types[string(ev.Type)] = struct{}{}
		}
		if severe < th.FailureMinSevere {
			continue
		}
		out = append(out, models.PatternMatch{
			Name:             "Device failure",
			Description:      fmt.Sprintf("Potential device failure pattern detected: %s", key),
			Confidence:       0.85,
			Severity:         models.SeverityHigh,
			AffectedEntities: []string{key},
			Window:           windowOf(evs),
			Evidence:         eventIDs(evs),
			Recommendations: []string{
				fmt.Sprintf("Immediate inspection of %s required", key),
				"Check device health and resource utilization",
				"Prepare replacement device if necessary",
				"Review device maintenance schedule",
			},
			Details: map[string]any{
				"total_events":    len(evs),
				"critical_events": severe,
				"event_types":     sortedKeys(types),
			},
		})
	}
	return out
}

func (e *Engine) detectCampaign(ctx context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	matched := make(map[string][]models.Event)
	for i := range events {
		ev := &events[i]
		if ev.Type != models.EventSecurityIncident {
			continue
		}
		for _, id := range e.signatures.Match(ctx, ev) {
			matched[id] = append(matched[id], *ev)
		}
	}

	var out []models.PatternMatch
	for _, sig := range e.signatures.Signatures() {
		hits := matched[sig.ID]
		if len(hits) < th.CampaignMinMatch {
			continue
		}
		out = append(out, models.PatternMatch{
			Name:             sig.Name,
			Description:      fmt.Sprintf("Attack campaign detected: %s", sig.Name),
			Confidence:       0.9,
			Severity:         sig.Severity,
			AffectedEntities: distinctEntities(hits),
			Window:           windowOf(hits),
			Evidence:         eventIDs(hits),
			Recommendations:  append([]string(nil), sig.Mitigation...),
			Details: map[string]any{
				"signature_id":        sig.ID,
				"attack_type":         sig.AttackType,
				"matching_indicators": MatchedIndicators(sig, hits),
			},
		})
	}
	return out
}

func (e *Engine) detectPolicyViolation(_ context.Context, events []models.Event) []models.PatternMatch {
	th := e.thresholds
	groups, keys := groupBy(events, func(ev *models.Event) (string, bool) {
		desc := strings.ToLower(ev.Description)
		for _, kw := range th.PolicyKeywords {
			if strings.Contains(desc, kw) {
				return ev.Unit + "_" + string(ev.Type), true
			}
		}
		return "", false
	})

	var out []models.PatternMatch
	for _, key := range keys {
		evs := groups[key]
		if len(evs) < th.PolicyMinMatches {
			continue
		}
		sites := make(map[string]struct{})
		for _, ev := range evs {
			sites[ev.Site] = struct{}{}
		}
		out = append(out, models.PatternMatch{
			Name:             "Policy violation",
			Description:      fmt.Sprintf("Repeated policy violations detected: %s", key),
			Confidence:       0.7,
			Severity:         models.SeverityMedium,
			AffectedEntities: distinctEntities(evs),
			Window:           windowOf(evs),
			Evidence:         eventIDs(evs),
			Recommendations: []string{
				"Review and update security policies",
				"Investigate source of violations",
				"Consider user training or policy clarification",
				"Implement preventive controls",
			},
			Details: map[string]any{
				"violation_count": len(evs),
				"affected_sites":  len(sites),
			},
		})
	}
	return out
}

// isEscalating reports whether at least ratio of consecutive pairs are
// non-decreasing.
func isEscalating(weights []int, ratio float64) bool {
	if len(weights) < 2 {
		return false
	}
	up := 0
	for i := 1; i < len(weights); i++ {
		if weights[i] >= weights[i-1] {
			up++
		}
	}
	return float64(up)/float64(len(weights)-1) >= ratio
}

// isRising reports whether more than ratio of consecutive values strictly
// increase, given at least minLen values.
func isRising(values []int, minLen int, ratio float64) bool {
	if len(values) < minLen || len(values) < 2 {
		return false
	}
	up := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			up++
		}
	}
	return float64(up)/float64(len(values)-1) > ratio
}

// windowCounts splits time-ordered events into consecutive windows, each
// opened by the first event not covered by the previous one.
func windowCounts(events []models.Event, size time.Duration) []int {
	if len(events) == 0 {
		return nil
	}
	var counts []int
	start := events[0].Timestamp
	n := 0
	for _, ev := range events {
		if ev.Timestamp.Sub(start) <= size {
			n++
			continue
		}
		counts = append(counts, n)
		start = ev.Timestamp
		n = 1
	}
	return append(counts, n)
}

// groupBy buckets time-ordered events by key, keeping first-seen key order.
func groupBy(events []models.Event, key func(*models.Event) (string, bool)) (map[string][]models.Event, []string) {
	groups := make(map[string][]models.Event)
	var keys []string
	for i := range events {
		k, ok := key(&events[i])
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], events[i])
	}
	return groups, keys
}

func windowOf(events []models.Event) models.TimeWindow {
	if len(events) == 0 {
		return models.TimeWindow{}
	}
	w := models.TimeWindow{Start: events[0].Timestamp, End: events[0].Timestamp}
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(w.Start) {
			w.Start = ev.Timestamp
		}
		if ev.Timestamp.After(w.End) {
			w.End = ev.Timestamp
		}
	}
	return w
}

func eventIDs(events []models.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func distinctEntities(events []models.Event) []string {
	seen := make(map[string]struct{})
	for _, ev := range events {
		seen[ev.Entity()] = struct{}{}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortByTime(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
}
