package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"opsmemory/pkg/models"
)

// IncidentLikelihood is one type+severity row of an IncidentForecast.
type IncidentLikelihood struct {
	EventType         models.EventType `json:"event_type"`
	Severity          models.Severity  `json:"severity"`
	Frequency         int              `json:"frequency"`
	Probability       float64          `json:"probability"`
	Confidence        float64          `json:"confidence"`
	AvgResolutionTime float64          `json:"avg_resolution_time"`
	LearnedPatterns   int              `json:"learned_patterns"`
	Recommendations   []string         `json:"recommendations"`
}

// IncidentForecast is the result of PredictSimilarIncidents.
type IncidentForecast struct {
	Unit         string               `json:"unit"`
	Site         string               `json:"site,omitempty"`
	LookbackDays int                  `json:"lookback_days"`
	TotalEvents  int                  `json:"total_events_analyzed"`
	Predictions  []IncidentLikelihood `json:"predictions"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

const (
	maxForecastRows         = 5
	maxForecastRecommends   = 5
	forecastMinConfidence   = 0.5
	defaultForecastLookback = 90
)

// PredictSimilarIncidents builds the type+severity distribution of a unit's
// events over the lookback window. site may be empty; with eventTypes set
// only those types are counted. Recommendations come from the unit's own
// learned patterns.
func (m *Memory) PredictSimilarIncidents(ctx context.Context, unit, site string, lookbackDays int, eventTypes ...models.EventType) IncidentForecast {
	if lookbackDays <= 0 {
		lookbackDays = defaultForecastLookback
	}
	unit = strings.ToUpper(strings.TrimSpace(unit))
	now := m.now()
	out := IncidentForecast{Unit: unit, Site: site, LookbackDays: lookbackDays, GeneratedAt: now}

	since := now.Add(-time.Duration(lookbackDays) * 24 * time.Hour)
	events := m.rangeEvents(ctx, RangeQuery{Since: since, Field: "unit", Value: unit}, "predict_similar_incidents")

	type key struct {
		t models.EventType
		s models.Severity
	}
	type bucket struct {
		count       int
		resolved    int
		resolutions float64
	}
	wanted := make(map[models.EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = true
	}
	buckets := make(map[key]*bucket)
	for _, ev := range events {
		if site != "" && ev.Site != site {
			continue
		}
		if len(wanted) > 0 && !wanted[ev.Type] {
			continue
		}
		k := key{ev.Type, ev.Severity}
		b := buckets[k]
		if b == nil {
			b = &bucket{}
			buckets[k] = b
		}
		b.count++
		if ev.ResolutionTime > 0 {
			b.resolved++
			b.resolutions += ev.ResolutionTime
		}
		out.TotalEvents++
	}
	if out.TotalEvents == 0 {
		return out
	}

	rows := make([]IncidentLikelihood, 0, len(buckets))
	for k, b := range buckets {
		p := float64(b.count) / float64(out.TotalEvents)
		row := IncidentLikelihood{
			EventType:   k.t,
			Severity:    k.s,
			Frequency:   b.count,
			Probability: p,
			Confidence:  clamp01(2 * p),
		}
		if b.resolved > 0 {
			row.AvgResolutionTime = b.resolutions / float64(b.resolved)
		}
		patterns := patternsForUnit(m.GetLearnedPatterns(ctx, string(k.t)+"_"+string(k.s), forecastMinConfidence), unit)
		row.LearnedPatterns = len(patterns)
		row.Recommendations = mergeRecommendations(patterns, maxForecastRecommends)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Frequency != rows[j].Frequency {
			return rows[i].Frequency > rows[j].Frequency
		}
		if rows[i].Severity.Weight() != rows[j].Severity.Weight() {
			return rows[i].Severity.Weight() > rows[j].Severity.Weight()
		}
		return rows[i].EventType < rows[j].EventType
	})
	if len(rows) > maxForecastRows {
		rows = rows[:maxForecastRows]
	}
	out.Predictions = rows
	return out
}

// patternsForUnit drops patterns learned for a different unit.
func patternsForUnit(patterns []models.LearningPattern, unit string) []models.LearningPattern {
	out := patterns[:0]
	for _, p := range patterns {
		if u, ok := p.Conditions["unit"].(string); ok && !strings.EqualFold(u, unit) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func mergeRecommendations(patterns []models.LearningPattern, limit int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	for _, p := range patterns {
		for _, rec := range p.Recommendations {
			if _, ok := seen[rec]; ok {
				continue
			}
			seen[rec] = struct{}{}
			out = append(out, rec)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
