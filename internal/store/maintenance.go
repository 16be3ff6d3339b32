package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"opsmemory/internal/logger"
	"opsmemory/pkg/models"
)

// MemoryStats summarizes the contents of the store.
type MemoryStats struct {
	TotalEvents          int            `json:"total_events"`
	EventsByType         map[string]int `json:"events_by_type"`
	TotalPatterns        int            `json:"total_patterns"`
	AvgPatternConfidence float64        `json:"avg_pattern_confidence"`
	TotalInteractions    int            `json:"total_voice_interactions"`
	VoiceSuccessRate     float64        `json:"voice_success_rate"`
	TotalMetrics         int            `json:"total_metrics"`
	RetentionDays        int            `json:"retention_days"`
}

// RecordMetric appends a performance_metrics sample.
func (m *Memory) RecordMetric(ctx context.Context, sample models.MetricSample) bool {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.now()
	}
	idx := map[string]string{"name": sample.Name}
	if sample.Entity != "" {
		idx["entity"] = sample.Entity
	}
	if err := m.putJSON(ctx, CollMetrics, sample.ID, sample.Timestamp, idx, sample); err != nil {
		m.fail("record_metric", err)
		return false
	}
	return true
}

// Metrics returns samples named name, optionally for one entity, since the
// given time.
func (m *Memory) Metrics(ctx context.Context, entity, name string, since time.Time) []models.MetricSample {
	recs, err := m.backend.Range(ctx, CollMetrics, RangeQuery{Since: since, Field: "name", Value: name})
	if err != nil {
		m.fail("metrics", err)
		return nil
	}
	out := make([]models.MetricSample, 0, len(recs))
	for _, rec := range recs {
		var s models.MetricSample
		if err := json.Unmarshal(rec.Data, &s); err != nil {
			logger.Warnf("skip undecodable metric %s: %v", rec.ID, err)
			continue
		}
		if entity != "" && s.Entity != entity {
			continue
		}
		out = append(out, s)
	}
	return out
}

// CleanupOldData deletes events, interactions and metrics older than the
// retention cutoff, plus patterns last seen before it. retentionDays <= 0
// uses the configured retention. Returns the number of records removed.
func (m *Memory) CleanupOldData(ctx context.Context, retentionDays int) int {
	if retentionDays <= 0 {
		retentionDays = m.retention
	}
	cutoff := m.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	total := 0
	for _, coll := range AllCollections {
		recs, err := m.backend.Range(ctx, coll, RangeQuery{Until: cutoff.Add(-time.Millisecond)})
		if err != nil {
			m.fail("cleanup_old_data", err)
			continue
		}
		if len(recs) == 0 {
			continue
		}
		ids := make([]string, 0, len(recs))
		for _, rec := range recs {
			ids = append(ids, rec.ID)
		}
		n, err := m.backend.Delete(ctx, coll, ids)
		if err != nil {
			m.fail("cleanup_old_data", err)
		}
		total += n
	}
	logger.Infof("cleaned up %d records older than %s", total, cutoff.Format(time.RFC3339))
	return total
}

// Stats counts records per collection and aggregates confidence and voice success.
func (m *Memory) Stats(ctx context.Context) MemoryStats {
	stats := MemoryStats{EventsByType: map[string]int{}, RetentionDays: m.retention}

	for _, ev := range m.rangeEvents(ctx, RangeQuery{}, "stats") {
		stats.TotalEvents++
		stats.EventsByType[string(ev.Type)]++
	}

	patterns := m.GetLearnedPatterns(ctx, "", 0)
	stats.TotalPatterns = len(patterns)
	if len(patterns) > 0 {
		sum := 0.0
		for _, p := range patterns {
			sum += p.Confidence
		}
		stats.AvgPatternConfidence = sum / float64(len(patterns))
	}

	interactions := m.VoiceInteractions(ctx, time.Time{})
	stats.TotalInteractions = len(interactions)
	if len(interactions) > 0 {
		ok := 0
		for _, vi := range interactions {
			if vi.Success {
				ok++
			}
		}
		stats.VoiceSuccessRate = float64(ok) / float64(len(interactions))
	}

	n, err := m.backend.Count(ctx, CollMetrics)
	if err != nil {
		m.fail("stats", err)
	}
	stats.TotalMetrics = n
	return stats
}
