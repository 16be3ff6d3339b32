package predict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/pkg/models"
)

var t0 = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	events   []models.Event
	patterns []models.LearningPattern
	samples  []models.MetricSample
}

func (s *fakeStore) Events(_ context.Context, since time.Time) []models.Event {
	var out []models.Event
	for _, ev := range s.events {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *fakeStore) GetLearnedPatterns(_ context.Context, _ string, minConfidence float64) []models.LearningPattern {
	var out []models.LearningPattern
	for _, p := range s.patterns {
		if p.Confidence >= minConfidence {
			out = append(out, p)
		}
	}
	return out
}

func (s *fakeStore) RecordMetric(_ context.Context, sample models.MetricSample) bool {
	s.samples = append(s.samples, sample)
	return true
}

func (s *fakeStore) add(n int, typ models.EventType, unit, site, device string, sev models.Severity, ago time.Duration) {
	for i := 0; i < n; i++ {
		s.events = append(s.events, models.Event{
			Timestamp: t0.Add(-ago - time.Duration(i)*time.Minute),
			Type:      typ,
			Unit:      unit,
			Site:      site,
			Device:    device,
			Severity:  sev,
		})
	}
}

func newTestEngine(store Store, opts Options) *Engine {
	opts.Now = func() time.Time { return t0 }
	return NewEngine(store, opts)
}

func TestSecurityIncidentPrediction(t *testing.T) {
	store := &fakeStore{
		patterns: []models.LearningPattern{{
			ID:         "sig-1",
			Confidence: 0.8,
			Conditions: map[string]any{"event_type": "security_incident", "unit": "BWW"},
		}},
	}
	store.add(10, models.EventSecurityIncident, "BWW", "155", "", models.SeverityMedium, 2*24*time.Hour)
	store.add(2, models.EventSecurityIncident, "BWW", "155", "", models.SeverityMedium, 20*24*time.Hour)
	e := newTestEngine(store, Options{})

	got := e.GeneratePredictions(context.Background(), PredictRequest{
		Entities: []string{"BWW_155"},
		Types:    []models.PredictionType{models.PredictSecurityIncident},
	})
	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, models.PredictSecurityIncident, p.Type)
	assert.Equal(t, "BWW_155", p.Entity)
	assert.InDelta(t, 0.95, p.Confidence, 1e-9)
	assert.InDelta(t, 0.95, p.Probability, 1e-9)
	assert.Equal(t, models.SeverityMedium, p.Severity)
	assert.Equal(t, models.ImpactHigh, p.BusinessImpact)
	assert.InDelta(t, 0.4, p.Factors["historical_frequency"], 1e-9)
	assert.InDelta(t, 4.0, p.Factors["frequency_trend"], 1e-9)
	assert.Equal(t, t0.Add(24*time.Hour), p.Window.Start)
	assert.Equal(t, t0.Add(7*24*time.Hour), p.Window.End)
	assert.Equal(t, []string{"sig-1"}, p.SupportingPattern)
	assert.Contains(t, p.Reasoning, "Trend direction: increasing")
}

func TestSecurityPredictionNeedsMinimumHistory(t *testing.T) {
	store := &fakeStore{}
	store.add(9, models.EventSecurityIncident, "BWW", "155", "", models.SeverityHigh, time.Hour)
	e := newTestEngine(store, Options{})
	assert.Empty(t, e.GeneratePredictions(context.Background(), PredictRequest{
		Types: []models.PredictionType{models.PredictSecurityIncident},
	}))
}

func TestProbabilityMonotoneInRecentFrequency(t *testing.T) {
	base := &fakeStore{}
	base.add(5, models.EventSecurityIncident, "BWW", "155", "", models.SeverityMedium, 20*24*time.Hour)
	base.add(5, models.EventSecurityIncident, "BWW", "155", "", models.SeverityMedium, 10*24*time.Hour)

	prev := -1.0
	for extra := 0; extra <= 8; extra++ {
		store := &fakeStore{events: append([]models.Event(nil), base.events...)}
		store.add(extra, models.EventSecurityIncident, "BWW", "155", "", models.SeverityMedium, 24*time.Hour)
		h := &history{now: t0, horizon: 7, minData: 10, events: store.events}

		p, ok := predictSecurityIncident(h, "BWW_155")
		require.True(t, ok)
		assert.GreaterOrEqual(t, p.Probability, prev, "extra=%d", extra)
		prev = p.Probability
	}
}

func TestPerformanceAndCapacityOrderedByRisk(t *testing.T) {
	store := &fakeStore{}
	store.add(2, models.EventPerformanceIssue, "SONIC", "789", "", models.SeverityMedium, 10*24*time.Hour)
	store.add(4, models.EventPerformanceIssue, "SONIC", "789", "", models.SeverityMedium, 2*24*time.Hour)
	e := newTestEngine(store, Options{RecordRisk: true})

	got := e.GeneratePredictions(context.Background(), PredictRequest{Entities: []string{"SONIC_789"}})
	require.Len(t, got, 2)
	assert.Equal(t, models.PredictPerformanceIssue, got[0].Type)
	assert.InDelta(t, 0.8857, got[0].Confidence, 1e-3)
	assert.InDelta(t, 0.6429, got[0].Probability, 1e-3)
	assert.Equal(t, models.PredictCapacityOverflow, got[1].Type)
	assert.InDelta(t, 0.8, got[1].Confidence, 1e-9)
	assert.InDelta(t, 0.7, got[1].Probability, 1e-9)
	assert.GreaterOrEqual(t, got[0].RiskScore(), got[1].RiskScore())

	require.Len(t, store.samples, 2)
	assert.Equal(t, RiskMetric, store.samples[0].Name)
	assert.Equal(t, "SONIC_789", store.samples[0].Entity)
	assert.InDelta(t, got[0].RiskScore(), store.samples[0].Value, 1e-9)
}

func TestDeviceFailurePrediction(t *testing.T) {
	store := &fakeStore{}
	store.add(6, models.EventDeviceFailure, "ARBYS", "234", "Switch-01", models.SeverityCritical, 3*24*time.Hour)
	e := newTestEngine(store, Options{})

	got := e.GeneratePredictions(context.Background(), PredictRequest{
		Types:       []models.PredictionType{models.PredictDeviceFailure},
		HorizonDays: 30,
	})
	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, "ARBYS_234_Switch-01", p.Entity)
	assert.Equal(t, models.SeverityHigh, p.Severity)
	assert.InDelta(t, 0.7857, p.Probability, 1e-3)
	assert.Equal(t, t0.Add(14*24*time.Hour), p.Window.End)
	assert.Contains(t, p.Recommendations, "Schedule immediate inspection of Switch-01")
}

func TestComplianceFilteredByMinConfidence(t *testing.T) {
	types := []models.PredictionType{models.PredictComplianceViolation}

	low := &fakeStore{}
	low.add(4, models.EventConfigurationChange, "BWW", "155", "FortiGate-01", models.SeverityLow, 24*time.Hour)
	assert.Empty(t, newTestEngine(low, Options{}).GeneratePredictions(context.Background(),
		PredictRequest{Entities: []string{"BWW_155"}, Types: types}))

	high := &fakeStore{}
	high.add(7, models.EventConfigurationChange, "BWW", "155", "FortiGate-01", models.SeverityLow, 24*time.Hour)
	got := newTestEngine(high, Options{}).GeneratePredictions(context.Background(),
		PredictRequest{Entities: []string{"BWW_155"}, Types: types})
	require.Len(t, got, 1)
	assert.InDelta(t, 0.7, got[0].Confidence, 1e-9)
	assert.InDelta(t, 0.6, got[0].Probability, 1e-9)
}

func TestMaintenancePrediction(t *testing.T) {
	store := &fakeStore{}
	store.add(12, models.EventPerformanceIssue, "BWW", "155", "", models.SeverityLow, 5*24*time.Hour)
	e := newTestEngine(store, Options{MinConfidence: 0.5})

	got := e.GeneratePredictions(context.Background(), PredictRequest{
		Entities: []string{"BWW_155"},
		Types:    []models.PredictionType{models.PredictMaintenanceRequired},
	})
	require.Len(t, got, 1)
	// 0.4*0.4 + 1*0.3 + 0.4*0.3
	assert.InDelta(t, 0.58, got[0].Probability, 1e-9)
	assert.Equal(t, models.SeverityLow, got[0].Severity)
	assert.Equal(t, models.ImpactLow, got[0].BusinessImpact)
}

func TestKnownEntities(t *testing.T) {
	events := []models.Event{
		{Unit: "BWW", Site: "155", Device: "AP-01"},
		{Unit: "BWW", Site: "155"},
		{Unit: "SONIC"},
	}
	assert.Equal(t, []string{"BWW_155", "BWW_155_AP-01", "SONIC"}, knownEntities(events))
}

func TestAnalyzeTrends(t *testing.T) {
	store := &fakeStore{}
	store.add(10, models.EventSecurityIncident, "BWW", "155", "", models.SeverityMedium, 5*24*time.Hour)
	store.add(8, models.EventSecurityIncident, "BWW", "155", "", models.SeverityMedium, 40*24*time.Hour)
	e := newTestEngine(store, Options{})

	got := e.AnalyzeTrends(context.Background(), TrendRequest{Entities: []string{"BWW_155"}, LookbackDays: 30})
	require.Len(t, got, 2)

	freq := got[0]
	assert.Equal(t, MetricEventFrequency, freq.Metric)
	assert.Equal(t, models.TrendIncreasing, freq.Direction)
	assert.InDelta(t, 0.25, freq.Strength, 1e-9)
	assert.InDelta(t, 10.0/30, freq.CurrentValue, 1e-9)
	assert.InDelta(t, 10.0/30*1.25, freq.PredictedValue, 1e-9)
	assert.InDelta(t, 10.0/30*0.8, freq.IntervalLow, 1e-9)
	assert.InDelta(t, 10.0/30*1.2, freq.IntervalHigh, 1e-9)
	assert.Equal(t, 7, freq.HorizonDays)

	sev := got[1]
	assert.Equal(t, MetricSeverityScore, sev.Metric)
	assert.Equal(t, models.TrendStable, sev.Direction)
	assert.Zero(t, sev.Strength)
}

func TestBuildTrendDeadBand(t *testing.T) {
	assert.Equal(t, models.TrendStable, buildTrend("x", MetricEventFrequency, 1.05, 1).Direction)
	assert.Equal(t, models.TrendDecreasing, buildTrend("x", MetricEventFrequency, 0.5, 1).Direction)
	assert.Equal(t, models.TrendStable, buildTrend("x", MetricEventFrequency, 3, -1).Direction)
	assert.InDelta(t, 1.0, buildTrend("x", MetricEventFrequency, 5, 1).Strength, 1e-9)
}

func TestFrequencyAndSeverityTrend(t *testing.T) {
	h := &history{now: t0}
	mk := func(ago time.Duration, sev models.Severity) models.Event {
		return models.Event{Timestamp: t0.Add(-ago), Severity: sev}
	}
	events := []models.Event{
		mk(time.Hour, models.SeverityCritical),
		mk(2*time.Hour, models.SeverityHigh),
		mk(10*24*time.Hour, models.SeverityLow),
		mk(11*24*time.Hour, models.SeverityLow),
	}
	assert.InDelta(t, 0.0, frequencyTrend(events, h, 14), 1e-9)
	assert.InDelta(t, (3.5-1)/4, severityTrend(events), 1e-9)
	assert.InDelta(t, 1.0, frequencyTrend(events[:3], h, 4), 1e-9)
}
