package predict

import (
	"context"
	"math"
	"time"

	"opsmemory/internal/logger"
	"opsmemory/pkg/models"
)

// Trend metric names.
const (
	MetricEventFrequency = "event_frequency"
	MetricSeverityScore  = "severity_score"
	MetricResolutionTime = "resolution_time"
)

// AllTrendMetrics lists the metrics AnalyzeTrends understands.
var AllTrendMetrics = []string{MetricEventFrequency, MetricSeverityScore, MetricResolutionTime}

const (
	trendDeadBand      = 0.1
	trendInterval      = 0.2
	trendHorizonDays   = 7
	trendMinEvents     = 5
	trendMinResolution = 3
	defaultTrendDays   = 30
)

// TrendRequest selects entities, metrics and the current window length.
type TrendRequest struct {
	Entities     []string
	Metrics      []string
	LookbackDays int
}

// AnalyzeTrends compares each metric over the last LookbackDays against the
// window of equal length before it.
func (e *Engine) AnalyzeTrends(ctx context.Context, req TrendRequest) []models.TrendAnalysis {
	start := time.Now()
	defer func() { e.opts.Metrics.ObserveAnalysis("trends", time.Since(start).Seconds()) }()

	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = defaultTrendDays
	}
	now := e.opts.Now()
	h := &history{
		now:    now,
		events: e.store.Events(ctx, now.Add(-days(2*lookback))),
	}

	entities := req.Entities
	if len(entities) == 0 {
		entities = knownEntities(h.events)
	}
	metricNames := req.Metrics
	if len(metricNames) == 0 {
		metricNames = AllTrendMetrics
	}

	cutoff := now.Add(-days(lookback))
	var out []models.TrendAnalysis
	for _, entity := range entities {
		all := h.forEntity(entity, 0, nil)
		var current, prior []models.Event
		for _, ev := range all {
			if ev.Timestamp.Before(cutoff) {
				prior = append(prior, ev)
			} else {
				current = append(current, ev)
			}
		}
		if len(current) < trendMinEvents {
			continue
		}
		for _, metric := range metricNames {
			cur, prev, ok := metricValues(metric, current, prior, lookback)
			if !ok {
				continue
			}
			out = append(out, buildTrend(entity, metric, cur, prev))
		}
	}
	logger.Debugf("analyzed %d trends for %d entities", len(out), len(entities))
	return out
}

// metricValues returns the current and prior window values. A prior value
// of -1 means the prior window had no data.
func metricValues(metric string, current, prior []models.Event, lookback int) (float64, float64, bool) {
	switch metric {
	case MetricEventFrequency:
		prev := -1.0
		if len(prior) > 0 {
			prev = float64(len(prior)) / float64(lookback)
		}
		return float64(len(current)) / float64(lookback), prev, true
	case MetricSeverityScore:
		prev := -1.0
		if len(prior) > 0 {
			prev = meanSeverity(prior)
		}
		return meanSeverity(current), prev, true
	case MetricResolutionTime:
		cur := resolutionTimes(current)
		if len(cur) < trendMinResolution {
			return 0, 0, false
		}
		prev := -1.0
		if p := resolutionTimes(prior); len(p) > 0 {
			prev = mean(p)
		}
		return mean(cur), prev, true
	default:
		logger.Warnf("unknown trend metric %q", metric)
		return 0, 0, false
	}
}

func buildTrend(entity, metric string, current, prior float64) models.TrendAnalysis {
	t := models.TrendAnalysis{
		Entity:         entity,
		Metric:         metric,
		Direction:      models.TrendStable,
		CurrentValue:   current,
		PriorValue:     math.Max(prior, 0),
		PredictedValue: current,
		IntervalLow:    current * (1 - trendInterval),
		IntervalHigh:   current * (1 + trendInterval),
		HorizonDays:    trendHorizonDays,
	}
	if prior < 0 {
		return t
	}
	switch {
	case current > prior*(1+trendDeadBand):
		t.Direction = models.TrendIncreasing
	case current < prior*(1-trendDeadBand):
		t.Direction = models.TrendDecreasing
	}
	if t.Direction == models.TrendStable {
		return t
	}
	t.Strength = math.Min(math.Abs(current-prior)/math.Max(prior, 0.01), 1)
	if t.Direction == models.TrendIncreasing {
		t.PredictedValue = current * (1 + t.Strength)
	} else {
		t.PredictedValue = current * (1 - t.Strength)
	}
	return t
}

// frequencyTrend compares the event rate of the newer half of the last
// windowDays against the older half. It is 1 when only the newer half has
// events.
func frequencyTrend(events []models.Event, h *history, windowDays int) float64 {
	if len(events) < 3 {
		return 0
	}
	half := windowDays / 2
	if half < 1 {
		half = 1
	}
	cutoff := h.now.Add(-days(half))
	floor := h.now.Add(-days(2 * half))
	recent, older := 0, 0
	for _, ev := range events {
		switch {
		case !ev.Timestamp.Before(cutoff):
			recent++
		case !ev.Timestamp.Before(floor):
			older++
		}
	}
	if older == 0 {
		if recent > 0 {
			return 1
		}
		return 0
	}
	return float64(recent-older) / float64(older)
}

// severityTrend is the mean severity weight of the newer half minus the
// older half, normalised by the top weight.
func severityTrend(newestFirst []models.Event) float64 {
	if len(newestFirst) < 2 {
		return 0
	}
	weights := make([]float64, len(newestFirst))
	for i, ev := range newestFirst {
		w := ev.Severity.Weight()
		if w == 0 {
			w = 1
		}
		// oldest first
		weights[len(newestFirst)-1-i] = float64(w)
	}
	mid := len(weights) / 2
	return (mean(weights[mid:]) - mean(weights[:mid])) / 4
}

func resolutionTrend(newestFirst []models.Event) float64 {
	var times []float64
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if newestFirst[i].ResolutionTime > 0 {
			times = append(times, newestFirst[i].ResolutionTime)
		}
	}
	if len(times) < 3 {
		return 0
	}
	mid := len(times) / 2
	older := mean(times[:mid])
	return (mean(times[mid:]) - older) / math.Max(older, 1)
}

// within keeps events no older than n days before h.now.
func within(events []models.Event, h *history, n int) []models.Event {
	cutoff := h.now.Add(-days(n))
	var out []models.Event
	for _, ev := range events {
		if !ev.Timestamp.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

func meanSeverity(events []models.Event) float64 {
	vals := make([]float64, 0, len(events))
	for _, ev := range events {
		w := ev.Severity.Weight()
		if w == 0 {
			w = 1
		}
		vals = append(vals, float64(w))
	}
	return mean(vals)
}

func resolutionTimes(events []models.Event) []float64 {
	var out []float64
	for _, ev := range events {
		if ev.ResolutionTime > 0 {
			out = append(out, ev.ResolutionTime)
		}
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
