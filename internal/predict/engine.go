package predict

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"opsmemory/internal/logger"
	"opsmemory/internal/metrics"
	"opsmemory/pkg/models"
)

const (
	defaultMinConfidence     = 0.6
	defaultMinHistoricalData = 10
	defaultHorizonDays       = 7
	defaultLookbackDays      = 90
	supportingMinConfidence  = 0.5

	// RiskMetric names the performance_metrics samples written per prediction.
	RiskMetric = "prediction_risk"
)

// Store is the slice of the event store the engine reads and writes.
type Store interface {
	Events(ctx context.Context, since time.Time) []models.Event
	GetLearnedPatterns(ctx context.Context, patternType string, minConfidence float64) []models.LearningPattern
	RecordMetric(ctx context.Context, sample models.MetricSample) bool
}

// Options configures an Engine.
type Options struct {
	MinConfidence     float64
	MinHistoricalData int
	HorizonDays       int
	LookbackDays      int
	// RecordRisk appends each prediction's risk score as a metric sample.
	RecordRisk bool
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// PredictRequest selects entities, models and horizon. Empty Entities
// predicts for every unit/site and device seen in the lookback.
type PredictRequest struct {
	Entities    []string
	Types       []models.PredictionType
	HorizonDays int
}

// Engine runs the forecasting models over stored history.
type Engine struct {
	store Store
	opts  Options
}

// NewEngine builds an engine, filling zero options with defaults.
func NewEngine(store Store, opts Options) *Engine {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaultMinConfidence
	}
	if opts.MinHistoricalData <= 0 {
		opts.MinHistoricalData = defaultMinHistoricalData
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = defaultHorizonDays
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = defaultLookbackDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{store: store, opts: opts}
}

// history is the call-time snapshot handed to every model.
type history struct {
	now      time.Time
	horizon  int
	minData  int
	events   []models.Event
	patterns []models.LearningPattern
}

// forEntity returns the entity's events, newest first, at most limit.
func (h *history) forEntity(entity string, limit int, keep func(*models.Event) bool) []models.Event {
	unit, site, device := models.SplitEntity(entity)
	unit = strings.ToUpper(unit)
	var out []models.Event
	for i := range h.events {
		ev := &h.events[i]
		if strings.ToUpper(ev.Unit) != unit {
			continue
		}
		if site != "" && ev.Site != site {
			continue
		}
		if device != "" && ev.Device != device {
			continue
		}
		if keep != nil && !keep(ev) {
			continue
		}
		out = append(out, *ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// supporting returns ids of confident learned patterns for the unit and type.
func (h *history) supporting(entity string, typ models.EventType) []string {
	unit, _, _ := models.SplitEntity(entity)
	var out []string
	for _, p := range h.patterns {
		if fmt.Sprint(p.Conditions["event_type"]) != string(typ) {
			continue
		}
		if !strings.EqualFold(fmt.Sprint(p.Conditions["unit"]), unit) {
			continue
		}
		out = append(out, p.ID)
	}
	return out
}

func (h *history) window(startDays, endDays int) models.TimeWindow {
	if endDays < startDays {
		endDays = startDays
	}
	return models.TimeWindow{
		Start: h.now.Add(days(startDays)),
		End:   h.now.Add(days(endDays)),
	}
}

// GeneratePredictions runs the selected models, drops predictions below the
// minimum confidence and orders the rest by risk score, highest first.
func (e *Engine) GeneratePredictions(ctx context.Context, req PredictRequest) []models.Prediction {
	start := time.Now()
	defer func() { e.opts.Metrics.ObserveAnalysis("predictions", time.Since(start).Seconds()) }()

	now := e.opts.Now()
	h := &history{
		now:      now,
		horizon:  req.HorizonDays,
		minData:  e.opts.MinHistoricalData,
		events:   e.store.Events(ctx, now.Add(-days(e.opts.LookbackDays))),
		patterns: e.store.GetLearnedPatterns(ctx, "", supportingMinConfidence),
	}
	if h.horizon <= 0 {
		h.horizon = e.opts.HorizonDays
	}

	entities := req.Entities
	if len(entities) == 0 {
		entities = knownEntities(h.events)
	}
	types := req.Types
	if len(types) == 0 {
		types = models.AllPredictionTypes
	}

	var candidates []models.Prediction
	for _, t := range types {
		predict, ok := model(t)
		if !ok {
			logger.Warnf("unknown prediction type %q", t)
			continue
		}
		for _, entity := range entities {
			p, ok := predict(h, entity)
			if !ok {
				continue
			}
			p.Type = t
			p.Entity = entity
			p.ID = fmt.Sprintf("%s_%s_%d", t, entity, now.Unix())
			p.CreatedAt = now
			p.Confidence = clampProb(p.Confidence)
			p.Probability = clampProb(p.Probability)
			candidates = append(candidates, p)
		}
	}

	out := candidates[:0]
	for _, p := range candidates {
		if p.Confidence >= e.opts.MinConfidence {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore() > out[j].RiskScore() })

	for _, p := range out {
		e.opts.Metrics.Predicted(string(p.Type))
		if e.opts.RecordRisk {
			e.store.RecordMetric(ctx, models.MetricSample{
				Timestamp: now,
				Entity:    p.Entity,
				Name:      RiskMetric,
				Value:     p.RiskScore(),
				Labels:    map[string]string{"prediction_type": string(p.Type)},
			})
		}
	}
	logger.Infof("generated %d predictions from %d candidates", len(out), len(candidates))
	return out
}

type modelFunc func(h *history, entity string) (models.Prediction, bool)

func model(t models.PredictionType) (modelFunc, bool) {
	switch t {
	case models.PredictSecurityIncident:
		return predictSecurityIncident, true
	case models.PredictPerformanceIssue:
		return predictPerformanceIssue, true
	case models.PredictDeviceFailure:
		return predictDeviceFailure, true
	case models.PredictCapacityOverflow:
		return predictCapacityOverflow, true
	case models.PredictComplianceViolation:
		return predictComplianceViolation, true
	case models.PredictMaintenanceRequired:
		return predictMaintenance, true
	default:
		return nil, false
	}
}

// knownEntities lists every UNIT_SITE and UNIT_SITE_DEVICE key in events.
func knownEntities(events []models.Event) []string {
	seen := make(map[string]struct{})
	for i := range events {
		ev := &events[i]
		if ev.Unit == "" {
			continue
		}
		seen[ev.Entity()] = struct{}{}
		if ev.Site != "" && ev.Device != "" {
			seen[ev.DeviceEntity()] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func clampProb(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 0.95:
		return 0.95
	default:
		return v
	}
}
