package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsmemory/internal/logger"
	"opsmemory/internal/metrics"
	"opsmemory/pkg/models"
)

const (
	seedConfidence      = 0.3
	confidenceIncrement = 0.1
	defaultSearchLimit  = 10
	defaultRetention    = 365
	insightWindow       = 30 * 24 * time.Hour
)

// Options tunes a Memory instance.
type Options struct {
	RetentionDays int
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Memory is the event store surface used by the engines. Backend failures
// are logged and surface as false or empty results.
type Memory struct {
	backend   Backend
	metrics   *metrics.Metrics
	retention int
	now       func() time.Time

	// serializes read-modify-write of pattern counters
	patternMu sync.Mutex
}

// NewMemory wraps a backend.
func NewMemory(backend Backend, opts Options) *Memory {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = defaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Memory{
		backend:   backend,
		metrics:   opts.Metrics,
		retention: opts.RetentionDays,
		now:       opts.Now,
	}
}

// Close releases the backend.
func (m *Memory) Close() error {
	if m == nil || m.backend == nil {
		return nil
	}
	return m.backend.Close()
}

// Now returns the store clock.
func (m *Memory) Now() time.Time {
	return m.now()
}

// RecordEvent upserts an event by id and bumps its signature pattern once.
func (m *Memory) RecordEvent(ctx context.Context, ev models.Event) bool {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}
	ev.Unit = strings.ToUpper(strings.TrimSpace(ev.Unit))

	if err := m.putJSON(ctx, CollEvents, ev.ID, ev.Timestamp, eventIndex(&ev), ev); err != nil {
		m.fail("record_event", err)
		return false
	}
	m.metrics.EventRecorded()

	if err := m.bumpSignature(ctx, &ev); err != nil {
		m.fail("update_pattern", err)
		return false
	}
	return true
}

// UpdateResolution upserts the resolution fields of a stored event.
func (m *Memory) UpdateResolution(ctx context.Context, id, resolution string, minutes float64) bool {
	var ev models.Event
	if err := m.getJSON(ctx, CollEvents, id, &ev); err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.fail("update_resolution", err)
		}
		return false
	}
	ev.Resolution = resolution
	ev.ResolutionTime = minutes
	if err := m.putJSON(ctx, CollEvents, ev.ID, ev.Timestamp, eventIndex(&ev), ev); err != nil {
		m.fail("update_resolution", err)
		return false
	}
	return true
}

// GetEvent loads one event by id.
func (m *Memory) GetEvent(ctx context.Context, id string) (models.Event, bool) {
	var ev models.Event
	if err := m.getJSON(ctx, CollEvents, id, &ev); err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.fail("get_event", err)
		}
		return ev, false
	}
	return ev, true
}

// Events returns all events at or after since in time order.
func (m *Memory) Events(ctx context.Context, since time.Time) []models.Event {
	return m.rangeEvents(ctx, RangeQuery{Since: since}, "events")
}

// SearchQuery filters SearchSimilarEvents. Empty fields do not filter.
type SearchQuery struct {
	Type     models.EventType
	Unit     string
	Severity models.Severity
	Keywords []string
	Limit    int
}

// SearchSimilarEvents ANDs the type/unit/severity filters, ORs keyword hits
// over descriptions and returns the newest matches first.
func (m *Memory) SearchSimilarEvents(ctx context.Context, q SearchQuery) []models.Event {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	unit := strings.ToUpper(strings.TrimSpace(q.Unit))

	rq := RangeQuery{}
	switch {
	case q.Type != "":
		rq.Field, rq.Value = "type", string(q.Type)
	case unit != "":
		rq.Field, rq.Value = "unit", unit
	}
	events := m.rangeEvents(ctx, rq, "search_similar_events")

	keywords := make([]string, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	out := make([]models.Event, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := events[i]
		if q.Type != "" && ev.Type != q.Type {
			continue
		}
		if unit != "" && ev.Unit != unit {
			continue
		}
		if q.Severity != "" && ev.Severity != q.Severity {
			continue
		}
		if len(keywords) > 0 && !containsAny(strings.ToLower(ev.Description), keywords) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// GetLearnedPatterns returns patterns of the given type (all when empty) at
// or above minConfidence, by confidence then frequency.
func (m *Memory) GetLearnedPatterns(ctx context.Context, patternType string, minConfidence float64) []models.LearningPattern {
	rq := RangeQuery{}
	if patternType != "" {
		rq.Field, rq.Value = "type", patternType
	}
	recs, err := m.backend.Range(ctx, CollPatterns, rq)
	if err != nil {
		m.fail("get_learned_patterns", err)
		return nil
	}

	out := make([]models.LearningPattern, 0, len(recs))
	for _, rec := range recs {
		var p models.LearningPattern
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			logger.Warnf("skip undecodable pattern %s: %v", rec.ID, err)
			continue
		}
		if p.Confidence < minConfidence {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetPattern loads one pattern by id.
func (m *Memory) GetPattern(ctx context.Context, id string) (models.LearningPattern, bool) {
	var p models.LearningPattern
	if err := m.getJSON(ctx, CollPatterns, id, &p); err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.fail("get_pattern", err)
		}
		return p, false
	}
	return p, true
}

// RecordDetectedPattern persists a detector match as a learning pattern,
// keeping its affected entities, window and evidence.
func (m *Memory) RecordDetectedPattern(ctx context.Context, match models.PatternMatch) bool {
	entities := append([]string(nil), match.AffectedEntities...)
	sort.Strings(entities)
	id := Signature(string(match.Type), strings.Join(entities, ","))

	m.patternMu.Lock()
	defer m.patternMu.Unlock()

	p, found := models.LearningPattern{}, false
	if err := m.getJSON(ctx, CollPatterns, id, &p); err == nil {
		found = true
	} else if !errors.Is(err, ErrNotFound) {
		m.fail("record_detected_pattern", err)
		return false
	}

	seen := match.Window.End
	if seen.IsZero() {
		seen = m.now()
	}
	if found {
		p.Frequency++
		p.Confidence = clamp01(maxFloat(p.Confidence, match.Confidence))
		if seen.After(p.LastSeen) {
			p.LastSeen = seen
		}
	} else {
		p = models.LearningPattern{
			ID:         id,
			Type:       string(match.Type),
			Confidence: clamp01(match.Confidence),
			Frequency:  1,
			LastSeen:   seen,
		}
	}
	p.Conditions = map[string]any{
		"pattern_type":      string(match.Type),
		"affected_entities": entities,
		"window_start":      match.Window.Start,
		"window_end":        match.Window.End,
	}
	p.Outcomes = map[string]any{
		"name":        match.Name,
		"severity":    string(match.Severity),
		"description": match.Description,
		"evidence":    match.Evidence,
		"details":     match.Details,
	}
	p.Recommendations = match.Recommendations

	if err := m.putJSON(ctx, CollPatterns, p.ID, p.LastSeen, map[string]string{"type": p.Type}, p); err != nil {
		m.fail("record_detected_pattern", err)
		return false
	}
	return true
}

// Signature derives a stable pattern id from its parts.
func Signature(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:])
}

func (m *Memory) bumpSignature(ctx context.Context, ev *models.Event) error {
	id := Signature(string(ev.Type), string(ev.Severity), ev.Unit)

	m.patternMu.Lock()
	defer m.patternMu.Unlock()

	var p models.LearningPattern
	err := m.getJSON(ctx, CollPatterns, id, &p)
	switch {
	case errors.Is(err, ErrNotFound):
		p = models.LearningPattern{
			ID:         id,
			Type:       string(ev.Type) + "_" + string(ev.Severity),
			Confidence: seedConfidence,
			Frequency:  1,
			LastSeen:   ev.Timestamp,
			Conditions: map[string]any{
				"event_type": string(ev.Type),
				"severity":   string(ev.Severity),
				"unit":       ev.Unit,
			},
			Recommendations: eventRecommendations(ev),
		}
	case err != nil:
		return err
	default:
		p.Frequency++
		p.Confidence = clamp01(math.Round((p.Confidence+confidenceIncrement)*100) / 100)
		if ev.Timestamp.After(p.LastSeen) {
			p.LastSeen = ev.Timestamp
		}
	}
	p.Outcomes = map[string]any{
		"resolution_provided": ev.Resolved(),
		"resolution_time":     ev.ResolutionTime,
	}
	return m.putJSON(ctx, CollPatterns, p.ID, p.LastSeen, map[string]string{"type": p.Type}, p)
}

func eventRecommendations(ev *models.Event) []string {
	var out []string
	switch {
	case ev.Type == models.EventSecurityIncident:
		if ev.Severity.AtLeast(models.SeverityHigh) {
			out = append(out,
				"Immediate security assessment recommended",
				"Review firewall rules and IPS signatures",
			)
		}
		out = append(out, "Monitor similar events across unit locations")
	case ev.Type == models.EventPerformanceIssue:
		out = append(out, "Check network bandwidth utilization", "Review device resource usage")
	case ev.Type == models.EventConfigurationChange:
		out = append(out, "Validate configuration against unit standards", "Document change for audit trail")
	}
	return out
}

func eventIndex(ev *models.Event) map[string]string {
	idx := map[string]string{"type": string(ev.Type)}
	if ev.Unit != "" {
		idx["unit"] = ev.Unit
	}
	return idx
}

func (m *Memory) rangeEvents(ctx context.Context, q RangeQuery, op string) []models.Event {
	recs, err := m.backend.Range(ctx, CollEvents, q)
	if err != nil {
		m.fail(op, err)
		return nil
	}
	out := make([]models.Event, 0, len(recs))
	for _, rec := range recs {
		var ev models.Event
		if err := json.Unmarshal(rec.Data, &ev); err != nil {
			logger.Warnf("skip undecodable event %s: %v", rec.ID, err)
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *Memory) putJSON(ctx context.Context, coll Collection, id string, ts time.Time, idx map[string]string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.backend.Put(ctx, coll, Record{ID: id, Timestamp: ts, Index: idx, Data: raw})
}

func (m *Memory) getJSON(ctx context.Context, coll Collection, id string, v any) error {
	rec, err := m.backend.Get(ctx, coll, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(rec.Data, v)
}

func (m *Memory) fail(op string, err error) {
	logger.Errorf("store %s failed: %v", op, err)
	m.metrics.StorageFailure(op)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
