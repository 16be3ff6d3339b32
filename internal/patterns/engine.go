package patterns

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"opsmemory/internal/logger"
	"opsmemory/internal/metrics"
	"opsmemory/pkg/models"
)

const (
	defaultWindowHours  = 24
	defaultFeedbackSize = 4096
)

// Store is the slice of the event store the engine needs.
type Store interface {
	Events(ctx context.Context, since time.Time) []models.Event
	RecordDetectedPattern(ctx context.Context, match models.PatternMatch) bool
}

// Options configures an Engine.
type Options struct {
	Thresholds        Thresholds
	Signatures        *SignatureSet
	FeedbackCacheSize int
	Metrics           *metrics.Metrics
	Now               func() time.Time
}

// AnalyzeRequest selects events and detectors. Nil Events loads the last
// WindowHours from the store; empty Types runs every detector.
type AnalyzeRequest struct {
	Events      []models.Event
	Types       []models.PatternType
	WindowHours int
}

// Engine runs the pattern detectors and feeds matches back into the store.
type Engine struct {
	store      Store
	thresholds Thresholds
	signatures *SignatureSet
	metrics    *metrics.Metrics
	now        func() time.Time

	persisted *lru.Cache[string, struct{}]
}

// NewEngine builds an engine. Zero threshold fields take their defaults and
// a nil signature set loads the built-in table.
func NewEngine(store Store, opts Options) (*Engine, error) {
	opts.Thresholds = opts.Thresholds.withDefaults()
	if opts.Signatures == nil {
		set, _, err := LoadSignatures("")
		if err != nil {
			return nil, err
		}
		opts.Signatures = set
	}
	if opts.FeedbackCacheSize <= 0 {
		opts.FeedbackCacheSize = defaultFeedbackSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache, err := lru.New[string, struct{}](opts.FeedbackCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create feedback cache: %w", err)
	}
	return &Engine{
		store:      store,
		thresholds: opts.Thresholds,
		signatures: opts.Signatures,
		metrics:    opts.Metrics,
		now:        opts.Now,
		persisted:  cache,
	}, nil
}

// Thresholds returns the active detector constants.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// AnalyzePatterns runs the selected detectors and returns matches ordered by
// severity weight then confidence, both descending.
func (e *Engine) AnalyzePatterns(ctx context.Context, req AnalyzeRequest) []models.PatternMatch {
	start := time.Now()
	defer func() { e.metrics.ObserveAnalysis("patterns", time.Since(start).Seconds()) }()

	events := req.Events
	if events == nil && e.store != nil {
		hours := req.WindowHours
		if hours <= 0 {
			hours = defaultWindowHours
		}
		events = e.store.Events(ctx, e.now().Add(-time.Duration(hours)*time.Hour))
	}
	if len(events) == 0 {
		logger.Warnf("no events to analyze for patterns")
		return nil
	}

	sorted := append([]models.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	types := req.Types
	if len(types) == 0 {
		types = models.AllPatternTypes
	}

	var out []models.PatternMatch
	for _, t := range types {
		detect, ok := e.detector(t)
		if !ok {
			logger.Warnf("unknown pattern type %q", t)
			continue
		}
		for _, m := range detect(ctx, sorted) {
			if m.Confidence < e.thresholds.MinConfidence {
				continue
			}
			m.Type = t
			m.ID = matchID(m)
			m.DetectedAt = e.now()
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := out[i].Severity.Weight(), out[j].Severity.Weight()
		if wi != wj {
			return wi > wj
		}
		return out[i].Confidence > out[j].Confidence
	})

	for _, m := range out {
		logger.Infof("pattern detected: %s (confidence: %.2f)", m.Description, m.Confidence)
		e.metrics.PatternMatched(string(m.Type))
		e.feedBack(ctx, m)
	}
	logger.Infof("detected %d patterns from %d events", len(out), len(sorted))
	return out
}

type detectFunc func(ctx context.Context, events []models.Event) []models.PatternMatch

func (e *Engine) detector(t models.PatternType) (detectFunc, bool) {
	switch t {
	case models.PatternSecuritySequence:
		return e.detectSecuritySequence, true
	case models.PatternPerformanceDegradation:
		return e.detectPerformanceDegradation, true
	case models.PatternConfigurationDrift:
		return e.detectConfigurationDrift, true
	case models.PatternCrossUnitCorrelation:
		return e.detectCrossUnitCorrelation, true
	case models.PatternTemporalAnomaly:
		return e.detectTemporalAnomaly, true
	case models.PatternDeviceFailure:
		return e.detectDeviceFailure, true
	case models.PatternCampaignMatch:
		return e.detectCampaign, true
	case models.PatternPolicyViolation:
		return e.detectPolicyViolation, true
	default:
		return nil, false
	}
}

// feedBack persists a match once per (type, entities, window).
func (e *Engine) feedBack(ctx context.Context, m models.PatternMatch) {
	if e.store == nil {
		return
	}
	if e.persisted.Contains(m.ID) {
		return
	}
	if e.store.RecordDetectedPattern(ctx, m) {
		e.persisted.Add(m.ID, struct{}{})
	}
}

func matchID(m models.PatternMatch) string {
	entities := append([]string(nil), m.AffectedEntities...)
	sort.Strings(entities)
	raw := strings.Join([]string{
		string(m.Type),
		strings.Join(entities, ","),
		m.Window.Start.UTC().Format(time.RFC3339),
		m.Window.End.UTC().Format(time.RFC3339),
	}, "_")
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
