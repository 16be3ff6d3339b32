package voice

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"opsmemory/internal/logger"
	"opsmemory/internal/metrics"
	"opsmemory/internal/store"
	"opsmemory/pkg/models"
)

const (
	defaultMinPatternConfidence = 0.7
	defaultMinUsageCount        = 3
	defaultLearningRate         = 0.1
	defaultRegexCacheSize       = 256

	baseConfidence       = 0.8
	learnedConfidence    = 0.7
	correctionConfidence = 0.6
	maxConfidence        = 0.95

	fallbackThreshold  = 0.5
	keywordConfidence  = 0.6
	helpConfidence     = 0.3
	learningConfidence = 0.8
)

// Store is the slice of the event store the engine needs.
type Store interface {
	RecordVoiceInteraction(ctx context.Context, vi models.VoiceInteraction) bool
	GetVoiceLearningInsights(ctx context.Context) store.VoiceInsights
}

// Options configures an Engine.
type Options struct {
	MinPatternConfidence float64
	MinUsageCount        int
	LearningRate         float64
	RegexCacheSize       int
	Metrics              *metrics.Metrics
	Now                  func() time.Time
}

// Engine turns free-text commands into intents and adapts its pattern
// table from outcomes and corrections.
type Engine struct {
	store   Store
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time

	keywords map[Intent][]string

	mu       sync.RWMutex
	patterns []*Pattern
	vocab    map[string]map[string]struct{}

	compiled *lru.Cache[string, *regexp.Regexp]
}

// NewEngine builds an engine seeded with the base pattern table.
func NewEngine(st Store, opts Options) (*Engine, error) {
	if opts.MinPatternConfidence <= 0 {
		opts.MinPatternConfidence = defaultMinPatternConfidence
	}
	if opts.MinUsageCount <= 0 {
		opts.MinUsageCount = defaultMinUsageCount
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = defaultLearningRate
	}
	if opts.RegexCacheSize <= 0 {
		opts.RegexCacheSize = defaultRegexCacheSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	g, err := loadGrammar(builtinGrammar)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *regexp.Regexp](opts.RegexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("voice regex cache: %w", err)
	}
	e := &Engine{
		store:    st,
		opts:     opts,
		metrics:  opts.Metrics,
		now:      opts.Now,
		keywords: g.keywords(),
		vocab:    make(map[string]map[string]struct{}),
		compiled: cache,
	}
	if err := e.seed(g); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) seed(g grammar) error {
	now := e.now()
	for _, grp := range g.Intents {
		for i, src := range grp.Patterns {
			if _, ok := e.regex(src); !ok {
				return fmt.Errorf("command grammar: invalid %s pattern %q", grp.Intent, src)
			}
			e.patterns = append(e.patterns, &Pattern{
				ID:          fmt.Sprintf("%s_%d", grp.Intent, i),
				Regex:       src,
				Intent:      grp.Intent,
				Examples:    grp.Examples,
				Confidence:  baseConfidence,
				SuccessRate: 1,
				LastUsed:    now,
			})
		}
	}
	for kind, words := range g.Vocabulary {
		for _, w := range words {
			e.addVocab(kind, w)
		}
	}
	return nil
}

func (e *Engine) addVocab(kind, word string) {
	set := e.vocab[kind]
	if set == nil {
		set = make(map[string]struct{})
		e.vocab[kind] = set
	}
	set[word] = struct{}{}
}

// regex returns the compiled, case-insensitive form of src.
func (e *Engine) regex(src string) (*regexp.Regexp, bool) {
	if re, ok := e.compiled.Get(src); ok {
		return re, true
	}
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		logger.Warnf("voice: skip invalid pattern %q: %v", src, err)
		return nil, false
	}
	e.compiled.Add(src, re)
	return re, true
}

func (e *Engine) matches(p *Pattern, text string) bool {
	re, ok := e.regex(p.Regex)
	return ok && re.MatchString(text)
}

// covers reports whether p matches the whole of text.
func (e *Engine) covers(p *Pattern, text string) bool {
	re, ok := e.regex(`^(?:` + p.Regex + `)$`)
	return ok && re.MatchString(text)
}

// ProcessCommand recognizes text. It never fails: unrecognized input is a
// help_request at confidence 0.3.
func (e *Engine) ProcessCommand(text string, cmdContext map[string]any) CommandResult {
	normalized := normalize(text)

	e.mu.RLock()
	intent, confidence, patternID := e.recognize(normalized)
	entities := extractEntities(normalized, e.vocab)
	e.mu.RUnlock()

	res := CommandResult{
		ID:         uuid.NewString(),
		Raw:        text,
		Normalized: normalized,
		Intent:     intent,
		Entities:   entities,
		Parameters: extractParameters(normalized, intent),
		Confidence: confidence,
		PatternID:  patternID,
		Context:    cmdContext,
		Timestamp:  e.now(),
	}
	e.metrics.VoiceCommand(string(intent))
	logger.Debugf("voice: %q -> %s (%.2f)", text, intent, confidence)
	return res
}

// recognize picks the best scoring pattern, falling back to keyword votes
// when nothing scores at least 0.5. Callers hold e.mu.
func (e *Engine) recognize(text string) (Intent, float64, string) {
	best, bestScore := (*Pattern)(nil), 0.0
	for _, p := range e.patterns {
		if s := p.score(); s > bestScore && e.matches(p, text) {
			best, bestScore = p, s
		}
	}
	if bestScore >= fallbackThreshold {
		return best.Intent, bestScore, best.ID
	}
	if intent, ok := e.keywordVote(text); ok {
		return intent, keywordConfidence, ""
	}
	if best != nil {
		return best.Intent, max(bestScore, helpConfidence), best.ID
	}
	return IntentHelpRequest, helpConfidence, ""
}

func (e *Engine) keywordVote(text string) (Intent, bool) {
	var winner Intent
	top := 0
	for _, intent := range Intents {
		votes := 0
		for _, kw := range e.keywords[intent] {
			if strings.Contains(text, kw) {
				votes++
			}
		}
		if votes > top {
			winner, top = intent, votes
		}
	}
	return winner, top > 0
}

// LearnFromInteraction persists the outcome and adapts the pattern table.
// It reports whether the interaction was stored.
func (e *Engine) LearnFromInteraction(ctx context.Context, res CommandResult, out Outcome) bool {
	stored := e.store.RecordVoiceInteraction(ctx, models.VoiceInteraction{
		Timestamp:    e.now(),
		Command:      res.Raw,
		Intent:       string(res.Intent),
		Success:      out.Success,
		ResponseTime: out.ResponseTime,
		Feedback:     out.Feedback,
		Context: map[string]any{
			"entities":   res.Entities,
			"parameters": res.Parameters,
			"confidence": res.Confidence,
		},
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.updatePattern(res, out.Success)
	if out.Success {
		for kind, v := range res.Entities {
			e.addVocab(kind, v)
		}
		e.adapt(res)
	}
	return stored
}

// updatePattern folds the outcome into the running success rate of the
// pattern that recognized res, recalibrating confidence once it has
// enough usage.
func (e *Engine) updatePattern(res CommandResult, success bool) {
	var target *Pattern
	for _, p := range e.patterns {
		if res.PatternID != "" && p.ID == res.PatternID {
			target = p
			break
		}
		if res.PatternID == "" && target == nil && p.Intent == res.Intent && e.matches(p, res.Normalized) {
			target = p
		}
	}
	if target == nil {
		return
	}
	hit := 0.0
	if success {
		hit = 1
	}
	target.UsageCount++
	target.LastUsed = res.Timestamp
	target.SuccessRate = (target.SuccessRate*float64(target.UsageCount-1) + hit) / float64(target.UsageCount)
	if target.UsageCount >= e.opts.MinUsageCount {
		target.Confidence = min(target.SuccessRate*0.9+0.1, maxConfidence)
	}
}

// adapt registers a learned pattern for a confidently recognized command
// whose full phrasing no pattern of its intent covers yet.
func (e *Engine) adapt(res CommandResult) {
	if res.Confidence <= learningConfidence || res.Normalized == "" {
		return
	}
	siblings := 0
	for _, p := range e.patterns {
		if p.Intent != res.Intent {
			continue
		}
		siblings++
		if e.covers(p, res.Normalized) {
			return
		}
	}
	src := generalize(res.Normalized, res.Entities)
	if _, ok := e.regex(src); !ok {
		return
	}
	e.patterns = append(e.patterns, &Pattern{
		ID:          fmt.Sprintf("learned_%s_%d", res.Intent, siblings),
		Regex:       src,
		Intent:      res.Intent,
		Examples:    []string{res.Normalized},
		Confidence:  learnedConfidence,
		UsageCount:  1,
		SuccessRate: 1,
		LastUsed:    res.Timestamp,
	})
	logger.Infof("voice: learned pattern %s", src)
}

// ImproveRecognition registers a corrective pattern for each valid
// correction and extends the entity vocabulary. A correction whose
// pattern already exists raises that pattern's confidence by the learning
// rate instead. It returns how many corrections were applied.
func (e *Engine) ImproveRecognition(corrections []Correction) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := 0
	for _, c := range corrections {
		text := normalize(c.Text)
		if text == "" || !c.Intent.Valid() {
			logger.Debugf("voice: skip correction %q (%s)", c.Text, c.Intent)
			continue
		}
		for kind, v := range c.Entities {
			e.addVocab(kind, v)
		}
		src := generalize(text, c.Entities)
		if _, ok := e.regex(src); !ok {
			continue
		}
		applied++

		if existing := e.findByRegex(src, c.Intent); existing != nil {
			existing.Confidence = min(existing.Confidence+e.opts.LearningRate, maxConfidence)
			continue
		}
		e.patterns = append(e.patterns, &Pattern{
			ID:          fmt.Sprintf("correction_%s_%d", c.Intent, len(e.patterns)),
			Regex:       src,
			Intent:      c.Intent,
			Examples:    []string{c.Text},
			Confidence:  correctionConfidence,
			UsageCount:  1,
			SuccessRate: 1,
			LastUsed:    e.now(),
		})
	}
	logger.Infof("voice: applied %d of %d corrections", applied, len(corrections))
	return applied
}

func (e *Engine) findByRegex(src string, intent Intent) *Pattern {
	for _, p := range e.patterns {
		if p.Regex == src && p.Intent == intent {
			return p
		}
	}
	return nil
}

// Patterns returns a snapshot of the recognition table.
func (e *Engine) Patterns() []Pattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Pattern, len(e.patterns))
	for i, p := range e.patterns {
		out[i] = *p
		out[i].Examples = append([]string(nil), p.Examples...)
	}
	return out
}
